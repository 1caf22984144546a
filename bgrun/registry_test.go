package bgrun

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"git.unix.lgbt/diamondburned/bgrun/bgrun/exec"
	"github.com/pkg/errors"
)

func sleepProc(pid int) exec.Process {
	return exec.NewSleepProcess(forever, 0, pid, 0)
}

func TestRegistry(t *testing.T) {
	t.Run("insert remove", func(t *testing.T) {
		var r Registry

		if err := r.Insert(sleepProc(1), []string{"sleep", "1"}, ""); err != nil {
			t.Fatal("failed to insert:", err)
		}
		if err := r.Insert(sleepProc(2), []string{"make"}, "/tmp/make.log"); err != nil {
			t.Fatal("failed to insert:", err)
		}

		if n := r.Len(); n != 2 {
			t.Fatalf("expected 2 entries, got %d", n)
		}

		cmd, ok := r.Remove(1)
		if !ok {
			t.Fatal("pid 1 not removed")
		}
		if !reflect.DeepEqual(cmd.Argv, []string{"sleep", "1"}) {
			t.Errorf("unexpected removed argv %q", cmd.Argv)
		}

		// Removal is idempotent.
		if _, ok := r.Remove(1); ok {
			t.Error("pid 1 removed twice")
		}

		snapshot := r.Snapshot()
		if len(snapshot) != 1 || snapshot[0].PID != 2 || snapshot[0].LogFile != "/tmp/make.log" {
			t.Fatalf("unexpected snapshot %#v", snapshot)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		var r Registry

		if err := r.Insert(sleepProc(1), []string{"a"}, ""); err != nil {
			t.Fatal(err)
		}

		err := r.Insert(sleepProc(1), []string{"b"}, "")
		if !errors.Is(err, ErrDuplicatePID) {
			t.Fatalf("expected ErrDuplicatePID, got %v", err)
		}

		if cmds := r.Snapshot(); cmds[0].Argv[0] != "a" {
			t.Fatal("duplicate insert overwrote the entry")
		}
	})

	t.Run("snapshot is a copy", func(t *testing.T) {
		var r Registry

		argv := []string{"sleep", "1"}
		r.Insert(sleepProc(1), argv, "")

		// The registry keeps its own argv.
		argv[0] = "changed"

		snapshot := r.Snapshot()
		r.Remove(1)
		r.Insert(sleepProc(2), []string{"true"}, "")

		if len(snapshot) != 1 || snapshot[0].PID != 1 || snapshot[0].Argv[0] != "sleep" {
			t.Fatalf("snapshot changed after the registry did: %#v", snapshot)
		}
	})

	t.Run("sorted", func(t *testing.T) {
		var r Registry

		for _, pid := range []int{30, 10, 20} {
			r.Insert(sleepProc(pid), []string{"sleep"}, "")
		}

		var pids []int
		for _, entry := range r.Entries() {
			pids = append(pids, entry.PID)
		}

		if !reflect.DeepEqual(pids, []int{10, 20, 30}) {
			t.Fatalf("unexpected pid order %v", pids)
		}
	})

	t.Run("close", func(t *testing.T) {
		var r Registry

		r.Insert(sleepProc(1), []string{"sleep"}, "")

		procs := r.Close()
		if len(procs) != 1 || procs[0].Process.PID() != 1 || procs[0].Argv[0] != "sleep" {
			t.Fatalf("unexpected processes on close: %#v", procs)
		}

		if err := r.Insert(sleepProc(2), []string{"sleep"}, ""); !errors.Is(err, ErrRegistryClosed) {
			t.Fatalf("expected ErrRegistryClosed, got %v", err)
		}

		// Exits are still observed after closing.
		if _, ok := r.Remove(1); !ok {
			t.Fatal("failed to remove after close")
		}
		if r.Len() != 0 {
			t.Fatal("registry not empty")
		}
	})

	t.Run("concurrent", func(t *testing.T) {
		var r Registry
		var wg sync.WaitGroup

		const workers = 16
		const perWorker = 50

		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()

				for i := 0; i < perWorker; i++ {
					pid := w*perWorker + i + 1
					if err := r.Insert(sleepProc(pid), []string{"sleep"}, ""); err != nil {
						t.Error("failed to insert:", err)
						return
					}
					r.Snapshot()
					r.Remove(pid)
					r.Remove(pid)
				}
			}(w)
		}

		wg.Wait()

		if n := r.Len(); n != 0 {
			t.Fatalf("expected empty registry, got %d entries", n)
		}
	})
}

// forever is long enough for any test.
const forever = time.Hour

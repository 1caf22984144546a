package exec

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestLaunch(t *testing.T) {
	t.Run("log file", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "out.log")

		// Truncation is part of the contract.
		if err := os.WriteFile(logFile, []byte("stale contents\n"), 0644); err != nil {
			t.Fatal(err)
		}

		proc, err := Launch([]string{"sh", "-c", "echo out; echo err 1>&2"}, logFile)
		if err != nil {
			t.Fatal("failed to launch:", err)
		}

		status := proc.Wait(nil)
		if status.Code != 0 || status.Error != nil {
			t.Fatalf("unexpected exit status %#v", status)
		}
		if status.PID != proc.PID() {
			t.Errorf("exit status PID %d != process PID %d", status.PID, proc.PID())
		}

		b, err := os.ReadFile(logFile)
		if err != nil {
			t.Fatal("failed to read log file:", err)
		}
		if string(b) != "out\nerr\n" {
			t.Errorf("unexpected log file contents %q", b)
		}
	})

	t.Run("discard", func(t *testing.T) {
		proc, err := Launch([]string{"sh", "-c", "echo discarded; exit 3"}, "")
		if err != nil {
			t.Fatal("failed to launch:", err)
		}

		if status := proc.Wait(nil); status.Code != 3 {
			t.Errorf("expected exit code 3, got %d", status.Code)
		}
	})

	t.Run("missing executable", func(t *testing.T) {
		_, err := Launch([]string{"bgrun-test-does-not-exist"}, "")
		if !errors.Is(err, ErrSpawn) {
			t.Fatalf("expected ErrSpawn, got %v", err)
		}
	})

	t.Run("empty argv", func(t *testing.T) {
		_, err := Launch(nil, "")
		if !errors.Is(err, ErrSpawn) {
			t.Fatalf("expected ErrSpawn, got %v", err)
		}
	})

	t.Run("unwritable log file", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "missing", "out.log")

		_, err := Launch([]string{"true"}, logFile)
		if !errors.Is(err, ErrLogFile) {
			t.Fatalf("expected ErrLogFile, got %v", err)
		}
		if errors.Is(err, ErrSpawn) {
			t.Fatal("log file error also matched ErrSpawn")
		}
	})
}

func TestProcessWait(t *testing.T) {
	t.Run("exited before reap", func(t *testing.T) {
		if runtime.GOOS != "linux" {
			t.Skip("waitid(WNOWAIT) is only used on Linux")
		}

		proc, err := Launch([]string{"true"}, "")
		if err != nil {
			t.Fatal("failed to launch:", err)
		}

		var aliveInCallback bool
		proc.Wait(func() {
			// The zombie still holds the PID.
			aliveInCallback = Alive(proc.PID())
		})

		if !aliveInCallback {
			t.Error("PID was released before the exited callback ran")
		}
	})

	t.Run("kill", func(t *testing.T) {
		proc, err := Launch([]string{"sleep", "60"}, "")
		if err != nil {
			t.Fatal("failed to launch:", err)
		}

		if err := proc.Kill(); err != nil {
			t.Fatal("failed to kill:", err)
		}

		done := make(chan ExitStatus, 1)
		go func() { done <- proc.Wait(nil) }()

		select {
		case status := <-done:
			if status.Code != -1 {
				t.Errorf("expected exit code -1 for a killed process, got %d", status.Code)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for killed process")
		}

		if Alive(proc.PID()) {
			t.Error("process still alive after being reaped")
		}
	})
}

func TestSleepProcess(t *testing.T) {
	t.Run("exit code", func(t *testing.T) {
		proc := NewSleepProcess(time.Millisecond, 0, 1, 2)

		var called bool
		status := proc.Wait(func() { called = true })

		if !called {
			t.Error("exited callback not called")
		}
		if status.Code != 2 {
			t.Errorf("expected exit code 2, got %d", status.Code)
		}
	})

	t.Run("kill ignores delay", func(t *testing.T) {
		proc := NewSleepProcess(time.Hour, time.Hour, 1, 0)
		proc.Kill()

		if status := proc.Wait(nil); status.Code != -1 {
			t.Errorf("expected exit code -1, got %d", status.Code)
		}
	})
}

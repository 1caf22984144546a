package client

import (
	"context"
	"net"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"git.unix.lgbt/diamondburned/bgrun/bgrun/wire"
	"github.com/pkg/errors"
)

// fakeDaemon answers every request on a Unix socket with reply. The decoded
// requests are sent to the returned channel.
func fakeDaemon(t *testing.T, reply string) (string, <-chan wire.Request) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bgrun.sock")

	l, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal("failed to listen:", err)
	}
	t.Cleanup(func() { l.Close() })

	reqs := make(chan wire.Request, 8)

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}

			b, err := wire.ReadMessage(conn)
			if err == nil {
				if req, err := wire.DecodeRequest(b); err == nil {
					reqs <- req
				}
			}

			conn.Write([]byte(reply))
			conn.Close()
		}
	}()

	return path, reqs
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRun(t *testing.T) {
	path, reqs := fakeDaemon(t, "4242")

	pid, err := New(path).Run(testContext(t), "sleep", []string{"1"}, "/tmp/sleep.log")
	if err != nil {
		t.Fatal("failed to run:", err)
	}
	if pid != 4242 {
		t.Fatalf("unexpected pid %d", pid)
	}

	expect := wire.CommandRequest{Command: "sleep", Args: []string{"1"}, LogFile: "/tmp/sleep.log"}
	if req := <-reqs; !reflect.DeepEqual(req, expect) {
		t.Fatalf("unexpected request %#v", req)
	}
}

func TestRunning(t *testing.T) {
	path, reqs := fakeDaemon(t, `[{"pid":1,"command":"sleep 1","log_file":null}]`)

	entries, err := New(path).Running(testContext(t))
	if err != nil {
		t.Fatal("failed to list:", err)
	}

	expect := []wire.Entry{{PID: 1, Command: "sleep 1"}}
	if !reflect.DeepEqual(entries, expect) {
		t.Fatalf("unexpected entries %#v", entries)
	}

	if req := <-reqs; req.Type() != wire.TypeRunning {
		t.Fatalf("unexpected request type %q", req.Type())
	}
}

func TestNoReply(t *testing.T) {
	path, _ := fakeDaemon(t, "")

	if _, err := New(path).Run(testContext(t), "nope", nil, ""); !errors.Is(err, ErrNoReply) {
		t.Fatal("expected ErrNoReply, got", err)
	}
}

func TestNoDaemon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.sock")

	if _, err := New(path).Running(testContext(t)); err == nil {
		t.Fatal("expected an error without a daemon")
	}
}

package bgrun

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// ErrSocketRemoved is the cause of a shutdown triggered by the socket file
// disappearing from under the daemon.
var ErrSocketRemoved = errors.New("socket file removed")

// socketWatcher watches the directory of the socket and reports when the
// socket file is removed or renamed by someone else, at which point no client
// can reach the daemon anymore.
type socketWatcher struct {
	w    *fsnotify.Watcher
	j    Journaler
	path string
}

// watchSocket starts watching the socket at path in the background. gone is
// called at most once, when the socket disappears. The watcher stops once the
// context is canceled.
func watchSocket(ctx context.Context, path string, j Journaler, gone func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return errors.Wrap(err, "failed to watch socket dir")
	}

	w := socketWatcher{
		w:    watcher,
		j:    j,
		path: filepath.Clean(path),
	}

	go w.watch(ctx, gone)
	return nil
}

func (w socketWatcher) watch(ctx context.Context, gone func()) {
	defer w.w.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}

			w.j.Write(&EventWarning{
				Component: "watcher",
				Error:     "inotify error: " + err.Error(),
			})

		case evt, ok := <-w.w.Events:
			if !ok {
				return
			}

			if w.isGone(evt) {
				gone()
				return
			}
		}
	}
}

// isGone returns true if the event removes the socket file. A rename is
// treated as a remove, since the socket is no longer at its path either way.
func (w socketWatcher) isGone(evt fsnotify.Event) bool {
	if filepath.Clean(evt.Name) != w.path {
		return false
	}

	return evt.Op&(fsnotify.Remove|fsnotify.Rename) != 0
}

package bgrun

import (
	"net"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// ErrSocketInUse is returned by Listen if the socket path already exists and
// Force is not set, or if another daemon is still serving it.
var ErrSocketInUse = errors.New("socket in use")

// socket is a Unix socket listener that owns its path. A lock file next to the
// socket tells a live daemon's socket apart from a stale one.
type socket struct {
	path string
	l    *net.UnixListener
	lock *flock.Flock
	once sync.Once
}

// bindSocket binds a new socket at path. If the path exists, it is removed
// first only if force is true. The returned bool is true if that happened.
func bindSocket(path string, force bool) (*socket, bool, error) {
	lock := flock.New(path + ".lock")

	locked, err := lock.TryLock()
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to lock socket")
	}
	if !locked {
		return nil, false, errors.Wrapf(ErrSocketInUse, "%s is owned by a running daemon", path)
	}

	var forced bool

	if _, err := os.Lstat(path); err == nil {
		if !force {
			lock.Unlock()
			return nil, false, errors.Wrapf(ErrSocketInUse, "%s already exists", path)
		}

		if err := os.Remove(path); err != nil {
			lock.Unlock()
			return nil, false, errors.Wrap(err, "failed to remove stale socket")
		}

		forced = true
	} else if !os.IsNotExist(err) {
		lock.Unlock()
		return nil, false, errors.Wrap(err, "failed to stat socket")
	}

	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		lock.Unlock()
		return nil, false, errors.Wrap(err, "failed to listen")
	}

	// Close removes the path itself, before closing the listener.
	l.SetUnlinkOnClose(false)

	return &socket{
		path: path,
		l:    l,
		lock: lock,
	}, forced, nil
}

// Close unlinks the socket path, closes the listener and releases the lock.
// Unlinking first makes clients fail with "not found" rather than connect to a
// listener that will never accept them. Close may be called more than once.
func (s *socket) Close() error {
	var err error

	s.once.Do(func() {
		if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = errors.Wrap(rmErr, "failed to remove socket")
		}

		if closeErr := s.l.Close(); closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, "failed to close listener")
		}

		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = errors.Wrap(unlockErr, "failed to unlock socket")
		}
	})

	return err
}

// Package journal provides implementations of bgrun's Journaler interface that
// write to files and terminals, and a reader for journal files. It also
// provides a file locking abstraction so that only one daemon writes to the
// same journal file.
package journal

import (
	"os"
	"path/filepath"

	"git.unix.lgbt/diamondburned/bgrun/bgrun"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// multiWriter combines multiple journalers.
type multiWriter []bgrun.Journaler

// MultiWriter creates a journaler that writes to multiple other journalers.
// Every journaler is written to even if an earlier one fails; the first error
// is returned.
func MultiWriter(ws ...bgrun.Journaler) bgrun.Journaler {
	return multiWriter(ws)
}

func (ws multiWriter) Write(event bgrun.Event) error {
	var firstErr error
	for _, writer := range ws {
		if err := writer.Write(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// FileLockJournaler appends events to a journal file that only one daemon may
// own at a time. Ownership is an flock on the file itself, so it goes away with
// the daemon even if Close is never called.
//
// # Reading the Journal
//
// Readers do not take the lock. Every event is written with a single append,
// so a reader sees whole lines only; use Reader or ReadLast.
type FileLockJournaler struct {
	*Writer
	f *os.File
	l *flock.Flock
}

// ErrLockedElsewhere is returned if NewFileLockJournaler can't acquire the file
// lock.
var ErrLockedElsewhere = errors.New("file already locked elsewhere")

// NewFileLockJournaler opens the journal at path for appending, creating it
// and its directory as needed. ErrLockedElsewhere is returned if another
// process owns the journal.
func NewFileLockJournaler(path string) (*FileLockJournaler, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create journal directory")
	}

	l := flock.New(path)

	locked, err := l.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire lock")
	}
	if !locked {
		return nil, ErrLockedElsewhere
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		l.Unlock()
		return nil, errors.Wrap(err, "failed to open journal")
	}

	return &FileLockJournaler{
		Writer: NewWriter(f),
		f:      f,
		l:      l,
	}, nil
}

// Close closes the file and releases the flock.
func (j *FileLockJournaler) Close() error {
	if err := j.f.Close(); err != nil {
		j.l.Unlock()
		return errors.Wrap(err, "failed to close journal")
	}

	return j.l.Unlock()
}

//go:build !linux

package exec

import "github.com/pkg/errors"

// waitExited is not supported outside of Linux; Wait falls back to calling the
// exited callback after the process is reaped.
func waitExited(pid int) error {
	return errors.New("waitid not supported")
}

package exec

import (
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

type sleepProcess struct {
	once  sync.Once
	stop  chan struct{}
	timer *time.Timer
	delay time.Duration

	pid  int
	code int32
	exit int32
}

// NewSleepProcess creates a process that only idles for a duration and then
// exits with the given code. It is used for testing. A catchable signal stops
// it after delay; SIGKILL stops it immediately. Signaled processes exit with
// -1, like real ones.
func NewSleepProcess(dura, delay time.Duration, pid, code int) Process {
	return &sleepProcess{
		stop:  make(chan struct{}),
		timer: time.NewTimer(dura),
		delay: delay,

		pid:  pid,
		code: int32(code),
		exit: -2,
	}
}

func (mock *sleepProcess) PID() int { return mock.pid }

func (mock *sleepProcess) Signal(sig os.Signal) error {
	switch sig {
	case os.Interrupt, syscall.SIGTERM, os.Kill:
	default:
		return errors.New("unknown signal")
	}

	go func() {
		if mock.delay > 0 && sig != os.Kill {
			select {
			case <-time.After(mock.delay):

			case <-mock.stop:
				return
			}
		}

		// Only the first signal to land decides the exit status.
		if !atomic.CompareAndSwapInt32(&mock.exit, -2, -1) {
			return
		}

		close(mock.stop)
		mock.timer.Stop()
	}()

	return nil
}

func (mock *sleepProcess) Kill() error {
	return mock.Signal(os.Kill)
}

func (mock *sleepProcess) Wait(exited func()) ExitStatus {
	mock.once.Do(func() {
		select {
		case <-mock.stop:
		case <-mock.timer.C:
			if !atomic.CompareAndSwapInt32(&mock.exit, -2, mock.code) {
				<-mock.stop
			}
		}
	})

	if exited != nil {
		exited()
	}

	return ExitStatus{
		PID:  mock.pid,
		Code: int(atomic.LoadInt32(&mock.exit)),
	}
}

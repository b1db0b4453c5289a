//go:build linux || darwin

package tpmutil

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// pollNoTimeout blocks until the descriptor is readable (TSS2_TCTI_TIMEOUT_BLOCK).
const pollNoTimeout = time.Duration(-1)

// poll blocks until f is ready for reading, the timeout expires or an error
// occurs. A hang-up or error condition on the descriptor is reported as an
// error so callers do not block on a read that can never complete.
func poll(f *os.File, timeout time.Duration) error {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	pollFds := []unix.PollFd{
		{Fd: int32(f.Fd()), Events: unix.POLLIN},
	}
	for {
		n, err := unix.Poll(pollFds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return os.ErrDeadlineExceeded
		}
		if pollFds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 && pollFds[0].Revents&unix.POLLIN == 0 {
			return unix.EPIPE
		}
		return nil
	}
}

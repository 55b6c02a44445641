package server

import (
	"time"

	"golang.org/x/sys/unix"
)

// event is one readiness report for a registered descriptor. Hangups and
// errors are reported as readable so the following read surfaces them.
type event struct {
	fd       int
	readable bool
	writable bool
}

// poller is the readiness multiplexer. Every method except wake is called
// only from the loop goroutine; wake may be called from anywhere.
type poller interface {
	// add registers fd for read readiness and, if write is set, write readiness.
	add(fd int, write bool) error

	// modify turns write interest on or off for a registered fd.
	modify(fd int, write bool) error

	// remove unregisters fd. It must be called before fd is closed.
	remove(fd int) error

	// wait blocks until a registered fd is ready, wake is called, or timeout
	// elapses, and fills events. A negative timeout waits indefinitely.
	wait(events []event, timeout time.Duration) (int, error)

	// wake interrupts a blocked wait.
	wake() error

	close() error
}

func timeoutMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}

	return int(timeout / time.Millisecond)
}

func retryable(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR
}

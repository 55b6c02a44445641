//go:build unix && !linux

package server

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// pollPoller is the portable poll(2) fallback. The read end of a
// non-blocking pipe occupies slot 0 and serves as the wakeup channel.
type pollPoller struct {
	fds   []unix.PollFd
	index map[int]int
	wakeR int
	wakeW int
}

func newPoller() (poller, error) {
	var pipe [2]int
	if err := unix.Pipe(pipe[:]); err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}

	for _, fd := range pipe {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(pipe[0])
			_ = unix.Close(pipe[1])
			return nil, fmt.Errorf("pipe nonblock: %w", err)
		}
	}

	return &pollPoller{
		fds:   []unix.PollFd{{Fd: int32(pipe[0]), Events: unix.POLLIN}},
		index: map[int]int{pipe[0]: 0},
		wakeR: pipe[0],
		wakeW: pipe[1],
	}, nil
}

func pollMask(write bool) int16 {
	if write {
		return unix.POLLIN | unix.POLLOUT
	}

	return unix.POLLIN
}

func (p *pollPoller) add(fd int, write bool) error {
	if _, ok := p.index[fd]; ok {
		return fmt.Errorf("poll add %d: already registered", fd)
	}

	p.index[fd] = len(p.fds)
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: pollMask(write)})
	return nil
}

func (p *pollPoller) modify(fd int, write bool) error {
	i, ok := p.index[fd]
	if !ok {
		return fmt.Errorf("poll modify %d: not registered", fd)
	}

	p.fds[i].Events = pollMask(write)
	return nil
}

func (p *pollPoller) remove(fd int) error {
	i, ok := p.index[fd]
	if !ok {
		return fmt.Errorf("poll remove %d: not registered", fd)
	}

	last := len(p.fds) - 1
	p.fds[i] = p.fds[last]
	p.index[int(p.fds[i].Fd)] = i
	p.fds = p.fds[:last]
	delete(p.index, fd)
	return nil
}

func (p *pollPoller) wait(events []event, timeout time.Duration) (int, error) {
	n, err := unix.Poll(p.fds, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	count := 0
	for _, pfd := range p.fds {
		if pfd.Revents == 0 {
			continue
		}

		fd := int(pfd.Fd)
		if fd == p.wakeR {
			p.drainWake()
			continue
		}

		if count == len(events) {
			break
		}

		events[count] = event{
			fd:       fd,
			readable: pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0,
			writable: pfd.Revents&unix.POLLOUT != 0,
		}
		count++
	}

	return count, nil
}

func (p *pollPoller) drainWake() {
	var buf [64]byte
	for {
		if _, err := unix.Read(p.wakeR, buf[:]); err != nil {
			return
		}
	}
}

func (p *pollPoller) wake() error {
	if _, err := unix.Write(p.wakeW, []byte{1}); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("pipe write: %w", err)
	}

	return nil
}

func (p *pollPoller) close() error {
	err1 := unix.Close(p.wakeR)
	err2 := unix.Close(p.wakeW)
	if err1 != nil {
		return err1
	}

	return err2
}

func acceptConn(lfd int) (int, unix.Sockaddr, error) {
	fd, sa, err := unix.Accept(lfd)
	if err != nil {
		return -1, nil, err
	}

	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, nil, err
	}

	return fd, sa, nil
}

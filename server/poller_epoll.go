//go:build linux

package server

import (
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// epoller is the level-triggered epoll poller. An eventfd registered for
// read readiness serves as the wakeup channel.
type epoller struct {
	epfd   int
	wakefd int
	buf    []unix.EpollEvent
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	p := &epoller{epfd: epfd, wakefd: wakefd}
	if err := p.add(wakefd, false); err != nil {
		_ = p.close()
		return nil, err
	}

	return p, nil
}

func epollMask(write bool) uint32 {
	mask := uint32(unix.EPOLLIN | unix.EPOLLRDHUP)
	if write {
		mask |= unix.EPOLLOUT
	}

	return mask
}

func (p *epoller) add(fd int, write bool) error {
	ev := unix.EpollEvent{Events: epollMask(write), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add %d: %w", fd, err)
	}

	return nil
}

func (p *epoller) modify(fd int, write bool) error {
	ev := unix.EpollEvent{Events: epollMask(write), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl mod %d: %w", fd, err)
	}

	return nil
}

func (p *epoller) remove(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll_ctl del %d: %w", fd, err)
	}

	return nil
}

func (p *epoller) wait(events []event, timeout time.Duration) (int, error) {
	if cap(p.buf) < len(events) {
		p.buf = make([]unix.EpollEvent, len(events))
	}

	n, err := unix.EpollWait(p.epfd, p.buf[:len(events)], timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll_wait: %w", err)
	}

	count := 0
	for _, ev := range p.buf[:n] {
		fd := int(ev.Fd)
		if fd == p.wakefd {
			p.drainWake()
			continue
		}

		events[count] = event{
			fd:       fd,
			readable: ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			writable: ev.Events&unix.EPOLLOUT != 0,
		}
		count++
	}

	return count, nil
}

func (p *epoller) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(p.wakefd, buf[:])
}

func (p *epoller) wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(p.wakefd, buf[:]); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("eventfd write: %w", err)
	}

	return nil
}

func (p *epoller) close() error {
	err1 := unix.Close(p.wakefd)
	err2 := unix.Close(p.epfd)
	if err1 != nil {
		return err1
	}

	return err2
}

func acceptConn(lfd int) (int, unix.Sockaddr, error) {
	return unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
}

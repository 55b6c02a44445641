// Package server is the event-loop TCP server. One goroutine owns a
// readiness multiplexer (epoll on Linux, poll(2) on other unix systems),
// accepts connections, performs every socket read and write, and hands
// decoded commands to a Handler. The package requires a unix platform.
package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cyberinferno/sleuthnet/frame"
	"github.com/cyberinferno/sleuthnet/idgenerator"
	"github.com/cyberinferno/sleuthnet/lobby"
	"github.com/cyberinferno/sleuthnet/logger"
	"github.com/cyberinferno/sleuthnet/metrics"
	"github.com/cyberinferno/sleuthnet/protocol"
)

// Handler receives connection lifecycle events and decoded commands. It is
// called only from the loop goroutine and must return quickly.
type Handler interface {
	// Connected is called once after a connection is registered.
	Connected(p lobby.Peer)

	// Handle is called for every decoded command, in arrival order.
	Handle(p lobby.Peer, cmd protocol.Command)

	// Disconnected is called once after the connection is closed.
	Disconnected(p lobby.Peer)
}

// Config holds the server parameters.
type Config struct {
	// Name is used in log messages.
	Name string
	// Addr is the TCP listen address, e.g. ":7777".
	Addr string
	// BufferSize is the per-read buffer size in bytes.
	BufferSize int
	// FrameMultiple bounds a payload to BufferSize*FrameMultiple bytes.
	FrameMultiple int
	// PollTimeout bounds one multiplexer wait.
	PollTimeout time.Duration
	// MaxQueue bounds the outbound frames queued per connection; 0 means unbounded.
	MaxQueue int
	// IdGenerator issues connection IDs; nil starts a fresh sequence at 1.
	IdGenerator *idgenerator.IdGenerator

	Handler Handler
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// Server is the event-loop server.
type Server struct {
	Name        string
	Running     atomic.Bool
	IdGenerator *idgenerator.IdGenerator

	addr        string
	bufferSize  int
	maxPayload  int
	pollTimeout time.Duration
	maxQueue    int
	handler     Handler
	log         logger.Logger
	metrics     *metrics.Metrics

	listener net.Listener
	lnFile   *os.File
	lfd      int
	poller   poller
	done     chan struct{}
	stopOnce sync.Once

	count atomic.Int32

	// Owned by the loop.
	conns   map[int]*Conn
	readBuf []byte

	pendingMu sync.Mutex
	pending   []*Conn

	// wakeMu keeps wakeups from other goroutines off a closed poller.
	wakeMu       sync.RWMutex
	pollerClosed bool
}

// New creates a Server from cfg, filling in defaults for zero values.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	name := cfg.Name
	if name == "" {
		name = "sleuth"
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 4096
	}

	multiple := cfg.FrameMultiple
	if multiple <= 0 {
		multiple = 16
	}

	timeout := cfg.PollTimeout
	if timeout == 0 {
		timeout = time.Second
	}

	ids := cfg.IdGenerator
	if ids == nil {
		ids = idgenerator.NewIdGenerator(0)
	}

	return &Server{
		Name:        name,
		IdGenerator: ids,
		addr:        cfg.Addr,
		bufferSize:  bufferSize,
		maxPayload:  frame.MaxPayload(bufferSize, multiple),
		pollTimeout: timeout,
		maxQueue:    cfg.MaxQueue,
		handler:     cfg.Handler,
		log:         log.With(logger.Field{Key: "server", Value: name}),
		metrics:     cfg.Metrics,
		lfd:         -1,
	}
}

// Start binds the listen address and runs the event loop in a goroutine.
//
// Returns:
//   - An error if the server is already running or the socket setup fails
func (s *Server) Start() error {
	if s.Running.Load() {
		s.log.Error("server already running")
		return fmt.Errorf("server %s already running", s.Name)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.log.Error("server failed to start", logger.Err(err))
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	f, err := ln.(*net.TCPListener).File()
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("server %s listener fd: %w", s.Name, err)
	}

	lfd := int(f.Fd())
	if err := unix.SetNonblock(lfd, true); err != nil {
		_ = f.Close()
		_ = ln.Close()
		return fmt.Errorf("server %s listener nonblock: %w", s.Name, err)
	}

	p, err := newPoller()
	if err != nil {
		_ = f.Close()
		_ = ln.Close()
		return fmt.Errorf("server %s poller: %w", s.Name, err)
	}

	if err := p.add(lfd, false); err != nil {
		_ = p.close()
		_ = f.Close()
		_ = ln.Close()
		return fmt.Errorf("server %s register listener: %w", s.Name, err)
	}

	s.listener = ln
	s.lnFile = f
	s.lfd = lfd
	s.poller = p
	s.conns = make(map[int]*Conn)
	s.readBuf = make([]byte, s.bufferSize)
	s.done = make(chan struct{})
	s.stopOnce = sync.Once{}
	s.pollerClosed = false
	s.Running.Store(true)

	s.log.Info(fmt.Sprintf("%s server started", s.Name), logger.Field{Key: "addr", Value: ln.Addr().String()})
	go s.loop()

	return nil
}

// Stop closes the listening socket, wakes the loop and waits for it to close
// every remaining connection. Safe to call when the server is not running.
func (s *Server) Stop() {
	if !s.Running.Load() {
		s.log.Info(fmt.Sprintf("%s server not running", s.Name))
		return
	}

	s.stopOnce.Do(func() {
		s.Running.Store(false)
		_ = s.listener.Close()
		s.wake()
	})

	<-s.done
	s.log.Info(fmt.Sprintf("%s server stopped", s.Name))
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	return int(s.count.Load())
}

// schedule queues c for the loop's flush step and wakes the loop when the
// list goes from empty to non-empty.
func (s *Server) schedule(c *Conn) {
	s.pendingMu.Lock()
	s.pending = append(s.pending, c)
	first := len(s.pending) == 1
	s.pendingMu.Unlock()

	if first {
		s.wake()
	}
}

func (s *Server) wake() {
	s.wakeMu.RLock()
	defer s.wakeMu.RUnlock()

	if s.poller == nil || s.pollerClosed {
		return
	}

	if err := s.poller.wake(); err != nil {
		s.log.Warn("failed to wake event loop", logger.Err(err))
	}
}

func (s *Server) loop() {
	defer close(s.done)
	defer s.shutdown()

	events := make([]event, 128)
	for s.Running.Load() {
		n, err := s.poller.wait(events, s.pollTimeout)
		if err != nil {
			s.log.Error(fmt.Sprintf("%s server poll error", s.Name), logger.Err(err))
			s.Running.Store(false)
			return
		}

		for _, ev := range events[:n] {
			if ev.fd == s.lfd {
				s.accept()
				continue
			}

			c, ok := s.conns[ev.fd]
			if !ok {
				continue
			}

			if ev.readable {
				if err := s.readReady(c); err != nil {
					s.closeConn(c, err)
					continue
				}
			}

			if ev.writable {
				if err := s.writeReady(c); err != nil {
					s.closeConn(c, err)
				}
			}
		}

		s.flushPending()
	}
}

func (s *Server) accept() {
	for {
		fd, sa, err := acceptConn(s.lfd)
		if err != nil {
			if err == unix.ECONNABORTED {
				continue
			}
			if retryable(err) {
				return
			}
			if s.Running.Load() {
				s.log.Error(fmt.Sprintf("%s server accept error", s.Name), logger.Err(err))
			}
			return
		}

		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		if err := s.poller.add(fd, false); err != nil {
			s.log.Error("failed to register connection", logger.Err(err))
			_ = unix.Close(fd)
			continue
		}

		id := s.IdGenerator.Id()
		c := &Conn{
			srv:  s,
			fd:   fd,
			id:   id,
			addr: sockaddrString(sa),
			log:  s.log.With(logger.Field{Key: "conn", Value: id}),
			dec:  frame.NewDecoder(s.maxPayload),
		}
		s.conns[fd] = c
		s.count.Add(1)
		s.metrics.ConnectionOpened()

		c.log.Debug("connection accepted", logger.Field{Key: "remote", Value: c.addr})
		if s.handler != nil {
			s.handler.Connected(c)
		}
	}
}

// readReady performs one read for c and routes every completed frame.
func (s *Server) readReady(c *Conn) error {
	payloads, err := c.read(s.readBuf)
	for _, payload := range payloads {
		cmd, decodeErr := protocol.UnmarshalCommand(payload)
		if decodeErr != nil {
			s.metrics.ProtocolError("decode")
			return fmt.Errorf("decode command: %w", decodeErr)
		}

		s.metrics.FrameReceived()
		if s.handler != nil {
			s.handler.Handle(c, cmd)
		}
	}

	if err != nil {
		switch {
		case errors.Is(err, frame.ErrEmptyFrame):
			s.metrics.ProtocolError("empty_frame")
		case errors.Is(err, frame.ErrFrameTooLarge):
			s.metrics.ProtocolError("frame_too_large")
		}
		return err
	}

	return nil
}

func (s *Server) writeReady(c *Conn) error {
	sent, err := c.drain()
	for i := 0; i < sent; i++ {
		s.metrics.FrameSent()
	}

	return err
}

func (s *Server) flushPending() {
	s.pendingMu.Lock()
	pending := s.pending
	s.pending = nil
	s.pendingMu.Unlock()

	for _, c := range pending {
		if cur, ok := s.conns[c.fd]; !ok || cur != c {
			continue
		}

		shouldClose, err := c.flush()
		if err != nil {
			s.closeConn(c, err)
			continue
		}

		if shouldClose {
			s.closeConn(c, nil)
		}
	}
}

// closeConn unregisters and closes c, then reports the disconnect to the
// handler. err is the cause, nil for a requested close.
func (s *Server) closeConn(c *Conn, err error) {
	if !c.markClosed() {
		return
	}

	if rmErr := s.poller.remove(c.fd); rmErr != nil {
		c.log.Debug("failed to unregister connection", logger.Err(rmErr))
	}
	_ = unix.Close(c.fd)
	delete(s.conns, c.fd)
	s.count.Add(-1)
	s.metrics.ConnectionClosed()

	switch {
	case err == nil:
		c.log.Debug("connection closed")
	case isExpectedClose(err):
		c.log.Debug("connection closed by peer", logger.Err(err))
	default:
		c.log.Warn("connection closed on error", logger.Err(err))
	}

	if s.handler != nil {
		s.handler.Disconnected(c)
	}
}

// shutdown runs on the loop goroutine after the loop exits.
func (s *Server) shutdown() {
	if err := s.poller.remove(s.lfd); err != nil {
		s.log.Debug("failed to unregister listener", logger.Err(err))
	}
	_ = s.lnFile.Close()
	_ = s.listener.Close()

	for _, c := range s.conns {
		s.closeConn(c, nil)
	}

	s.pendingMu.Lock()
	s.pending = nil
	s.pendingMu.Unlock()

	s.wakeMu.Lock()
	s.pollerClosed = true
	if err := s.poller.close(); err != nil {
		s.log.Debug("failed to close poller", logger.Err(err))
	}
	s.wakeMu.Unlock()
}

// isExpectedClose reports whether err is a normal connection termination.
func isExpectedClose(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}

	return false
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return (&net.TCPAddr{IP: a.Addr[:], Port: a.Port}).String()
	case *unix.SockaddrInet6:
		return (&net.TCPAddr{IP: a.Addr[:], Port: a.Port}).String()
	default:
		return ""
	}
}

package server

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/cyberinferno/sleuthnet/frame"
	"github.com/cyberinferno/sleuthnet/game"
	"github.com/cyberinferno/sleuthnet/logger"
	"github.com/cyberinferno/sleuthnet/protocol"
)

var (
	// ErrConnClosed is returned by Send after the connection has been closed.
	ErrConnClosed = errors.New("connection closed")
	// ErrQueueFull is returned by Send when a peer is not reading fast enough.
	ErrQueueFull = errors.New("outbound queue full")
)

// Conn is one accepted client connection. Reads and writes happen on the
// server loop; Send may be called from any goroutine and only queues the
// frame, the loop writes it once the socket is writable.
type Conn struct {
	srv  *Server
	fd   int
	id   uint32
	addr string
	log  logger.Logger

	// Owned by the loop.
	dec *frame.Decoder

	nameMu sync.RWMutex
	name   string

	session atomic.Pointer[game.Session]

	// mu guards the outbound queue and the flags below it.
	mu        sync.Mutex
	queue     [][]byte
	written   int
	wantWrite bool
	closing   bool
	closed    bool
}

// ID returns the identity assigned on accept.
func (c *Conn) ID() uint32 {
	return c.id
}

// RemoteAddr returns the peer's address as reported by accept.
func (c *Conn) RemoteAddr() string {
	return c.addr
}

// Name returns the display name.
func (c *Conn) Name() string {
	c.nameMu.RLock()
	defer c.nameMu.RUnlock()
	return c.name
}

// SetName changes the display name.
func (c *Conn) SetName(name string) {
	c.nameMu.Lock()
	defer c.nameMu.Unlock()
	c.name = name
}

// Session returns the game session the connection is attached to, or nil.
func (c *Conn) Session() *game.Session {
	return c.session.Load()
}

// Attach records the connection's game session; nil detaches it.
func (c *Conn) Attach(s *game.Session) {
	c.session.Store(s)
}

// Send serializes n into a frame and appends it to the outbound queue. It
// never blocks on the socket.
//
// Parameters:
//   - n: The notification to deliver
//
// Returns:
//   - ErrConnClosed if the connection is closed or closing
//   - ErrQueueFull if the queue limit is reached; the connection is then closed
//   - A serialization error
func (c *Conn) Send(n protocol.Notification) error {
	payload, err := protocol.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode %s: %w", n.Kind(), err)
	}

	framed, err := frame.Encode(payload)
	if err != nil {
		return fmt.Errorf("frame %s: %w", n.Kind(), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.closing {
		return ErrConnClosed
	}

	if c.srv.maxQueue > 0 && len(c.queue) >= c.srv.maxQueue {
		c.closing = true
		c.srv.schedule(c)
		return ErrQueueFull
	}

	c.queue = append(c.queue, framed)
	if !c.wantWrite {
		c.wantWrite = true
		c.srv.schedule(c)
	}

	return nil
}

// Close asks the loop to close the connection. Queued frames are discarded.
// It is safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.closing {
		return nil
	}

	c.closing = true
	c.srv.schedule(c)
	return nil
}

// Queued returns the number of frames waiting to be written.
func (c *Conn) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// read performs one non-blocking read and returns the complete payloads it
// finished. A read that would block returns no payloads and no error.
func (c *Conn) read(buf []byte) ([][]byte, error) {
	n, err := unix.Read(c.fd, buf)
	if err != nil {
		if retryable(err) {
			return nil, nil
		}
		return nil, err
	}

	if n == 0 {
		return nil, io.EOF
	}

	return c.dec.Feed(buf[:n])
}

// drain writes queued frames until the queue is empty or the socket stops
// accepting bytes. Write interest is withdrawn once the queue is empty.
func (c *Conn) drain() (int, error) {
	sent := 0
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return sent, ErrConnClosed
		}

		if len(c.queue) == 0 {
			c.wantWrite = false
			err := c.srv.poller.modify(c.fd, false)
			c.mu.Unlock()
			return sent, err
		}
		pending := c.queue[0][c.written:]
		c.mu.Unlock()

		n, err := unix.Write(c.fd, pending)
		if err != nil {
			if retryable(err) {
				return sent, nil
			}
			return sent, err
		}

		if n == 0 {
			return sent, nil
		}

		c.mu.Lock()
		c.written += n
		if c.written == len(c.queue[0]) {
			c.queue[0] = nil
			c.queue = c.queue[1:]
			c.written = 0
			sent++
		}
		c.mu.Unlock()
	}
}

// markClosed flips the connection to closed and drops the queue. It reports
// whether this call did the flip.
func (c *Conn) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	c.closed = true
	c.queue = nil
	c.written = 0
	return true
}

// flush is run by the loop for a scheduled connection. It reports whether
// the connection should be closed.
func (c *Conn) flush() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, nil
	}

	if c.closing {
		return true, nil
	}

	if c.wantWrite && len(c.queue) > 0 {
		return false, c.srv.poller.modify(c.fd, true)
	}

	return false, nil
}

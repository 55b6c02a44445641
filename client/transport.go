// Package client is the player side: a transport that decodes server
// notifications on a background goroutine, and a single-goroutine control
// loop that mirrors the server's session states, reads operator input and
// reconnects a bounded number of times.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/sleuthnet/frame"
	"github.com/cyberinferno/sleuthnet/protocol"
)

// ErrNotConnected is returned by Send after the transport has closed.
var ErrNotConnected = errors.New("not connected")

// Conn is the control loop's view of a server connection.
type Conn interface {
	// Send writes one command.
	Send(cmd protocol.Command) error

	// Incoming delivers notifications in arrival order.
	Incoming() <-chan protocol.Notification

	// Done is closed once the connection is lost or closed.
	Done() <-chan struct{}

	// Close shuts the connection and waits for the read goroutine.
	Close() error
}

// TransportConfig holds the transport settings.
type TransportConfig struct {
	// Address is the "host:port" of the server.
	Address string
	// DialTimeout bounds establishing the connection.
	DialTimeout time.Duration
	// WriteTimeout bounds a single command write; 0 means no limit.
	WriteTimeout time.Duration
	// MaxPayload bounds an incoming frame.
	MaxPayload int
}

// Transport is a framed connection to the server. A background goroutine
// reads and decodes notifications; Send may be called from any goroutine.
type Transport struct {
	cfg      TransportConfig
	conn     net.Conn
	incoming chan protocol.Notification
	done     chan struct{}
	stop     chan struct{}
	wg       sync.WaitGroup

	writeMu sync.Mutex

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
	lostOnce  sync.Once
}

// Dial connects to cfg.Address and starts the read goroutine.
//
// Parameters:
//   - ctx: Bounds the dial together with cfg.DialTimeout
//   - cfg: Transport settings
//
// Returns:
//   - The connected Transport
//   - An error if the dial fails
func Dial(ctx context.Context, cfg TransportConfig) (*Transport, error) {
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Address, err)
	}

	return NewTransport(conn, cfg), nil
}

// NewTransport wraps an established connection.
func NewTransport(conn net.Conn, cfg TransportConfig) *Transport {
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = frame.MaxPayload(4096, 16)
	}

	t := &Transport{
		cfg:      cfg,
		conn:     conn,
		incoming: make(chan protocol.Notification, 64),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}

	t.wg.Add(1)
	go t.readLoop()

	return t
}

// Send frames and writes cmd.
func (t *Transport) Send(cmd protocol.Command) error {
	select {
	case <-t.done:
		return ErrNotConnected
	default:
	}

	payload, err := protocol.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd.Kind(), err)
	}

	framed, err := frame.Encode(payload)
	if err != nil {
		return fmt.Errorf("frame %s: %w", cmd.Kind(), err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.cfg.WriteTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
			return err
		}
	}

	if _, err := t.conn.Write(framed); err != nil {
		t.lost(err)
		return err
	}

	return nil
}

// Incoming implements Conn.
func (t *Transport) Incoming() <-chan protocol.Notification {
	return t.incoming
}

// Done implements Conn.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err returns why the transport stopped, or nil while it is running or
// after a local Close.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close implements Conn. It is safe to call more than once.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stop)
		err = t.conn.Close()
		t.lostOnce.Do(func() { close(t.done) })
		t.wg.Wait()
	})

	return err
}

func (t *Transport) lost(err error) {
	t.lostOnce.Do(func() {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		_ = t.conn.Close()
		close(t.done)
	})
}

func (t *Transport) readLoop() {
	defer t.wg.Done()

	for {
		payload, err := frame.ReadFrame(t.conn, t.cfg.MaxPayload)
		if err != nil {
			t.lost(err)
			return
		}

		n, err := protocol.UnmarshalNotification(payload)
		if err != nil {
			t.lost(err)
			return
		}

		select {
		case t.incoming <- n:
		case <-t.stop:
			return
		}
	}
}

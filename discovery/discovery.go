// Package discovery advertises the running game over UDP so clients on the
// same network can find it without knowing the server address. Delivery is
// best effort and nothing depends on it for correctness.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sys/unix"

	"github.com/cyberinferno/sleuthnet/logger"
	"github.com/cyberinferno/sleuthnet/protocol"
)

// MaxDatagram bounds a single announcement.
const MaxDatagram = 1024

// Announcement describes one session as seen on the network.
type Announcement struct {
	SessionID string `cbor:"id"`
	CaseTitle string `cbor:"case"`
	HostName  string `cbor:"host"`
	Public    bool   `cbor:"public"`
	Code      string `cbor:"code,omitempty"`
	Port      int    `cbor:"port"`
}

// ServerAddr combines the sender's IP with the announced port.
func (a Announcement) ServerAddr(from net.Addr) string {
	host := from.String()
	if udp, ok := from.(*net.UDPAddr); ok {
		host = udp.IP.String()
	} else if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	return net.JoinHostPort(host, strconv.Itoa(a.Port))
}

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("discovery: CBOR encoder: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: 16,
		MaxMapPairs:      16,
	}.DecMode()
	if err != nil {
		panic("discovery: CBOR decoder: " + err.Error())
	}
}

// Source returns the sessions to announce.
type Source func() []protocol.GameListing

// Announcer periodically sends one datagram per session to Target.
type Announcer struct {
	Conn     net.PacketConn
	Target   net.Addr
	Interval time.Duration
	// Port is the TCP port clients should connect to.
	Port   int
	Source Source
	Logger logger.Logger
}

// Run announces every Interval until ctx is done.
//
// Returns:
//   - nil when ctx is cancelled
//   - An error if the announcer is misconfigured
func (a *Announcer) Run(ctx context.Context) error {
	if a.Conn == nil || a.Target == nil || a.Source == nil {
		return errors.New("discovery: announcer needs Conn, Target and Source")
	}
	if a.Interval <= 0 {
		return fmt.Errorf("discovery: interval must be positive, got %s", a.Interval)
	}

	log := a.Logger
	if log == nil {
		log = logger.Nop()
	}

	ticker := time.NewTicker(a.Interval)
	defer ticker.Stop()

	for {
		a.announce(log)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *Announcer) announce(log logger.Logger) {
	for _, l := range a.Source() {
		data, err := encMode.Marshal(Announcement{
			SessionID: l.SessionID,
			CaseTitle: l.CaseTitle,
			HostName:  l.HostName,
			Public:    l.Public,
			Code:      l.Code,
			Port:      a.Port,
		})
		if err != nil {
			log.Warn("failed to encode announcement", logger.Err(err))
			continue
		}

		if _, err := a.Conn.WriteTo(data, a.Target); err != nil {
			log.Debug("announcement not sent", logger.Field{Key: "target", Value: a.Target.String()}, logger.Err(err))
		}
	}
}

// Browse reads announcements from conn and calls fn for each valid one
// until ctx is done. Malformed datagrams are skipped.
//
// Parameters:
//   - ctx: Stops browsing
//   - conn: A socket bound to the announcement port
//   - fn: Receives each announcement and its sender
//
// Returns:
//   - nil when ctx is cancelled, or the read error that stopped browsing
func Browse(ctx context.Context, conn net.PacketConn, fn func(Announcement, net.Addr)) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, MaxDatagram)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("discovery: read: %w", err)
		}

		var a Announcement
		if err := decMode.Unmarshal(buf[:n], &a); err != nil || a.SessionID == "" || a.Port <= 0 {
			continue
		}

		fn(a, from)
	}
}

// ListenBroadcast opens a UDP socket allowed to send to broadcast addresses.
func ListenBroadcast(ctx context.Context, addr string) (net.PacketConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	conn, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("discovery: listen %s: %w", addr, err)
	}

	return conn, nil
}

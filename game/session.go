// Package game implements the lifecycle of a single two-player match: seat
// management, the state transition table, table-driven command admission,
// and delegation of gameplay to a World.
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cyberinferno/sleuthnet/logger"
	"github.com/cyberinferno/sleuthnet/metrics"
	"github.com/cyberinferno/sleuthnet/protocol"
)

var (
	// ErrNotJoinable is returned when a session is not waiting for a guest.
	ErrNotJoinable = errors.New("session is not accepting players")
	// ErrFull is returned when the guest seat is taken.
	ErrFull = errors.New("session is full")
	// ErrOwnSession is returned when the host tries to join its own session.
	ErrOwnSession = errors.New("cannot join your own session")
	// ErrClosed is returned when an operation targets a session that has ended.
	ErrClosed = errors.New("session has ended")
)

// Registry is the part of the lobby directory a session reports to. A
// session calls it while holding its own lock, so implementations must never
// call back into the session.
type Registry interface {
	// Publish makes listing visible to ListPublicGames.
	Publish(listing protocol.GameListing)

	// Unpublish hides the session's listing.
	Unpublish(sessionID string)

	// Remove drops every directory entry for the session. Called exactly
	// once, when the session reaches a terminal state.
	Remove(sessionID string)
}

// Config holds the parameters of a new session.
type Config struct {
	ID        string
	Code      string
	Public    bool
	CaseID    string
	CaseTitle string
	Language  string
	Host      Peer
	Registry  Registry
	Logger    logger.Logger
	Metrics   *metrics.Metrics
}

// Session is one match. All mutation (transitions, seat changes, world
// actions and the notifications they produce) happens under mu, so a
// disconnect and an in-flight command are applied one after the other.
// Methods with the Locked suffix expect mu to be held.
type Session struct {
	id        string
	code      string
	public    bool
	caseID    string
	caseTitle string
	language  string
	registry  Registry
	log       logger.Logger
	metrics   *metrics.Metrics

	mu    sync.Mutex
	state State
	host  Peer
	guest Peer
	world World
}

// NewSession creates a session in the Loading state and attaches the host.
//
// Parameters:
//   - cfg: The session parameters; Host and Registry are required
//
// Returns:
//   - The new session
func NewSession(cfg Config) *Session {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	s := &Session{
		id:        cfg.ID,
		code:      cfg.Code,
		public:    cfg.Public,
		caseID:    cfg.CaseID,
		caseTitle: cfg.CaseTitle,
		language:  cfg.Language,
		registry:  cfg.Registry,
		log:       log.With(logger.Field{Key: "session", Value: cfg.ID}),
		metrics:   cfg.Metrics,
		state:     Loading,
		host:      cfg.Host,
	}
	cfg.Host.Attach(s)
	s.metrics.SessionCreated()

	return s
}

func (s *Session) ID() string        { return s.id }
func (s *Session) Code() string      { return s.code }
func (s *Session) Public() bool      { return s.public }
func (s *Session) CaseTitle() string { return s.caseTitle }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Host returns the host seat, or nil once the session has ended.
func (s *Session) Host() Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

// Guest returns the guest seat, or nil if it is open.
func (s *Session) Guest() Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guest
}

// Summary returns the session's listing data, whether or not it is published.
func (s *Session) Summary() protocol.GameListing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listingLocked()
}

// Load opens the session's world. open runs without the session lock held.
// On failure the host receives a Failure and the session enters Error.
//
// Parameters:
//   - ctx: Context for the content load
//   - open: Prepares the world
//
// Returns:
//   - nil if the session is now waiting for players
//   - The load error, or ErrClosed if the host left while loading
func (s *Session) Load(ctx context.Context, open OpenFunc) error {
	world, err := open(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Loading {
		return ErrClosed
	}

	if err != nil {
		s.log.Warn("case failed to load", logger.Err(err), logger.Field{Key: "case", Value: s.caseID})
		_ = s.host.Send(&protocol.Failure{Message: fmt.Sprintf("case %q could not be loaded", s.caseID)})
		s.fireLocked(EventLoadFailed, "case failed to load")
		return fmt.Errorf("load case %s: %w", s.caseID, err)
	}

	s.world = world
	s.fireLocked(EventLoaded, "")
	_ = s.host.Send(&protocol.Hosted{SessionID: s.id, CaseTitle: s.caseTitle, Public: s.public, Code: s.code})
	if s.public {
		s.registry.Publish(s.listingLocked())
	}

	return nil
}

// Join seats p as the guest.
//
// Returns:
//   - nil on success, after which both seats have received LobbyReady
//   - ErrOwnSession, ErrFull or ErrNotJoinable otherwise; nothing changes
func (s *Session) Join(p Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.host != nil && s.host.ID() == p.ID() {
		return ErrOwnSession
	}

	if s.guest != nil {
		return ErrFull
	}

	if _, ok := Next(s.state, EventGuestJoined); !ok {
		return ErrNotJoinable
	}

	s.guest = p
	p.Attach(s)
	s.fireLocked(EventGuestJoined, "")
	s.registry.Unpublish(s.id)

	ready := protocol.LobbyReady{SessionID: s.id, HostName: s.host.Name(), GuestName: p.Name()}
	hostReady, guestReady := ready, ready
	hostReady.IsHost = true
	_ = s.host.Send(&hostReady)
	_ = p.Send(&guestReady)

	return nil
}

// Leave removes p from the session. Host departure ends the session; guest
// departure reopens the seat. When disconnected is false the leaver is still
// connected and is told to return to the lobby.
func (s *Session) Leave(p Peer, disconnected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.roleLocked(p) {
	case RoleHost:
		if disconnected {
			s.host.Attach(nil)
			s.host = nil
		}
		s.fireLocked(EventHostLeft, "the host left the game")
	case RoleGuest:
		s.guestLeftLocked(!disconnected, "you left the game")
	}
}

// Handle applies one command from p. Commands the current state does not
// admit, or that p's seat may not issue, are answered with exactly one
// Rejected notification and change nothing.
func (s *Session) Handle(p Peer, cmd protocol.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	role := s.roleLocked(p)
	if role == RoleNone {
		s.rejectLocked(p, cmd.Kind(), "you are not part of this session")
		return
	}

	if !Allowed(s.state, cmd.Kind()) {
		s.rejectLocked(p, cmd.Kind(), fmt.Sprintf("%s is not allowed while the session is %s", cmd.Kind(), s.state))
		return
	}

	actor := Actor{ID: p.ID(), Name: p.Name(), Role: role}
	switch c := cmd.(type) {
	case *protocol.Start:
		if role != RoleHost {
			s.rejectLocked(p, c.Kind(), "only the host can start the game")
			return
		}
		s.fireLocked(EventStart, "")
		s.deliverLocked(actor, s.world.Start(actor, s.actorLocked(s.guest, RoleGuest)))

	case *protocol.Cancel, *protocol.Exit:
		if role == RoleHost {
			s.fireLocked(EventHostLeft, "the host closed the game")
			return
		}
		s.guestLeftLocked(true, "you left the game")

	case *protocol.End:
		if role != RoleHost {
			s.rejectLocked(p, c.Kind(), "only the host can end the game")
			return
		}
		s.fireLocked(EventEnd, "the game has ended")

	case *protocol.Chat:
		s.deliverLocked(actor, []Outbound{{To: ToAll, Message: &protocol.ChatMessage{From: actor.Name, Text: c.Text}}})

	case *protocol.Action:
		out, err := s.world.Apply(actor, c)
		if err != nil {
			s.rejectLocked(p, c.Kind(), err.Error())
			return
		}
		s.deliverLocked(actor, out)

	default:
		s.rejectLocked(p, cmd.Kind(), "command is not handled inside a game")
	}
}

func (s *Session) roleLocked(p Peer) Role {
	switch {
	case s.host != nil && s.host.ID() == p.ID():
		return RoleHost
	case s.guest != nil && s.guest.ID() == p.ID():
		return RoleGuest
	default:
		return RoleNone
	}
}

func (s *Session) actorLocked(p Peer, role Role) Actor {
	if p == nil {
		return Actor{}
	}

	return Actor{ID: p.ID(), Name: p.Name(), Role: role}
}

func (s *Session) listingLocked() protocol.GameListing {
	listing := protocol.GameListing{
		SessionID: s.id,
		CaseTitle: s.caseTitle,
		Public:    s.public,
		Code:      s.code,
	}

	if s.host != nil {
		listing.HostName = s.host.Name()
		listing.Players++
	}

	if s.guest != nil {
		listing.Players++
	}

	return listing
}

func (s *Session) rejectLocked(p Peer, kind protocol.Kind, reason string) {
	s.metrics.CommandRejected(kind.String())
	_ = p.Send(&protocol.Rejected{Command: kind, Reason: reason})
}

// fireLocked applies e. On reaching a terminal state it releases both seats,
// telling any connected player to return to the lobby with reason, and
// removes the session from the directory.
func (s *Session) fireLocked(e Event, reason string) bool {
	next, ok := Next(s.state, e)
	if !ok {
		s.log.Warn("ignored event", logger.Field{Key: "event", Value: e.String()}, logger.Field{Key: "state", Value: s.state.String()})
		return false
	}

	s.log.Debug("session transition",
		logger.Field{Key: "from", Value: s.state.String()},
		logger.Field{Key: "to", Value: next.String()},
		logger.Field{Key: "event", Value: e.String()})
	s.state = next

	if next.Terminal() {
		s.closeLocked(reason)
	}

	return true
}

func (s *Session) closeLocked(reason string) {
	for _, p := range []Peer{s.host, s.guest} {
		if p == nil {
			continue
		}

		p.Attach(nil)
		if s.state != Error {
			_ = p.Send(&protocol.ReturnToLobby{Reason: reason})
		}
	}

	s.host = nil
	s.guest = nil
	s.world = nil
	s.registry.Remove(s.id)
	s.metrics.SessionEnded(s.state.String())
	s.log.Info("session ended", logger.Field{Key: "state", Value: s.state.String()}, logger.Field{Key: "reason", Value: reason})
}

func (s *Session) guestLeftLocked(notify bool, reason string) {
	guest := s.guest
	s.guest = nil
	guest.Attach(nil)
	if notify {
		_ = guest.Send(&protocol.ReturnToLobby{Reason: reason})
	}

	s.fireLocked(EventGuestLeft, "")
	_ = s.host.Send(&protocol.PlayerLeft{Name: guest.Name(), Role: RoleGuest.String()})

	if s.state == WaitingForPlayers && s.public {
		s.registry.Publish(s.listingLocked())
	}
}

func (s *Session) deliverLocked(actor Actor, out []Outbound) {
	for _, o := range out {
		for _, p := range s.audienceLocked(actor, o.To) {
			if err := p.Send(o.Message); err != nil {
				s.log.Debug("dropped notification", logger.Err(err), logger.Field{Key: "peer", Value: p.ID()})
			}
		}
	}
}

func (s *Session) audienceLocked(actor Actor, to Audience) []Peer {
	var peers []Peer
	for _, p := range []Peer{s.host, s.guest} {
		if p == nil {
			continue
		}

		self := p.ID() == actor.ID
		if to == ToAll || (to == ToActor && self) || (to == ToOther && !self) {
			peers = append(peers, p)
		}
	}

	return peers
}

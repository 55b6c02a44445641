package lobby

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/cyberinferno/sleuthnet/catalog"
	"github.com/cyberinferno/sleuthnet/game"
	"github.com/cyberinferno/sleuthnet/logger"
	"github.com/cyberinferno/sleuthnet/metrics"
	"github.com/cyberinferno/sleuthnet/protocol"
)

// MaxNameLength bounds display names, in runes.
const MaxNameLength = 24

// Peer is a connection as seen by the router.
type Peer interface {
	game.Peer

	// SetName changes the display name.
	SetName(name string)
}

// RouterConfig holds the router's collaborators.
type RouterConfig struct {
	Directory *Directory
	Catalog   catalog.Provider
	Logger    logger.Logger
	Metrics   *metrics.Metrics
	// LoadTimeout bounds listing and loading content for one request.
	LoadTimeout time.Duration
}

// Router dispatches decoded commands. A command from a connection attached
// to a session goes to that session; anything else is a lobby command.
type Router struct {
	dir         *Directory
	catalog     catalog.Provider
	log         logger.Logger
	metrics     *metrics.Metrics
	loadTimeout time.Duration
}

// NewRouter creates a Router.
func NewRouter(cfg RouterConfig) *Router {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	timeout := cfg.LoadTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Router{
		dir:         cfg.Directory,
		catalog:     cfg.Catalog,
		log:         log,
		metrics:     cfg.Metrics,
		loadTimeout: timeout,
	}
}

// Directory returns the router's directory.
func (r *Router) Directory() *Directory {
	return r.dir
}

// Connected greets a new connection with its identity and default name.
func (r *Router) Connected(p Peer) {
	name := DefaultName(p.ID())
	p.SetName(name)
	_ = p.Send(&protocol.Welcome{ConnectionID: p.ID(), Name: name})
}

// DefaultName is the display name a connection has until it sends SetName.
func DefaultName(id uint32) string {
	return fmt.Sprintf("player-%d", id)
}

// Handle routes one command from p.
func (r *Router) Handle(p Peer, cmd protocol.Command) {
	if s := p.Session(); s != nil {
		s.Handle(p, cmd)
		return
	}

	switch c := cmd.(type) {
	case *protocol.ListCases:
		r.listCases(p)
	case *protocol.ListPublicGames:
		_ = p.Send(&protocol.PublicGames{Games: r.dir.PublicGames()})
	case *protocol.HostGame:
		r.host(p, c)
	case *protocol.JoinPublic:
		s, ok := r.dir.Lookup(c.SessionID)
		if !ok || !s.Public() {
			r.reject(p, c.Kind(), ErrNotFound.Error())
			return
		}
		r.join(p, s, c.Kind())
	case *protocol.JoinByCode:
		s, ok := r.dir.LookupCode(c.Code)
		if !ok {
			r.reject(p, c.Kind(), ErrNotFound.Error())
			return
		}
		r.join(p, s, c.Kind())
	case *protocol.SetName:
		r.setName(p, c)
	default:
		r.reject(p, cmd.Kind(), "you are not in a game")
	}
}

// Disconnected releases whatever p was part of.
func (r *Router) Disconnected(p Peer) {
	if s := p.Session(); s != nil {
		s.Leave(p, true)
	}
}

func (r *Router) listCases(p Peer) {
	ctx, cancel := context.WithTimeout(context.Background(), r.loadTimeout)
	defer cancel()

	cases, err := r.catalog.Cases(ctx)
	if err != nil {
		r.log.Error("failed to list cases", logger.Err(err))
		_ = p.Send(&protocol.Failure{Message: "case list is unavailable"})
		return
	}

	_ = p.Send(&protocol.CaseList{Cases: cases})
}

func (r *Router) host(p Peer, c *protocol.HostGame) {
	ctx, cancel := context.WithTimeout(context.Background(), r.loadTimeout)
	defer cancel()

	cases, err := r.catalog.Cases(ctx)
	if err != nil {
		r.log.Error("failed to list cases", logger.Err(err))
		_ = p.Send(&protocol.Failure{Message: "case list is unavailable"})
		return
	}

	info, err := catalog.Find(cases, c.CaseID)
	if err != nil {
		r.reject(p, c.Kind(), err.Error())
		return
	}

	s, err := r.dir.Create(game.Config{
		Public:    c.Public,
		CaseID:    info.ID,
		CaseTitle: info.Title,
		Language:  c.Language,
		Host:      p,
		Logger:    r.log,
		Metrics:   r.metrics,
	})
	if err != nil {
		r.reject(p, c.Kind(), err.Error())
		return
	}

	r.log.Info("session created",
		logger.Field{Key: "session", Value: s.ID()},
		logger.Field{Key: "case", Value: info.ID},
		logger.Field{Key: "public", Value: c.Public},
		logger.Field{Key: "host", Value: p.ID()})

	err = s.Load(ctx, func(ctx context.Context) (game.World, error) {
		return r.catalog.Open(ctx, info.ID, c.Language)
	})
	if err != nil && !errors.Is(err, game.ErrClosed) {
		r.log.Warn("session did not open", logger.Field{Key: "session", Value: s.ID()}, logger.Err(err))
	}
}

func (r *Router) join(p Peer, s *game.Session, kind protocol.Kind) {
	if err := s.Join(p); err != nil {
		r.reject(p, kind, err.Error())
		return
	}

	r.log.Info("guest joined", logger.Field{Key: "session", Value: s.ID()}, logger.Field{Key: "guest", Value: p.ID()})
}

func (r *Router) setName(p Peer, c *protocol.SetName) {
	name, err := ValidateName(c.Name)
	if err != nil {
		r.reject(p, c.Kind(), err.Error())
		return
	}

	p.SetName(name)
	_ = p.Send(&protocol.NameChanged{Name: name})
}

func (r *Router) reject(p Peer, kind protocol.Kind, reason string) {
	r.metrics.CommandRejected(kind.String())
	_ = p.Send(&protocol.Rejected{Command: kind, Reason: reason})
}

// ValidateName trims name and checks that it is usable as a display name.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("name must not be empty")
	}

	if len([]rune(name)) > MaxNameLength {
		return "", fmt.Errorf("name must be at most %d characters", MaxNameLength)
	}

	for _, r := range name {
		if !unicode.IsPrint(r) {
			return "", fmt.Errorf("name contains unprintable characters")
		}
	}

	return name, nil
}

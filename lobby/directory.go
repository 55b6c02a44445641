// Package lobby routes commands from connections that are not in a game and
// keeps the process-wide directory of sessions, public listings and private
// join codes.
package lobby

import (
	"crypto/rand"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cyberinferno/sleuthnet/game"
	"github.com/cyberinferno/sleuthnet/protocol"
)

var (
	// ErrSessionActive is returned when a host request arrives while a session is running.
	ErrSessionActive = errors.New("a game is already running on this server")
	// ErrNotFound is returned when a session id or join code matches nothing.
	ErrNotFound = errors.New("no such game")
	// ErrCodeSpace is returned when no unused join code could be generated.
	ErrCodeSpace = errors.New("could not allocate a join code")
)

// CodeAlphabet omits characters that are easy to confuse when read aloud or
// typed (0/O, 1/I/L).
const CodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// CodeLength is the number of characters in a private join code.
const CodeLength = 5

const maxCodeAttempts = 64

// NewCode returns a random join code drawn from CodeAlphabet.
func NewCode() string {
	code, err := readCode(rand.Reader)
	if err != nil {
		panic("lobby: crypto/rand: " + err.Error())
	}

	return code
}

// codeCutoff is the largest multiple of len(CodeAlphabet) that fits in a
// byte. Bytes at or above it are discarded so every symbol is equally likely.
const codeCutoff = 256 - 256%len(CodeAlphabet)

func readCode(r io.Reader) (string, error) {
	var code [CodeLength]byte
	var buf [CodeLength * 2]byte
	n := 0
	for n < CodeLength {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= codeCutoff {
				continue
			}
			code[n] = CodeAlphabet[int(b)%len(CodeAlphabet)]
			n++
			if n == CodeLength {
				break
			}
		}
	}

	return string(code[:]), nil
}

// NormalizeCode makes operator-typed codes comparable to generated ones.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Directory is the registry of sessions. It implements game.Registry.
//
// Lock order: a session may call into the directory while holding its own
// lock, so the directory never calls into a session while holding mu.
type Directory struct {
	newID   func() string
	newCode func() string

	mu       sync.Mutex
	sessions map[string]*game.Session
	listings map[string]protocol.GameListing
	codes    map[string]string
	active   string
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithCodeGenerator replaces the join code generator.
func WithCodeGenerator(fn func() string) DirectoryOption {
	return func(d *Directory) {
		d.newCode = fn
	}
}

// WithIDGenerator replaces the session id generator.
func WithIDGenerator(fn func() string) DirectoryOption {
	return func(d *Directory) {
		d.newID = fn
	}
}

// NewDirectory creates an empty Directory.
func NewDirectory(opts ...DirectoryOption) *Directory {
	d := &Directory{
		newID:    uuid.NewString,
		newCode:  NewCode,
		sessions: make(map[string]*game.Session),
		listings: make(map[string]protocol.GameListing),
		codes:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Create registers a new session for cfg.Host. The id, the join code for a
// private session and the registry are filled in by the directory. Only one
// non-terminal session may exist at a time.
//
// Parameters:
//   - cfg: The session parameters; ID, Code and Registry are overwritten
//
// Returns:
//   - The new session in the Loading state
//   - ErrSessionActive if a session is already running, or ErrCodeSpace
func (d *Directory) Create(cfg game.Config) (*game.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active != "" {
		return nil, ErrSessionActive
	}

	cfg.ID = d.newID()
	cfg.Code = ""
	if !cfg.Public {
		code, err := d.uniqueCodeLocked()
		if err != nil {
			return nil, err
		}
		cfg.Code = code
	}
	cfg.Registry = d

	s := game.NewSession(cfg)
	d.sessions[cfg.ID] = s
	if cfg.Code != "" {
		d.codes[cfg.Code] = cfg.ID
	}
	d.active = cfg.ID

	return s, nil
}

func (d *Directory) uniqueCodeLocked() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := d.newCode()
		if _, taken := d.codes[code]; !taken {
			return code, nil
		}
	}

	return "", ErrCodeSpace
}

// Lookup returns the session with id.
func (d *Directory) Lookup(id string) (*game.Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[id]
	return s, ok
}

// LookupCode returns the private session whose join code is code.
func (d *Directory) LookupCode(code string) (*game.Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.codes[NormalizeCode(code)]
	if !ok {
		return nil, false
	}

	s, ok := d.sessions[id]
	return s, ok
}

// Active returns the running session, if any.
func (d *Directory) Active() (*game.Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[d.active]
	return s, ok
}

// Len returns the number of registered sessions.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

// PublicGames returns the published listings ordered by session id.
func (d *Directory) PublicGames() []protocol.GameListing {
	d.mu.Lock()
	defer d.mu.Unlock()

	games := make([]protocol.GameListing, 0, len(d.listings))
	for _, l := range d.listings {
		games = append(games, l)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].SessionID < games[j].SessionID })

	return games
}

// Summaries returns the listing data of every loaded, unfinished session,
// private ones included, for the LAN announcer. Sessions are read after the
// directory lock is released.
func (d *Directory) Summaries() []protocol.GameListing {
	d.mu.Lock()
	sessions := make([]*game.Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
	}
	d.mu.Unlock()

	out := make([]protocol.GameListing, 0, len(sessions))
	for _, s := range sessions {
		if state := s.State(); state == game.Loading || state.Terminal() {
			continue
		}
		out = append(out, s.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })

	return out
}

// Publish implements game.Registry.
func (d *Directory) Publish(listing protocol.GameListing) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sessions[listing.SessionID]; ok {
		d.listings[listing.SessionID] = listing
	}
}

// Unpublish implements game.Registry.
func (d *Directory) Unpublish(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listings, sessionID)
}

// Remove implements game.Registry.
func (d *Directory) Remove(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.sessions[sessionID]; ok && s.Code() != "" {
		delete(d.codes, s.Code())
	}
	delete(d.sessions, sessionID)
	delete(d.listings, sessionID)
	if d.active == sessionID {
		d.active = ""
	}
}

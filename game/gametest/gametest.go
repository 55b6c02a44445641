// Package gametest provides in-memory stand-ins for the collaborators of a
// game session: a peer that records what it is sent, a registry that records
// directory calls, and a scripted world.
package gametest

import (
	"errors"
	"sync"

	"github.com/cyberinferno/sleuthnet/game"
	"github.com/cyberinferno/sleuthnet/protocol"
)

// ErrPeerClosed is returned by Send after Close.
var ErrPeerClosed = errors.New("peer closed")

// Peer is a game.Peer that records every notification it is sent.
type Peer struct {
	id uint32

	mu      sync.Mutex
	name    string
	session *game.Session
	sent    []protocol.Notification
	closed  bool
}

// NewPeer creates a Peer with the given identity.
func NewPeer(id uint32, name string) *Peer {
	return &Peer{id: id, name: name}
}

func (p *Peer) ID() uint32 { return p.id }

func (p *Peer) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

func (p *Peer) SetName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

func (p *Peer) Send(n protocol.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPeerClosed
	}

	p.sent = append(p.sent, n)
	return nil
}

func (p *Peer) Session() *game.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *Peer) Attach(s *game.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = s
}

// Close makes further sends fail, like a dropped connection.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// Sent returns a copy of everything sent so far.
func (p *Peer) Sent() []protocol.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Notification(nil), p.sent...)
}

// Drain returns everything sent so far and forgets it.
func (p *Peer) Drain() []protocol.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	sent := p.sent
	p.sent = nil
	return sent
}

// Kinds returns the kinds of everything sent so far, in order.
func (p *Peer) Kinds() []protocol.Kind {
	var kinds []protocol.Kind
	for _, n := range p.Sent() {
		kinds = append(kinds, n.Kind())
	}

	return kinds
}

// Registry is a game.Registry that records calls.
type Registry struct {
	mu        sync.Mutex
	published map[string]protocol.GameListing
	publishes int
	removed   []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{published: make(map[string]protocol.GameListing)}
}

func (r *Registry) Publish(listing protocol.GameListing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[listing.SessionID] = listing
	r.publishes++
}

func (r *Registry) Unpublish(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.published, sessionID)
}

func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.published, sessionID)
	r.removed = append(r.removed, sessionID)
}

// Listing returns the published listing for sessionID.
func (r *Registry) Listing(sessionID string) (protocol.GameListing, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.published[sessionID]
	return l, ok
}

// Publishes returns how many times Publish was called.
func (r *Registry) Publishes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.publishes
}

// Removed returns the ids passed to Remove, in order.
func (r *Registry) Removed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

// World is a game.World that answers Start with a Room for both seats and
// every Action with a Room for the actor. The verb "fail" is refused.
type World struct {
	Title string
}

// ErrRefused is returned by World.Apply for the verb "fail".
var ErrRefused = errors.New("that does not work here")

func (w *World) Start(host, guest game.Actor) []game.Outbound {
	return []game.Outbound{{To: game.ToAll, Message: &protocol.Room{Title: w.Title, Description: "The game begins."}}}
}

func (w *World) Apply(actor game.Actor, action *protocol.Action) ([]game.Outbound, error) {
	if action.Verb == "fail" {
		return nil, ErrRefused
	}

	return []game.Outbound{{To: game.ToActor, Message: &protocol.Room{Title: w.Title, Description: action.Verb}}}, nil
}

package lobby_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/sleuthnet/catalog"
	"github.com/cyberinferno/sleuthnet/game"
	"github.com/cyberinferno/sleuthnet/game/gametest"
	"github.com/cyberinferno/sleuthnet/lobby"
	"github.com/cyberinferno/sleuthnet/protocol"
)

type brokenCatalog struct {
	*catalog.Static
}

func (brokenCatalog) Open(context.Context, string, string) (game.World, error) {
	return nil, errors.New("case file is corrupt")
}

func newRouter(opts ...lobby.DirectoryOption) *lobby.Router {
	return lobby.NewRouter(lobby.RouterConfig{
		Directory: lobby.NewDirectory(opts...),
		Catalog:   catalog.Demo(),
	})
}

func last[T protocol.Notification](t *testing.T, p *gametest.Peer) T {
	t.Helper()
	sent := p.Sent()
	require.NotEmpty(t, sent)
	n, ok := sent[len(sent)-1].(T)
	require.True(t, ok, "last notification is %T", sent[len(sent)-1])
	return n
}

func TestNewCode(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := lobby.NewCode()
		require.Len(t, code, lobby.CodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(lobby.CodeAlphabet, r), "unexpected %q in %s", r, code)
		}
	}
}

func TestRouter_ExampleScenario(t *testing.T) {
	r := newRouter()
	a := gametest.NewPeer(1, "A")
	b := gametest.NewPeer(2, "B")

	r.Handle(a, &protocol.HostGame{CaseID: "harbor", Public: true})
	hosted := last[*protocol.Hosted](t, a)
	assert.True(t, hosted.Public)
	assert.Empty(t, hosted.Code)

	r.Handle(b, &protocol.ListPublicGames{})
	games := last[*protocol.PublicGames](t, b).Games
	require.Len(t, games, 1)
	assert.Equal(t, "Death at the Harbor", games[0].CaseTitle)
	assert.Equal(t, "A", games[0].HostName)

	r.Handle(b, &protocol.JoinPublic{SessionID: games[0].SessionID})
	s := a.Session()
	require.NotNil(t, s)
	assert.Same(t, s, b.Session())
	assert.Equal(t, game.InLobbyAwaitingStart, s.State())

	a.Drain()
	b.Drain()
	r.Handle(a, &protocol.Start{})
	assert.Equal(t, game.Active, s.State())
	assert.Equal(t, []protocol.Kind{protocol.KindRoom}, a.Kinds())
	assert.Equal(t, []protocol.Kind{protocol.KindRoom}, b.Kinds())
}

func TestRouter_SingleActiveSession(t *testing.T) {
	r := newRouter()
	hosts := make([]*gametest.Peer, 5)
	for i := range hosts {
		hosts[i] = gametest.NewPeer(uint32(i+1), fmt.Sprintf("host-%d", i))
		r.Handle(hosts[i], &protocol.HostGame{CaseID: "manor", Public: i%2 == 0})
	}

	assert.Equal(t, 1, r.Directory().Len())
	assert.NotNil(t, hosts[0].Session())
	for _, h := range hosts[1:] {
		assert.Nil(t, h.Session())
		rejected := last[*protocol.Rejected](t, h)
		assert.Equal(t, protocol.KindHostGame, rejected.Command)
		assert.Equal(t, lobby.ErrSessionActive.Error(), rejected.Reason)
	}

	// Once the first session ends another host may start one.
	r.Handle(hosts[0], &protocol.Exit{})
	assert.Zero(t, r.Directory().Len())
	r.Handle(hosts[1], &protocol.HostGame{CaseID: "manor"})
	assert.NotNil(t, hosts[1].Session())
	assert.Equal(t, 1, r.Directory().Len())
}

func TestRouter_PrivateSession(t *testing.T) {
	codes := []string{"AAAAA", "AAAAA", "BBBBB"}
	next := 0
	r := newRouter(lobby.WithCodeGenerator(func() string {
		code := codes[next]
		next++
		return code
	}))

	host := gametest.NewPeer(1, "host")
	r.Handle(host, &protocol.HostGame{CaseID: "harbor", Language: "en"})
	hosted := last[*protocol.Hosted](t, host)
	assert.Equal(t, "AAAAA", hosted.Code)
	assert.False(t, hosted.Public)

	t.Run("not listed publicly", func(t *testing.T) {
		assert.Empty(t, r.Directory().PublicGames())
	})

	t.Run("not joinable by id", func(t *testing.T) {
		guest := gametest.NewPeer(2, "guest")
		r.Handle(guest, &protocol.JoinPublic{SessionID: hosted.SessionID})
		assert.Equal(t, lobby.ErrNotFound.Error(), last[*protocol.Rejected](t, guest).Reason)
	})

	t.Run("wrong code", func(t *testing.T) {
		guest := gametest.NewPeer(3, "guest")
		r.Handle(guest, &protocol.JoinByCode{Code: "ZZZZZ"})
		assert.Equal(t, protocol.KindJoinByCode, last[*protocol.Rejected](t, guest).Command)
	})

	t.Run("joins by code, case-insensitively", func(t *testing.T) {
		guest := gametest.NewPeer(4, "guest")
		r.Handle(guest, &protocol.JoinByCode{Code: " aaaaa "})
		require.NotNil(t, guest.Session())
		assert.Equal(t, game.InLobbyAwaitingStart, guest.Session().State())
	})

	t.Run("code is released when the session ends", func(t *testing.T) {
		r.Handle(host, &protocol.Cancel{})
		_, ok := r.Directory().LookupCode("AAAAA")
		assert.False(t, ok)
	})
}

func TestRouter_JoinValidation(t *testing.T) {
	r := newRouter()
	host := gametest.NewPeer(1, "host")
	r.Handle(host, &protocol.HostGame{CaseID: "harbor", Public: true})
	id := last[*protocol.Hosted](t, host).SessionID

	t.Run("nonexistent", func(t *testing.T) {
		p := gametest.NewPeer(10, "x")
		r.Handle(p, &protocol.JoinPublic{SessionID: "missing"})
		assert.Equal(t, lobby.ErrNotFound.Error(), last[*protocol.Rejected](t, p).Reason)
	})

	t.Run("full", func(t *testing.T) {
		r.Handle(gametest.NewPeer(2, "guest"), &protocol.JoinPublic{SessionID: id})
		late := gametest.NewPeer(3, "late")
		r.Handle(late, &protocol.JoinPublic{SessionID: id})
		assert.Equal(t, game.ErrFull.Error(), last[*protocol.Rejected](t, late).Reason)
		assert.Nil(t, late.Session())
	})

	t.Run("host cannot join as guest", func(t *testing.T) {
		// The host is attached, so the join is routed to the session and refused there.
		host.Drain()
		r.Handle(host, &protocol.JoinPublic{SessionID: id})
		assert.Equal(t, []protocol.Kind{protocol.KindRejected}, host.Kinds())
	})
}

func TestRouter_HostErrors(t *testing.T) {
	t.Run("unknown case creates nothing", func(t *testing.T) {
		r := newRouter()
		p := gametest.NewPeer(1, "host")
		r.Handle(p, &protocol.HostGame{CaseID: "nope"})
		assert.Equal(t, protocol.KindHostGame, last[*protocol.Rejected](t, p).Command)
		assert.Zero(t, r.Directory().Len())
	})

	t.Run("load failure informs only the host", func(t *testing.T) {
		r := lobby.NewRouter(lobby.RouterConfig{
			Directory: lobby.NewDirectory(),
			Catalog:   brokenCatalog{catalog.Demo()},
		})
		p := gametest.NewPeer(1, "host")
		r.Handle(p, &protocol.HostGame{CaseID: "harbor", Public: true})

		assert.Equal(t, []protocol.Kind{protocol.KindFailure}, p.Kinds())
		assert.Nil(t, p.Session())
		assert.Zero(t, r.Directory().Len())
		assert.Empty(t, r.Directory().PublicGames())

		// The server keeps accepting hosts afterwards.
		other := gametest.NewPeer(2, "other")
		r.Handle(other, &protocol.HostGame{CaseID: "harbor"})
		assert.Equal(t, []protocol.Kind{protocol.KindFailure}, other.Kinds())
	})
}

func TestRouter_LobbyCommands(t *testing.T) {
	r := newRouter()
	p := gametest.NewPeer(1, "player-1")

	t.Run("list cases", func(t *testing.T) {
		r.Handle(p, &protocol.ListCases{})
		cases := last[*protocol.CaseList](t, p).Cases
		require.Len(t, cases, 2)
		assert.Equal(t, "harbor", cases[0].ID)
	})

	t.Run("rename", func(t *testing.T) {
		r.Handle(p, &protocol.SetName{Name: "  Holmes "})
		assert.Equal(t, "Holmes", last[*protocol.NameChanged](t, p).Name)
		assert.Equal(t, "Holmes", p.Name())
	})

	t.Run("invalid rename", func(t *testing.T) {
		r.Handle(p, &protocol.SetName{Name: strings.Repeat("x", lobby.MaxNameLength+1)})
		assert.Equal(t, protocol.KindSetName, last[*protocol.Rejected](t, p).Command)
		assert.Equal(t, "Holmes", p.Name())
	})

	t.Run("gameplay outside a game", func(t *testing.T) {
		r.Handle(p, &protocol.Chat{Text: "hello?"})
		assert.Equal(t, protocol.KindChat, last[*protocol.Rejected](t, p).Command)
	})

	t.Run("rename inside a game is rejected", func(t *testing.T) {
		r.Handle(p, &protocol.HostGame{CaseID: "harbor"})
		require.NotNil(t, p.Session())
		r.Handle(p, &protocol.SetName{Name: "Watson"})
		assert.Equal(t, protocol.KindSetName, last[*protocol.Rejected](t, p).Command)
		assert.Equal(t, "Holmes", p.Name())
	})
}

func TestRouter_Disconnected(t *testing.T) {
	r := newRouter()
	host := gametest.NewPeer(1, "host")
	guest := gametest.NewPeer(2, "guest")
	r.Handle(host, &protocol.HostGame{CaseID: "harbor", Public: true})
	id := last[*protocol.Hosted](t, host).SessionID
	r.Handle(guest, &protocol.JoinPublic{SessionID: id})
	assert.Empty(t, r.Directory().PublicGames())

	r.Disconnected(guest)
	games := r.Directory().PublicGames()
	require.Len(t, games, 1, "guest departure republishes the listing")
	assert.Equal(t, id, games[0].SessionID)

	r.Disconnected(host)
	assert.Zero(t, r.Directory().Len())
	assert.Empty(t, r.Directory().PublicGames())

	// Disconnecting a peer that is in no session is a no-op.
	r.Disconnected(gametest.NewPeer(3, "idle"))
}

func TestRouter_Connected(t *testing.T) {
	r := newRouter()
	p := gametest.NewPeer(7, "")
	r.Connected(p)

	welcome := last[*protocol.Welcome](t, p)
	assert.Equal(t, uint32(7), welcome.ConnectionID)
	assert.Equal(t, "player-7", welcome.Name)
	assert.Equal(t, "player-7", p.Name())
}

func TestDirectory_Summaries(t *testing.T) {
	r := newRouter(lobby.WithCodeGenerator(func() string { return "KKKKK" }))
	assert.Empty(t, r.Directory().Summaries())

	host := gametest.NewPeer(1, "host")
	r.Handle(host, &protocol.HostGame{CaseID: "manor"})

	summaries := r.Directory().Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, "The Silent Manor", summaries[0].CaseTitle)
	assert.Equal(t, "host", summaries[0].HostName)
	assert.False(t, summaries[0].Public)
	assert.Equal(t, "KKKKK", summaries[0].Code)
	assert.Empty(t, r.Directory().PublicGames(), "private sessions are announced but never listed")
}

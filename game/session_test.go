package game_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/sleuthnet/game"
	"github.com/cyberinferno/sleuthnet/game/gametest"
	"github.com/cyberinferno/sleuthnet/protocol"
)

type fixture struct {
	session  *game.Session
	host     *gametest.Peer
	guest    *gametest.Peer
	registry *gametest.Registry
}

func openWorld(ctx context.Context) (game.World, error) {
	return &gametest.World{Title: "Harbor"}, nil
}

func newFixture(t *testing.T, public bool) *fixture {
	t.Helper()
	f := &fixture{
		host:     gametest.NewPeer(1, "alice"),
		guest:    gametest.NewPeer(2, "bob"),
		registry: gametest.NewRegistry(),
	}
	f.session = game.NewSession(game.Config{
		ID:        "s-1",
		Public:    public,
		CaseID:    "harbor",
		CaseTitle: "Harbor",
		Host:      f.host,
		Registry:  f.registry,
	})

	return f
}

// advance drives a fresh fixture into state.
func (f *fixture) advance(t *testing.T, state game.State) {
	t.Helper()
	if state == game.Loading {
		return
	}

	if state == game.Error {
		err := f.session.Load(context.Background(), func(context.Context) (game.World, error) {
			return nil, errors.New("missing file")
		})
		require.Error(t, err)
		require.Equal(t, game.Error, f.session.State())
		return
	}

	require.NoError(t, f.session.Load(context.Background(), openWorld))
	switch state {
	case game.WaitingForPlayers:
	case game.EndedAbandoned:
		f.session.Handle(f.host, &protocol.Exit{})
	default:
		require.NoError(t, f.session.Join(f.guest))
		if state == game.Active || state == game.EndedNormal {
			f.session.Handle(f.host, &protocol.Start{})
		}
		if state == game.EndedNormal {
			f.session.Handle(f.host, &protocol.End{})
		}
	}
	require.Equal(t, state, f.session.State())
	f.host.Drain()
	f.guest.Drain()
}

func TestNext(t *testing.T) {
	cases := []struct {
		from  game.State
		event game.Event
		to    game.State
		ok    bool
	}{
		{game.Loading, game.EventLoaded, game.WaitingForPlayers, true},
		{game.Loading, game.EventLoadFailed, game.Error, true},
		{game.WaitingForPlayers, game.EventGuestJoined, game.InLobbyAwaitingStart, true},
		{game.InLobbyAwaitingStart, game.EventGuestLeft, game.WaitingForPlayers, true},
		{game.InLobbyAwaitingStart, game.EventStart, game.Active, true},
		{game.Active, game.EventGuestLeft, game.Active, true},
		{game.Active, game.EventEnd, game.EndedNormal, true},
		{game.Active, game.EventHostLeft, game.EndedAbandoned, true},
		{game.WaitingForPlayers, game.EventStart, game.WaitingForPlayers, false},
		{game.Active, game.EventGuestJoined, game.Active, false},
	}

	for _, tc := range cases {
		t.Run(tc.from.String()+"/"+tc.event.String(), func(t *testing.T) {
			to, ok := game.Next(tc.from, tc.event)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.to, to)
		})
	}

	t.Run("terminal states have no exits", func(t *testing.T) {
		for _, s := range game.States {
			if !s.Terminal() {
				continue
			}
			for e := game.EventLoaded; e <= game.EventHostLeft; e++ {
				_, ok := game.Next(s, e)
				assert.False(t, ok, "%s on %s", s, e)
			}
		}
	})
}

func TestSession_AdmissionTable(t *testing.T) {
	for _, state := range game.States {
		for _, kind := range protocol.Commands {
			if game.Allowed(state, kind) {
				continue
			}

			t.Run(state.String()+"/"+kind.String(), func(t *testing.T) {
				f := newFixture(t, true)
				f.advance(t, state)

				cmd, ok := protocol.NewCommand(kind)
				require.True(t, ok)

				sender := f.host
				if state.Terminal() {
					// Seats are released on termination; the sender is now a stranger.
					sender = f.guest
				}
				f.session.Handle(sender, cmd)

				assert.Equal(t, state, f.session.State())
				sent := sender.Drain()
				require.Len(t, sent, 1)
				rejected, ok := sent[0].(*protocol.Rejected)
				require.True(t, ok, "got %T", sent[0])
				assert.Equal(t, kind, rejected.Command)
			})
		}
	}
}

func TestSession_LoadPublishesPublicListing(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.session.Load(context.Background(), openWorld))

	assert.Equal(t, game.WaitingForPlayers, f.session.State())
	listing, ok := f.registry.Listing("s-1")
	require.True(t, ok)
	assert.Equal(t, "Harbor", listing.CaseTitle)
	assert.Equal(t, "alice", listing.HostName)
	assert.Equal(t, 1, listing.Players)

	hosted, ok := f.host.Sent()[0].(*protocol.Hosted)
	require.True(t, ok)
	assert.Equal(t, "s-1", hosted.SessionID)
}

func TestSession_LoadFailure(t *testing.T) {
	f := newFixture(t, true)
	f.advance(t, game.Error)

	_, listed := f.registry.Listing("s-1")
	assert.False(t, listed)
	assert.Equal(t, []string{"s-1"}, f.registry.Removed())
	assert.Nil(t, f.host.Session())
	assert.Equal(t, []protocol.Kind{protocol.KindFailure}, f.host.Kinds())
}

func TestSession_Join(t *testing.T) {
	t.Run("fills guest seat", func(t *testing.T) {
		f := newFixture(t, true)
		f.advance(t, game.WaitingForPlayers)

		require.NoError(t, f.session.Join(f.guest))
		assert.Equal(t, game.InLobbyAwaitingStart, f.session.State())
		assert.Same(t, f.session, f.guest.Session())
		_, listed := f.registry.Listing("s-1")
		assert.False(t, listed)

		hostReady := f.host.Sent()[0].(*protocol.LobbyReady)
		guestReady := f.guest.Sent()[0].(*protocol.LobbyReady)
		assert.True(t, hostReady.IsHost)
		assert.False(t, guestReady.IsHost)
		assert.Equal(t, "bob", hostReady.GuestName)
	})

	t.Run("host cannot join own session", func(t *testing.T) {
		f := newFixture(t, true)
		f.advance(t, game.WaitingForPlayers)
		assert.ErrorIs(t, f.session.Join(f.host), game.ErrOwnSession)
	})

	t.Run("full", func(t *testing.T) {
		f := newFixture(t, true)
		f.advance(t, game.InLobbyAwaitingStart)
		err := f.session.Join(gametest.NewPeer(3, "carol"))
		assert.ErrorIs(t, err, game.ErrFull)
		assert.Equal(t, game.InLobbyAwaitingStart, f.session.State())
	})

	t.Run("not joinable while loading", func(t *testing.T) {
		f := newFixture(t, true)
		assert.ErrorIs(t, f.session.Join(f.guest), game.ErrNotJoinable)
		assert.Nil(t, f.guest.Session())
	})

	t.Run("not joinable after guest left an active game", func(t *testing.T) {
		f := newFixture(t, true)
		f.advance(t, game.Active)
		f.session.Leave(f.guest, true)
		assert.ErrorIs(t, f.session.Join(gametest.NewPeer(3, "carol")), game.ErrNotJoinable)
	})
}

func TestSession_StartScenario(t *testing.T) {
	f := newFixture(t, true)
	f.advance(t, game.InLobbyAwaitingStart)

	f.session.Handle(f.host, &protocol.Start{})

	assert.Equal(t, game.Active, f.session.State())
	assert.Equal(t, []protocol.Kind{protocol.KindRoom}, f.host.Kinds())
	assert.Equal(t, []protocol.Kind{protocol.KindRoom}, f.guest.Kinds())
}

func TestSession_RoleChecks(t *testing.T) {
	t.Run("guest cannot start", func(t *testing.T) {
		f := newFixture(t, false)
		f.advance(t, game.InLobbyAwaitingStart)
		f.session.Handle(f.guest, &protocol.Start{})
		assert.Equal(t, game.InLobbyAwaitingStart, f.session.State())
		assert.Equal(t, []protocol.Kind{protocol.KindRejected}, f.guest.Kinds())
	})

	t.Run("guest cannot end", func(t *testing.T) {
		f := newFixture(t, false)
		f.advance(t, game.Active)
		f.session.Handle(f.guest, &protocol.End{})
		assert.Equal(t, game.Active, f.session.State())
		assert.Equal(t, []protocol.Kind{protocol.KindRejected}, f.guest.Kinds())
	})

	t.Run("stranger is rejected", func(t *testing.T) {
		f := newFixture(t, false)
		f.advance(t, game.Active)
		stranger := gametest.NewPeer(9, "eve")
		f.session.Handle(stranger, &protocol.Chat{Text: "hi"})
		assert.Equal(t, []protocol.Kind{protocol.KindRejected}, stranger.Kinds())
		assert.Empty(t, f.host.Sent())
	})
}

func TestSession_ActiveCommands(t *testing.T) {
	f := newFixture(t, false)
	f.advance(t, game.Active)

	f.session.Handle(f.guest, &protocol.Chat{Text: "look at the desk"})
	chat := f.host.Drain()
	require.Len(t, chat, 1)
	assert.Equal(t, &protocol.ChatMessage{From: "bob", Text: "look at the desk"}, chat[0])
	assert.Len(t, f.guest.Drain(), 1)

	f.session.Handle(f.host, &protocol.Action{Verb: "look"})
	assert.Equal(t, []protocol.Kind{protocol.KindRoom}, f.host.Kinds())
	assert.Empty(t, f.guest.Sent())
	f.host.Drain()

	f.session.Handle(f.host, &protocol.Action{Verb: "fail"})
	rejected := f.host.Drain()
	require.Len(t, rejected, 1)
	assert.Equal(t, gametest.ErrRefused.Error(), rejected[0].(*protocol.Rejected).Reason)
}

func TestSession_HostDeparture(t *testing.T) {
	for _, disconnected := range []bool{true, false} {
		name := "explicit exit"
		if disconnected {
			name = "disconnect"
		}

		t.Run(name, func(t *testing.T) {
			f := newFixture(t, true)
			f.advance(t, game.Active)

			if disconnected {
				f.host.Close()
				f.session.Leave(f.host, true)
			} else {
				f.session.Handle(f.host, &protocol.Exit{})
			}

			assert.Equal(t, game.EndedAbandoned, f.session.State())
			assert.True(t, f.session.State().Terminal())
			assert.Nil(t, f.guest.Session())
			assert.Nil(t, f.host.Session())
			assert.Equal(t, []protocol.Kind{protocol.KindReturnToLobby}, f.guest.Kinds())
			assert.Equal(t, []string{"s-1"}, f.registry.Removed())
		})
	}
}

func TestSession_GuestDeparture(t *testing.T) {
	t.Run("before start reverts and republishes", func(t *testing.T) {
		f := newFixture(t, true)
		f.advance(t, game.InLobbyAwaitingStart)
		before := f.registry.Publishes()

		f.guest.Close()
		f.session.Leave(f.guest, true)

		assert.Equal(t, game.WaitingForPlayers, f.session.State())
		assert.Nil(t, f.guest.Session())
		assert.Equal(t, before+1, f.registry.Publishes())
		listing, ok := f.registry.Listing("s-1")
		require.True(t, ok)
		assert.Equal(t, 1, listing.Players)
		assert.Equal(t, []protocol.Kind{protocol.KindPlayerLeft}, f.host.Kinds())
	})

	t.Run("private session is not republished", func(t *testing.T) {
		f := newFixture(t, false)
		f.advance(t, game.InLobbyAwaitingStart)
		f.session.Handle(f.guest, &protocol.Cancel{})

		assert.Equal(t, game.WaitingForPlayers, f.session.State())
		assert.Zero(t, f.registry.Publishes())
		assert.Equal(t, []protocol.Kind{protocol.KindReturnToLobby}, f.guest.Kinds())
	})

	t.Run("a new guest can take the seat", func(t *testing.T) {
		f := newFixture(t, true)
		f.advance(t, game.InLobbyAwaitingStart)
		f.session.Handle(f.guest, &protocol.Exit{})
		require.NoError(t, f.session.Join(gametest.NewPeer(3, "carol")))
		assert.Equal(t, game.InLobbyAwaitingStart, f.session.State())
	})

	t.Run("during play the host continues", func(t *testing.T) {
		f := newFixture(t, true)
		f.advance(t, game.Active)
		f.session.Leave(f.guest, true)

		assert.Equal(t, game.Active, f.session.State())
		assert.Nil(t, f.session.Guest())
		assert.Equal(t, []protocol.Kind{protocol.KindPlayerLeft}, f.host.Kinds())
		_, listed := f.registry.Listing("s-1")
		assert.False(t, listed)

		f.host.Drain()
		f.session.Handle(f.host, &protocol.Action{Verb: "look"})
		assert.Equal(t, []protocol.Kind{protocol.KindRoom}, f.host.Kinds())
	})
}

func TestSession_EndNormal(t *testing.T) {
	f := newFixture(t, false)
	f.advance(t, game.Active)
	f.session.Handle(f.host, &protocol.End{})

	assert.Equal(t, game.EndedNormal, f.session.State())
	assert.Equal(t, []protocol.Kind{protocol.KindReturnToLobby}, f.host.Kinds())
	assert.Equal(t, []protocol.Kind{protocol.KindReturnToLobby}, f.guest.Kinds())
}

func TestSession_HostLeavesWhileLoading(t *testing.T) {
	f := newFixture(t, true)
	f.session.Handle(f.host, &protocol.Cancel{})
	assert.Equal(t, game.EndedAbandoned, f.session.State())

	err := f.session.Load(context.Background(), openWorld)
	assert.ErrorIs(t, err, game.ErrClosed)
	_, listed := f.registry.Listing("s-1")
	assert.False(t, listed)
}

package lobby

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/sleuthnet/game"
	"github.com/cyberinferno/sleuthnet/game/gametest"
	"github.com/cyberinferno/sleuthnet/protocol"
)

func sequence(values ...string) func() string {
	i := 0
	return func() string {
		v := values[i%len(values)]
		i++
		return v
	}
}

func TestDirectory_Create_RegeneratesTakenCode(t *testing.T) {
	d := NewDirectory(WithCodeGenerator(sequence("AAAAA", "AAAAA", "CCCCC")))
	d.codes["AAAAA"] = "stale"

	s, err := d.Create(game.Config{Host: gametest.NewPeer(1, "host")})
	require.NoError(t, err)
	assert.Equal(t, "CCCCC", s.Code())

	found, ok := d.LookupCode("ccccc")
	require.True(t, ok)
	assert.Same(t, s, found)
}

func TestDirectory_Create_CodeSpaceExhausted(t *testing.T) {
	d := NewDirectory(WithCodeGenerator(sequence("AAAAA")))
	d.codes["AAAAA"] = "stale"

	_, err := d.Create(game.Config{Host: gametest.NewPeer(1, "host")})
	assert.ErrorIs(t, err, ErrCodeSpace)
	assert.Empty(t, d.active)
}

func TestDirectory_Create_PublicHasNoCode(t *testing.T) {
	d := NewDirectory(WithIDGenerator(sequence("fixed-id")))
	s, err := d.Create(game.Config{Host: gametest.NewPeer(1, "host"), Public: true})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", s.ID())
	assert.Empty(t, s.Code())
	assert.Empty(t, d.codes)
}

func TestDirectory_RemoveClearsEverything(t *testing.T) {
	d := NewDirectory(WithCodeGenerator(sequence("QQQQQ")))
	s, err := d.Create(game.Config{Host: gametest.NewPeer(1, "host")})
	require.NoError(t, err)
	d.Publish(protocol.GameListing{SessionID: s.ID()})

	active, ok := d.Active()
	require.True(t, ok)
	assert.Same(t, s, active)

	d.Remove(s.ID())
	assert.Empty(t, d.sessions)
	assert.Empty(t, d.listings)
	assert.Empty(t, d.codes)
	_, ok = d.Active()
	assert.False(t, ok)
}

func TestDirectory_PublishIgnoresUnknownSessions(t *testing.T) {
	d := NewDirectory()
	d.Publish(protocol.GameListing{SessionID: "ghost"})
	assert.Empty(t, d.PublicGames())
}

func TestReadCode_DiscardsBiasedBytes(t *testing.T) {
	assert.Equal(t, 248, codeCutoff)

	code, err := readCode(bytes.NewReader([]byte{248, 255, 0, 1, 30, 31, 247, 62, 93, 124}))
	require.NoError(t, err)
	assert.Equal(t, "AB9A9", code)

	_, err = readCode(bytes.NewReader([]byte{1, 2, 3}))
	assert.Error(t, err)
}

func TestDirectory_Summaries_SkipsLoading(t *testing.T) {
	d := NewDirectory(WithCodeGenerator(sequence("LLLLL")))
	s, err := d.Create(game.Config{Host: gametest.NewPeer(1, "host"), CaseTitle: "The Silent Manor"})
	require.NoError(t, err)
	assert.Empty(t, d.Summaries())

	require.NoError(t, s.Load(context.Background(), func(context.Context) (game.World, error) {
		return &gametest.World{Title: "Hall"}, nil
	}))

	summaries := d.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, s.ID(), summaries[0].SessionID)
	assert.Equal(t, "LLLLL", summaries[0].Code)
}

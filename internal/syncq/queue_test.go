package syncq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushDeduplicatesWrites(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	entries, err := Load()
	require.NoError(t, err)
	assert.Empty(t, entries)

	first, err := Push(Submission{Kind: KindComplete, EventID: "ev-1", TeamID: "team-1", NodeID: "boss", Arg: "proof.png"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.QueuedAt.IsZero())

	again, err := Push(Submission{Kind: KindComplete, EventID: "ev-1", TeamID: "team-1", NodeID: "boss", Arg: "proof.png"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, err = Push(Submission{Kind: KindInn, EventID: "ev-1", TeamID: "team-1", NodeID: "inn", Arg: "ale"})
	require.NoError(t, err)

	entries, err = Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, KindInn, entries[1].Kind)
}

var errOffline = errors.New("dial tcp: connection refused")

func TestReplayKeepsTeamOrder(t *testing.T) {
	entries := []Submission{
		{ID: "1", Kind: KindComplete, EventID: "ev-1", TeamID: "team-1", NodeID: "a"},
		{ID: "2", Kind: KindComplete, EventID: "ev-1", TeamID: "team-2", NodeID: "a"},
		{ID: "3", Kind: KindComplete, EventID: "ev-1", TeamID: "team-1", NodeID: "b"},
		{ID: "4", Kind: KindBuff, EventID: "ev-1", TeamID: "team-2", NodeID: "b", Arg: "buff-1"},
	}
	var submitted []string
	submit := func(_ context.Context, s Submission) error {
		submitted = append(submitted, s.ID)
		switch s.ID {
		case "1":
			return errOffline
		case "4":
			return errors.New("node is locked")
		}
		return nil
	}
	retryable := func(err error) bool { return errors.Is(err, errOffline) }

	res := Replay(context.Background(), entries, submit, retryable)

	assert.Equal(t, []string{"1", "2", "4"}, submitted)
	assert.Equal(t, 1, res.Replayed)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "4", res.Rejected[0].Entry.ID)
	require.Len(t, res.Remaining, 2)
	assert.Equal(t, "1", res.Remaining[0].ID)
	assert.Equal(t, "3", res.Remaining[1].ID)
}

func TestReplayStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Replay(ctx, []Submission{{ID: "1"}}, func(context.Context, Submission) error {
		t.Fatal("submit called after cancel")
		return nil
	}, func(error) bool { return true })
	assert.Len(t, res.Remaining, 1)
	assert.Zero(t, res.Replayed)
}

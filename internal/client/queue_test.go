package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atomars1/stroam-mvp/internal/identity"
	"github.com/Atomars1/stroam-mvp/internal/playback"
	"github.com/Atomars1/stroam-mvp/internal/room"
	"github.com/Atomars1/stroam-mvp/internal/store"
)

func openRoom(t *testing.T, clk clock.Clock) *room.Room {
	t.Helper()
	r, err := room.Open(context.Background(), room.Options{ID: "T", Store: store.NewMemoryStore(), Clock: clk})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func queueOf(t *testing.T, r *room.Room) []playback.Entry {
	t.Helper()
	view, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	return view.Queue
}

func TestSwapAdjacent_ExchangesKeys(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1000))
	r := openRoom(t, mock)
	h := room.Handle{Room: r, Viewer: identity.Viewer{UID: "u1"}}
	ctx := context.Background()

	a, err := h.Enqueue(ctx, vidA, 0)
	require.NoError(t, err)
	mock.Add(time.Second)
	b, err := h.Enqueue(ctx, vidB, 0)
	require.NoError(t, err)

	before := queueOf(t, r)
	require.Equal(t, []int64{1000, 2000}, []int64{before[0].OrderKey, before[1].OrderKey})

	require.NoError(t, SwapAdjacent(ctx, h, before, 0, 1))
	after := queueOf(t, r)
	assert.Equal(t, b, after[0].ID)
	assert.EqualValues(t, 1000, after[0].OrderKey)
	assert.Equal(t, a, after[1].ID)
	assert.EqualValues(t, 2000, after[1].OrderKey)
}

func TestSwapAdjacent_Involution(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1000))
	r := openRoom(t, mock)
	h := room.Handle{Room: r}
	ctx := context.Background()

	for _, ref := range []string{vidA, vidB, vidC} {
		_, err := h.Enqueue(ctx, ref, 0)
		require.NoError(t, err)
		mock.Add(time.Second)
	}
	original := queueOf(t, r)

	require.NoError(t, SwapAdjacent(ctx, h, queueOf(t, r), 1, 2))
	require.NoError(t, SwapAdjacent(ctx, h, queueOf(t, r), 1, 2))
	assert.Equal(t, original, queueOf(t, r))
}

func TestSwapAdjacent_RejectsBadIndices(t *testing.T) {
	rec := &recordingRoom{}
	snapshot := []playback.Entry{
		{ID: "a", OrderKey: 1},
		{ID: "b", OrderKey: 2},
		{ID: "c", OrderKey: 3},
	}
	ctx := context.Background()

	assert.ErrorIs(t, SwapAdjacent(ctx, rec, snapshot, 2, 3), ErrIndexOutOfRange)
	assert.ErrorIs(t, SwapAdjacent(ctx, rec, snapshot, -1, 0), ErrIndexOutOfRange)
	assert.ErrorIs(t, SwapAdjacent(ctx, rec, snapshot, 0, 2), ErrNotAdjacent)
	assert.ErrorIs(t, SwapAdjacent(ctx, rec, snapshot, 1, 1), ErrNotAdjacent)
	assert.Empty(t, rec.calls)
}

func TestSwapAdjacent_SecondWriteFailureLeavesFirst(t *testing.T) {
	rec := &recordingRoom{failOn: map[string]error{"set_order:b": errors.New("gone")}}
	snapshot := []playback.Entry{{ID: "a", OrderKey: 1}, {ID: "b", OrderKey: 2}}

	err := SwapAdjacent(context.Background(), rec, snapshot, 0, 1)
	assert.Error(t, err)
	assert.Equal(t, []string{"set_order:a=2", "set_order:b=1"}, rec.calls)
}

func TestMirror_SortsSnapshots(t *testing.T) {
	var m Mirror
	m.Set([]playback.Entry{{ID: "late", OrderKey: 9}, {ID: "early", OrderKey: 1}})
	got := m.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "early", got[0].ID)
}

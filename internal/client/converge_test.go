package client

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atomars1/stroam-mvp/internal/playback"
)

const (
	vidA = "aaaaaaaaaaa"
	vidB = "bbbbbbbbbbb"
	vidC = "ccccccccccc"
)

// loadedPlayer returns a paused player on ref at pos with clean stats.
func loadedPlayer(mock *clock.Mock, ref string, pos float64) *SimPlayer {
	p := NewSimPlayer(mock, 0)
	p.LoadVideo(ref)
	p.SeekTo(pos, true)
	p.Pause()
	p.ResetStats()
	return p
}

func TestConverger_DriftBoundary(t *testing.T) {
	cases := []struct {
		name     string
		local    float64
		wantSeek bool
	}{
		{name: "exactly one second", local: 11.0, wantSeek: false},
		{name: "just over", local: 11.001, wantSeek: true},
		{name: "behind by more", local: 8.5, wantSeek: true},
		{name: "within", local: 10.4, wantSeek: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := clock.NewMock()
			p := loadedPlayer(mock, vidA, tc.local)
			c := NewConverger(p, ConvergerOptions{Clock: mock})

			fix := c.Observe(playback.State{VideoRef: vidA, PositionSeconds: 10})
			assert.Equal(t, tc.wantSeek, fix.Seeked)
			if tc.wantSeek {
				assert.InDelta(t, 10.0, p.CurrentTime(), 1e-9)
			}
			assert.False(t, fix.Played)
			assert.False(t, fix.Paused)
		})
	}
}

func TestConverger_SeekAndPlayInSameCycle(t *testing.T) {
	mock := clock.NewMock()
	p := loadedPlayer(mock, vidA, 40)
	c := NewConverger(p, ConvergerOptions{Clock: mock})

	fix := c.Observe(playback.State{VideoRef: vidA, IsPlaying: true, PositionSeconds: 42.3})
	assert.True(t, fix.Seeked)
	assert.InDelta(t, 42.3, fix.Target, 1e-9)
	assert.True(t, fix.Played)
	assert.Equal(t, SimStats{Seeks: 1, Plays: 1}, p.Stats())
	assert.Equal(t, Playing, p.State())
	assert.InDelta(t, 42.3, p.CurrentTime(), 1e-9)

	// converged: a repeated notification issues nothing
	fix = c.Observe(playback.State{VideoRef: vidA, IsPlaying: true, PositionSeconds: 42.3})
	assert.False(t, fix.Any())
	assert.Equal(t, SimStats{Seeks: 1, Plays: 1}, p.Stats())
}

func TestConverger_PauseWithoutSeek(t *testing.T) {
	mock := clock.NewMock()
	p := NewSimPlayer(mock, 0)
	p.LoadVideo(vidA)
	p.SeekTo(30, true)
	p.Play()
	p.ResetStats()

	c := NewConverger(p, ConvergerOptions{Clock: mock})
	fix := c.Observe(playback.State{VideoRef: vidA, IsPlaying: false, PositionSeconds: 30.5})
	assert.False(t, fix.Seeked)
	assert.True(t, fix.Paused)
	assert.Equal(t, Paused, p.State())
}

func TestConverger_VideoChangeLoadsFirst(t *testing.T) {
	mock := clock.NewMock()
	p := loadedPlayer(mock, vidA, 90)
	c := NewConverger(p, ConvergerOptions{Clock: mock})

	fix := c.Observe(playback.State{VideoRef: vidB, IsPlaying: true, PositionSeconds: 12})
	assert.Equal(t, Correction{Loaded: true}, fix)
	assert.Equal(t, vidB, p.LoadedVideo())
	assert.Equal(t, SimStats{Loads: 1}, p.Stats())

	// the next observation compares positions against the new video
	mock.Add(time.Second)
	fix = c.Tick()
	assert.True(t, fix.Seeked)
	assert.InDelta(t, 13.0, fix.Target, 1e-9)
	assert.True(t, fix.Played)
}

func TestConverger_PausedRoomLoadsThenSeeksOnTick(t *testing.T) {
	mock := clock.NewMock()
	p := loadedPlayer(mock, vidA, 0)
	c := NewConverger(p, ConvergerOptions{Clock: mock})

	c.Observe(playback.State{VideoRef: vidB, PositionSeconds: 30})
	fix := c.Tick()
	assert.True(t, fix.Seeked)
	assert.InDelta(t, 30.0, fix.Target, 1e-9)
	assert.False(t, fix.Played)

	// follow-up done; paused rooms are not re-checked on ticks
	assert.False(t, c.Tick().Any())
}

func TestConverger_TickExtrapolatesWhilePlaying(t *testing.T) {
	mock := clock.NewMock()
	p := loadedPlayer(mock, vidA, 10)
	c := NewConverger(p, ConvergerOptions{Clock: mock})

	c.Observe(playback.State{VideoRef: vidA, IsPlaying: true, PositionSeconds: 10})
	p.ResetStats()

	mock.Add(5 * time.Second)
	assert.False(t, c.Tick().Any(), "player kept pace with the room")

	// the player stalls behind
	p.SeekTo(3, true)
	p.ResetStats()
	fix := c.Tick()
	assert.True(t, fix.Seeked)
	assert.InDelta(t, 15.0, fix.Target, 1e-9)
}

func TestConverger_TickDoesNotReviveEndedPlayer(t *testing.T) {
	mock := clock.NewMock()
	p := NewSimPlayer(mock, 60)
	c := NewConverger(p, ConvergerOptions{Clock: mock})

	st := playback.State{VideoRef: vidA, IsPlaying: true, PositionSeconds: 0}
	c.Observe(st) // load
	c.Tick()      // play
	require.Equal(t, Playing, p.State())

	mock.Add(61 * time.Second)
	require.Equal(t, Ended, p.State())
	p.ResetStats()

	assert.False(t, c.Tick().Any())
	assert.Equal(t, SimStats{}, p.Stats())

	// a fresh notification does reconcile
	fix := c.Observe(playback.State{VideoRef: vidA, IsPlaying: true, PositionSeconds: 5})
	assert.True(t, fix.Played)
}

func TestConverger_RunReactsToNotificationsAndTicks(t *testing.T) {
	mock := clock.NewMock()
	p := loadedPlayer(mock, vidA, 0)
	c := NewConverger(p, ConvergerOptions{Clock: mock, Tick: time.Second})

	states := make(chan playback.State, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, states) }()

	states <- playback.State{VideoRef: vidA, IsPlaying: true, PositionSeconds: 20}
	assert.Eventually(t, func() bool { return p.State() == Playing }, time.Second, 5*time.Millisecond)

	latest, ok := c.Latest()
	require.True(t, ok)
	assert.Equal(t, vidA, latest.VideoRef)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}

func TestConverger_RunStopsWhenSubscriptionCloses(t *testing.T) {
	c := NewConverger(NewSimPlayer(clock.NewMock(), 0), ConvergerOptions{Clock: clock.NewMock()})
	states := make(chan playback.State)
	close(states)
	assert.ErrorIs(t, c.Run(context.Background(), states), ErrSubscriptionClosed)
}

package client

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestSimPlayer_PlaysToEnd(t *testing.T) {
	mock := clock.NewMock()
	p := NewSimPlayer(mock, 10)
	p.LoadVideo(vidA)
	assert.Equal(t, Cued, p.State())

	p.Play()
	mock.Add(4 * time.Second)
	assert.InDelta(t, 4.0, p.CurrentTime(), 1e-9)

	p.Pause()
	mock.Add(time.Hour)
	assert.InDelta(t, 4.0, p.CurrentTime(), 1e-9)

	p.Play()
	mock.Add(7 * time.Second)
	assert.Equal(t, Ended, p.State())
	assert.InDelta(t, 10.0, p.CurrentTime(), 1e-9)

	select {
	case ref := <-p.Ended():
		assert.Equal(t, vidA, ref)
	default:
		t.Fatalf("expected an end-of-media event")
	}
}

func TestSimPlayer_PlayAfterEndRestarts(t *testing.T) {
	mock := clock.NewMock()
	p := NewSimPlayer(mock, 3)
	p.LoadVideo(vidA)
	p.Play()
	mock.Add(5 * time.Second)
	assert.Equal(t, Ended, p.State())

	p.Play()
	assert.Equal(t, Playing, p.State())
	assert.Zero(t, p.CurrentTime())
	assert.Equal(t, SimStats{Loads: 1, Plays: 2}, p.Stats())
}

func TestPlayerState_String(t *testing.T) {
	assert.Equal(t, "buffering", Buffering.String())
	assert.Equal(t, "unknown", PlayerState(42).String())
}

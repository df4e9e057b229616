// Package client is the viewer side of a room: it keeps a local media player
// converged on the shared playback state, mirrors the queue and advances to
// the next entry when the local video ends.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/Atomars1/stroam-mvp/internal/playback"
)

var (
	ErrIndexOutOfRange    = errors.New("queue index out of range")
	ErrNotAdjacent        = errors.New("queue indices are not adjacent")
	ErrSubscriptionClosed = errors.New("room subscription closed")
)

// PlayerState mirrors the states reported by an embedded video player.
type PlayerState int

const (
	Unstarted PlayerState = -1
	Ended     PlayerState = 0
	Playing   PlayerState = 1
	Paused    PlayerState = 2
	Buffering PlayerState = 3
	Cued      PlayerState = 5
)

func (s PlayerState) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Ended:
		return "ended"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Buffering:
		return "buffering"
	case Cued:
		return "cued"
	}
	return "unknown"
}

// Player is the local media player handle.
type Player interface {
	CurrentTime() float64
	SeekTo(seconds float64, allowSeekAhead bool)
	Play()
	Pause()
	State() PlayerState
	LoadVideo(ref string)
	LoadedVideo() string
	// Ended fires with the ref of a video that played to its end.
	Ended() <-chan string
}

// Room is everything a viewer can do to a room. It is satisfied by an
// in-process room.Handle and by a websocket Conn.
type Room interface {
	Publish(ctx context.Context, st playback.State) error
	// PublishIf fails with playback.ErrStale unless the room state was last
	// committed at ifUpdatedAt.
	PublishIf(ctx context.Context, st playback.State, ifUpdatedAt time.Time) error
	SetVideo(ctx context.Context, input string) error
	Enqueue(ctx context.Context, input string, positionHint float64) (string, error)
	Remove(ctx context.Context, id string) error
	SetOrderKey(ctx context.Context, id string, key int64) error
	WatchPlayback(ctx context.Context) (<-chan playback.State, error)
	WatchQueue(ctx context.Context) (<-chan []playback.Entry, error)
}

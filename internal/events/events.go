// Package events publishes committed room changes to downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/Atomars1/stroam-mvp/internal/playback"
)

type Type string

const (
	PlaybackChanged Type = "playback.changed"
	QueueChanged    Type = "queue.changed"
)

type Event struct {
	Type     Type             `json:"type"`
	RoomID   string           `json:"room_id"`
	At       time.Time        `json:"at"`
	Playback *playback.State  `json:"playback,omitempty"`
	Queue    []playback.Entry `json:"queue,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Sink accepts events without blocking the caller.
type Sink interface {
	Emit(ev Event)
}

package playback

import (
	"errors"
	"math"
	"time"
)

// DefaultVideoRef is loaded into a room when it is first opened.
const DefaultVideoRef = "dQw4w9WgXcQ"

var ErrInvalidVideoRef = errors.New("invalid video reference")
var ErrInvalidPosition = errors.New("invalid playhead position")
var ErrStale = errors.New("playback changed since it was read")

// State is the authoritative "now playing" record of a room. Every write
// replaces VideoRef, IsPlaying and PositionSeconds together.
type State struct {
	VideoRef        string    `json:"video_ref"`
	IsPlaying       bool      `json:"is_playing"`
	PositionSeconds float64   `json:"position_seconds"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Entry is one pending video in a room queue.
type Entry struct {
	ID           string    `json:"id"`
	VideoRef     string    `json:"video_ref"`
	PositionHint float64   `json:"position_hint"`
	OrderKey     int64     `json:"order_key"`
	Seq          int64     `json:"seq"`
	AddedBy      string    `json:"added_by,omitempty"`
	AddedByName  string    `json:"added_by_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate rejects states that must never reach the shared record.
func (s State) Validate() error {
	if !ValidRef(s.VideoRef) {
		return ErrInvalidVideoRef
	}
	if math.IsNaN(s.PositionSeconds) || math.IsInf(s.PositionSeconds, 0) || s.PositionSeconds < 0 {
		return ErrInvalidPosition
	}
	return nil
}

// NormalizeState converts a record read from storage or the wire into a
// well-formed State. Missing refs fall back to the default video and broken
// positions to zero.
func NormalizeState(s State) State {
	if s.VideoRef == "" {
		s.VideoRef = DefaultVideoRef
	}
	if math.IsNaN(s.PositionSeconds) || math.IsInf(s.PositionSeconds, 0) || s.PositionSeconds < 0 {
		s.PositionSeconds = 0
	}
	return s
}

// NormalizeEntry fills legacy entries that were stored without an order key.
func NormalizeEntry(e Entry) Entry {
	if e.OrderKey == 0 && !e.CreatedAt.IsZero() {
		e.OrderKey = e.CreatedAt.UnixMilli()
	}
	if math.IsNaN(e.PositionHint) || math.IsInf(e.PositionHint, 0) || e.PositionHint < 0 {
		e.PositionHint = 0
	}
	return e
}

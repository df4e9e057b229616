package types

import (
	"time"

	"github.com/Atomars1/stroam-mvp/internal/playback"
)

// Client -> server message types.
const (
	MsgPublish  = "publish"
	MsgSetVideo = "set_video"
	MsgEnqueue  = "enqueue"
	MsgRemove   = "remove"
	MsgSetOrder = "set_order"
)

// Server -> client message types.
const (
	MsgPlayback = "playback"
	MsgQueue    = "queue"
	MsgAck      = "ack"
	MsgError    = "error"
)

type ClientMessage struct {
	Type        string          `json:"type"`
	ReqID       string          `json:"req_id,omitempty"`
	State       *playback.State `json:"state,omitempty"`         // publish
	IfUpdatedAt *time.Time      `json:"if_updated_at,omitempty"` // publish: only if unchanged since
	Input       string          `json:"input,omitempty"`         // set_video, enqueue: URL or id
	Position    float64         `json:"position,omitempty"`      // enqueue: sender's playhead
	ID          string          `json:"id,omitempty"`            // remove, set_order
	OrderKey    int64           `json:"order_key,omitempty"`
}

type ServerMessage struct {
	Type     string          `json:"type"`
	ReqID    string          `json:"req_id,omitempty"`
	Playback *playback.State `json:"playback,omitempty"`
	Queue    []QueueItem     `json:"queue,omitempty"`
	EntryID  string          `json:"entry_id,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// QueueItem is a queue entry decorated for display.
type QueueItem struct {
	playback.Entry
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

func Entries(items []QueueItem) []playback.Entry {
	out := make([]playback.Entry, 0, len(items))
	for _, it := range items {
		out = append(out, playback.NormalizeEntry(it.Entry))
	}
	return out
}

package client

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Atomars1/stroam-mvp/internal/playback"
)

// Advancer promotes the head of the queue when the local video ends.
type Advancer struct {
	room   Room
	queue  func() []playback.Entry
	latest func() (playback.State, bool)
	log    *zap.Logger
}

func NewAdvancer(room Room, queue func() []playback.Entry, latest func() (playback.State, bool), log *zap.Logger) *Advancer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Advancer{room: room, queue: queue, latest: latest, log: log}
}

// OnEnded handles the natural end of a video. ended is the authoritative
// state the player was following when it ended. It reports whether this
// client promoted an entry.
//
// Promotion is skipped when the room state has changed since ended was
// committed, locally or at the room, which is what a second viewer reaching
// the end a moment later observes even when the next entry is the same video.
func (a *Advancer) OnEnded(ctx context.Context, ended playback.State) (bool, error) {
	head, ok := playback.Head(a.queue())
	if !ok {
		return false, nil
	}
	if st, ok := a.latest(); ok && ended.VideoRef != "" &&
		(st.VideoRef != ended.VideoRef || st.UpdatedAt.After(ended.UpdatedAt)) {
		a.log.Debug("skip advance, room already moved on",
			zap.String("ended", ended.VideoRef), zap.String("current", st.VideoRef))
		return false, nil
	}

	next := playback.State{VideoRef: head.VideoRef, IsPlaying: true, PositionSeconds: 0}
	if err := a.room.PublishIf(ctx, next, ended.UpdatedAt); err != nil {
		if errors.Is(err, playback.ErrStale) {
			a.log.Debug("skip advance, another viewer promoted first", zap.String("ended", ended.VideoRef))
			return false, nil
		}
		return false, fmt.Errorf("promote %s: %w", head.ID, err)
	}
	// No compensation if this fails: the entry stays queued and plays again.
	if err := a.room.Remove(ctx, head.ID); err != nil {
		a.log.Warn("remove promoted entry failed", zap.String("entry", head.ID), zap.Error(err))
		return true, fmt.Errorf("remove promoted entry %s: %w", head.ID, err)
	}
	a.log.Info("advanced queue", zap.String("video", head.VideoRef), zap.String("entry", head.ID))
	return true, nil
}

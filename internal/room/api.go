package room

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Atomars1/stroam-mvp/internal/identity"
	"github.com/Atomars1/stroam-mvp/internal/playback"
)

// send delivers m to the actor, giving up when ctx ends or the room stops.
func (r *Room) send(ctx context.Context, m Msg) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	select {
	case r.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrClosed
	}
}

func await[T any](ctx context.Context, r *Room, reply chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-r.done:
		return zero, ErrClosed
	}
}

// Publish overwrites the playback state. Last writer wins.
func (r *Room) Publish(ctx context.Context, st playback.State) (playback.State, error) {
	return r.PublishIf(ctx, st, time.Time{})
}

// PublishIf writes st only if the current state was committed at
// ifUpdatedAt, failing with playback.ErrStale otherwise. A zero ifUpdatedAt
// writes unconditionally.
func (r *Room) PublishIf(ctx context.Context, st playback.State, ifUpdatedAt time.Time) (playback.State, error) {
	reply := make(chan StateResult, 1)
	if err := r.send(ctx, Publish{State: st, IfUpdatedAt: ifUpdatedAt, Reply: reply}); err != nil {
		return playback.State{}, err
	}
	res, err := await(ctx, r, reply)
	if err != nil {
		return playback.State{}, err
	}
	return res.State, res.Err
}

// SetVideo switches the room to the video named by input (a URL or id). The
// position restarts at zero and the play/pause flag is kept.
func (r *Room) SetVideo(ctx context.Context, input string) (playback.State, error) {
	reply := make(chan StateResult, 1)
	if err := r.send(ctx, SetVideo{Input: input, Reply: reply}); err != nil {
		return playback.State{}, err
	}
	res, err := await(ctx, r, reply)
	if err != nil {
		return playback.State{}, err
	}
	return res.State, res.Err
}

func (r *Room) Enqueue(ctx context.Context, input string, positionHint float64, by identity.Viewer) (playback.Entry, error) {
	reply := make(chan EntryResult, 1)
	msg := Enqueue{Input: input, PositionHint: positionHint, By: by, Reply: reply}
	if err := r.send(ctx, msg); err != nil {
		return playback.Entry{}, err
	}
	res, err := await(ctx, r, reply)
	if err != nil {
		return playback.Entry{}, err
	}
	return res.Entry, res.Err
}

// Remove deletes an entry. Removing an unknown id succeeds without a write.
func (r *Room) Remove(ctx context.Context, id string) error {
	reply := make(chan error, 1)
	if err := r.send(ctx, Remove{ID: id, Reply: reply}); err != nil {
		return err
	}
	res, err := await(ctx, r, reply)
	if err != nil {
		return err
	}
	return res
}

func (r *Room) SetOrderKey(ctx context.Context, id string, key int64) error {
	reply := make(chan error, 1)
	if err := r.send(ctx, SetOrderKey{ID: id, Key: key, Reply: reply}); err != nil {
		return err
	}
	res, err := await(ctx, r, reply)
	if err != nil {
		return err
	}
	return res
}

// WatchPlayback streams every committed playback state, starting with the
// current one. The channel is closed when ctx ends or the room shuts down.
func (r *Room) WatchPlayback(ctx context.Context) (<-chan playback.State, error) {
	id := uuid.NewString()
	out := make(chan playback.State, 1)
	ready := make(chan struct{})
	if err := r.send(ctx, WatchPlayback{ID: id, Outbox: out, Ready: ready}); err != nil {
		return nil, err
	}
	go r.unwatchOnDone(ctx, id)
	if _, err := await(ctx, r, ready); err != nil {
		return nil, err
	}
	return out, nil
}

// WatchQueue streams the full ordered queue after every change.
func (r *Room) WatchQueue(ctx context.Context) (<-chan []playback.Entry, error) {
	id := uuid.NewString()
	out := make(chan []playback.Entry, 1)
	ready := make(chan struct{})
	if err := r.send(ctx, WatchQueue{ID: id, Outbox: out, Ready: ready}); err != nil {
		return nil, err
	}
	go r.unwatchOnDone(ctx, id)
	if _, err := await(ctx, r, ready); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Room) unwatchOnDone(ctx context.Context, id string) {
	select {
	case <-ctx.Done():
		_ = r.send(context.Background(), Unwatch{ID: id})
	case <-r.done:
	}
}

func (r *Room) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	return await(ctx, r, reply)
}

// Close stops the actor and waits for it to exit.
func (r *Room) Close() {
	select {
	case r.inbox <- Shutdown{}:
	case <-r.done:
		return
	}
	<-r.done
}

// Handle binds a room to the viewer acting on it.
type Handle struct {
	Room   *Room
	Viewer identity.Viewer
}

func (h Handle) Publish(ctx context.Context, st playback.State) error {
	_, err := h.Room.Publish(ctx, st)
	return err
}

func (h Handle) PublishIf(ctx context.Context, st playback.State, ifUpdatedAt time.Time) error {
	_, err := h.Room.PublishIf(ctx, st, ifUpdatedAt)
	return err
}

func (h Handle) SetVideo(ctx context.Context, input string) error {
	_, err := h.Room.SetVideo(ctx, input)
	return err
}

func (h Handle) Enqueue(ctx context.Context, input string, positionHint float64) (string, error) {
	e, err := h.Room.Enqueue(ctx, input, positionHint, h.Viewer)
	return e.ID, err
}

func (h Handle) Remove(ctx context.Context, id string) error {
	return h.Room.Remove(ctx, id)
}

func (h Handle) SetOrderKey(ctx context.Context, id string, key int64) error {
	return h.Room.SetOrderKey(ctx, id, key)
}

func (h Handle) WatchPlayback(ctx context.Context) (<-chan playback.State, error) {
	return h.Room.WatchPlayback(ctx)
}

func (h Handle) WatchQueue(ctx context.Context) (<-chan []playback.Entry, error) {
	return h.Room.WatchQueue(ctx)
}

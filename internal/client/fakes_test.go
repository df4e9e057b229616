package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Atomars1/stroam-mvp/internal/playback"
)

// recordingRoom records writes and fails the ones named in failOn.
type recordingRoom struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]error
}

func (r *recordingRoom) record(call, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return r.failOn[key]
}

func (r *recordingRoom) Publish(_ context.Context, st playback.State) error {
	return r.record(fmt.Sprintf("publish:%s:%t:%g", st.VideoRef, st.IsPlaying, st.PositionSeconds), "publish")
}

func (r *recordingRoom) PublishIf(ctx context.Context, st playback.State, _ time.Time) error {
	return r.Publish(ctx, st)
}

func (r *recordingRoom) SetVideo(_ context.Context, input string) error {
	return r.record("set_video:"+input, "set_video")
}

func (r *recordingRoom) Enqueue(_ context.Context, input string, _ float64) (string, error) {
	return "id-" + input, r.record("enqueue:"+input, "enqueue")
}

func (r *recordingRoom) Remove(_ context.Context, id string) error {
	return r.record("remove:"+id, "remove:"+id)
}

func (r *recordingRoom) SetOrderKey(_ context.Context, id string, key int64) error {
	return r.record(fmt.Sprintf("set_order:%s=%d", id, key), "set_order:"+id)
}

func (r *recordingRoom) WatchPlayback(context.Context) (<-chan playback.State, error) {
	return make(chan playback.State), nil
}

func (r *recordingRoom) WatchQueue(context.Context) (<-chan []playback.Entry, error) {
	return make(chan []playback.Entry), nil
}

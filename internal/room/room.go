// Package room holds the authoritative playback state and queue of one watch
// room. Each Room is an actor: a single goroutine owns the state, persists
// every write to the store, applies it, then broadcasts it to watchers.
package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Atomars1/stroam-mvp/internal/events"
	"github.com/Atomars1/stroam-mvp/internal/identity"
	"github.com/Atomars1/stroam-mvp/internal/playback"
	"github.com/Atomars1/stroam-mvp/internal/store"
)

var ErrClosed = errors.New("room closed")

type Msg interface{ isRoomMsg() }

type Publish struct {
	State playback.State
	// IfUpdatedAt, when set, makes the write conditional on the current
	// state still carrying this timestamp.
	IfUpdatedAt time.Time
	Reply       chan StateResult
}

type SetVideo struct {
	Input string
	Reply chan StateResult
}

type Enqueue struct {
	Input        string
	PositionHint float64
	By           identity.Viewer
	Reply        chan EntryResult
}

type Remove struct {
	ID    string
	Reply chan error
}

type SetOrderKey struct {
	ID    string
	Key   int64
	Reply chan error
}

type WatchPlayback struct {
	ID     string
	Outbox chan playback.State // buffered; only the latest state is kept
	Ready  chan struct{}       // closed once registered
}

type WatchQueue struct {
	ID     string
	Outbox chan []playback.Entry
	Ready  chan struct{}
}

type Unwatch struct{ ID string }

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

func (Publish) isRoomMsg()       {}
func (SetVideo) isRoomMsg()      {}
func (Enqueue) isRoomMsg()       {}
func (Remove) isRoomMsg()        {}
func (SetOrderKey) isRoomMsg()   {}
func (WatchPlayback) isRoomMsg() {}
func (WatchQueue) isRoomMsg()    {}
func (Unwatch) isRoomMsg()       {}
func (GetState) isRoomMsg()      {}
func (Shutdown) isRoomMsg()      {}

type StateResult struct {
	State playback.State
	Err   error
}

type EntryResult struct {
	Entry playback.Entry
	Err   error
}

// View is a consistent read of the room taken inside the actor.
type View struct {
	ID       string
	Version  int64
	Watchers int
	State    playback.State
	Queue    []playback.Entry
}

// Recorder receives write outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveWrite(op string, err error)
	SnapshotCoalesced()
}

type nopRecorder struct{}

func (nopRecorder) ObserveWrite(string, error) {}
func (nopRecorder) SnapshotCoalesced()         {}

type Options struct {
	ID           string
	Store        store.Store
	DefaultVideo string
	WriteTimeout time.Duration
	IdleTimeout  time.Duration // close after this long without watchers or requests; zero never closes
	Clock        clock.Clock
	Log          *zap.Logger
	Events       events.Sink // optional
	Metrics      Recorder    // optional
}

type Room struct {
	id      string
	inbox   chan Msg
	store   store.Store
	clock   clock.Clock
	log     *zap.Logger
	events  events.Sink
	metrics Recorder
	timeout time.Duration

	idleAfter  time.Duration
	idle       *clock.Timer
	lastActive time.Time

	state   playback.State
	entries []playback.Entry // kept sorted
	seq     int64
	version int64

	playbackWatchers map[string]chan playback.State
	queueWatchers    map[string]chan []playback.Entry

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Open loads the room from the store, creating it with the default video when
// it does not exist yet, and starts its actor.
func Open(parent context.Context, opts Options) (*Room, error) {
	if opts.Store == nil {
		return nil, errors.New("room: store is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.DefaultVideo == "" {
		opts.DefaultVideo = playback.DefaultVideoRef
	}

	loadCtx, cancelLoad := context.WithTimeout(parent, opts.WriteTimeout)
	defer cancelLoad()

	st, entries, ok, err := opts.Store.LoadRoom(loadCtx, opts.ID)
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", opts.ID, err)
	}
	if !ok {
		st = playback.State{VideoRef: opts.DefaultVideo, UpdatedAt: opts.Clock.Now().UTC()}
		if err := opts.Store.SavePlayback(loadCtx, opts.ID, st); err != nil {
			return nil, fmt.Errorf("create room %s: %w", opts.ID, err)
		}
	}

	st = playback.NormalizeState(st)
	var seq int64
	for i := range entries {
		entries[i] = playback.NormalizeEntry(entries[i])
		seq = max(seq, entries[i].Seq)
	}
	playback.SortEntries(entries)

	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		id:               opts.ID,
		inbox:            make(chan Msg, 64),
		store:            opts.Store,
		clock:            opts.Clock,
		log:              opts.Log.With(zap.String("room", opts.ID)),
		events:           opts.Events,
		metrics:          opts.Metrics,
		timeout:          opts.WriteTimeout,
		state:            st,
		entries:          entries,
		seq:              seq,
		playbackWatchers: make(map[string]chan playback.State),
		queueWatchers:    make(map[string]chan []playback.Entry),
		ctx:              ctx,
		cancel:           cancel,
		done:             make(chan struct{}),
		idleAfter:        opts.IdleTimeout,
		lastActive:       opts.Clock.Now(),
	}
	if opts.IdleTimeout > 0 {
		r.idle = opts.Clock.Timer(opts.IdleTimeout)
	}

	go r.loop()
	return r, nil
}

func (r *Room) ID() string { return r.id }

// Inbox exposes the actor inbox to the hub and tests.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the actor has stopped.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) idleC() <-chan time.Time {
	if r.idle == nil {
		return nil
	}
	return r.idle.C
}

func (r *Room) watchers() int {
	return len(r.playbackWatchers) + len(r.queueWatchers)
}

func (r *Room) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-r.idleC():
			if r.watchers() > 0 {
				break
			}
			if quiet := r.clock.Since(r.lastActive); quiet < r.idleAfter {
				r.idle.Reset(r.idleAfter - quiet)
				break
			}
			r.log.Info("room idle, closing")
			r.shutdown()
			return

		case m := <-r.inbox:
			r.lastActive = r.clock.Now()
			switch msg := m.(type) {
			case Publish:
				if !msg.IfUpdatedAt.IsZero() && !msg.IfUpdatedAt.Equal(r.state.UpdatedAt) {
					r.metrics.ObserveWrite("publish", playback.ErrStale)
					msg.Reply <- StateResult{State: r.state, Err: playback.ErrStale}
					break
				}
				st, err := r.commitPlayback("publish", msg.State)
				msg.Reply <- StateResult{State: st, Err: err}

			case SetVideo:
				ref, err := playback.ParseVideoRef(msg.Input)
				if err != nil {
					r.metrics.ObserveWrite("set_video", err)
					msg.Reply <- StateResult{State: r.state, Err: err}
					break
				}
				next := playback.State{VideoRef: ref, IsPlaying: r.state.IsPlaying}
				st, err := r.commitPlayback("set_video", next)
				msg.Reply <- StateResult{State: st, Err: err}

			case Enqueue:
				e, err := r.enqueue(msg)
				msg.Reply <- EntryResult{Entry: e, Err: err}

			case Remove:
				msg.Reply <- r.remove(msg.ID)

			case SetOrderKey:
				msg.Reply <- r.setOrderKey(msg.ID, msg.Key)

			case WatchPlayback:
				r.playbackWatchers[msg.ID] = msg.Outbox
				r.deliverPlayback(msg.Outbox, r.state)
				close(msg.Ready)

			case WatchQueue:
				r.queueWatchers[msg.ID] = msg.Outbox
				r.deliverQueue(msg.Outbox, r.queueSnapshot())
				close(msg.Ready)

			case Unwatch:
				if ch, ok := r.playbackWatchers[msg.ID]; ok {
					close(ch)
					delete(r.playbackWatchers, msg.ID)
				}
				if ch, ok := r.queueWatchers[msg.ID]; ok {
					close(ch)
					delete(r.queueWatchers, msg.ID)
				}

			case GetState:
				msg.Reply <- View{
					ID:       r.id,
					Version:  r.version,
					Watchers: r.watchers(),
					State:    r.state,
					Queue:    r.queueSnapshot(),
				}

			case Shutdown:
				r.shutdown()
				return
			}
			r.armIdle()
		}
	}
}

// armIdle runs the idle timer only while nobody is watching.
func (r *Room) armIdle() {
	if r.idle == nil {
		return
	}
	r.idle.Stop()
	if r.watchers() == 0 {
		r.idle.Reset(r.idleAfter)
	}
}

func (r *Room) shutdown() {
	if r.idle != nil {
		r.idle.Stop()
	}
	for id, ch := range r.playbackWatchers {
		close(ch)
		delete(r.playbackWatchers, id)
	}
	for id, ch := range r.queueWatchers {
		close(ch)
		delete(r.queueWatchers, id)
	}
	r.cancel()
}

// persist runs one store write under the room's write timeout.
func (r *Room) persist(op string, write func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()
	err := write(ctx)
	r.metrics.ObserveWrite(op, err)
	if err != nil {
		r.log.Warn("store write failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

// stamp returns a server timestamp strictly later than the current one, so
// every commit is identified by its UpdatedAt.
func (r *Room) stamp() time.Time {
	now := r.clock.Now().UTC()
	if !now.After(r.state.UpdatedAt) {
		return r.state.UpdatedAt.Add(time.Millisecond)
	}
	return now
}

func (r *Room) commitPlayback(op string, next playback.State) (playback.State, error) {
	if err := next.Validate(); err != nil {
		r.metrics.ObserveWrite(op, err)
		return r.state, err
	}
	next.UpdatedAt = r.stamp()
	if err := r.persist(op, func(ctx context.Context) error {
		return r.store.SavePlayback(ctx, r.id, next)
	}); err != nil {
		return r.state, err
	}

	r.state = next
	r.version++
	for _, ch := range r.playbackWatchers {
		r.deliverPlayback(ch, next)
	}
	r.emit(events.Event{Type: events.PlaybackChanged, Playback: &next})
	return next, nil
}

func (r *Room) enqueue(msg Enqueue) (playback.Entry, error) {
	ref, err := playback.ParseVideoRef(msg.Input)
	if err != nil {
		r.metrics.ObserveWrite("enqueue", err)
		return playback.Entry{}, err
	}
	now := r.clock.Now()
	e := playback.NormalizeEntry(playback.Entry{
		ID:           uuid.NewString(),
		VideoRef:     ref,
		PositionHint: msg.PositionHint,
		OrderKey:     playback.NextOrderKey(now, r.entries),
		Seq:          r.seq + 1,
		AddedBy:      msg.By.UID,
		AddedByName:  msg.By.DisplayName,
		CreatedAt:    now.UTC(),
	})
	if err := r.persist("enqueue", func(ctx context.Context) error {
		return r.store.CreateEntry(ctx, r.id, e)
	}); err != nil {
		return playback.Entry{}, err
	}

	r.seq = e.Seq
	r.entries = append(r.entries, e)
	playback.SortEntries(r.entries)
	r.queueChanged()
	return e, nil
}

func (r *Room) remove(id string) error {
	i := playback.IndexOf(r.entries, id)
	if i < 0 {
		return nil
	}
	if err := r.persist("remove", func(ctx context.Context) error {
		return r.store.DeleteEntry(ctx, r.id, id)
	}); err != nil {
		return err
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	r.queueChanged()
	return nil
}

func (r *Room) setOrderKey(id string, key int64) error {
	i := playback.IndexOf(r.entries, id)
	if i < 0 {
		r.metrics.ObserveWrite("set_order", store.ErrNotFound)
		return store.ErrNotFound
	}
	if err := r.persist("set_order", func(ctx context.Context) error {
		return r.store.UpdateOrderKey(ctx, r.id, id, key)
	}); err != nil {
		return err
	}
	r.entries[i].OrderKey = key
	playback.SortEntries(r.entries)
	r.queueChanged()
	return nil
}

func (r *Room) queueChanged() {
	r.version++
	for _, ch := range r.queueWatchers {
		r.deliverQueue(ch, r.queueSnapshot())
	}
	r.emit(events.Event{Type: events.QueueChanged, Queue: r.queueSnapshot()})
}

func (r *Room) queueSnapshot() []playback.Entry {
	out := make([]playback.Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Room) emit(ev events.Event) {
	if r.events == nil {
		return
	}
	ev.RoomID = r.id
	ev.At = r.clock.Now().UTC()
	r.events.Emit(ev)
}

// deliverPlayback leaves st as the only pending value in ch. Watchers are
// never dropped for being slow.
func (r *Room) deliverPlayback(ch chan playback.State, st playback.State) {
	if cap(ch) == 0 {
		select {
		case ch <- st:
		default:
		}
		return
	}
	for {
		select {
		case ch <- st:
			return
		default:
		}
		select {
		case <-ch:
			r.metrics.SnapshotCoalesced()
		default:
		}
	}
}

func (r *Room) deliverQueue(ch chan []playback.Entry, q []playback.Entry) {
	if cap(ch) == 0 {
		select {
		case ch <- q:
		default:
		}
		return
	}
	for {
		select {
		case ch <- q:
			return
		default:
		}
		select {
		case <-ch:
			r.metrics.SnapshotCoalesced()
		default:
		}
	}
}

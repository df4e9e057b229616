// Package hub is the room registry. It owns every open room and creates a
// room, with the default video, the first time its id is used.
package hub

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Atomars1/stroam-mvp/internal/room"
)

var (
	ErrRoomExists = errors.New("room already exists")
	ErrHubClosed  = errors.New("hub closed")
)

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	ID    string
	Reply chan RoomResult
}

type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

type EnsureRoom struct {
	ID    string
	Reply chan RoomResult
}

// RemoveRoom forgets a room whose actor has stopped. A newer room under the
// same id is left alone.
type RemoveRoom struct {
	ID   string
	Room *room.Room
}

type CountRooms struct {
	Reply chan int
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (CountRooms) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type RoomResult struct {
	Room *room.Room
	Err  error
}

type Hub struct {
	inbox chan HubMsg
	rooms map[string]*room.Room
	// template for every room; ID is filled per room
	opts   room.Options
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(parent context.Context, opts room.Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		opts:   opts,
		log:    opts.Log,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if h.live(msg.ID) != nil {
					msg.Reply <- RoomResult{Err: ErrRoomExists}
					break
				}
				r, err := h.open(msg.ID)
				msg.Reply <- RoomResult{Room: r, Err: err}

			case GetRoom:
				msg.Reply <- h.live(msg.ID) // may be nil

			case EnsureRoom:
				if r := h.live(msg.ID); r != nil {
					msg.Reply <- RoomResult{Room: r}
					break
				}
				r, err := h.open(msg.ID)
				msg.Reply <- RoomResult{Room: r, Err: err}

			case RemoveRoom:
				if h.rooms[msg.ID] == msg.Room {
					delete(h.rooms, msg.ID)
					h.log.Info("room released", zap.String("room", msg.ID))
				}

			case CountRooms:
				msg.Reply <- len(h.rooms)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// live returns the registered room unless its actor has already stopped.
func (h *Hub) live(id string) *room.Room {
	r := h.rooms[id]
	if r == nil {
		return nil
	}
	select {
	case <-r.Done():
		delete(h.rooms, id)
		return nil
	default:
		return r
	}
}

func (h *Hub) open(id string) (*room.Room, error) {
	opts := h.opts
	opts.ID = id
	r, err := room.Open(h.ctx, opts)
	if err != nil {
		h.log.Error("open room failed", zap.String("room", id), zap.Error(err))
		return nil, err
	}
	h.rooms[id] = r
	h.log.Info("room opened", zap.String("room", id))
	go h.forgetWhenDone(r)
	return r, nil
}

// forgetWhenDone drops r from the registry once it closes, for instance
// after sitting idle. Ensure opens it again from the store.
func (h *Hub) forgetWhenDone(r *room.Room) {
	select {
	case <-r.Done():
		_ = h.ask(context.Background(), RemoveRoom{ID: r.ID(), Room: r})
	case <-h.done:
	}
}

func (h *Hub) shutdown() {
	for id, r := range h.rooms {
		r.Close()
		delete(h.rooms, id)
	}
	h.cancel()
}

func (h *Hub) ask(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubClosed
	}
}

func reply[T any](ctx context.Context, h *Hub, ch chan T) (T, error) {
	var zero T
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-h.done:
		return zero, ErrHubClosed
	}
}

// Create opens a new room and fails with ErrRoomExists if id is taken.
func (h *Hub) Create(ctx context.Context, id string) (*room.Room, error) {
	ch := make(chan RoomResult, 1)
	if err := h.ask(ctx, CreateRoom{ID: id, Reply: ch}); err != nil {
		return nil, err
	}
	res, err := reply(ctx, h, ch)
	if err != nil {
		return nil, err
	}
	return res.Room, res.Err
}

// Ensure returns the room for id, opening it if needed.
func (h *Hub) Ensure(ctx context.Context, id string) (*room.Room, error) {
	ch := make(chan RoomResult, 1)
	if err := h.ask(ctx, EnsureRoom{ID: id, Reply: ch}); err != nil {
		return nil, err
	}
	res, err := reply(ctx, h, ch)
	if err != nil {
		return nil, err
	}
	return res.Room, res.Err
}

// Snapshot reads room id, opening it if needed. A room that closes between
// lookup and read is opened once more.
func (h *Hub) Snapshot(ctx context.Context, id string) (room.View, error) {
	for attempt := 0; ; attempt++ {
		r, err := h.Ensure(ctx, id)
		if err != nil {
			return room.View{}, err
		}
		view, err := r.Snapshot(ctx)
		if errors.Is(err, room.ErrClosed) && attempt == 0 {
			continue
		}
		return view, err
	}
}

// Get returns the open room for id or nil.
func (h *Hub) Get(ctx context.Context, id string) (*room.Room, error) {
	ch := make(chan *room.Room, 1)
	if err := h.ask(ctx, GetRoom{ID: id, Reply: ch}); err != nil {
		return nil, err
	}
	return reply(ctx, h, ch)
}

func (h *Hub) Count(ctx context.Context) (int, error) {
	ch := make(chan int, 1)
	if err := h.ask(ctx, CountRooms{Reply: ch}); err != nil {
		return 0, err
	}
	return reply(ctx, h, ch)
}

// Shutdown closes every room and stops the hub.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.done:
		return
	}
	<-h.done
}

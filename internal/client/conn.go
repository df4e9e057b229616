package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Atomars1/stroam-mvp/internal/playback"
	"github.com/Atomars1/stroam-mvp/internal/store"
	"github.com/Atomars1/stroam-mvp/internal/types"
)

var ErrConnClosed = errors.New("connection closed")

// Conn is a Room reached over the server's websocket endpoint.
type Conn struct {
	ws  *websocket.Conn
	log *zap.Logger

	nextReq atomic.Int64

	mu        sync.Mutex
	closed    bool
	pending   map[string]chan types.ServerMessage
	playback  map[string]chan playback.State
	queue     map[string]chan []playback.Entry
	lastState *playback.State
	lastQueue []playback.Entry
	haveQueue bool

	done chan struct{}
}

// Dial connects to a websocket URL such as ws://host/ws?room=ABC123.
func Dial(ctx context.Context, url string, header http.Header, log *zap.Logger) (*Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	ws.SetReadLimit(1 << 20)
	c := &Conn{
		ws:       ws,
		log:      log,
		pending:  make(map[string]chan types.ServerMessage),
		playback: make(map[string]chan playback.State),
		queue:    make(map[string]chan []playback.Entry),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Close() error {
	err := c.ws.Close(websocket.StatusNormalClosure, "bye")
	<-c.done
	return err
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer c.shutdown()
	for {
		_, data, err := c.ws.Read(context.Background())
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				c.log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}

		var msg types.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("bad server message", zap.Error(err))
			continue
		}

		c.mu.Lock()
		switch msg.Type {
		case types.MsgPlayback:
			if msg.Playback == nil {
				break
			}
			st := playback.NormalizeState(*msg.Playback)
			c.lastState = &st
			for _, ch := range c.playback {
				offerLatest(ch, st)
			}
		case types.MsgQueue:
			q := types.Entries(msg.Queue)
			playback.SortEntries(q)
			c.lastQueue = q
			c.haveQueue = true
			for _, ch := range c.queue {
				offerLatest(ch, q)
			}
		case types.MsgAck, types.MsgError:
			if ch, ok := c.pending[msg.ReqID]; ok {
				ch <- msg
				delete(c.pending, msg.ReqID)
			}
		}
		c.mu.Unlock()
	}
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	for id, ch := range c.playback {
		close(ch)
		delete(c.playback, id)
	}
	for id, ch := range c.queue {
		close(ch)
		delete(c.queue, id)
	}
}

// offerLatest replaces whatever ch still holds with v. ch must be buffered.
func offerLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (c *Conn) request(ctx context.Context, msg types.ClientMessage) (types.ServerMessage, error) {
	msg.ReqID = strconv.FormatInt(c.nextReq.Add(1), 10)
	reply := make(chan types.ServerMessage, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return types.ServerMessage{}, ErrConnClosed
	}
	c.pending[msg.ReqID] = reply
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, msg.ReqID)
		c.mu.Unlock()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		forget()
		return types.ServerMessage{}, err
	}
	wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err = c.ws.Write(wctx, websocket.MessageText, payload)
	cancel()
	if err != nil {
		forget()
		return types.ServerMessage{}, fmt.Errorf("write %s: %w", msg.Type, err)
	}

	select {
	case res, ok := <-reply:
		if !ok {
			return types.ServerMessage{}, ErrConnClosed
		}
		if res.Type == types.MsgError {
			return res, remoteError(res.Error)
		}
		return res, nil
	case <-ctx.Done():
		forget()
		return types.ServerMessage{}, ctx.Err()
	}
}

// remoteError maps server error text back onto the sentinels it came from.
func remoteError(text string) error {
	for _, known := range []error{
		playback.ErrInvalidVideoRef,
		playback.ErrInvalidPosition,
		store.ErrNotFound,
	} {
		if text == known.Error() {
			return known
		}
	}
	return errors.New(text)
}

func (c *Conn) Publish(ctx context.Context, st playback.State) error {
	_, err := c.request(ctx, types.ClientMessage{Type: types.MsgPublish, State: &st})
	return err
}

func (c *Conn) PublishIf(ctx context.Context, st playback.State, ifUpdatedAt time.Time) error {
	msg := types.ClientMessage{Type: types.MsgPublish, State: &st}
	if !ifUpdatedAt.IsZero() {
		msg.IfUpdatedAt = &ifUpdatedAt
	}
	_, err := c.request(ctx, msg)
	return err
}

func (c *Conn) SetVideo(ctx context.Context, input string) error {
	_, err := c.request(ctx, types.ClientMessage{Type: types.MsgSetVideo, Input: input})
	return err
}

func (c *Conn) Enqueue(ctx context.Context, input string, positionHint float64) (string, error) {
	res, err := c.request(ctx, types.ClientMessage{Type: types.MsgEnqueue, Input: input, Position: positionHint})
	return res.EntryID, err
}

func (c *Conn) Remove(ctx context.Context, id string) error {
	_, err := c.request(ctx, types.ClientMessage{Type: types.MsgRemove, ID: id})
	return err
}

func (c *Conn) SetOrderKey(ctx context.Context, id string, key int64) error {
	_, err := c.request(ctx, types.ClientMessage{Type: types.MsgSetOrder, ID: id, OrderKey: key})
	return err
}

func (c *Conn) WatchPlayback(ctx context.Context) (<-chan playback.State, error) {
	id := uuid.NewString()
	ch := make(chan playback.State, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnClosed
	}
	c.playback[id] = ch
	if c.lastState != nil {
		ch <- *c.lastState
	}
	c.mu.Unlock()

	go c.forgetOnDone(ctx, func() {
		if ch, ok := c.playback[id]; ok {
			close(ch)
			delete(c.playback, id)
		}
	})
	return ch, nil
}

func (c *Conn) WatchQueue(ctx context.Context) (<-chan []playback.Entry, error) {
	id := uuid.NewString()
	ch := make(chan []playback.Entry, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnClosed
	}
	c.queue[id] = ch
	if c.haveQueue {
		ch <- c.lastQueue
	}
	c.mu.Unlock()

	go c.forgetOnDone(ctx, func() {
		if ch, ok := c.queue[id]; ok {
			close(ch)
			delete(c.queue, id)
		}
	})
	return ch, nil
}

func (c *Conn) forgetOnDone(ctx context.Context, forget func()) {
	select {
	case <-ctx.Done():
		c.mu.Lock()
		forget()
		c.mu.Unlock()
	case <-c.done:
	}
}

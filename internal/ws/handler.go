package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/Atomars1/stroam-mvp/internal/hub"
	"github.com/Atomars1/stroam-mvp/internal/identity"
	"github.com/Atomars1/stroam-mvp/internal/metadata"
	"github.com/Atomars1/stroam-mvp/internal/playback"
	"github.com/Atomars1/stroam-mvp/internal/platform/metrics"
	"github.com/Atomars1/stroam-mvp/internal/room"
	"github.com/Atomars1/stroam-mvp/internal/types"
)

var errMissingState = errors.New("missing state")

type Deps struct {
	Hub      *hub.Hub
	Identity identity.Provider
	Titles   *metadata.Titles // optional
	Metrics  *metrics.Metrics // optional
	Log      *zap.Logger
	// OriginPatterns loosens the same-origin check, e.g. "localhost:*".
	OriginPatterns []string
}

func Handler(d Deps) http.HandlerFunc {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Identity == nil {
		d.Identity = identity.AnonymousProvider{}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.URL.Query().Get("room")
		if roomID == "" {
			http.Error(w, "missing room", http.StatusBadRequest)
			return
		}

		viewer, err := d.Identity.Viewer(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		rm, err := d.Hub.Ensure(r.Context(), roomID)
		if err != nil {
			http.Error(w, "room unavailable", http.StatusInternalServerError)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: d.OriginPatterns})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(1 << 16)

		log := d.Log.With(zap.String("room", roomID), zap.String("viewer", viewer.UID))
		if d.Metrics != nil {
			d.Metrics.ClientConnected()
			defer d.Metrics.ClientDisconnected()
		}
		log.Info("viewer joined")
		defer log.Info("viewer left")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		rm, states, queue, err := watch(ctx, d.Hub, rm)
		if err != nil {
			log.Debug("watch failed", zap.Error(err))
			return
		}
		var resolved <-chan struct{}
		if d.Titles != nil {
			resolved = d.Titles.Notify(ctx)
		}
		replies := make(chan types.ServerMessage, 16)

		// Writer goroutine: the only one writing to conn.
		go func() {
			defer cancel()
			var (
				lastQueue []playback.Entry
				untitled  bool // lastQueue was sent with raw refs as titles
			)
			for {
				var msg types.ServerMessage
				select {
				case <-ctx.Done():
					return
				case st, ok := <-states:
					if !ok {
						conn.Close(websocket.StatusGoingAway, "room closed")
						return
					}
					msg = types.ServerMessage{Type: types.MsgPlayback, Playback: &st}
				case q, ok := <-queue:
					if !ok {
						conn.Close(websocket.StatusGoingAway, "room closed")
						return
					}
					lastQueue = q
					msg, untitled = queueMessage(d.Titles, q)
				case <-resolved:
					if !untitled {
						continue
					}
					msg, untitled = queueMessage(d.Titles, lastQueue)
				case msg = <-replies:
				}

				payload, _ := json.Marshal(msg)
				wctx, wcancel := context.WithTimeout(ctx, 3*time.Second)
				err := conn.Write(wctx, websocket.MessageText, payload)
				wcancel()
				if err != nil {
					return
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("websocket read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				reply(ctx, replies, types.ServerMessage{Type: types.MsgError, Error: "bad json"})
				continue
			}

			res := apply(ctx, rm, viewer, cm)
			if res.Type == types.MsgError {
				log.Debug("request rejected", zap.String("type", cm.Type), zap.String("error", res.Error))
			}
			reply(ctx, replies, res)
		}
	}
}

func reply(ctx context.Context, replies chan<- types.ServerMessage, msg types.ServerMessage) {
	select {
	case replies <- msg:
	case <-ctx.Done():
	}
}

// apply runs one client request against the room and builds the answer
// sent back to that client only.
func apply(ctx context.Context, rm *room.Room, viewer identity.Viewer, cm types.ClientMessage) types.ServerMessage {
	var (
		entryID string
		err     error
	)
	switch cm.Type {
	case types.MsgPublish:
		if cm.State == nil {
			err = errMissingState
			break
		}
		var since time.Time
		if cm.IfUpdatedAt != nil {
			since = *cm.IfUpdatedAt
		}
		_, err = rm.PublishIf(ctx, *cm.State, since)
	case types.MsgSetVideo:
		_, err = rm.SetVideo(ctx, cm.Input)
	case types.MsgEnqueue:
		var e playback.Entry
		e, err = rm.Enqueue(ctx, cm.Input, cm.Position, viewer)
		entryID = e.ID
	case types.MsgRemove:
		err = rm.Remove(ctx, cm.ID)
	case types.MsgSetOrder:
		err = rm.SetOrderKey(ctx, cm.ID, cm.OrderKey)
	default:
		return types.ServerMessage{Type: types.MsgError, ReqID: cm.ReqID, Error: "unknown type"}
	}

	if err != nil {
		return types.ServerMessage{Type: types.MsgError, ReqID: cm.ReqID, Error: err.Error()}
	}
	return types.ServerMessage{Type: types.MsgAck, ReqID: cm.ReqID, EntryID: entryID}
}

// watch subscribes to rm, reopening the room once if it closed for
// idleness between lookup and subscription.
func watch(ctx context.Context, h *hub.Hub, rm *room.Room) (*room.Room, <-chan playback.State, <-chan []playback.Entry, error) {
	for attempt := 0; ; attempt++ {
		states, err := rm.WatchPlayback(ctx)
		if err == nil {
			var queue <-chan []playback.Entry
			queue, err = rm.WatchQueue(ctx)
			if err == nil {
				return rm, states, queue, nil
			}
		}
		if !errors.Is(err, room.ErrClosed) || attempt > 0 {
			return nil, nil, nil, err
		}
		if rm, err = h.Ensure(ctx, rm.ID()); err != nil {
			return nil, nil, nil, err
		}
	}
}

func queueMessage(titles *metadata.Titles, q []playback.Entry) (types.ServerMessage, bool) {
	items, untitled := decorate(titles, q)
	return types.ServerMessage{Type: types.MsgQueue, Queue: items}, untitled
}

// decorate attaches display titles. Unresolved titles show the raw ref and
// are reported so the queue can be sent again once they resolve.
func decorate(titles *metadata.Titles, q []playback.Entry) ([]types.QueueItem, bool) {
	items := make([]types.QueueItem, 0, len(q))
	untitled := false
	for _, e := range q {
		title := e.VideoRef
		if titles != nil {
			var ok bool
			if title, ok = titles.Lookup(e.VideoRef); !ok {
				untitled = true
			}
		}
		items = append(items, types.QueueItem{
			Entry:     e,
			Title:     title,
			Thumbnail: playback.ThumbnailURL(e.VideoRef),
		})
	}
	return items, untitled
}

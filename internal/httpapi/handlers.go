package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Atomars1/stroam-mvp/internal/hub"
	"github.com/Atomars1/stroam-mvp/internal/metadata"
	"github.com/Atomars1/stroam-mvp/internal/playback"
	"github.com/Atomars1/stroam-mvp/internal/room"
	"github.com/Atomars1/stroam-mvp/internal/types"
)

const maxCodeAttempts = 10

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// RoomResponse is the REST view of a room.
type RoomResponse struct {
	Room      string            `json:"room"`
	Playback  playback.State    `json:"playback"`
	Title     string            `json:"title"`
	Thumbnail string            `json:"thumbnail"`
	Queue     []types.QueueItem `json:"queue"`
	Watchers  int               `json:"watchers"`
}

func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rm *room.Room
		for attempt := 0; attempt < maxCodeAttempts && rm == nil; attempt++ {
			code, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			rm, err = h.Create(r.Context(), code)
			if errors.Is(err, hub.ErrRoomExists) {
				log.Debug("collision on code, regenerating", zap.String("code", code))
				continue
			}
			if err != nil {
				http.Error(w, "failed to create room", http.StatusInternalServerError)
				return
			}
		}
		if rm == nil {
			http.Error(w, "failed to create room", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			Room string `json:"room"`
		}{Room: rm.ID()})
	}
}

// GetRoom returns playback and queue with display titles. Rooms are opened
// on first use, so an unknown id yields a fresh room on the default video.
func GetRoom(h *hub.Hub, titles *metadata.Titles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := h.Snapshot(r.Context(), chi.URLParam(r, "room"))
		if err != nil {
			http.Error(w, "room unavailable", http.StatusServiceUnavailable)
			return
		}

		resp := RoomResponse{
			Room:      view.ID,
			Playback:  view.State,
			Title:     lookup(titles, view.State.VideoRef),
			Thumbnail: playback.ThumbnailURL(view.State.VideoRef),
			Queue:     make([]types.QueueItem, 0, len(view.Queue)),
			Watchers:  view.Watchers,
		}
		for _, e := range view.Queue {
			resp.Queue = append(resp.Queue, types.QueueItem{
				Entry:     e,
				Title:     lookup(titles, e.VideoRef),
				Thumbnail: playback.ThumbnailURL(e.VideoRef),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func lookup(titles *metadata.Titles, ref string) string {
	if titles == nil {
		return ref
	}
	t, _ := titles.Lookup(ref)
	return t
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atomars1/stroam-mvp/internal/hub"
	"github.com/Atomars1/stroam-mvp/internal/identity"
	"github.com/Atomars1/stroam-mvp/internal/metadata"
	"github.com/Atomars1/stroam-mvp/internal/playback"
	"github.com/Atomars1/stroam-mvp/internal/room"
	"github.com/Atomars1/stroam-mvp/internal/store"
)

type staticResolver map[string]string

func (s staticResolver) Title(_ context.Context, ref string) (string, error) {
	if t, ok := s[ref]; ok {
		return t, nil
	}
	return "", metadata.ErrNoTitle
}

func newRouter(t *testing.T, titles *metadata.Titles) (http.Handler, *hub.Hub) {
	t.Helper()
	h := hub.NewHub(context.Background(), room.Options{Store: store.NewMemoryStore()})
	t.Cleanup(h.Shutdown)
	return SetupRoutes(Deps{Hub: h, Titles: titles}), h
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Equal(t, strings.ToUpper(code), code)
}

func TestHealthz(t *testing.T) {
	router, _ := newRouter(t, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateRoom(t *testing.T) {
	router, h := newRouter(t, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rooms", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Room string `json:"room"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.Room, 6)

	rm, err := h.Get(context.Background(), body.Room)
	require.NoError(t, err)
	assert.NotNil(t, rm)
}

func TestGetRoom_IncludesTitlesAndQueue(t *testing.T) {
	lru, err := metadata.NewLRUCache(staticResolver{"bbbbbbbbbbb": "Queued Song"}, 16)
	require.NoError(t, err)
	titles := metadata.NewTitles(lru, nil, time.Second)
	router, h := newRouter(t, titles)
	ctx := context.Background()

	rm, err := h.Ensure(ctx, "ROOMX")
	require.NoError(t, err)
	_, err = rm.Enqueue(ctx, "bbbbbbbbbbb", 4, identity.Viewer{UID: "u", DisplayName: "Ash"})
	require.NoError(t, err)

	get := func() RoomResponse {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/ROOMX", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp RoomResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		return resp
	}

	first := get()
	assert.Equal(t, "ROOMX", first.Room)
	assert.Equal(t, playback.DefaultVideoRef, first.Playback.VideoRef)
	assert.Equal(t, playback.DefaultVideoRef, first.Title, "unresolved title falls back to the ref")
	require.Len(t, first.Queue, 1)
	assert.Equal(t, "Ash", first.Queue[0].AddedByName)
	assert.Equal(t, "https://img.youtube.com/vi/bbbbbbbbbbb/hqdefault.jpg", first.Queue[0].Thumbnail)

	assert.Eventually(t, func() bool {
		return get().Queue[0].Title == "Queued Song"
	}, time.Second, 10*time.Millisecond)
}

func TestMetricsEndpoint(t *testing.T) {
	router, h := newRouter(t, nil)
	_, err := h.Ensure(context.Background(), "M1")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "stroam_active_rooms 1")
}

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_HandlerExposesRoomCounters(t *testing.T) {
	m := New()
	m.ObserveWrite("publish", nil)
	m.ObserveWrite("publish", nil)
	m.ObserveWrite("enqueue", errors.New("store down"))
	m.ClientConnected()

	rec := httptest.NewRecorder()
	m.Handler(func() { m.SetActiveRooms(3) }).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `stroam_room_writes_total{op="publish"} 2`), body)
	assert.True(t, strings.Contains(body, `stroam_room_write_failures_total{op="enqueue"} 1`), body)
	assert.True(t, strings.Contains(body, "stroam_active_rooms 3"), body)
	assert.True(t, strings.Contains(body, "stroam_connected_clients 1"), body)
}

func TestRequestMiddleware_CountsErrors(t *testing.T) {
	m := New()
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	rec := httptest.NewRecorder()
	m.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "stroam_requests_total 1")
	assert.Contains(t, rec.Body.String(), "stroam_errors_total 1")
}

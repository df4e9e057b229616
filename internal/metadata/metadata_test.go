package metadata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingResolver struct {
	calls atomic.Int32
	title string
	err   error
}

func (c *countingResolver) Title(_ context.Context, _ string) (string, error) {
	c.calls.Add(1)
	return c.title, c.err
}

func TestNoEmbed_Title(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", r.URL.Query().Get("url"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Never Gonna Give You Up"}`))
	}))
	defer srv.Close()

	n := NewNoEmbed()
	n.BaseURL = srv.URL
	title, err := n.Title(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "Never Gonna Give You Up", title)
}

func TestNoEmbed_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"404 Not Found"}`))
	}))
	defer srv.Close()

	n := NewNoEmbed()
	n.BaseURL = srv.URL
	_, err := n.Title(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNoTitle)
}

func TestNoEmbed_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNoEmbed()
	n.BaseURL = srv.URL
	_, err := n.Title(context.Background(), "x")
	assert.Error(t, err)
}

func TestLRUCache(t *testing.T) {
	inner := &countingResolver{title: "T"}
	c, err := NewLRUCache(inner, 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		title, err := c.Title(context.Background(), "ref")
		require.NoError(t, err)
		assert.Equal(t, "T", title)
	}
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestLRUCache_ErrorsNotCached(t *testing.T) {
	inner := &countingResolver{err: errors.New("boom")}
	c, err := NewLRUCache(inner, 8)
	require.NoError(t, err)

	_, err = c.Title(context.Background(), "ref")
	assert.Error(t, err)
	_, err = c.Title(context.Background(), "ref")
	assert.Error(t, err)
	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("STROAM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STROAM_TEST_REDIS_ADDR not set")
	}
	client := NewRedisClient(addr, "")
	require.NotNil(t, client)
	defer client.Close()

	inner := &countingResolver{title: "Shared"}
	c := NewRedisCache(inner, client, time.Minute)
	ref := "redis-test-" + time.Now().Format("150405.000000")

	for i := 0; i < 2; i++ {
		title, err := c.Title(context.Background(), ref)
		require.NoError(t, err)
		assert.Equal(t, "Shared", title)
	}
	assert.EqualValues(t, 1, inner.calls.Load())
}

func newTitles(t *testing.T, inner Resolver, size int) *Titles {
	t.Helper()
	c, err := NewLRUCache(inner, size)
	require.NoError(t, err)
	return NewTitles(c, nil, time.Second)
}

func TestTitles_FallsBackThenResolves(t *testing.T) {
	inner := &countingResolver{title: "Resolved"}
	titles := newTitles(t, inner, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resolved := titles.Notify(ctx)

	title, ok := titles.Lookup("abc")
	assert.False(t, ok)
	assert.Equal(t, "abc", title)

	assert.Eventually(t, func() bool {
		title, ok := titles.Lookup("abc")
		return ok && title == "Resolved"
	}, time.Second, 5*time.Millisecond)

	select {
	case <-resolved:
	case <-time.After(time.Second):
		t.Fatal("no resolve notification")
	}

	for i := 0; i < 10; i++ {
		titles.Lookup("abc")
	}
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, inner.calls.Load())
	select {
	case <-resolved:
		t.Fatal("title resolved twice")
	default:
	}
}

type gatedResolver struct {
	calls   atomic.Int32
	release chan struct{}
}

func (g *gatedResolver) Title(ctx context.Context, ref string) (string, error) {
	g.calls.Add(1)
	select {
	case <-g.release:
		return "T:" + ref, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestTitles_OneResolutionPerRef(t *testing.T) {
	inner := &gatedResolver{release: make(chan struct{})}
	titles := newTitles(t, inner, 8)

	for i := 0; i < 20; i++ {
		title, ok := titles.Lookup("abc")
		assert.False(t, ok)
		assert.Equal(t, "abc", title)
	}
	assert.Eventually(t, func() bool { return inner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(inner.release)

	assert.Eventually(t, func() bool {
		_, ok := titles.Lookup("abc")
		return ok
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestTitles_BoundedByCacheSize(t *testing.T) {
	inner := &countingResolver{title: "T"}
	titles := newTitles(t, inner, 1)

	for _, ref := range []string{"a", "b"} {
		titles.Lookup(ref)
		assert.Eventually(t, func() bool {
			_, ok := titles.Lookup(ref)
			return ok
		}, time.Second, 5*time.Millisecond)
	}

	_, ok := titles.cache.Cached("a")
	assert.False(t, ok, "oldest title is evicted")
	assert.Equal(t, 1, titles.cache.cache.Len())
}

func TestTitles_NotifyReleasedWithContext(t *testing.T) {
	titles := newTitles(t, &countingResolver{title: "T"}, 8)
	ctx, cancel := context.WithCancel(context.Background())
	titles.Notify(ctx)
	cancel()

	assert.Eventually(t, func() bool {
		titles.mu.Lock()
		defer titles.mu.Unlock()
		return len(titles.watchers) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestTitles_FailureBacksOff(t *testing.T) {
	inner := &countingResolver{err: errors.New("offline")}
	titles := newTitles(t, inner, 8)

	title, ok := titles.Lookup("abc")
	assert.False(t, ok)
	assert.Equal(t, "abc", title)

	assert.Eventually(t, func() bool {
		titles.mu.Lock()
		defer titles.mu.Unlock()
		_, failed := titles.failedAt["abc"]
		_, busy := titles.inflight["abc"]
		return failed && !busy
	}, time.Second, 5*time.Millisecond)

	calls := inner.calls.Load()
	for i := 0; i < 5; i++ {
		title, ok = titles.Lookup("abc")
		assert.False(t, ok)
		assert.Equal(t, "abc", title)
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, inner.calls.Load(), "failed refs are not retried before the backoff")
}

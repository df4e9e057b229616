package metadata

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Titles resolves titles in the background. Lookup never blocks: it returns
// the known title, or the raw reference while a resolution runs. Resolved
// titles live in the LRU, so its size bounds memory.
type Titles struct {
	cache      *LRUCache
	log        *zap.Logger
	timeout    time.Duration
	retryAfter time.Duration
	group      singleflight.Group

	mu       sync.Mutex
	inflight map[string]struct{}
	failedAt map[string]time.Time
	watchers map[chan struct{}]struct{}
	now      func() time.Time
}

func NewTitles(cache *LRUCache, log *zap.Logger, timeout time.Duration) *Titles {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Titles{
		cache:      cache,
		log:        log,
		timeout:    timeout,
		retryAfter: time.Minute,
		inflight:   make(map[string]struct{}),
		failedAt:   make(map[string]time.Time),
		watchers:   make(map[chan struct{}]struct{}),
		now:        time.Now,
	}
}

// Notify returns a channel that is signalled after any title resolves.
// Signals coalesce. The channel is released when ctx ends.
func (t *Titles) Notify(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	t.mu.Lock()
	t.watchers[ch] = struct{}{}
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.mu.Lock()
		delete(t.watchers, ch)
		t.mu.Unlock()
	}()
	return ch
}

// Lookup returns the title for ref and whether it is resolved. Unresolved
// refs display as themselves.
func (t *Titles) Lookup(ref string) (string, bool) {
	if title, ok := t.cache.Cached(ref); ok {
		return title, true
	}

	t.mu.Lock()
	_, busy := t.inflight[ref]
	failed, hasFailed := t.failedAt[ref]
	start := !busy && (!hasFailed || t.now().Sub(failed) >= t.retryAfter)
	if start {
		t.inflight[ref] = struct{}{}
	}
	t.mu.Unlock()

	if start {
		go t.resolve(ref)
	}
	return ref, false
}

func (t *Titles) resolve(ref string) {
	defer func() {
		t.mu.Lock()
		delete(t.inflight, ref)
		t.mu.Unlock()
	}()

	_, _, _ = t.group.Do(ref, func() (any, error) {
		if title, ok := t.cache.Cached(ref); ok {
			return title, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()

		title, err := t.cache.Title(ctx, ref)
		t.mu.Lock()
		defer t.mu.Unlock()
		if err != nil {
			t.forgetFailures()
			t.failedAt[ref] = t.now()
			t.log.Debug("title lookup failed", zap.String("ref", ref), zap.Error(err))
			return nil, err
		}
		delete(t.failedAt, ref)
		for ch := range t.watchers {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
		return title, nil
	})
}

// forgetFailures drops failures whose backoff has passed. Called with mu held.
func (t *Titles) forgetFailures() {
	now := t.now()
	for ref, at := range t.failedAt {
		if now.Sub(at) >= t.retryAfter {
			delete(t.failedAt, ref)
		}
	}
}

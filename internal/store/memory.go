package store

import (
	"context"
	"sync"

	"github.com/Atomars1/stroam-mvp/internal/playback"
)

type memoryRoom struct {
	state   playback.State
	entries map[string]playback.Entry
}

// MemoryStore keeps everything in process. It is the default backend when no
// database is configured and the backend used by tests.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*memoryRoom
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*memoryRoom)}
}

func (s *MemoryStore) LoadRoom(_ context.Context, roomID string) (playback.State, []playback.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return playback.State{}, nil, false, nil
	}
	entries := make([]playback.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	playback.SortEntries(entries)
	return r.state, entries, true, nil
}

func (s *MemoryStore) SavePlayback(_ context.Context, roomID string, st playback.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roomLocked(roomID).state = st
	return nil
}

func (s *MemoryStore) CreateEntry(_ context.Context, roomID string, e playback.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roomLocked(roomID).entries[e.ID] = e
	return nil
}

func (s *MemoryStore) DeleteEntry(_ context.Context, roomID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.rooms[roomID]; ok {
		delete(r.entries, id)
	}
	return nil
}

func (s *MemoryStore) UpdateOrderKey(_ context.Context, roomID, id string, key int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	e, ok := r.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.OrderKey = key
	r.entries[id] = e
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// roomLocked returns the room record, creating it if needed.
// Caller must hold s.mu in write mode.
func (s *MemoryStore) roomLocked(roomID string) *memoryRoom {
	r, ok := s.rooms[roomID]
	if !ok {
		r = &memoryRoom{entries: make(map[string]playback.Entry)}
		s.rooms[roomID] = r
	}
	return r
}

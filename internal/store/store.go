// Package store persists room playback records and queue entries. It is the
// document store behind the room actors: one last-write-wins playback record
// per room and an ordered collection of queue entries.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/Atomars1/stroam-mvp/internal/playback"
)

var ErrNotFound = errors.New("entry not found")

// Store is the persistence contract used by a room. Each method is a single
// independent write; nothing spans more than one record.
type Store interface {
	// LoadRoom returns the persisted playback state and queue of a room. The
	// bool is false when the room has never been saved.
	LoadRoom(ctx context.Context, roomID string) (playback.State, []playback.Entry, bool, error)

	// SavePlayback overwrites the playback record of a room.
	SavePlayback(ctx context.Context, roomID string, st playback.State) error

	CreateEntry(ctx context.Context, roomID string, e playback.Entry) error

	// DeleteEntry removes an entry. Deleting an unknown id is not an error.
	DeleteEntry(ctx context.Context, roomID, id string) error

	// UpdateOrderKey rewrites the order key of one entry and returns
	// ErrNotFound when the entry does not exist.
	UpdateOrderKey(ctx context.Context, roomID, id string, key int64) error

	Close() error
}

// Open picks a backend from dsn: empty keeps rooms in memory, a "sqlite:"
// prefix names a SQLite file and anything else is a PostgreSQL DSN.
func Open(dsn string) (Store, error) {
	switch {
	case dsn == "":
		return NewMemoryStore(), nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return OpenSQLite(strings.TrimPrefix(dsn, "sqlite:"))
	default:
		return OpenPostgres(dsn)
	}
}

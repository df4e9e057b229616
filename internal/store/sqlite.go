package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Atomars1/stroam-mvp/internal/playback"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS room_playback (
	room_id          TEXT PRIMARY KEY,
	video_ref        TEXT NOT NULL,
	is_playing       INTEGER NOT NULL,
	position_seconds REAL NOT NULL,
	updated_at       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS room_queue_entries (
	id            TEXT PRIMARY KEY,
	room_id       TEXT NOT NULL,
	video_ref     TEXT NOT NULL,
	position_hint REAL NOT NULL,
	order_key     INTEGER NOT NULL,
	seq           INTEGER NOT NULL,
	added_by      TEXT NOT NULL DEFAULT '',
	added_by_name TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queue_room_order ON room_queue_entries (room_id, order_key, seq);
`

// SQLiteStore keeps rooms in a single SQLite file. Times are stored as Unix
// milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) LoadRoom(ctx context.Context, roomID string) (playback.State, []playback.Entry, bool, error) {
	var (
		st        playback.State
		playing   int
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT video_ref, is_playing, position_seconds, updated_at FROM room_playback WHERE room_id = ?`,
		roomID,
	).Scan(&st.VideoRef, &playing, &st.PositionSeconds, &updatedAt)
	if err == sql.ErrNoRows {
		return playback.State{}, nil, false, nil
	}
	if err != nil {
		return playback.State{}, nil, false, err
	}
	st.IsPlaying = playing != 0
	st.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, video_ref, position_hint, order_key, seq, added_by, added_by_name, created_at
		 FROM room_queue_entries WHERE room_id = ? ORDER BY order_key, seq`,
		roomID,
	)
	if err != nil {
		return playback.State{}, nil, false, err
	}
	defer rows.Close()

	var entries []playback.Entry
	for rows.Next() {
		var (
			e       playback.Entry
			created int64
		)
		if err := rows.Scan(&e.ID, &e.VideoRef, &e.PositionHint, &e.OrderKey, &e.Seq,
			&e.AddedBy, &e.AddedByName, &created); err != nil {
			return playback.State{}, nil, false, err
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		entries = append(entries, e)
	}
	return st, entries, true, rows.Err()
}

func (s *SQLiteStore) SavePlayback(ctx context.Context, roomID string, st playback.State) error {
	playing := 0
	if st.IsPlaying {
		playing = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO room_playback (room_id, video_ref, is_playing, position_seconds, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(room_id) DO UPDATE SET
		   video_ref = excluded.video_ref,
		   is_playing = excluded.is_playing,
		   position_seconds = excluded.position_seconds,
		   updated_at = excluded.updated_at`,
		roomID, st.VideoRef, playing, st.PositionSeconds, st.UpdatedAt.UnixMilli(),
	)
	return err
}

func (s *SQLiteStore) CreateEntry(ctx context.Context, roomID string, e playback.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO room_queue_entries
		 (id, room_id, video_ref, position_hint, order_key, seq, added_by, added_by_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, roomID, e.VideoRef, e.PositionHint, e.OrderKey, e.Seq, e.AddedBy, e.AddedByName, e.CreatedAt.UnixMilli(),
	)
	return err
}

func (s *SQLiteStore) DeleteEntry(ctx context.Context, roomID, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM room_queue_entries WHERE room_id = ? AND id = ?`, roomID, id)
	return err
}

func (s *SQLiteStore) UpdateOrderKey(ctx context.Context, roomID, id string, key int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE room_queue_entries SET order_key = ? WHERE room_id = ? AND id = ?`, key, roomID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

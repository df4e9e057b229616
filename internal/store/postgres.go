package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Atomars1/stroam-mvp/internal/playback"
)

type playbackRecord struct {
	RoomID          string    `gorm:"column:room_id;size:64;primaryKey"`
	VideoRef        string    `gorm:"column:video_ref;size:64;not null"`
	IsPlaying       bool      `gorm:"column:is_playing;not null"`
	PositionSeconds float64   `gorm:"column:position_seconds;not null"`
	UpdatedAt       time.Time `gorm:"column:updated_at;not null"`
}

func (playbackRecord) TableName() string { return "room_playback" }

type entryRecord struct {
	ID           string    `gorm:"column:id;size:64;primaryKey"`
	RoomID       string    `gorm:"column:room_id;size:64;not null;index:idx_queue_room_order,priority:1"`
	VideoRef     string    `gorm:"column:video_ref;size:64;not null"`
	PositionHint float64   `gorm:"column:position_hint;not null"`
	OrderKey     int64     `gorm:"column:order_key;not null;index:idx_queue_room_order,priority:2"`
	Seq          int64     `gorm:"column:seq;not null"`
	AddedBy      string    `gorm:"column:added_by;size:128"`
	AddedByName  string    `gorm:"column:added_by_name;size:128"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

func (entryRecord) TableName() string { return "room_queue_entries" }

// PostgresStore persists rooms through gorm on PostgreSQL.
type PostgresStore struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and migrates the room tables.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&playbackRecord{}, &entryRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) LoadRoom(ctx context.Context, roomID string) (playback.State, []playback.Entry, bool, error) {
	var rec playbackRecord
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return playback.State{}, nil, false, nil
	}
	if err != nil {
		return playback.State{}, nil, false, err
	}

	var rows []entryRecord
	if err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("order_key ASC, seq ASC").
		Find(&rows).Error; err != nil {
		return playback.State{}, nil, false, err
	}

	st := playback.State{
		VideoRef:        rec.VideoRef,
		IsPlaying:       rec.IsPlaying,
		PositionSeconds: rec.PositionSeconds,
		UpdatedAt:       rec.UpdatedAt,
	}
	entries := make([]playback.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, playback.Entry{
			ID:           r.ID,
			VideoRef:     r.VideoRef,
			PositionHint: r.PositionHint,
			OrderKey:     r.OrderKey,
			Seq:          r.Seq,
			AddedBy:      r.AddedBy,
			AddedByName:  r.AddedByName,
			CreatedAt:    r.CreatedAt,
		})
	}
	return st, entries, true, nil
}

func (s *PostgresStore) SavePlayback(ctx context.Context, roomID string, st playback.State) error {
	rec := playbackRecord{
		RoomID:          roomID,
		VideoRef:        st.VideoRef,
		IsPlaying:       st.IsPlaying,
		PositionSeconds: st.PositionSeconds,
		UpdatedAt:       st.UpdatedAt,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

func (s *PostgresStore) CreateEntry(ctx context.Context, roomID string, e playback.Entry) error {
	rec := entryRecord{
		ID:           e.ID,
		RoomID:       roomID,
		VideoRef:     e.VideoRef,
		PositionHint: e.PositionHint,
		OrderKey:     e.OrderKey,
		Seq:          e.Seq,
		AddedBy:      e.AddedBy,
		AddedByName:  e.AddedByName,
		CreatedAt:    e.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *PostgresStore) DeleteEntry(ctx context.Context, roomID, id string) error {
	return s.db.WithContext(ctx).
		Where("room_id = ? AND id = ?", roomID, id).
		Delete(&entryRecord{}).Error
}

func (s *PostgresStore) UpdateOrderKey(ctx context.Context, roomID, id string, key int64) error {
	res := s.db.WithContext(ctx).
		Model(&entryRecord{}).
		Where("room_id = ? AND id = ?", roomID, id).
		Update("order_key", key)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

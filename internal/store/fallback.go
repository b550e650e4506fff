package store

import (
	"context"
	"database/sql"
	"time"
)

// FallbackEntry is the locally persisted state of one device, written when
// the remote mirror could not be updated.
type FallbackEntry struct {
	DeviceID  int   `json:"device_id"`
	Status    bool  `json:"status"`
	Timestamp int64 `json:"timestamp"` // unix milliseconds
}

// FallbackRepository stores the latest fallback state per device.
type FallbackRepository struct {
	db *sql.DB
}

// Fallback returns the fallback repository for this store.
func (s *Store) Fallback() *FallbackRepository {
	return &FallbackRepository{db: s.db}
}

// Save records the state of a device, replacing any earlier entry.
func (r *FallbackRepository) Save(ctx context.Context, e FallbackEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_fallback (device_id, status, timestamp_ms)
		 VALUES (?, ?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET status = excluded.status, timestamp_ms = excluded.timestamp_ms`,
		e.DeviceID, e.Status, e.Timestamp,
	)
	return err
}

// List returns every fallback entry ordered by device ID.
func (r *FallbackRepository) List(ctx context.Context) ([]FallbackEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT device_id, status, timestamp_ms FROM device_fallback ORDER BY device_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []FallbackEntry
	for rows.Next() {
		var e FallbackEntry
		if err := rows.Scan(&e.DeviceID, &e.Status, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// SaveFallback implements device.FallbackStore.
func (s *Store) SaveFallback(ctx context.Context, id int, on bool, at time.Time) error {
	return s.Fallback().Save(ctx, FallbackEntry{DeviceID: id, Status: on, Timestamp: at.UnixMilli()})
}

// LoadFallback implements device.FallbackStore.
func (s *Store) LoadFallback(ctx context.Context) (map[int]bool, error) {
	entries, err := s.Fallback().List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int]bool, len(entries))
	for _, e := range entries {
		out[e.DeviceID] = e.Status
	}
	return out, nil
}

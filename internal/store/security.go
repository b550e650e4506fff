package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/landmark"
)

// EventKindIntruder marks a confirmed unauthorized face.
const EventKindIntruder = "intruder"

// SecurityEvent is a confirmed security alert.
type SecurityEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Faces     int       `json:"faces"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// SecurityEventRepository stores security events.
type SecurityEventRepository struct {
	db *sql.DB
}

// SecurityEvents returns the security event repository for this store.
func (s *Store) SecurityEvents() *SecurityEventRepository {
	return &SecurityEventRepository{db: s.db}
}

// Create inserts an event, assigning an ID and timestamp when unset.
func (r *SecurityEventRepository) Create(ctx context.Context, ev *SecurityEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if ev.Kind == "" {
		ev.Kind = EventKindIntruder
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO security_events (id, kind, faces, message, created_at_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.Kind, ev.Faces, ev.Message, ev.CreatedAt.UnixMilli(),
	)
	return err
}

// List returns the most recent events first. A limit of zero or less
// returns every event.
func (r *SecurityEventRepository) List(ctx context.Context, limit int) ([]*SecurityEvent, error) {
	query := `SELECT id, kind, faces, message, created_at_ms FROM security_events
		ORDER BY created_at_ms DESC, rowid DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*SecurityEvent
	for rows.Next() {
		ev := &SecurityEvent{}
		var ms int64
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Faces, &ev.Message, &ms); err != nil {
			return nil, err
		}
		ev.CreatedAt = time.UnixMilli(ms)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Clear deletes every event and returns how many were removed.
func (r *SecurityEventRepository) Clear(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM security_events`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// AuthorizedFace is a reference face allowed past the intruder monitor.
type AuthorizedFace struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Face      landmark.Face `json:"face"`
	CreatedAt time.Time     `json:"created_at"`
}

// FaceRepository stores authorized faces.
type FaceRepository struct {
	db *sql.DB
}

// Faces returns the authorized face repository for this store.
func (s *Store) Faces() *FaceRepository {
	return &FaceRepository{db: s.db}
}

// Create inserts a face, assigning an ID and timestamp when unset.
func (r *FaceRepository) Create(ctx context.Context, f *AuthorizedFace) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}

	descriptor, err := json.Marshal(f.Face)
	if err != nil {
		return fmt.Errorf("failed to encode face descriptor: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO authorized_faces (id, name, descriptor, created_at_ms) VALUES (?, ?, ?, ?)`,
		f.ID, f.Name, string(descriptor), f.CreatedAt.UnixMilli(),
	)
	return err
}

// Get retrieves a face by ID.
func (r *FaceRepository) Get(ctx context.Context, id string) (*AuthorizedFace, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, descriptor, created_at_ms FROM authorized_faces WHERE id = ?`, id,
	)
	f, err := scanFace(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// List returns every authorized face, oldest first.
func (r *FaceRepository) List(ctx context.Context) ([]*AuthorizedFace, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, descriptor, created_at_ms FROM authorized_faces ORDER BY created_at_ms, rowid`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var faces []*AuthorizedFace
	for rows.Next() {
		f, err := scanFace(rows)
		if err != nil {
			return nil, err
		}
		faces = append(faces, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return faces, nil
}

// Delete removes a face by ID.
func (r *FaceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM authorized_faces WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFace(row rowScanner) (*AuthorizedFace, error) {
	f := &AuthorizedFace{}
	var descriptor string
	var ms int64
	if err := row.Scan(&f.ID, &f.Name, &descriptor, &ms); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(descriptor), &f.Face); err != nil {
		return nil, fmt.Errorf("failed to decode face %s: %w", f.ID, err)
	}
	f.CreatedAt = time.UnixMilli(ms)
	return f, nil
}

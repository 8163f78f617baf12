package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Session is one recognition session as recorded in the database.
type Session struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Target     string     `json:"target,omitempty"`
	WindowSize int        `json:"window_size"`
	Frames     int64      `json:"frames"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// DefaultListLimit caps list queries when the caller passes a non-positive limit.
const DefaultListLimit = 100

// SessionRepository provides operations on the sessions table.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new session. A zero StartedAt is set to now.
func (r *SessionRepository) Create(ctx context.Context, sess *Session) error {
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, source, target, window_size, frames, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Source, sess.Target, sess.WindowSize, sess.Frames, sess.StartedAt,
	)
	return err
}

// End marks a session as finished and records its final frame count.
func (r *SessionRepository) End(ctx context.Context, id string, frames int64, endedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET frames = ?, ended_at = ? WHERE id = ?`,
		frames, endedAt, id,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, source, target, window_size, frames, started_at, ended_at
		 FROM sessions WHERE id = ?`,
		id,
	)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List retrieves the most recent sessions, newest first.
func (r *SessionRepository) List(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, source, target, window_size, frames, started_at, ended_at
		 FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	sess := &Session{}
	var ended sql.NullTime

	if err := row.Scan(&sess.ID, &sess.Source, &sess.Target, &sess.WindowSize, &sess.Frames, &sess.StartedAt, &ended); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	return sess, nil
}

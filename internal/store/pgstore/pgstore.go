// Package pgstore is the PostgreSQL implementation of store.Backend.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/ayusman/signlearn/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store manages interaction with PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Backend = (*Store)(nil)

// New connects to url, verifies the connection and applies pending migrations.
func New(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess *store.Session) error {
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, source, target, window_size, frames, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.Source, sess.Target, sess.WindowSize, sess.Frames, sess.StartedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) EndSession(ctx context.Context, id string, frames int64, endedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET frames = $1, ended_at = $2 WHERE id = $3`,
		frames, endedAt, id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source, target, window_size, frames, started_at, ended_at
		 FROM sessions WHERE id = $1`, id)

	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]*store.Session, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, source, target, window_size, frames, started_at, ended_at
		 FROM sessions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*store.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (*store.Session, error) {
	sess := &store.Session{}
	err := row.Scan(&sess.ID, &sess.Source, &sess.Target, &sess.WindowSize, &sess.Frames, &sess.StartedAt, &sess.EndedAt)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) RecordPrediction(ctx context.Context, p *store.Prediction) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.Outcome == "" {
		p.Outcome = store.OutcomeOther
	}
	labels := p.Labels
	if labels == nil {
		labels = []string{}
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO predictions (session_id, sequence, label, labels, confidence, outcome, detail, matched, latency_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		p.SessionID, p.Sequence, p.Label, labels, p.Confidence, string(p.Outcome),
		p.Detail, p.Matched, p.Latency.Milliseconds(), p.CreatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

func (s *Store) ListPredictions(ctx context.Context, sessionID string, limit int) ([]*store.Prediction, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, sequence, label, labels, confidence, outcome, detail, matched, latency_ms, created_at
		 FROM predictions WHERE session_id = $1 ORDER BY sequence ASC, id ASC LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	var predictions []*store.Prediction
	for rows.Next() {
		p := &store.Prediction{}
		var (
			outcome   string
			latencyMS int64
		)
		err := rows.Scan(&p.ID, &p.SessionID, &p.Sequence, &p.Label, &p.Labels, &p.Confidence,
			&outcome, &p.Detail, &p.Matched, &latencyMS, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		p.Outcome = store.Outcome(outcome)
		p.Latency = time.Duration(latencyMS) * time.Millisecond
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

func (s *Store) Summary(ctx context.Context) (*store.Summary, error) {
	sum := &store.Summary{ByOutcome: make(map[store.Outcome]int64)}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&sum.Sessions); err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT outcome, COUNT(*), COUNT(*) FILTER (WHERE matched) FROM predictions GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("summarize predictions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			outcome string
			count   int64
			matched int64
		)
		if err := rows.Scan(&outcome, &count, &matched); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.ByOutcome[store.Outcome(outcome)] = count
		sum.Predictions += count
		sum.Matched += matched
	}
	return sum, rows.Err()
}

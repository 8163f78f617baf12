// Package store persists sessions and prediction outcomes for the signlearn service.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Backend is implemented by every storage engine (SQLite here, PostgreSQL in pgstore).
type Backend interface {
	CreateSession(ctx context.Context, s *Session) error
	EndSession(ctx context.Context, id string, frames int64, endedAt time.Time) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, limit int) ([]*Session, error)
	RecordPrediction(ctx context.Context, p *Prediction) error
	ListPredictions(ctx context.Context, sessionID string, limit int) ([]*Prediction, error)
	Summary(ctx context.Context) (*Summary, error)
	Close() error
}

// Store represents a SQLite database connection.
type Store struct {
	db   *sql.DB
	path string
}

var _ Backend = (*Store)(nil)

// New creates a new Store with the given database path.
// It opens the database connection, enables foreign keys, and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one writer keeps SQLite from returning SQLITE_BUSY under concurrent sessions
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	return s.Sessions().Create(ctx, sess)
}

func (s *Store) EndSession(ctx context.Context, id string, frames int64, endedAt time.Time) error {
	return s.Sessions().End(ctx, id, frames, endedAt)
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	return s.Sessions().GetByID(ctx, id)
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	return s.Sessions().List(ctx, limit)
}

func (s *Store) RecordPrediction(ctx context.Context, p *Prediction) error {
	return s.Predictions().Create(ctx, p)
}

func (s *Store) ListPredictions(ctx context.Context, sessionID string, limit int) ([]*Prediction, error) {
	return s.Predictions().ListBySession(ctx, sessionID, limit)
}

func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	return s.Predictions().Summary(ctx)
}

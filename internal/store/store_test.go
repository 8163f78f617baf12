package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	// Verify the database file doesn't exist yet
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatal("database file should not exist before creating store")
	}

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file should exist after creating store")
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", s.Path(), dbPath)
	}
}

func TestNewStore_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"sessions", "predictions"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q should exist after migrations: %v", table, err)
		}
	}

	for _, idx := range []string{"idx_predictions_session_id", "idx_sessions_started_at"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?",
			idx,
		).Scan(&name)
		if err != nil {
			t.Errorf("index %q should exist after migrations: %v", idx, err)
		}
	}
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := s.CreateSession(ctx, &Session{ID: "s1", Source: "browser", WindowSize: 30}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer s.Close()

	if _, err := s.GetSession(ctx, "s1"); err != nil {
		t.Errorf("session should survive reopen: %v", err)
	}
}

func TestStore_Close(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("close should not return error: %v", err)
	}

	// After closing, DB operations should fail
	if _, err := s.DB().Exec("SELECT 1"); err == nil {
		t.Error("DB operations should fail after close")
	}
}

func TestStore_ForeignKeysEnabled(t *testing.T) {
	s := newTestStore(t)

	var fkEnabled int
	if err := s.DB().QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Fatalf("failed to check foreign keys pragma: %v", err)
	}
	if fkEnabled != 1 {
		t.Error("foreign keys should be enabled")
	}

	err := s.RecordPrediction(context.Background(), &Prediction{SessionID: "missing", Outcome: OutcomeOK})
	if err == nil {
		t.Error("prediction for unknown session should violate the foreign key")
	}
}

func TestSessions_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	sess := &Session{ID: "abc", Source: "camera", Target: "hello", WindowSize: 30, StartedAt: started}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession(ctx, "abc")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Source != "camera" || got.Target != "hello" || got.WindowSize != 30 {
		t.Errorf("GetSession = %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.EndedAt != nil {
		t.Error("new session should not have EndedAt")
	}

	ended := started.Add(time.Minute)
	if err := s.EndSession(ctx, "abc", 120, ended); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	got, err = s.GetSession(ctx, "abc")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Frames != 120 {
		t.Errorf("Frames = %d, want 120", got.Frames)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(ended) {
		t.Errorf("EndedAt = %v, want %v", got.EndedAt, ended)
	}
}

func TestSessions_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSession(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession error = %v, want ErrNotFound", err)
	}
	if err := s.EndSession(ctx, "nope", 1, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("EndSession error = %v, want ErrNotFound", err)
	}
}

func TestSessions_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"first", "second", "third"} {
		sess := &Session{ID: id, Source: "replay", WindowSize: 30, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession(%s): %v", id, err)
		}
	}

	list, err := s.ListSessions(ctx, 0)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("ListSessions returned %d sessions, want 3", len(list))
	}
	if list[0].ID != "third" || list[2].ID != "first" {
		t.Errorf("order = %s, %s, %s", list[0].ID, list[1].ID, list[2].ID)
	}

	list, err = s.ListSessions(ctx, 2)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("limit 2 returned %d sessions", len(list))
	}
}

func TestPredictions_RecordAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, &Session{ID: "s1", Source: "browser", WindowSize: 30}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	conf := 0.93
	preds := []*Prediction{
		{SessionID: "s1", Sequence: 2, Outcome: OutcomeTransport, Label: "error", Detail: "connection refused"},
		{SessionID: "s1", Sequence: 1, Outcome: OutcomeOK, Label: "hello", Labels: []string{"hello", "thanks"},
			Confidence: &conf, Matched: true, Latency: 42 * time.Millisecond},
	}
	for _, p := range preds {
		if err := s.RecordPrediction(ctx, p); err != nil {
			t.Fatalf("RecordPrediction: %v", err)
		}
		if p.ID == 0 {
			t.Error("RecordPrediction should set ID")
		}
	}

	list, err := s.ListPredictions(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("ListPredictions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListPredictions returned %d, want 2", len(list))
	}

	ok := list[0]
	if ok.Sequence != 1 || ok.Label != "hello" || ok.Outcome != OutcomeOK || !ok.Matched {
		t.Errorf("first prediction = %+v", ok)
	}
	if len(ok.Labels) != 2 || ok.Labels[1] != "thanks" {
		t.Errorf("Labels = %v", ok.Labels)
	}
	if ok.Confidence == nil || *ok.Confidence != conf {
		t.Errorf("Confidence = %v, want %v", ok.Confidence, conf)
	}
	if ok.Latency != 42*time.Millisecond {
		t.Errorf("Latency = %v", ok.Latency)
	}

	failed := list[1]
	if failed.Outcome != OutcomeTransport || failed.Confidence != nil || failed.Matched {
		t.Errorf("second prediction = %+v", failed)
	}
	if len(failed.Labels) != 0 {
		t.Errorf("failed prediction Labels = %v, want empty", failed.Labels)
	}

	other, err := s.ListPredictions(ctx, "unknown", 0)
	if err != nil {
		t.Fatalf("ListPredictions: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("unknown session returned %d predictions", len(other))
	}
}

func TestPredictions_Summary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := s.CreateSession(ctx, &Session{ID: id, Source: "browser", WindowSize: 30}); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	outcomes := []struct {
		session string
		outcome Outcome
		matched bool
	}{
		{"a", OutcomeOK, true},
		{"a", OutcomeOK, false},
		{"a", OutcomeRejected, false},
		{"b", OutcomeMalformed, false},
		{"b", OutcomeOK, true},
	}
	for i, o := range outcomes {
		p := &Prediction{SessionID: o.session, Sequence: int64(i + 1), Outcome: o.outcome, Matched: o.matched}
		if err := s.RecordPrediction(ctx, p); err != nil {
			t.Fatalf("RecordPrediction: %v", err)
		}
	}

	sum, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Sessions != 2 || sum.Predictions != 5 || sum.Matched != 2 {
		t.Errorf("Summary = %+v", sum)
	}
	if sum.ByOutcome[OutcomeOK] != 3 || sum.ByOutcome[OutcomeRejected] != 1 || sum.ByOutcome[OutcomeMalformed] != 1 {
		t.Errorf("ByOutcome = %v", sum.ByOutcome)
	}
	if _, ok := sum.ByOutcome[OutcomeTransport]; ok {
		t.Error("ByOutcome should omit outcomes with no rows")
	}
}

func TestPredictions_CascadeOnSessionDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, &Session{ID: "s1", Source: "browser", WindowSize: 30}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.RecordPrediction(ctx, &Prediction{SessionID: "s1", Sequence: 1, Outcome: OutcomeOK}); err != nil {
		t.Fatalf("RecordPrediction: %v", err)
	}

	if _, err := s.DB().Exec("DELETE FROM sessions WHERE id = ?", "s1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	var count int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM predictions").Scan(&count); err != nil {
		t.Fatalf("count predictions: %v", err)
	}
	if count != 0 {
		t.Errorf("predictions remaining = %d, want 0", count)
	}
}

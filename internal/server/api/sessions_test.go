package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/signlearn/internal/pipeline"
	"github.com/ayusman/signlearn/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"older", "newer"} {
		sess := &store.Session{ID: id, Source: "browser", Target: "hello", WindowSize: 30, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}
	for i, outcome := range []store.Outcome{store.OutcomeOK, store.OutcomeTransport} {
		p := &store.Prediction{SessionID: "newer", Sequence: int64(i + 1), Label: "hello", Outcome: outcome}
		if err := s.RecordPrediction(ctx, p); err != nil {
			t.Fatalf("RecordPrediction: %v", err)
		}
	}
	return s
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSessionsHandler_List(t *testing.T) {
	h := NewSessionsHandler(setupTestStore(t))

	rec := serve(h, http.MethodGet, "/api/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp listSessionsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Sessions) != 2 || resp.Sessions[0].ID != "newer" {
		t.Errorf("sessions = %+v", resp.Sessions)
	}

	rec = serve(h, http.MethodGet, "/api/sessions?limit=1")
	resp = listSessionsResponse{}
	json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Sessions) != 1 {
		t.Errorf("limit=1 returned %d sessions", len(resp.Sessions))
	}

	if rec := serve(h, http.MethodGet, "/api/sessions?limit=x"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestSessionsHandler_Empty(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "empty.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	rec := serve(NewSessionsHandler(s), http.MethodGet, "/api/sessions")
	if body := rec.Body.String(); body != "{\"sessions\":[]}\n" {
		t.Errorf("body = %q", body)
	}
}

func TestSessionsHandler_Get(t *testing.T) {
	h := NewSessionsHandler(setupTestStore(t))

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"existing session", http.MethodGet, "/api/sessions/newer", http.StatusOK},
		{"trailing slash", http.MethodGet, "/api/sessions/newer/", http.StatusOK},
		{"missing session", http.MethodGet, "/api/sessions/nope", http.StatusNotFound},
		{"predictions", http.MethodGet, "/api/sessions/newer/predictions", http.StatusOK},
		{"predictions of missing session", http.MethodGet, "/api/sessions/nope/predictions", http.StatusNotFound},
		{"unknown sub-resource", http.MethodGet, "/api/sessions/newer/frames", http.StatusNotFound},
		{"write method", http.MethodDelete, "/api/sessions/newer", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := serve(h, tt.method, tt.path); rec.Code != tt.want {
				t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
			}
		})
	}
}

func TestSessionsHandler_Predictions(t *testing.T) {
	h := NewSessionsHandler(setupTestStore(t))

	rec := serve(h, http.MethodGet, "/api/sessions/newer/predictions")
	var resp listPredictionsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != "newer" || len(resp.Predictions) != 2 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Predictions[0].Outcome != store.OutcomeOK || resp.Predictions[1].Outcome != store.OutcomeTransport {
		t.Errorf("outcomes = %s, %s", resp.Predictions[0].Outcome, resp.Predictions[1].Outcome)
	}

	rec = serve(h, http.MethodGet, "/api/sessions/older/predictions")
	if body := rec.Body.String(); body != "{\"session_id\":\"older\",\"predictions\":[]}\n" {
		t.Errorf("body = %q", body)
	}
}

func TestStatsHandler(t *testing.T) {
	s := setupTestStore(t)
	h := NewStatsHandler(pipeline.NewRegistry(), s)

	rec := serve(h, http.MethodGet, "/api/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp statsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stored == nil || resp.Stored.Sessions != 2 || resp.Stored.Predictions != 2 {
		t.Errorf("stored = %+v", resp.Stored)
	}
	if resp.Live.Active != 0 {
		t.Errorf("live = %+v", resp.Live)
	}

	if rec := serve(h, http.MethodPost, "/api/stats"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", rec.Code)
	}
}

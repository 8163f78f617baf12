package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Outcome classifies a stored prediction.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeTransport Outcome = "transport"
	OutcomeRejected  Outcome = "rejected"
	OutcomeMalformed Outcome = "malformed"
	OutcomeOther     Outcome = "other"
)

// Prediction is the stored result of one submitted window.
type Prediction struct {
	ID         int64         `json:"id"`
	SessionID  string        `json:"session_id"`
	Sequence   int64         `json:"sequence"`
	Label      string        `json:"label"`
	Labels     []string      `json:"labels,omitempty"`
	Confidence *float64      `json:"confidence,omitempty"`
	Outcome    Outcome       `json:"outcome"`
	Detail     string        `json:"detail,omitempty"`
	Matched    bool          `json:"matched"`
	Latency    time.Duration `json:"latency_ns"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Summary aggregates the prediction log.
type Summary struct {
	Sessions    int64             `json:"sessions"`
	Predictions int64             `json:"predictions"`
	Matched     int64             `json:"matched"`
	ByOutcome   map[Outcome]int64 `json:"by_outcome"`
}

// PredictionRepository provides operations on the predictions table.
type PredictionRepository struct {
	db *sql.DB
}

// Predictions returns the prediction repository for this store.
func (s *Store) Predictions() *PredictionRepository {
	return &PredictionRepository{db: s.db}
}

// Create appends a prediction and sets its ID. A zero CreatedAt is set to now.
func (r *PredictionRepository) Create(ctx context.Context, p *Prediction) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.Outcome == "" {
		p.Outcome = OutcomeOther
	}

	labels, err := json.Marshal(nonNil(p.Labels))
	if err != nil {
		return err
	}

	var confidence sql.NullFloat64
	if p.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *p.Confidence, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO predictions (session_id, sequence, label, labels, confidence, outcome, detail, matched, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.SessionID, p.Sequence, p.Label, string(labels), confidence, string(p.Outcome),
		p.Detail, p.Matched, p.Latency.Milliseconds(), p.CreatedAt,
	)
	if err != nil {
		return err
	}

	p.ID, err = result.LastInsertId()
	return err
}

// ListBySession retrieves a session's predictions in submission order.
func (r *PredictionRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Prediction, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, sequence, label, labels, confidence, outcome, detail, matched, latency_ms, created_at
		 FROM predictions WHERE session_id = ? ORDER BY sequence ASC, id ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var predictions []*Prediction
	for rows.Next() {
		p := &Prediction{}
		var (
			labels     string
			confidence sql.NullFloat64
			outcome    string
			latencyMS  int64
		)

		err := rows.Scan(&p.ID, &p.SessionID, &p.Sequence, &p.Label, &labels, &confidence,
			&outcome, &p.Detail, &p.Matched, &latencyMS, &p.CreatedAt)
		if err != nil {
			return nil, err
		}

		if labels != "" {
			if err := json.Unmarshal([]byte(labels), &p.Labels); err != nil {
				return nil, err
			}
		}
		if confidence.Valid {
			c := confidence.Float64
			p.Confidence = &c
		}
		p.Outcome = Outcome(outcome)
		p.Latency = time.Duration(latencyMS) * time.Millisecond

		predictions = append(predictions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return predictions, nil
}

// Summary counts sessions and predictions grouped by outcome.
func (r *PredictionRepository) Summary(ctx context.Context) (*Summary, error) {
	sum := &Summary{ByOutcome: make(map[Outcome]int64)}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&sum.Sessions); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*), COALESCE(SUM(matched), 0) FROM predictions GROUP BY outcome`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			outcome string
			count   int64
			matched int64
		)
		if err := rows.Scan(&outcome, &count, &matched); err != nil {
			return nil, err
		}
		sum.ByOutcome[Outcome(outcome)] = count
		sum.Predictions += count
		sum.Matched += matched
	}

	return sum, rows.Err()
}

func nonNil(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	return labels
}

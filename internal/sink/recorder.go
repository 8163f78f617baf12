package sink

import (
	"context"
	"log/slog"
	"time"

	"github.com/ayusman/signlearn/internal/detector"
	"github.com/ayusman/signlearn/internal/pipeline"
	"github.com/ayusman/signlearn/internal/predict"
	"github.com/ayusman/signlearn/internal/store"
)

const recordTimeout = 5 * time.Second

// Recorder writes sessions and their predictions to a store.Backend.
// Storage errors are logged and never reach the pipeline.
type Recorder struct {
	backend store.Backend
	logger  *slog.Logger
}

// NewRecorder creates a Recorder. A nil logger uses slog.Default.
func NewRecorder(backend store.Backend, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{backend: backend, logger: logger}
}

// Begin records the start of s.
func (r *Recorder) Begin(ctx context.Context, s *pipeline.Session) error {
	return r.backend.CreateSession(ctx, &store.Session{
		ID:         s.ID(),
		Source:     string(s.Source()),
		Target:     s.Target(),
		WindowSize: s.WindowSize(),
		StartedAt:  s.StartedAt(),
	})
}

// End records the final frame count of s. Call it after s.Close.
func (r *Recorder) End(ctx context.Context, s *pipeline.Session) error {
	return r.backend.EndSession(ctx, s.ID(), s.Stats().Frames, time.Now())
}

func (r *Recorder) OnLandmarks(string, *detector.Frame) {}

func (r *Recorder) OnPrediction(p pipeline.Prediction) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	rec := Record(p)
	if err := r.backend.RecordPrediction(ctx, rec); err != nil {
		r.logger.Error("failed to record prediction",
			"session", p.SessionID,
			"sequence", p.Sequence,
			"error", err)
	}
}

// Record converts p into its stored form, keeping the failure class and detail.
func Record(p pipeline.Prediction) *store.Prediction {
	rec := &store.Prediction{
		SessionID: p.SessionID,
		Sequence:  p.Sequence,
		Label:     p.Label(),
		Matched:   p.Matched(),
		Latency:   p.Latency,
		CreatedAt: p.At,
	}
	if p.OK() {
		rec.Outcome = store.OutcomeOK
		rec.Labels = p.Result.Labels
		rec.Confidence = p.Result.Confidence
		return rec
	}

	rec.Detail = p.Err.Error()
	switch p.Class() {
	case predict.ClassTransport:
		rec.Outcome = store.OutcomeTransport
	case predict.ClassRejected:
		rec.Outcome = store.OutcomeRejected
	case predict.ClassMalformed:
		rec.Outcome = store.OutcomeMalformed
	default:
		rec.Outcome = store.OutcomeOther
	}
	return rec
}

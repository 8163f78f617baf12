// Package pipeline runs the per-session frame path: landmarks are encoded,
// pushed into a sliding window, and full windows are submitted for prediction.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/signlearn/internal/detector"
	"github.com/ayusman/signlearn/internal/feature"
	"github.com/ayusman/signlearn/internal/predict"
	"github.com/ayusman/signlearn/internal/window"
)

// DefaultWindowSize is the number of frames per prediction window.
const DefaultWindowSize = 30

// ErrClosed is returned by HandleFrame after Close.
var ErrClosed = errors.New("session closed")

// Source identifies where a session's frames come from.
type Source string

const (
	SourceBrowser Source = "browser"
	SourceCamera  Source = "camera"
	SourceReplay  Source = "replay"
)

// Predictor turns a full window into a prediction. *predict.Client implements it.
type Predictor interface {
	Predict(ctx context.Context, w window.Window) (*predict.Result, error)
}

// Sink consumes what a session emits. OnLandmarks runs on the caller of
// HandleFrame; OnPrediction runs on the submission goroutine.
type Sink interface {
	OnLandmarks(sessionID string, f *detector.Frame)
	OnPrediction(p Prediction)
}

// Prediction is the outcome of one submitted window.
type Prediction struct {
	SessionID string
	Sequence  int64
	Target    string
	Result    *predict.Result
	Err       error
	Latency   time.Duration
	At        time.Time
}

// OK reports whether a usable prediction was returned.
func (p Prediction) OK() bool {
	return p.Err == nil && p.Result != nil
}

// Label returns the predicted label, or predict.ErrorLabel when none is available.
func (p Prediction) Label() string {
	if !p.OK() {
		return predict.ErrorLabel
	}
	return p.Result.Top()
}

// Class returns the failure class, or "" on success.
func (p Prediction) Class() predict.Class {
	return predict.ClassOf(p.Err)
}

// Matched reports whether the prediction names the session's target gloss.
func (p Prediction) Matched() bool {
	if p.Target == "" || !p.OK() {
		return false
	}
	if strings.EqualFold(p.Result.Label, p.Target) {
		return true
	}
	for _, l := range p.Result.Labels {
		if strings.EqualFold(l, p.Target) {
			return true
		}
	}
	return false
}

// Config holds the options for one session.
type Config struct {
	ID         string // generated when empty
	Source     Source
	Target     string // gloss the learner is practicing, optional
	WindowSize int
	Predictor  Predictor
	Sink       Sink
	Logger     *slog.Logger
}

// Session owns one sliding window and at most one in-flight submission.
type Session struct {
	id        string
	source    Source
	target    string
	startedAt time.Time

	buffer    *window.Buffer
	guard     predict.Guard
	predictor Predictor
	sink      Sink
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	seq    int64

	stats counters
}

// New creates a session. Predictor is required.
func New(cfg Config) (*Session, error) {
	if cfg.Predictor == nil {
		return nil, errors.New("pipeline: predictor is required")
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	buf, err := window.New(cfg.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	if cfg.Source == "" {
		cfg.Source = SourceBrowser
	}
	if cfg.Sink == nil {
		cfg.Sink = Sinks(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        cfg.ID,
		source:    cfg.Source,
		target:    cfg.Target,
		startedAt: time.Now(),
		buffer:    buf,
		predictor: cfg.Predictor,
		sink:      cfg.Sink,
		logger:    cfg.Logger.With("session", cfg.ID),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Source returns where the session's frames come from.
func (s *Session) Source() Source { return s.source }

// Target returns the gloss being practiced, if any.
func (s *Session) Target() string { return s.target }

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// WindowSize returns the configured window length.
func (s *Session) WindowSize() int { return s.buffer.Cap() }

// HandleFrame runs one frame through the pipeline:
//  1. pass the landmarks to the sink
//  2. encode them into a feature vector
//  3. push the vector into the window
//  4. when the window is full and nothing is in flight, submit a snapshot
//
// Submission happens on its own goroutine; HandleFrame never waits on the network.
// A full window that finds a submission in flight, or its prediction still
// being delivered to the sink, is dropped. Sinks should return quickly.
func (s *Session) HandleFrame(f *detector.Frame) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	s.stats.frames.Add(1)
	full := s.buffer.Push(feature.Encode(f))
	submitted := false
	if full {
		submitted = s.trySubmitLocked()
	}
	s.mu.Unlock()

	s.sink.OnLandmarks(s.id, f)
	if full && !submitted {
		s.logger.Debug("window dropped, prediction in flight")
	}
	return nil
}

// trySubmitLocked starts a submission if the guard is free. s.mu must be held.
func (s *Session) trySubmitLocked() bool {
	s.stats.windows.Add(1)
	if !s.guard.TryAcquire() {
		s.stats.dropped.Add(1)
		return false
	}

	w, ok := s.buffer.Snapshot()
	if !ok {
		s.guard.Release()
		return false
	}

	s.seq++
	s.stats.submitted.Add(1)
	s.wg.Add(1)
	go s.submit(s.seq, w)
	return true
}

func (s *Session) submit(seq int64, w window.Window) {
	defer s.wg.Done()
	// held until the sinks return so predictions are delivered in sequence order
	defer s.guard.Release()

	start := time.Now()
	result, err := s.predictor.Predict(s.ctx, w)

	p := Prediction{
		SessionID: s.id,
		Sequence:  seq,
		Target:    s.target,
		Result:    result,
		Err:       err,
		Latency:   time.Since(start),
		At:        time.Now(),
	}
	if err == nil && result == nil {
		p.Err = &predict.Error{Class: predict.ClassMalformed, Message: "empty result"}
	}

	if s.ctx.Err() != nil {
		s.stats.cancelled.Add(1)
		s.logger.Debug("prediction discarded after close", "sequence", seq)
		return
	}

	s.stats.record(p)
	if p.OK() {
		s.logger.Info("prediction",
			"sequence", seq,
			"label", p.Label(),
			"matched", p.Matched(),
			"latency", p.Latency)
	} else {
		s.logger.Warn("prediction failed",
			"sequence", seq,
			"class", p.Class(),
			"error", p.Err,
			"latency", p.Latency)
	}

	s.sink.OnPrediction(p)
}

// Reset discards buffered frames; the next window starts from scratch.
func (s *Session) Reset() {
	s.buffer.Reset()
}

// Buffered returns the number of frames currently in the window.
func (s *Session) Buffered() int {
	return s.buffer.Len()
}

// Close stops accepting frames, discards the window, cancels any in-flight
// submission and waits for it to return. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.buffer.Reset()
	s.wg.Wait()
}

// Wait blocks until no submission is in flight.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	st := s.stats.snapshot()
	st.Buffered = s.buffer.Len()
	st.InFlight = s.guard.InFlight()
	return st
}

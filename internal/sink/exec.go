package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ayusman/signlearn/internal/detector"
	"github.com/ayusman/signlearn/internal/pipeline"
)

// DefaultHookTimeout bounds one hook run when ExecConfig.Timeout is zero.
const DefaultHookTimeout = 5 * time.Second

// HookResponse is the optional JSON a hook prints on stdout.
type HookResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type ExecConfig struct {
	// Command is the hook executable. Args are passed through unchanged.
	Command string
	Args    []string
	// Dir is the working directory of the hook; empty means the current one.
	Dir     string
	Timeout time.Duration
	// MatchedOnly restricts the hook to predictions that match the session target.
	MatchedOnly bool
	// QueueSize bounds pending events; DefaultHookQueue when zero.
	QueueSize int
	Logger    *slog.Logger
}

// DefaultHookQueue is the number of events waiting for the hook before new ones are dropped.
const DefaultHookQueue = 16

// Exec runs an external hook with the prediction Event as JSON on stdin.
// Hooks run one at a time on a worker goroutine, in prediction order, so a
// slow hook never holds up the session that produced the event.
type Exec struct {
	cfg    ExecConfig
	logger *slog.Logger

	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewExec(cfg ExecConfig) (*Exec, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("hook command is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHookTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultHookQueue
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Exec{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go e.worker()
	return e, nil
}

func (e *Exec) OnLandmarks(string, *detector.Frame) {}

// OnPrediction queues the event for the hook and returns immediately.
func (e *Exec) OnPrediction(p pipeline.Prediction) {
	if e.cfg.MatchedOnly && !p.Matched() {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.queue <- NewEvent(p):
	default:
		e.logger.Warn("hook queue full, event dropped", "command", e.cfg.Command, "session", p.SessionID, "sequence", p.Sequence)
	}
}

func (e *Exec) worker() {
	defer close(e.done)
	for ev := range e.queue {
		resp, err := e.Run(context.Background(), ev)
		if err != nil {
			e.logger.Warn("hook failed", "command", e.cfg.Command, "session", ev.SessionID, "error", err)
			continue
		}
		if resp != nil && !resp.Success {
			e.logger.Warn("hook reported failure", "command", e.cfg.Command, "session", ev.SessionID, "error", resp.Error)
		}
	}
}

// Close stops accepting events and waits for the queued ones to run.
func (e *Exec) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.queue)
		e.mu.Unlock()
	})
	<-e.done
}

// Run executes the hook once. Empty stdout yields a nil response.
func (e *Exec) Run(ctx context.Context, ev Event) (*HookResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.cfg.Command, e.cfg.Args...)
	cmd.Dir = e.cfg.Dir

	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("hook timeout after %s", e.cfg.Timeout)
	}

	if err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return nil, fmt.Errorf("hook execution failed: %w, stderr: %s", err, s)
		}
		return nil, fmt.Errorf("hook execution failed: %w", err)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, nil
	}

	var resp HookResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse hook response: %w, stdout: %s", err, out)
	}
	return &resp, nil
}

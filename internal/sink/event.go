// Package sink provides pipeline sinks: persistence, logging and external hooks.
package sink

import "github.com/ayusman/signlearn/internal/pipeline"

// Event is the JSON form of a prediction shared by hooks and websocket clients.
// Failures always carry Prediction "error" and OK false.
type Event struct {
	SessionID   string   `json:"session_id"`
	Sequence    int64    `json:"sequence"`
	Target      string   `json:"target,omitempty"`
	Prediction  string   `json:"prediction"`
	Predictions []string `json:"predictions,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	OK          bool     `json:"ok"`
	Matched     bool     `json:"matched"`
	LatencyMS   int64    `json:"latency_ms"`
	At          int64    `json:"at"`
}

// NewEvent builds the outward view of p. The failure class is not exposed.
func NewEvent(p pipeline.Prediction) Event {
	e := Event{
		SessionID:  p.SessionID,
		Sequence:   p.Sequence,
		Target:     p.Target,
		Prediction: p.Label(),
		OK:         p.OK(),
		Matched:    p.Matched(),
		LatencyMS:  p.Latency.Milliseconds(),
		At:         p.At.UnixMilli(),
	}
	if p.OK() {
		e.Predictions = p.Result.Labels
		e.Confidence = p.Result.Confidence
	}
	return e
}

package pipeline

import (
	"sync/atomic"

	"github.com/ayusman/signlearn/internal/predict"
)

// Stats counts what a session has done so far. Once nothing is in flight,
// Submitted equals Succeeded + Failed() + Cancelled.
type Stats struct {
	Frames    int64 `json:"frames"`
	Windows   int64 `json:"windows"`   // pushes that left the window full
	Submitted int64 `json:"submitted"` // windows sent for prediction
	Dropped   int64 `json:"dropped"`   // full windows skipped while a prediction was in flight
	Succeeded int64 `json:"succeeded"`
	Matched   int64 `json:"matched"`
	Transport int64 `json:"transport_failures"`
	Rejected  int64 `json:"rejected"`
	Malformed int64 `json:"malformed"`
	Other     int64 `json:"other_failures"`
	Cancelled int64 `json:"cancelled"` // in flight when the session closed, never delivered
	Buffered  int   `json:"buffered"`
	InFlight  bool  `json:"in_flight"`
}

// Failed returns the total number of failed submissions.
func (s Stats) Failed() int64 {
	return s.Transport + s.Rejected + s.Malformed + s.Other
}

// Add accumulates o into s. Buffered and InFlight are summed and or-ed.
func (s *Stats) Add(o Stats) {
	s.Frames += o.Frames
	s.Windows += o.Windows
	s.Submitted += o.Submitted
	s.Dropped += o.Dropped
	s.Succeeded += o.Succeeded
	s.Matched += o.Matched
	s.Transport += o.Transport
	s.Rejected += o.Rejected
	s.Malformed += o.Malformed
	s.Other += o.Other
	s.Cancelled += o.Cancelled
	s.Buffered += o.Buffered
	s.InFlight = s.InFlight || o.InFlight
}

type counters struct {
	frames    atomic.Int64
	windows   atomic.Int64
	submitted atomic.Int64
	dropped   atomic.Int64
	succeeded atomic.Int64
	matched   atomic.Int64
	transport atomic.Int64
	rejected  atomic.Int64
	malformed atomic.Int64
	other     atomic.Int64
	cancelled atomic.Int64
}

func (c *counters) record(p Prediction) {
	if p.OK() {
		c.succeeded.Add(1)
		if p.Matched() {
			c.matched.Add(1)
		}
		return
	}
	switch p.Class() {
	case predict.ClassTransport:
		c.transport.Add(1)
	case predict.ClassRejected:
		c.rejected.Add(1)
	case predict.ClassMalformed:
		c.malformed.Add(1)
	default:
		c.other.Add(1)
	}
}

func (c *counters) snapshot() Stats {
	return Stats{
		Frames:    c.frames.Load(),
		Windows:   c.windows.Load(),
		Submitted: c.submitted.Load(),
		Dropped:   c.dropped.Load(),
		Succeeded: c.succeeded.Load(),
		Matched:   c.matched.Load(),
		Transport: c.transport.Load(),
		Rejected:  c.rejected.Load(),
		Malformed: c.malformed.Load(),
		Other:     c.other.Load(),
		Cancelled: c.cancelled.Load(),
	}
}

package sink

import (
	"log/slog"

	"github.com/ayusman/signlearn/internal/detector"
	"github.com/ayusman/signlearn/internal/feature"
	"github.com/ayusman/signlearn/internal/pipeline"
)

// Log reports detected groups per frame at debug level and announces
// predictions that match the session target.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) OnLandmarks(sessionID string, f *detector.Frame) {
	present := feature.Present(f)
	l.logger.Debug("landmarks",
		"session", sessionID,
		"pose", present.Has(detector.Pose),
		"face", present.Has(detector.Face),
		"left_hand", present.Has(detector.LeftHand),
		"right_hand", present.Has(detector.RightHand))
}

func (l *Log) OnPrediction(p pipeline.Prediction) {
	if p.Matched() {
		l.logger.Info("target sign recognized",
			"session", p.SessionID,
			"target", p.Target,
			"sequence", p.Sequence)
	}
}

package pipeline

import "github.com/ayusman/signlearn/internal/detector"

// Sinks fans every event out to each sink in order.
type Sinks []Sink

func (s Sinks) OnLandmarks(sessionID string, f *detector.Frame) {
	for _, sink := range s {
		sink.OnLandmarks(sessionID, f)
	}
}

func (s Sinks) OnPrediction(p Prediction) {
	for _, sink := range s {
		sink.OnPrediction(p)
	}
}

// PredictionFunc adapts a function to a Sink that ignores landmarks.
type PredictionFunc func(p Prediction)

func (f PredictionFunc) OnLandmarks(string, *detector.Frame) {}

func (f PredictionFunc) OnPrediction(p Prediction) { f(p) }

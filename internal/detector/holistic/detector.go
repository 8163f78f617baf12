// Package holistic extracts landmark frames from camera images with a
// MediaPipe Holistic subprocess.
package holistic

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/signlearn/internal/detector"
)

// Detector defines the interface for holistic landmark detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the landmark groups found in it.
	// Groups that were not detected are left nil.
	Detect(frame *gocv.Mat) (*detector.Frame, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for holistic detection.
type Config struct {
	// ModelComplexity selects the pose model (0, 1 or 2).
	ModelComplexity int

	// MinDetectionConf is the minimum detection confidence threshold (0.0-1.0).
	MinDetectionConf float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// SmoothLandmarks filters landmarks across frames to reduce jitter.
	SmoothLandmarks bool

	// RefineFace enables the attention mesh around eyes and lips. The refined
	// mesh has 478 points; only the first 468 are used for features.
	RefineFace bool

	// ResponseTimeout bounds one frame round trip with the subprocess.
	// DefaultResponseTimeout when zero.
	ResponseTimeout time.Duration
}

// DefaultResponseTimeout is used when Config.ResponseTimeout is zero.
const DefaultResponseTimeout = 5 * time.Second

func (c Config) responseTimeout() time.Duration {
	if c.ResponseTimeout <= 0 {
		return DefaultResponseTimeout
	}
	return c.ResponseTimeout
}

// DefaultConfig returns a Config matching the settings the browser client uses.
func DefaultConfig() Config {
	return Config{
		ModelComplexity:  1,
		MinDetectionConf: 0.75,
		MinTrackingConf:  0.75,
		SmoothLandmarks:  true,
		RefineFace:       true,
		ResponseTimeout:  DefaultResponseTimeout,
	}
}

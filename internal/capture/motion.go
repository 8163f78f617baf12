package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Frame differencing parameters.
const (
	// GaussianBlurSize is the kernel size for Gaussian blur (21x21)
	GaussianBlurSize = 21
	// DiffThreshold is the binary threshold for difference detection
	DiffThreshold = 25
	// DefaultMotionThreshold is the share of changed pixels, in percent, that counts as motion.
	DefaultMotionThreshold = 1.0
)

// Motion is the result of comparing a frame with its predecessor.
type Motion struct {
	Moving bool
	// Changed is the percentage of pixels that differ from the previous frame.
	Changed float64
}

// MotionDetector detects motion between consecutive frames by differencing
// blurred grayscale images.
type MotionDetector struct {
	threshold float64
	prevGray  gocv.Mat
	primed    bool
	mu        sync.Mutex
}

// NewMotionDetector creates a MotionDetector. threshold is a percentage of
// pixels; non-positive values fall back to DefaultMotionThreshold.
func NewMotionDetector(threshold float64) *MotionDetector {
	if threshold <= 0 {
		threshold = DefaultMotionThreshold
	}
	return &MotionDetector{
		threshold: threshold,
		prevGray:  gocv.NewMat(),
	}
}

// Detect compares frame with the previous one. The first frame only primes
// the baseline and never reports motion.
func (m *MotionDetector) Detect(frame *gocv.Mat) Motion {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return Motion{}
	}

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)

	if !m.primed {
		blurred.CopyTo(&m.prevGray)
		m.primed = true
		return Motion{}
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0

	blurred.CopyTo(&m.prevGray)

	return Motion{Moving: changed > m.threshold, Changed: changed}
}

// Threshold returns the current threshold percentage.
func (m *MotionDetector) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}

// SetThreshold ignores non-positive values.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
}

// Reset drops the baseline; the next frame primes it again.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

// Close releases the baseline Mat.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

func (m *MotionDetector) release() {
	if !m.prevGray.Empty() {
		m.prevGray.Close()
		m.prevGray = gocv.NewMat()
	}
	m.primed = false
}

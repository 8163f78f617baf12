package holistic

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/signlearn/internal/detector"
)

// Mock is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type Mock struct {
	mu    sync.Mutex
	frame *detector.Frame
	err   error
	calls int
}

// NewMock creates a new Mock instance.
func NewMock() *Mock {
	return &Mock{}
}

// SetFrame sets the frame that will be returned by Detect.
func (m *Mock) SetFrame(f *detector.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame = f
}

// SetError sets the error that will be returned by Detect.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured frame or error.
func (m *Mock) Detect(frame *gocv.Mat) (*detector.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.frame == nil {
		return &detector.Frame{}, nil
	}
	f := *m.frame
	return &f, nil
}

// Close is a no-op for the mock.
func (m *Mock) Close() error {
	return nil
}

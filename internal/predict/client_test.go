package predict

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayusman/signlearn/internal/feature"
	"github.com/ayusman/signlearn/internal/window"
)

// fullWindow builds a full window of n vectors of the real feature length.
func fullWindow(t *testing.T, n int) window.Window {
	t.Helper()

	b, err := window.New(n)
	if err != nil {
		t.Fatalf("window.New() error = %v", err)
	}
	for i := 0; i < n; i++ {
		v := make(feature.Vector, feature.Length)
		v[0] = float64(i)
		b.Push(v)
	}
	w, ok := b.Snapshot()
	if !ok {
		t.Fatal("window not full")
	}
	return w
}

func newTestClient(url string, n int) *Client {
	return NewClient(Config{Endpoint: url, Timeout: 2 * time.Second, WindowSize: n})
}

func TestClient_Predict_Success(t *testing.T) {
	var got struct {
		Sequence [][]float64 `json:"sequence"`
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"prediction": "hello", "confidence": 0.93}`)
	}))
	defer ts.Close()

	result, err := newTestClient(ts.URL, 30).Predict(context.Background(), fullWindow(t, 30))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	if result.Label != "hello" || result.Top() != "hello" {
		t.Errorf("label = %q, want hello", result.Label)
	}
	if result.Confidence == nil || *result.Confidence != 0.93 {
		t.Errorf("confidence = %v, want 0.93", result.Confidence)
	}

	if len(got.Sequence) != 30 {
		t.Fatalf("sent %d frames, want 30", len(got.Sequence))
	}
	for i, frame := range got.Sequence {
		if len(frame) != feature.Length {
			t.Fatalf("frame %d has %d values, want %d", i, len(frame), feature.Length)
		}
		if frame[0] != float64(i) {
			t.Fatalf("frame %d out of order: first value %f", i, frame[0])
		}
	}
}

func TestClient_Predict_LabelSequence(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"predictions": ["thank you", "hello"]}`)
	}))
	defer ts.Close()

	result, err := newTestClient(ts.URL, 2).Predict(context.Background(), fullWindow(t, 2))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(result.Labels) != 2 || result.Labels[0] != "thank you" {
		t.Errorf("labels = %v", result.Labels)
	}
	if result.Top() != "thank you" {
		t.Errorf("Top() = %q, want %q", result.Top(), "thank you")
	}
}

func TestClient_Predict_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		class   Class
		status  int
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			class:  ClassRejected,
			status: http.StatusInternalServerError,
		},
		{
			name: "error payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"error": "bad input"}`)
			},
			class:  ClassRejected,
			status: http.StatusOK,
		},
		{
			name: "missing label",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"confidence": 0.4}`)
			},
			class:  ClassMalformed,
			status: http.StatusOK,
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `<html>oops</html>`)
			},
			class:  ClassMalformed,
			status: http.StatusOK,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			class: ClassTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			c := NewClient(Config{Endpoint: ts.URL, Timeout: 100 * time.Millisecond, WindowSize: 3})
			result, err := c.Predict(context.Background(), fullWindow(t, 3))

			if result != nil {
				t.Errorf("expected nil result, got %+v", result)
			}
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("error = %v, want ErrUnavailable", err)
			}
			if got := ClassOf(err); got != tt.class {
				t.Errorf("class = %q, want %q", got, tt.class)
			}

			var pe *Error
			if errors.As(err, &pe) && pe.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", pe.StatusCode, tt.status)
			}
		})
	}
}

func TestClient_Predict_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := newTestClient(url, 1).Predict(context.Background(), fullWindow(t, 1))
	if ClassOf(err) != ClassTransport {
		t.Errorf("class = %q, want transport (err = %v)", ClassOf(err), err)
	}
}

func TestClient_Predict_WrongWindowSize(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL, 30).Predict(context.Background(), fullWindow(t, 10))
	if !errors.Is(err, ErrWindowSize) {
		t.Errorf("error = %v, want ErrWindowSize", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Error("size mismatch should not be reported as an unavailable prediction")
	}

	_, err = newTestClient(ts.URL, 30).Predict(context.Background(), window.Window{})
	if !errors.Is(err, ErrWindowSize) {
		t.Errorf("empty window error = %v, want ErrWindowSize", err)
	}
	if called {
		t.Error("endpoint should not be called for a wrong-size window")
	}
}

func TestClient_Defaults(t *testing.T) {
	c := NewClient(Config{})
	if c.Endpoint() != DefaultEndpoint {
		t.Errorf("Endpoint() = %s, want %s", c.Endpoint(), DefaultEndpoint)
	}
	if c.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", c.timeout, DefaultTimeout)
	}
}

func TestServiceError(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{``, false},
		{`null`, false},
		{`false`, false},
		{`""`, false},
		{`"bad input"`, true},
		{`{"code": 3}`, true},
	}
	for _, tt := range tests {
		if _, got := serviceError(json.RawMessage(tt.raw)); got != tt.want {
			t.Errorf("serviceError(%s) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestGuard(t *testing.T) {
	var g Guard

	if !g.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}
	if g.TryAcquire() {
		t.Error("second TryAcquire should fail while held")
	}
	if !g.InFlight() {
		t.Error("InFlight() should be true while held")
	}

	g.Release()
	if g.InFlight() {
		t.Error("InFlight() should be false after Release")
	}
	if !g.TryAcquire() {
		t.Error("TryAcquire should succeed after Release")
	}
}

package server

import (
	"fmt"
	"net/http"

	"github.com/ayusman/signlearn/internal/capture"
)

// StreamHandler serves the capture preview as MJPEG.
type StreamHandler struct {
	preview *capture.Preview
}

// NewStreamHandler creates a new StreamHandler reading from preview.
func NewStreamHandler(preview *capture.Preview) *StreamHandler {
	return &StreamHandler{preview: preview}
}

// ServeHTTP writes each new preview frame until the client disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	var seq uint64
	for {
		jpeg, next, err := h.preview.Next(r.Context(), seq)
		if err != nil {
			return
		}
		seq = next

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(jpeg))
		if _, err := w.Write(jpeg); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if flusher != nil {
			flusher.Flush()
		}
	}
}

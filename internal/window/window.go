// Package window keeps the most recent N encoded frames of a session.
package window

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/ayusman/signlearn/internal/feature"
)

// ErrInvalidCapacity is returned by New for a capacity below 1.
var ErrInvalidCapacity = errors.New("window capacity must be positive")

// Buffer is a bounded FIFO of feature vectors. Pushing beyond capacity
// evicts the oldest entries. All methods are safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	entries  []feature.Vector
}

// New creates an empty buffer holding at most capacity vectors.
func New(capacity int) (*Buffer, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Buffer{
		capacity: capacity,
		entries:  make([]feature.Vector, 0, capacity),
	}, nil
}

// Push appends v, evicting from the front until at most Cap() entries remain.
// It reports whether the buffer is now exactly full. The buffer takes
// ownership of v.
func (b *Buffer) Push(v feature.Vector) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) >= b.capacity {
		// shift left, dropping the oldest
		n := copy(b.entries, b.entries[len(b.entries)-b.capacity+1:])
		for i := n; i < len(b.entries); i++ {
			b.entries[i] = nil
		}
		b.entries = b.entries[:n]
	}
	b.entries = append(b.entries, v)

	return len(b.entries) == b.capacity
}

// Snapshot returns the current contents oldest first. ok is false unless the
// buffer is full, in which case the returned Window holds exactly Cap() vectors.
// Snapshot never changes the buffer.
func (b *Buffer) Snapshot() (w Window, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) != b.capacity {
		return Window{}, false
	}

	vectors := make([]feature.Vector, len(b.entries))
	copy(vectors, b.entries)
	return Window{vectors: vectors}, true
}

// Len returns the number of buffered vectors.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Cap returns the configured window size.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Reset discards all buffered vectors.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.entries {
		b.entries[i] = nil
	}
	b.entries = b.entries[:0]
}

// Window is a full run of consecutive vectors, oldest first. The only way to
// obtain a non-empty Window is Buffer.Snapshot on a full buffer.
type Window struct {
	vectors []feature.Vector
}

// Len returns the number of vectors in the window.
func (w Window) Len() int {
	return len(w.vectors)
}

// Vectors returns the vectors oldest first. Callers must not modify them.
func (w Window) Vectors() []feature.Vector {
	return w.vectors
}

// MarshalJSON encodes the window as an array of arrays of numbers.
func (w Window) MarshalJSON() ([]byte, error) {
	if w.vectors == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(w.vectors)
}

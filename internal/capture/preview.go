package capture

import (
	"context"
	"sync"

	"gocv.io/x/gocv"
)

// Preview holds the most recent JPEG-encoded camera frame for any number of
// readers, so the MJPEG stream never reads the device itself.
type Preview struct {
	mu     sync.Mutex
	jpeg   []byte
	seq    uint64
	notify chan struct{}
}

func NewPreview() *Preview {
	return &Preview{notify: make(chan struct{})}
}

// Publish replaces the current frame and wakes waiting readers.
func (p *Preview) Publish(jpeg []byte) {
	p.mu.Lock()
	p.jpeg = jpeg
	p.seq++
	close(p.notify)
	p.notify = make(chan struct{})
	p.mu.Unlock()
}

// PublishMat encodes frame as JPEG and publishes it.
func (p *Preview) PublishMat(frame *gocv.Mat) error {
	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return err
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	p.Publish(data)
	return nil
}

// Latest returns the current frame and its sequence number; seq 0 means none yet.
func (p *Preview) Latest() ([]byte, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jpeg, p.seq
}

// Next blocks until a frame newer than after is published or ctx is done.
func (p *Preview) Next(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		p.mu.Lock()
		if p.seq > after {
			jpeg, seq := p.jpeg, p.seq
			p.mu.Unlock()
			return jpeg, seq, nil
		}
		wait := p.notify
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, after, ctx.Err()
		case <-wait:
		}
	}
}

package capture

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// ErrNoFrame is returned when no frame has been published yet.
var ErrNoFrame = errors.New("no frame available")

// Latest holds the most recent frame from the capture loop so that other
// consumers (face polling, the MJPEG stream) never read the device
// themselves.
type Latest struct {
	mu    sync.Mutex
	frame gocv.Mat
	seq   uint64
}

// NewLatest returns an empty frame holder.
func NewLatest() *Latest {
	return &Latest{frame: gocv.NewMat()}
}

// Publish stores a copy of frame. The caller keeps ownership of frame.
func (l *Latest) Publish(frame *gocv.Mat) {
	if frame == nil || frame.Empty() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	frame.CopyTo(&l.frame)
	l.seq++
}

// Snapshot returns a clone of the latest frame and its sequence number.
// The caller must Close the returned Mat.
func (l *Latest) Snapshot() (*gocv.Mat, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seq == 0 || l.frame.Empty() {
		return nil, 0, ErrNoFrame
	}
	clone := l.frame.Clone()
	return &clone, l.seq, nil
}

// JPEG returns the latest frame encoded as JPEG and its sequence number.
func (l *Latest) JPEG() ([]byte, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seq == 0 || l.frame.Empty() {
		return nil, 0, ErrNoFrame
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, l.frame)
	if err != nil {
		return nil, 0, err
	}
	defer buf.Close()

	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, l.seq, nil
}

// Seq returns the number of frames published so far.
func (l *Latest) Seq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Close releases the held frame.
func (l *Latest) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frame.Close()
	l.frame = gocv.NewMat()
	l.seq = 0
}

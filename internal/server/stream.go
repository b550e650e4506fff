package server

import (
	"fmt"
	"net/http"
	"time"
)

// streamInterval paces the MJPEG stream at roughly 15 FPS.
const streamInterval = 66 * time.Millisecond

// FrameSource supplies the most recent camera frame as JPEG.
type FrameSource interface {
	JPEG() ([]byte, uint64, error)
}

// StreamHandler serves MJPEG frames from the latest captured frame. It never
// touches the camera itself, so any number of viewers can watch.
type StreamHandler struct {
	frames   FrameSource
	interval time.Duration
}

// NewStreamHandler creates a StreamHandler over frames.
func NewStreamHandler(frames FrameSource) *StreamHandler {
	return &StreamHandler{frames: frames, interval: streamInterval}
}

// ServeHTTP streams MJPEG frames until the client goes away. A frame is
// written only when a new one has been captured.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.frames == nil {
		writeError(w, http.StatusServiceUnavailable, "camera is not running")
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		buf, seq, err := h.frames.JPEG()
		if err == nil && seq != lastSeq {
			lastSeq = seq
			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(buf))
			if _, err := w.Write(buf); err != nil {
				return
			}
			fmt.Fprintf(w, "\r\n")
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

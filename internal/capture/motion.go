package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Frame differencing parameters.
const (
	// BlurKernel is the Gaussian kernel size applied before differencing.
	BlurKernel = 21
	// PixelDelta is the grayscale difference a pixel needs to count as changed.
	PixelDelta = 25
	// DefaultMotionThreshold is the changed-pixel percentage that counts as motion.
	DefaultMotionThreshold = 1.0
)

// MotionDetector reports whether consecutive frames differ by more than a
// percentage of changed pixels. The first frame after construction or
// Reset only sets the baseline.
type MotionDetector struct {
	mu        sync.Mutex
	threshold float64
	baseline  gocv.Mat
	primed    bool
}

// NewMotionDetector creates a detector that triggers when more than
// threshold percent of pixels change. Non-positive thresholds use
// DefaultMotionThreshold.
func NewMotionDetector(threshold float64) *MotionDetector {
	if threshold <= 0 {
		threshold = DefaultMotionThreshold
	}
	return &MotionDetector{
		threshold: threshold,
		baseline:  gocv.NewMat(),
	}
}

// Detect compares frame with the previous one and reports motion along with
// the percentage of changed pixels.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	smoothed := gocv.NewMat()
	defer smoothed.Close()
	grayscale(frame, &smoothed)
	gocv.GaussianBlur(smoothed, &smoothed, image.Pt(BlurKernel, BlurKernel), 0, 0, gocv.BorderDefault)

	if !m.primed || m.baseline.Rows() != smoothed.Rows() || m.baseline.Cols() != smoothed.Cols() {
		smoothed.CopyTo(&m.baseline)
		m.primed = true
		return false, 0
	}

	delta := gocv.NewMat()
	defer delta.Close()
	gocv.AbsDiff(smoothed, m.baseline, &delta)
	gocv.Threshold(delta, &delta, PixelDelta, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(delta)) / float64(delta.Rows()*delta.Cols()) * 100
	smoothed.CopyTo(&m.baseline)

	return changed > m.threshold, changed
}

// Reset drops the baseline so the next frame starts a new comparison.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropBaseline()
}

// Close releases the baseline frame. The detector stays usable.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropBaseline()
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

// Threshold returns the changed-pixel percentage that counts as motion.
func (m *MotionDetector) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}

func (m *MotionDetector) dropBaseline() {
	if !m.baseline.Empty() {
		m.baseline.Close()
		m.baseline = gocv.NewMat()
	}
	m.primed = false
}

func grayscale(src *gocv.Mat, dst *gocv.Mat) {
	switch src.Channels() {
	case 1:
		src.CopyTo(dst)
	case 4:
		gocv.CvtColor(*src, dst, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(*src, dst, gocv.ColorBGRToGray)
	}
}

package detector

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/landmark"
)

var (
	_ HandDetector = (*MockDetector)(nil)
	_ FaceDetector = (*MockDetector)(nil)
)

// MockDetector returns preset hands and faces for every frame. It is used
// in tests and as the fallback when no model is available, in which case
// it reports nothing.
type MockDetector struct {
	mu    sync.Mutex
	hands []landmark.Hand
	faces []landmark.Face
	err   error
	calls int
}

// NewMockDetector returns a detector that finds nothing.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands returned by Detect.
func (m *MockDetector) SetHands(hands ...landmark.Hand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetFaces sets the faces returned by DetectFaces.
func (m *MockDetector) SetFaces(faces ...landmark.Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
}

// SetError makes both detection calls fail with err.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls reports how many frames were submitted.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockDetector) Detect(*gocv.Mat) ([]landmark.Hand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

func (m *MockDetector) DetectFaces(*gocv.Mat) ([]landmark.Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.faces, nil
}

func (m *MockDetector) Close() error { return nil }

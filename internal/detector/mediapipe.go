package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/monitoring"
)

// ScriptName is the hand service script looked up by default.
const ScriptName = "hand_service.py"

// ErrScriptNotFound is returned when no hand service script can be located.
var ErrScriptNotFound = errors.New(ScriptName + " not found")

// MediaPipeDetector runs MediaPipe Hands in a Python child process. Frames
// go to its stdin as a 4-byte big-endian length followed by JPEG bytes;
// each frame is answered with one JSON line on stdout. The process starts
// on the first frame and stops after IdleTimeout without frames.
type MediaPipeDetector struct {
	config Config
	script string
	python string

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	idleTimer *time.Timer
}

// NewMediaPipeDetector locates the service script and interpreter. The
// child process is not started until the first Detect.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}

	script := config.Script
	if script == "" {
		script = findFile(searchPaths(filepath.Join("scripts", ScriptName)))
	}
	if script == "" {
		return nil, ErrScriptNotFound
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScriptNotFound, err)
	}

	python := config.Python
	if python == "" {
		python = findFile(searchPaths(filepath.Join("venv", "bin", "python")))
	}
	if python == "" {
		python = "python3"
	}

	return &MediaPipeDetector{
		config: config,
		script: script,
		python: python,
	}, nil
}

// Detect sends frame to the model and returns the hands it found.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]landmark.Hand, error) {
	if frame == nil || frame.Empty() {
		return nil, nil
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.start(); err != nil {
		return nil, err
	}

	hands, err := exchange(d.stdin, d.stdout, buf.GetBytes())
	if err != nil {
		// A broken pipe means the child died; restart on the next frame.
		d.stop()
		return nil, err
	}

	d.resetIdleTimer()
	return hands, nil
}

// Close stops the child process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop()
}

func (d *MediaPipeDetector) start() error {
	if d.cmd != nil {
		return nil
	}

	cmd := exec.Command(d.python, d.script,
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--min-confidence", strconv.FormatFloat(d.config.MinConfidence, 'f', -1, 64),
	)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start hand service: %w", err)
	}

	monitoring.Logf("detector: started hand service %s (pid %d)", d.script, cmd.Process.Pid)
	d.cmd = cmd
	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	return nil
}

func (d *MediaPipeDetector) stop() error {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
	if d.cmd == nil {
		return nil
	}

	d.stdin.Close()
	err := d.cmd.Wait()
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	return err
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.stop(); err != nil {
			monitoring.Logf("detector: hand service exited: %v", err)
		}
	})
}

// exchange writes one length-prefixed frame and reads one JSON reply.
func exchange(w io.Writer, r *bufio.Reader, jpeg []byte) ([]landmark.Hand, error) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(jpeg)))
	if _, err := w.Write(header[:]); err != nil {
		return nil, fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(jpeg); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}

	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return decodeHands(line)
}

type handsResponse struct {
	Hands []landmark.Hand `json:"hands"`
	Error string          `json:"error,omitempty"`
}

// decodeHands parses a service reply. Hands with fewer than
// landmark.NumLandmarks points are passed through; the classifier rejects
// them.
func decodeHands(line []byte) ([]landmark.Hand, error) {
	var resp handsResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("hand service: %s", resp.Error)
	}
	return resp.Hands, nil
}

// searchPaths lists candidate locations for rel: the working directory,
// its parent, next to the executable, and the user data directory.
func searchPaths(rel string) []string {
	candidates := []string{rel, filepath.Join("..", rel)}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), rel))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".mudra", rel))
	}
	return candidates
}

func findFile(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}

package feedback

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/monitoring"
)

// DefaultSpeakTimeout bounds a single utterance.
const DefaultSpeakTimeout = 10 * time.Second

// TextPlaceholder in Args is replaced with the text to speak. When no arg
// contains it, the text is appended as the last argument.
const TextPlaceholder = "{text}"

// CommandSpeaker speaks through a local text-to-speech command such as
// espeak or say. Utterances run one at a time in the background; vibration
// and announcements are ignored.
type CommandSpeaker struct {
	command string
	args    []string
	timeout time.Duration

	mu      sync.Mutex // serializes utterances
	pending sync.WaitGroup
}

// NewCommandSpeaker creates a speaker running command with args.
func NewCommandSpeaker(command string, args []string, timeout time.Duration) *CommandSpeaker {
	if timeout <= 0 {
		timeout = DefaultSpeakTimeout
	}
	return &CommandSpeaker{
		command: command,
		args:    args,
		timeout: timeout,
	}
}

// Speak queues text for speaking and returns immediately.
func (s *CommandSpeaker) Speak(text string) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.run(text); err != nil {
			monitoring.Logf("feedback: %v", err)
		}
	}()
}

// Vibrate is not supported by a local speaker.
func (s *CommandSpeaker) Vibrate([]int) {}

// Announce is not supported by a local speaker; screen readers are driven
// by the browser.
func (s *CommandSpeaker) Announce(string) {}

// Wait blocks until queued utterances have finished.
func (s *CommandSpeaker) Wait() {
	s.pending.Wait()
}

func (s *CommandSpeaker) run(text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.command, s.argv(text)...)
	cmd.WaitDelay = time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("speech command timeout after %s", s.timeout)
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("speech command failed: %w, stderr: %s", err, msg)
		}
		return fmt.Errorf("speech command failed: %w", err)
	}
	return nil
}

func (s *CommandSpeaker) argv(text string) []string {
	out := make([]string, 0, len(s.args)+1)
	replaced := false
	for _, a := range s.args {
		if strings.Contains(a, TextPlaceholder) {
			a = strings.ReplaceAll(a, TextPlaceholder, text)
			replaced = true
		}
		out = append(out, a)
	}
	if !replaced {
		out = append(out, text)
	}
	return out
}

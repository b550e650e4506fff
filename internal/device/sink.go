package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/timeutil"
)

// DefaultRemoteTimeout bounds a single remote write.
const DefaultRemoteTimeout = 5 * time.Second

// Options configures a Sink. Every collaborator is optional.
type Options struct {
	// Names overrides DefaultNames. Missing entries keep the default.
	Names []string

	Remote   RemoteStore
	Fallback FallbackStore
	Feedback Feedback

	// RemoteTimeout bounds each remote write. Zero uses DefaultRemoteTimeout.
	RemoteTimeout time.Duration

	Clock timeutil.Clock
}

// Sink owns the device table. State changes are applied locally first, then
// fanned out to feedback, listeners, and an asynchronous remote write.
type Sink struct {
	remote   RemoteStore
	fallback FallbackStore
	feedback Feedback
	timeout  time.Duration
	clock    timeutil.Clock

	mu      sync.RWMutex
	devices [Count]Device

	listenersMu sync.RWMutex
	listeners   []Listener

	inflight sync.WaitGroup
}

// NewSink creates a Sink with every device off.
func NewSink(opts Options) *Sink {
	s := &Sink{
		remote:   opts.Remote,
		fallback: opts.Fallback,
		feedback: opts.Feedback,
		timeout:  opts.RemoteTimeout,
		clock:    opts.Clock,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultRemoteTimeout
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}

	for i := range s.devices {
		name := DefaultNames[i]
		if i < len(opts.Names) && opts.Names[i] != "" {
			name = opts.Names[i]
		}
		s.devices[i] = Device{ID: i + 1, Name: name}
	}
	return s
}

// AddListener registers l for device change notifications.
func (s *Sink) AddListener(l Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Devices returns a snapshot of all devices ordered by ID.
func (s *Sink) Devices() []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Device, Count)
	copy(out, s.devices[:])
	return out
}

// Get returns one device.
func (s *Sink) Get(id int) (Device, error) {
	if err := validID(id); err != nil {
		return Device{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.devices[id-1], nil
}

// Set switches device id on or off. Writing the current state is a no-op.
// The remote mirror is updated in the background; its failure is logged and
// recorded in the fallback store but never returned here.
func (s *Sink) Set(ctx context.Context, id int, on bool) (Device, error) {
	d, changed, err := s.apply(id, on)
	if err != nil || !changed {
		return d, err
	}

	s.announce(d)
	s.notify(d)
	s.mirror(ctx, d)
	return d, nil
}

// Toggle flips device id.
func (s *Sink) Toggle(ctx context.Context, id int) (Device, error) {
	if err := validID(id); err != nil {
		return Device{}, err
	}

	s.mu.Lock()
	d := &s.devices[id-1]
	d.On = !d.On
	snapshot := *d
	s.mu.Unlock()

	s.announce(snapshot)
	s.notify(snapshot)
	s.mirror(ctx, snapshot)
	return snapshot, nil
}

// SetAll switches every device. Devices already in the target state are
// skipped. One summary utterance replaces the per-device ones. Remote writes
// are independent; a failure on one device does not roll back the others.
func (s *Sink) SetAll(ctx context.Context, on bool) []Device {
	var changed []Device
	for id := 1; id <= Count; id++ {
		d, ok, _ := s.apply(id, on)
		if ok {
			changed = append(changed, d)
		}
	}

	if len(changed) > 0 && s.feedback != nil {
		msg := fmt.Sprintf("All lights turned %s", stateWord(on))
		s.feedback.Speak(msg)
		s.feedback.Announce(msg)
		s.feedback.Vibrate(pattern(on))
	}
	for _, d := range changed {
		s.notify(d)
		s.mirror(ctx, d)
	}
	return s.Devices()
}

// ApplyRemote applies a change that originated at the remote store. It
// updates local state and notifies listeners without writing back.
func (s *Sink) ApplyRemote(id int, on bool) (Device, error) {
	d, changed, err := s.apply(id, on)
	if err != nil || !changed {
		return d, err
	}
	s.notify(d)
	return d, nil
}

// Load seeds local state from the remote store, falling back to the local
// fallback table when the remote is unavailable. Listeners are notified of
// any device whose state changed.
func (s *Sink) Load(ctx context.Context) error {
	var (
		state map[int]bool
		err   error
	)
	if s.remote != nil {
		state, err = s.remote.Fetch(ctx)
		if err == nil {
			s.applyAll(state)
			return nil
		}
		monitoring.Logf("device: remote load failed, using fallback: %v", err)
	}

	if s.fallback == nil {
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRemoteSync, err)
		}
		return nil
	}

	state, ferr := s.fallback.LoadFallback(ctx)
	if ferr != nil {
		return fmt.Errorf("failed to load fallback state: %w", ferr)
	}
	s.applyAll(state)
	return nil
}

// Wait blocks until every in-flight remote write has finished.
func (s *Sink) Wait() {
	s.inflight.Wait()
}

func (s *Sink) applyAll(state map[int]bool) {
	for id, on := range state {
		if d, changed, err := s.apply(id, on); err == nil && changed {
			s.notify(d)
		}
	}
}

// apply updates local state and reports whether anything changed.
func (s *Sink) apply(id int, on bool) (Device, bool, error) {
	if err := validID(id); err != nil {
		return Device{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	d := &s.devices[id-1]
	if d.On == on {
		return *d, false, nil
	}
	d.On = on
	return *d, true, nil
}

func (s *Sink) announce(d Device) {
	if s.feedback == nil {
		return
	}
	msg := fmt.Sprintf("%s turned %s", d.Name, d.StateWord())
	s.feedback.Speak(msg)
	s.feedback.Announce(msg)
	s.feedback.Vibrate(pattern(d.On))
}

func (s *Sink) notify(d Device) {
	s.listenersMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l.DeviceChanged(d)
	}
}

// mirror writes d to the remote store in the background. The write is
// detached from ctx's cancellation so it outlives the request that caused it.
func (s *Sink) mirror(ctx context.Context, d Device) {
	if s.remote == nil {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		err := s.remote.Put(wctx, d.ID, d.On)
		if err == nil {
			return
		}

		monitoring.Logf("device: %v", fmt.Errorf("%w: device %d: %v", ErrRemoteSync, d.ID, err))
		if s.fallback == nil {
			return
		}
		if ferr := s.fallback.SaveFallback(context.WithoutCancel(ctx), d.ID, d.On, s.clock.Now()); ferr != nil {
			monitoring.Logf("device: failed to save fallback for device %d: %v", d.ID, ferr)
		}
	}()
}

func pattern(on bool) []int {
	if on {
		return append([]int(nil), PatternOn...)
	}
	return append([]int(nil), PatternOff...)
}

package events

import (
	"context"
	"time"

	"github.com/ayusman/mudra/internal/device"
	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/timeutil"
)

const (
	defaultQueueSize    = 64
	defaultPublishAfter = 5 * time.Second
)

// Bridge forwards device changes to a Publisher without blocking the sink.
// Changes are queued and published by Run; when the queue is full the change
// is dropped and logged.
type Bridge struct {
	pub     Publisher
	clock   timeutil.Clock
	timeout time.Duration
	queue   chan DeviceEvent
}

// NewBridge creates a Bridge. clock may be nil.
func NewBridge(pub Publisher, clock timeutil.Clock) *Bridge {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Bridge{
		pub:     pub,
		clock:   clock,
		timeout: defaultPublishAfter,
		queue:   make(chan DeviceEvent, defaultQueueSize),
	}
}

// DeviceChanged implements device.Listener.
func (b *Bridge) DeviceChanged(d device.Device) {
	ev := NewDeviceEvent(d, b.clock.Now())
	select {
	case b.queue <- ev:
	default:
		monitoring.Logf("events: queue full, dropping change for device %d", d.ID)
	}
}

// Run publishes queued events until ctx is cancelled. Events still queued at
// cancellation are flushed with a short deadline.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case ev := <-b.queue:
			b.publish(ctx, ev)
		case <-ctx.Done():
			b.drain()
			return
		}
	}
}

func (b *Bridge) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	for {
		select {
		case ev := <-b.queue:
			b.publish(ctx, ev)
		default:
			return
		}
	}
}

func (b *Bridge) publish(ctx context.Context, ev DeviceEvent) {
	pctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := b.pub.PublishDevice(pctx, ev); err != nil {
		monitoring.Logf("events: device %d: %v", ev.DeviceID, err)
	}
}

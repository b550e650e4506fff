package plugin

import (
	"context"
	"time"

	"github.com/ayusman/mudra/internal/device"
	"github.com/ayusman/mudra/internal/monitoring"
	"github.com/ayusman/mudra/internal/security"
	"github.com/ayusman/mudra/internal/store"
)

const (
	dispatchQueueSize = 64
	drainTimeout      = 2 * time.Second
)

// Dispatcher runs subscribed plugins for device changes and security
// alerts. Events are queued and run one at a time by Run, so a slow plugin
// never blocks the device sink; a full queue drops the event.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	queue    chan Request
}

var (
	_ device.Listener  = (*Dispatcher)(nil)
	_ security.Alerter = (*Dispatcher)(nil)
)

// NewDispatcher creates a Dispatcher over the plugins known to manager.
func NewDispatcher(manager *Manager, executor *Executor) *Dispatcher {
	return &Dispatcher{
		manager:  manager,
		executor: executor,
		queue:    make(chan Request, dispatchQueueSize),
	}
}

// DeviceChanged implements device.Listener.
func (d *Dispatcher) DeviceChanged(dev device.Device) {
	d.enqueue(Request{Event: EventDevice, Device: &dev})
}

// Alert implements security.Alerter.
func (d *Dispatcher) Alert(ev store.SecurityEvent) {
	d.enqueue(Request{Event: EventAlert, Alert: &ev})
}

func (d *Dispatcher) enqueue(req Request) {
	if len(d.manager.Subscribers(req.Event)) == 0 {
		return
	}
	select {
	case d.queue <- req:
	default:
		monitoring.Logf("plugin: queue full, dropping %s event", req.Event)
	}
}

// Run executes queued events until ctx is cancelled, then gives the events
// still queued a short deadline.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case req := <-d.queue:
			d.dispatch(ctx, req)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case req := <-d.queue:
			d.dispatch(ctx, req)
		default:
			return
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) {
	for _, p := range d.manager.Subscribers(req.Event) {
		// Each plugin gets its own copy; Execute fills in Config.
		r := req
		resp, err := d.executor.Execute(ctx, p, &r)
		switch {
		case err != nil:
			monitoring.Logf("plugin: %s failed on %s event: %v", p.Manifest.Name, req.Event, err)
		case !resp.Success:
			monitoring.Logf("plugin: %s reported failure on %s event: %s", p.Manifest.Name, req.Event, resp.Error)
		}
	}
}

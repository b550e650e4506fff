// Package events publishes device changes and security alerts to an event
// bus for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ayusman/mudra/internal/device"
)

// Default topics.
const (
	DefaultDeviceTopic   = "mudra.devices"
	DefaultSecurityTopic = "mudra.security"
)

// DeviceEvent is published whenever a device changes state.
type DeviceEvent struct {
	DeviceID  int       `json:"device_id"`
	Name      string    `json:"name"`
	On        bool      `json:"on"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertEvent is published when an intruder is confirmed.
type AlertEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Faces     int       `json:"faces"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher sends events to a bus.
type Publisher interface {
	PublishDevice(ctx context.Context, ev DeviceEvent) error
	PublishAlert(ctx context.Context, ev AlertEvent) error
	Close() error
}

// Nop discards every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) PublishDevice(context.Context, DeviceEvent) error { return nil }
func (Nop) PublishAlert(context.Context, AlertEvent) error { return nil }
func (Nop) Close() error { return nil }

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a KafkaPublisher.
type KafkaConfig struct {
	Brokers       []string
	DeviceTopic   string
	SecurityTopic string
}

// KafkaPublisher writes JSON events to two Kafka topics.
type KafkaPublisher struct {
	devices  messageWriter
	security messageWriter
}

// NewKafkaPublisher creates a publisher for the given brokers. Device events
// are keyed by device ID so each device's history stays ordered.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("events: no brokers configured")
	}
	if cfg.DeviceTopic == "" {
		cfg.DeviceTopic = DefaultDeviceTopic
	}
	if cfg.SecurityTopic == "" {
		cfg.SecurityTopic = DefaultSecurityTopic
	}

	writer := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		}
	}

	return &KafkaPublisher{
		devices:  writer(cfg.DeviceTopic),
		security: writer(cfg.SecurityTopic),
	}, nil
}

// PublishDevice writes a device event.
func (p *KafkaPublisher) PublishDevice(ctx context.Context, ev DeviceEvent) error {
	return write(ctx, p.devices, strconv.Itoa(ev.DeviceID), ev)
}

// PublishAlert writes a security alert.
func (p *KafkaPublisher) PublishAlert(ctx context.Context, ev AlertEvent) error {
	return write(ctx, p.security, ev.Kind, ev)
}

// Close flushes and closes both writers.
func (p *KafkaPublisher) Close() error {
	errD := p.devices.Close()
	errS := p.security.Close()
	if errD != nil {
		return errD
	}
	return errS
}

func write(ctx context.Context, w messageWriter, key string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload}); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// NewDeviceEvent builds a DeviceEvent from a device snapshot.
func NewDeviceEvent(d device.Device, at time.Time) DeviceEvent {
	return DeviceEvent{DeviceID: d.ID, Name: d.Name, On: d.On, Timestamp: at}
}

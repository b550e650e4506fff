// Package ledboard drives a microcontroller LED board over a serial line,
// mirroring device state as plain-text commands.
package ledboard

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"

	"github.com/ayusman/mudra/internal/device"
	"github.com/ayusman/mudra/internal/monitoring"
)

// DefaultBaudRate matches the board firmware.
const DefaultBaudRate = 9600

// Board writes "LED <id> ON|OFF\n" lines for every device change.
type Board struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// New wraps an already-open port. Tests pass an in-memory writer.
func New(w io.WriteCloser) *Board {
	return &Board{w: w}
}

// Open opens the serial port at path. A zero baud uses DefaultBaudRate.
func Open(path string, baud int) (*Board, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open LED board %s: %w", path, err)
	}
	return New(port), nil
}

// Command formats the board command for one device state.
func Command(id int, on bool) string {
	state := "OFF"
	if on {
		state = "ON"
	}
	return fmt.Sprintf("LED %d %s\n", id, state)
}

// Set writes one device state to the board.
func (b *Board) Set(id int, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := io.WriteString(b.w, Command(id, on)); err != nil {
		return fmt.Errorf("led board write: %w", err)
	}
	return nil
}

// Sync writes every device, used after a reconnect or initial load.
func (b *Board) Sync(devices []device.Device) error {
	for _, d := range devices {
		if err := b.Set(d.ID, d.On); err != nil {
			return err
		}
	}
	return nil
}

// DeviceChanged implements device.Listener. Write errors are logged.
func (b *Board) DeviceChanged(d device.Device) {
	if err := b.Set(d.ID, d.On); err != nil {
		monitoring.Logf("ledboard: %v", err)
	}
}

// Close closes the underlying port.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.w.Close()
}

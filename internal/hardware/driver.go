// Package hardware provides the GPIO abstraction layer for the music box.
// It defines the Driver and Pin interfaces used by both the periph.io driver
// and the mock driver.
package hardware

import (
	"context"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Pin is the subset of a GPIO input pin the music box needs.
// periph.io's gpio.PinIO satisfies it directly.
type Pin interface {
	// Name returns the pin name, e.g. "GPIO14".
	Name() string

	// In configures the pin as input with the given pull and edge detection.
	In(pull gpio.Pull, edge gpio.Edge) error

	// Read returns the current pin level.
	Read() gpio.Level

	// WaitForEdge blocks until an edge is detected or timeout elapses.
	// A negative timeout waits forever. Requires edge detection via In.
	WaitForEdge(timeout time.Duration) bool
}

// Driver is the hardware abstraction for the board's GPIO.
type Driver interface {
	// Init initializes the host drivers. Must be called before Pin.
	Init(ctx context.Context) error

	// Pin looks up a pin by name. Returns an error if it does not exist.
	Pin(name string) (Pin, error)

	// IsReal returns true for a real hardware driver, false for a mock.
	IsReal() bool
}

// Pins resolves a list of pin names, failing on the first unknown name.
func Pins(d Driver, names []string) ([]Pin, error) {
	pins := make([]Pin, 0, len(names))
	for _, name := range names {
		p, err := d.Pin(name)
		if err != nil {
			return nil, err
		}
		pins = append(pins, p)
	}
	return pins, nil
}

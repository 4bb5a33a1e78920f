// Package button implements a debounced push button read from one to three
// GPIO pins. The button is polled from the main loop and exposes edge events.
package button

import (
	"time"

	"github.com/cockroachdb/errors"
	"periph.io/x/conn/v3/gpio"

	"github.com/micro-nova/musicbox-go/internal/hardware"
)

// MaxPins is the maximum number of pins a single button may be wired to.
const MaxPins = 3

var (
	// ErrNoPins is returned when a button is constructed without pins.
	ErrNoPins = errors.New("button: no pins")
	// ErrTooManyPins is returned when more than MaxPins pins are given.
	ErrTooManyPins = errors.New("button: too many pins")
)

// Config holds the electrical and timing configuration of a button.
type Config struct {
	PullUp   bool          // enable the internal pull-up resistor
	Invert   bool          // a Low level means pressed (use with PullUp)
	Debounce time.Duration // raw level must be stable this long to count

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Button is a debounced button. It is not safe for concurrent use; the main
// loop owns it for the lifetime of the process.
type Button struct {
	pins     []hardware.Pin
	invert   bool
	debounce time.Duration
	now      func() time.Time

	stable     bool      // debounced pressed state
	lastChange time.Time // when stable last changed
	raw        bool      // last raw reading
	rawSince   time.Time // when raw last changed

	pressed  bool // pending press edge
	released bool // pending release edge
}

// New configures the pins as inputs and returns a button whose initial stable
// state is the current pin level.
func New(pins []hardware.Pin, cfg Config) (*Button, error) {
	if len(pins) == 0 {
		return nil, ErrNoPins
	}
	if len(pins) > MaxPins {
		return nil, errors.Wrapf(ErrTooManyPins, "button: %d pins, max %d", len(pins), MaxPins)
	}

	pull := gpio.Float
	if cfg.PullUp {
		pull = gpio.PullUp
	}
	for _, p := range pins {
		if err := p.In(pull, gpio.NoEdge); err != nil {
			return nil, errors.Wrapf(err, "button: configure %s", p.Name())
		}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	b := &Button{
		pins:     append([]hardware.Pin(nil), pins...),
		invert:   cfg.Invert,
		debounce: cfg.Debounce,
		now:      now,
	}
	t := now()
	b.raw = b.readRaw()
	b.stable = b.raw
	b.rawSince = t
	b.lastChange = t
	return b, nil
}

// Prime takes the current pin level as the debounced state and drops any
// pending edges, so a button held through startup does not fire.
func (b *Button) Prime() {
	t := b.now()
	b.raw = b.readRaw()
	b.stable = b.raw
	b.rawSince = t
	b.pressed = false
	b.released = false
}

// readRaw reports whether any pin reads as pressed.
func (b *Button) readRaw() bool {
	for _, p := range b.pins {
		if bool(p.Read()) != b.invert {
			return true
		}
	}
	return false
}

// Poll samples the pins and updates the debounced state. Edge flags from the
// previous poll are cleared.
func (b *Button) Poll() {
	t := b.now()
	b.pressed = false
	b.released = false

	raw := b.readRaw()
	if raw != b.raw {
		b.raw = raw
		b.rawSince = t
	}
	if raw == b.stable || t.Sub(b.rawSince) < b.debounce {
		return
	}

	b.stable = raw
	b.lastChange = t
	if raw {
		b.pressed = true
	} else {
		b.released = true
	}
}

// WasReleased reports a pressed-to-released transition seen by the last
// Poll. It returns true at most once per transition.
func (b *Button) WasReleased() bool {
	r := b.released
	b.released = false
	return r
}

// WasPressed reports a released-to-pressed transition seen by the last Poll.
// It returns true at most once per transition.
func (b *Button) WasPressed() bool {
	p := b.pressed
	b.pressed = false
	return p
}

// IsPressed returns the debounced state.
func (b *Button) IsPressed() bool { return b.stable }

// LastChange returns when the debounced state last changed.
func (b *Button) LastChange() time.Time { return b.lastChange }

// PinNames returns the names of the pins backing the button.
func (b *Button) PinNames() []string {
	names := make([]string, len(b.pins))
	for i, p := range b.pins {
		names[i] = p.Name()
	}
	return names
}

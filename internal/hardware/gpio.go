package hardware

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// ErrUnknownPin is returned when a pin name is not registered with periph.io.
var ErrUnknownPin = errors.New("unknown gpio pin")

// GPIODriver is the real driver backed by periph.io's host GPIO registry.
type GPIODriver struct {
	once    sync.Once
	initErr error
}

// NewGPIO creates a new periph.io GPIO driver.
func NewGPIO() *GPIODriver {
	return &GPIODriver{}
}

// Init loads the periph.io host drivers. Safe to call more than once.
func (d *GPIODriver) Init(ctx context.Context) error {
	d.once.Do(func() {
		state, err := host.Init()
		if err != nil {
			d.initErr = errors.Wrap(err, "gpio: host init failed")
			return
		}
		slog.Debug("gpio: host drivers loaded", "loaded", len(state.Loaded), "failed", len(state.Failed))
	})
	return d.initErr
}

// Pin returns the named pin from the periph.io registry.
func (d *GPIODriver) Pin(name string) (Pin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Wrapf(ErrUnknownPin, "gpio: failed to open %s", name)
	}
	return p, nil
}

func (d *GPIODriver) IsReal() bool { return true }

// Package power puts the device into low-power sleep and waits for a wake
// signal on the configured wake pins.
package power

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/gpio"

	"github.com/micro-nova/musicbox-go/internal/hardware"
)

// Method selects how the device enters low-power sleep.
type Method string

const (
	// MethodNone halts the main loop with audio released and waits for a
	// wake pin in software.
	MethodNone Method = "none"
	// MethodCommand runs an external command, e.g. "systemctl suspend".
	MethodCommand Method = "command"
	// MethodLogind asks systemd-logind to suspend over D-Bus.
	MethodLogind Method = "logind"
)

const wakePollInterval = 100 * time.Millisecond

// ErrNoWakePins is returned by WaitForWake when no wake pins are armed.
var ErrNoWakePins = errors.New("power: no wake pins armed")

// Flusher is anything holding output that must be written before sleeping.
type Flusher interface {
	Flush() error
}

const (
	login1Dest      = "org.freedesktop.login1"
	login1Path      = "/org/freedesktop/login1"
	login1Manager   = "org.freedesktop.login1.Manager"
	prepareForSleep = "PrepareForSleep"
)

// suspendLogind is a variable so tests can avoid talking to the system bus.
// Manager.Suspend returns once the job is queued, so it waits for the
// PrepareForSleep(false) signal logind emits after resume.
var suspendLogind = func(ctx context.Context) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return errors.Wrap(err, "power: connect system bus")
	}
	defer conn.Close()

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(login1Manager),
		dbus.WithMatchMember(prepareForSleep),
	); err != nil {
		return errors.Wrap(err, "power: subscribe PrepareForSleep")
	}
	signals := make(chan *dbus.Signal, 4)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	obj := conn.Object(login1Dest, login1Path)
	call := obj.CallWithContext(ctx, login1Manager+".Suspend", 0, false)
	if call.Err != nil {
		return errors.Wrap(call.Err, "power: logind suspend")
	}
	return waitForResume(ctx, signals)
}

// waitForResume blocks until logind reports the end of a sleep cycle.
func waitForResume(ctx context.Context, signals <-chan *dbus.Signal) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return errors.New("power: system bus closed before resume")
			}
			if sig.Name != login1Manager+"."+prepareForSleep || len(sig.Body) == 0 {
				continue
			}
			start, ok := sig.Body[0].(bool)
			if !ok {
				continue
			}
			if start {
				slog.Debug("power: system going to sleep")
				continue
			}
			slog.Info("power: system resumed")
			return nil
		}
	}
}

// Sleeper performs the sleep entry sequence.
type Sleeper struct {
	method   Method
	command  []string
	wake     []hardware.Pin
	flushers []Flusher
}

// New creates a Sleeper. wake pins trigger resume on a rising edge.
func New(method Method, command []string, wake []hardware.Pin, flushers ...Flusher) *Sleeper {
	if method == "" {
		method = MethodNone
	}
	return &Sleeper{
		method:   method,
		command:  command,
		wake:     wake,
		flushers: flushers,
	}
}

// ArmWake enables rising edge detection on the wake pins: any one of them
// going high wakes the device. pull should match the button wiring so the
// pins keep reading correctly while awake.
func (s *Sleeper) ArmWake(pull gpio.Pull) error {
	for _, p := range s.wake {
		if err := p.In(pull, gpio.RisingEdge); err != nil {
			return errors.Wrapf(err, "power: arm wake pin %s", p.Name())
		}
	}
	names := make([]string, len(s.wake))
	for i, p := range s.wake {
		names[i] = p.Name()
	}
	slog.Info("power: wake sources armed", "pins", names, "trigger", "any_high")
	return nil
}

// Sleep flushes diagnostics and enters low-power sleep. It returns once the
// device has woken and should re-initialize.
func (s *Sleeper) Sleep(ctx context.Context) error {
	slog.Info("power: entering sleep", "method", string(s.method))
	s.flush()

	switch s.method {
	case MethodLogind:
		return suspendLogind(ctx)
	case MethodCommand:
		if len(s.command) == 0 {
			return errors.New("power: sleep command not configured")
		}
		cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return errors.Wrapf(err, "power: %s: %s", s.command[0], out)
		}
		return nil
	default:
		return s.WaitForWake(ctx)
	}
}

func (s *Sleeper) flush() {
	for _, f := range s.flushers {
		if err := f.Flush(); err != nil {
			slog.Warn("power: flush failed", "err", err)
		}
	}
	unix.Sync()
}

// WaitForWake blocks until any wake pin reads high after a rising edge, or
// ctx is cancelled.
func (s *Sleeper) WaitForWake(ctx context.Context) error {
	if len(s.wake) == 0 {
		return ErrNoWakePins
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	woke := make(chan string, len(s.wake))
	var wg sync.WaitGroup
	for _, p := range s.wake {
		wg.Add(1)
		go func(p hardware.Pin) {
			defer wg.Done()
			for ctx.Err() == nil {
				if p.WaitForEdge(wakePollInterval) && p.Read() == gpio.High {
					woke <- p.Name()
					return
				}
			}
		}(p)
	}

	var err error
	select {
	case name := <-woke:
		slog.Info("power: woken", "pin", name)
	case <-ctx.Done():
		err = ctx.Err()
	}
	cancel()
	wg.Wait()
	return err
}

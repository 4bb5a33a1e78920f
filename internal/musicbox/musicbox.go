// Package musicbox wires buttons, bank state, playback and the idle timer
// into the device's single cooperative main loop.
package musicbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
	"periph.io/x/conn/v3/gpio"

	"github.com/micro-nova/musicbox-go/internal/audio"
	"github.com/micro-nova/musicbox-go/internal/bank"
	"github.com/micro-nova/musicbox-go/internal/button"
	"github.com/micro-nova/musicbox-go/internal/events"
	"github.com/micro-nova/musicbox-go/internal/idle"
	"github.com/micro-nova/musicbox-go/internal/models"
	"github.com/micro-nova/musicbox-go/internal/playback"
)

// Player names used in log lines and events.
const (
	SoundPlayer = "sounds"
	InitPlayer  = "init"
)

// Volume is a storage volume that must be mounted before files are opened.
type Volume interface {
	playback.Source
	Name() string
	Mount() error
}

// Sleeper enters low-power sleep and returns once the device has woken.
type Sleeper interface {
	ArmWake(pull gpio.Pull) error
	Sleep(ctx context.Context) error
}

// Parts are the collaborators the box drives. They outlive a single wake
// cycle; a new Box is built around them after every wake.
type Parts struct {
	SoundButtons []*button.Button // slot order, models.SlotCount entries
	ModeButton   *button.Button
	Internal     Volume // holds the init sound
	External     Volume // holds the bank files
	Decoder      audio.Decoder
	Output       audio.Sink
	Sleeper      Sleeper // nil disables sleep entry
	Bus          *events.Bus
}

// Options tune the box behaviour.
type Options struct {
	Gains             bank.Gains
	GainPolicy        bank.GainPolicy
	IdleTimeout       time.Duration
	ResetIdleOnButton bool
	InitSound         string
	PollInterval      time.Duration
	WakePull          gpio.Pull
}

// Box is the device state for one wake cycle. It is driven from a single
// goroutine.
type Box struct {
	parts Parts
	opts  Options

	bank    *bank.State
	sounds  *playback.Controller
	startup *playback.Controller
	idle    *idle.Supervisor

	failLog rate.Sometimes
}

// New checks the parts and builds a box in its initial state.
func New(parts Parts, opts Options) (*Box, error) {
	if len(parts.SoundButtons) != models.SlotCount {
		return nil, errors.Newf("musicbox: %d sound buttons, want %d", len(parts.SoundButtons), models.SlotCount)
	}
	if parts.ModeButton == nil {
		return nil, errors.New("musicbox: mode button is required")
	}
	if parts.Internal == nil || parts.External == nil {
		return nil, errors.New("musicbox: both storage volumes are required")
	}
	if parts.Decoder == nil || parts.Output == nil {
		return nil, errors.New("musicbox: decoder and output are required")
	}

	return &Box{
		parts:   parts,
		opts:    opts,
		bank:    bank.New(opts.Gains, opts.GainPolicy),
		sounds:  playback.New(SoundPlayer, parts.External, parts.Decoder, parts.Output, parts.Bus),
		startup: playback.New(InitPlayer, parts.Internal, parts.Decoder, parts.Output, parts.Bus),
		failLog: rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}, nil
}

// Setup runs the startup sequence. A storage mount failure aborts it with an
// error matching models.ErrStorageMount; the box must then not be run, only
// halted with Halt.
func (m *Box) Setup(ctx context.Context) error {
	for _, b := range m.parts.SoundButtons {
		b.Prime()
	}
	m.parts.ModeButton.Prime()

	m.bank.Reset()

	if err := m.parts.Internal.Mount(); err != nil {
		slog.Error("musicbox: internal storage mount failed", "volume", m.parts.Internal.Name(), "err", err)
		return err
	}

	sup, err := idle.New(m.opts.IdleTimeout, nil)
	if err != nil {
		slog.Warn("musicbox: sleep timer could not be created, staying awake", "err", err)
	} else {
		sup.Start()
		slog.Info("musicbox: sleep timer started", "timeout", m.opts.IdleTimeout)
	}
	m.idle = sup

	if m.parts.Sleeper != nil {
		if err := m.parts.Sleeper.ArmWake(m.opts.WakePull); err != nil {
			slog.Warn("musicbox: wake sources not armed", "err", err)
		}
	}

	if err := m.parts.External.Mount(); err != nil {
		slog.Error("musicbox: card mount failed", "volume", m.parts.External.Name(), "err", err)
		return err
	}

	if err := m.playInitSound(ctx); err != nil {
		return err
	}
	m.parts.Output.SetGain(m.bank.Gain())
	slog.Info("musicbox: ready", "bank", m.bank.Bank(), "gain", m.bank.Gain())
	return nil
}

// playInitSound plays the startup sound to completion at the MUSIC gain. A
// missing or broken file is logged and skipped.
func (m *Box) playInitSound(ctx context.Context) error {
	if m.opts.InitSound == "" {
		return nil
	}
	m.parts.Output.SetGain(m.opts.Gains.Music)
	if err := m.startup.PlayFile(m.opts.InitSound); err != nil {
		slog.Warn("musicbox: init sound skipped", "file", m.opts.InitSound, "err", err)
		return nil
	}
	return m.startup.Drain(ctx)
}

// Step runs one loop iteration: advance playback, then the sound buttons,
// then the mode button.
func (m *Box) Step() {
	if m.sounds.Tick() == playback.StatusPlaying {
		m.idle.NoteActivity()
	}
	m.processSoundButtons()
	m.processModeButton()
}

func (m *Box) processSoundButtons() {
	for i, b := range m.parts.SoundButtons {
		b.Poll()
		if !b.WasReleased() {
			continue
		}
		if m.opts.ResetIdleOnButton {
			m.idle.NoteActivity()
		}
		slot := i + 1
		if err := m.sounds.RequestPlay(m.bank.Bank(), slot); err != nil {
			m.failLog.Do(func() {
				slog.Warn("musicbox: sound request failed", "bank", m.bank.Bank(), "slot", slot, "err", err)
			})
		}
	}
}

func (m *Box) processModeButton() {
	m.parts.ModeButton.Poll()
	if !m.parts.ModeButton.WasReleased() {
		return
	}
	if m.opts.ResetIdleOnButton {
		m.idle.NoteActivity()
	}
	b, gain := m.bank.Toggle()
	m.parts.Output.SetGain(gain)
	m.sounds.StopCurrent()
	slog.Info("musicbox: bank changed", "bank", b, "gain", gain)
	m.parts.Bus.Publish(models.Event{Type: models.EventBankChanged, Bank: b, Time: time.Now()})
}

// Run loops until the idle timer expires or ctx is cancelled. After the
// device has slept and woken it returns models.ErrAsleep, and the caller
// builds a fresh box and runs Setup again.
func (m *Box) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.idle.Expired():
			return m.sleep(ctx)
		default:
		}

		m.Step()

		if !m.sounds.Active() && m.opts.PollInterval > 0 {
			time.Sleep(m.opts.PollInterval)
		}
	}
}

// Halt parks a box whose Setup failed. The sleep timer, if Setup got far
// enough to start it, still puts the device to sleep, so a missing card does
// not keep it awake; Halt then returns models.ErrAsleep after wake. Without a
// timer Halt waits for ctx.
func (m *Box) Halt(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.idle.Expired():
		return m.sleep(ctx)
	}
}

func (m *Box) sleep(ctx context.Context) error {
	m.sounds.StopCurrent()
	m.idle.Stop()
	slog.Info("musicbox: idle timeout, going to sleep", "timeout", m.idle.Timeout())
	m.parts.Bus.Publish(models.Event{Type: models.EventSleep, Bank: m.bank.Bank(), Time: time.Now()})

	if m.parts.Sleeper != nil {
		if err := m.parts.Sleeper.Sleep(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("musicbox: sleep failed", "err", err)
		}
	}

	slog.Info("musicbox: woken")
	m.parts.Bus.Publish(models.Event{Type: models.EventWake, Time: time.Now()})
	return models.ErrAsleep
}

// Close stops playback and the idle timer. The parts stay open.
func (m *Box) Close() {
	m.sounds.StopCurrent()
	m.startup.StopCurrent()
	m.idle.Stop()
}

// Bank returns the active bank.
func (m *Box) Bank() models.Bank { return m.bank.Bank() }

// Playing returns the file being played by the sound player, or "".
func (m *Box) Playing() string { return m.sounds.Current() }

// Idle returns the idle supervisor, nil when sleep is disabled.
func (m *Box) Idle() *idle.Supervisor { return m.idle }

package musicbox_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"periph.io/x/conn/v3/gpio"

	"github.com/micro-nova/musicbox-go/internal/audio"
	"github.com/micro-nova/musicbox-go/internal/models"
)

// fakeVolume serves a fixed set of files once mounted.
type fakeVolume struct {
	name     string
	files    map[string]bool
	mountErr error
	mounts   int
	opened   []string
}

func newFakeVolume(name string, files ...string) *fakeVolume {
	v := &fakeVolume{name: name, files: make(map[string]bool)}
	for _, f := range files {
		v.files[f] = true
	}
	return v
}

func (v *fakeVolume) Name() string { return v.name }

func (v *fakeVolume) Mount() error {
	v.mounts++
	if v.mountErr != nil {
		return errors.Mark(v.mountErr, models.ErrStorageMount)
	}
	return nil
}

func (v *fakeVolume) Open(name string) (io.ReadCloser, error) {
	v.opened = append(v.opened, name)
	if !v.files[name] {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader(nil)), nil
}

// fakeDecoder plays every stream for a fixed number of steps.
type fakeDecoder struct {
	steps   int
	left    int
	running bool
}

func (d *fakeDecoder) Begin(_ io.ReadCloser, out audio.Sink) error {
	if err := out.Start(); err != nil {
		return err
	}
	d.left = d.steps
	d.running = true
	return nil
}

func (d *fakeDecoder) Step() bool {
	if !d.running || d.left == 0 {
		d.running = false
		return false
	}
	d.left--
	return true
}

func (d *fakeDecoder) Stop()           { d.running = false }
func (d *fakeDecoder) IsRunning() bool { return d.running }

// fakeSink records every gain it is given.
type fakeSink struct {
	gains []float64
	stops int
}

func (s *fakeSink) Start() error               { return nil }
func (s *fakeSink) Write(_ [][2]float64) error { return nil }
func (s *fakeSink) SetGain(g float64)          { s.gains = append(s.gains, g) }
func (s *fakeSink) SampleRate() int            { return 44100 }
func (s *fakeSink) Stop() error                { s.stops++; return nil }

func (s *fakeSink) Gain() float64 {
	if len(s.gains) == 0 {
		return 0
	}
	return s.gains[len(s.gains)-1]
}

// fakeSleeper counts sleep entries and returns immediately.
type fakeSleeper struct {
	mu     sync.Mutex
	armed  bool
	pull   gpio.Pull
	sleeps int
	err    error
}

func (s *fakeSleeper) ArmWake(pull gpio.Pull) error {
	s.armed = true
	s.pull = pull
	return nil
}

func (s *fakeSleeper) Sleep(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps++
	return s.err
}

func (s *fakeSleeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sleeps
}

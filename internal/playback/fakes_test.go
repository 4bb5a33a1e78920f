package playback_test

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/micro-nova/musicbox-go/internal/audio"
)

// callLog records collaborator calls in order.
type callLog struct{ calls []string }

func (l *callLog) add(format string, args ...any) {
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) reset() { l.calls = nil }

// fakeStream is an in-memory stream that records its release.
type fakeStream struct {
	*bytes.Reader
	name   string
	log    *callLog
	closed bool
}

func (s *fakeStream) Close() error {
	s.closed = true
	s.log.add("close %s", s.name)
	return nil
}

// fakeSource serves a fixed set of file names.
type fakeSource struct {
	log    *callLog
	files  map[string]bool
	opened []*fakeStream
}

func newFakeSource(log *callLog, names ...string) *fakeSource {
	src := &fakeSource{log: log, files: make(map[string]bool)}
	for _, n := range names {
		src.files[n] = true
	}
	return src
}

func (s *fakeSource) Open(name string) (io.ReadCloser, error) {
	s.log.add("open %s", name)
	if !s.files[name] {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	st := &fakeStream{Reader: bytes.NewReader([]byte("ID3")), name: name, log: s.log}
	s.opened = append(s.opened, st)
	return st, nil
}

// openStreams counts streams that were opened but not yet closed.
func (s *fakeSource) openStreams() int {
	n := 0
	for _, st := range s.opened {
		if !st.closed {
			n++
		}
	}
	return n
}

// fakeDecoder plays each stream for a fixed number of steps.
type fakeDecoder struct {
	log      *callLog
	steps    int
	left     int
	running  bool
	beginErr error
}

func (d *fakeDecoder) Begin(stream io.ReadCloser, out audio.Sink) error {
	d.log.add("begin")
	if d.beginErr != nil {
		return d.beginErr
	}
	if err := out.Start(); err != nil {
		return err
	}
	d.left = d.steps
	d.running = true
	return nil
}

func (d *fakeDecoder) Step() bool {
	if !d.running {
		return false
	}
	if d.left == 0 {
		d.running = false
		return false
	}
	d.left--
	return true
}

func (d *fakeDecoder) Stop() {
	d.log.add("decoder stop")
	d.running = false
}

func (d *fakeDecoder) IsRunning() bool { return d.running }

// fakeSink records start/stop calls.
type fakeSink struct {
	log  *callLog
	gain float64
}

func (s *fakeSink) Start() error               { s.log.add("sink start"); return nil }
func (s *fakeSink) Write(_ [][2]float64) error { return nil }
func (s *fakeSink) SetGain(g float64)          { s.gain = g }
func (s *fakeSink) Gain() float64              { return s.gain }
func (s *fakeSink) SampleRate() int            { return 44100 }
func (s *fakeSink) Stop() error                { s.log.add("sink stop"); return nil }

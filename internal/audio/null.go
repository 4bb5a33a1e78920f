package audio

import (
	"sync"
	"time"
)

// NullSink discards samples, sleeping for their duration so decoding runs
// at real-time pace. Used with --mock on machines without a sound device.
type NullSink struct {
	mu      sync.Mutex
	rate    int
	gain    float64
	started bool
	frames  int64
	sleep   func(time.Duration)
}

// NewNullSink creates a NullSink at the given sample rate.
func NewNullSink(sampleRate int) *NullSink {
	return &NullSink{rate: sampleRate, gain: 1, sleep: time.Sleep}
}

func (s *NullSink) Start() error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *NullSink) Write(samples [][2]float64) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.frames += int64(len(samples))
	s.mu.Unlock()
	if s.rate > 0 && s.sleep != nil {
		s.sleep(time.Duration(len(samples)) * time.Second / time.Duration(s.rate))
	}
	return nil
}

func (s *NullSink) SetGain(gain float64) {
	s.mu.Lock()
	s.gain = clampGain(gain)
	s.mu.Unlock()
}

func (s *NullSink) Gain() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain
}

func (s *NullSink) SampleRate() int { return s.rate }

func (s *NullSink) Stop() error {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	return nil
}

// Frames returns the number of frames written while started.
func (s *NullSink) Frames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

var _ Sink = (*NullSink)(nil)

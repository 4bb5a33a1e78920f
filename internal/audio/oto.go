package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ebitengine/oto/v3"
)

const bytesPerFrame = 8 // two float32 channels

// player is the part of *oto.Player the sink drives.
type player interface {
	Play()
	Pause()
	Seek(offset int64, whence int) (int64, error)
	Close() error
}

// OtoSink plays samples through oto. oto allows a single context per
// process, so one OtoSink is created at startup and reused across wake cycles.
type OtoSink struct {
	ctx    *oto.Context
	player player
	rate   int

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	maxBuf  int
	gain    float64
	started bool
}

// NewOtoSink opens the default audio device. buffer bounds how much audio
// Write may queue ahead of the device.
func NewOtoSink(sampleRate int, buffer time.Duration) (*OtoSink, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   buffer,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, errors.Wrap(err, "oto: new context")
	}
	<-ready

	s := newOtoSink(sampleRate, buffer)
	s.ctx = ctx
	s.player = ctx.NewPlayer(s)
	return s, nil
}

func newOtoSink(sampleRate int, buffer time.Duration) *OtoSink {
	s := &OtoSink{
		rate:   sampleRate,
		maxBuf: int(buffer.Seconds()*float64(sampleRate)) * bytesPerFrame,
		gain:   1,
	}
	if s.maxBuf < stepFrames*bytesPerFrame {
		s.maxBuf = stepFrames * bytesPerFrame
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Seek discards queued audio. The player calls it from its own Seek, which
// is the only way to drop the samples it has already pulled.
func (s *OtoSink) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	s.buf = s.buf[:0]
	s.cond.Broadcast()
	s.mu.Unlock()
	return 0, nil
}

// Read feeds the oto player. Missing data is filled with silence.
func (s *OtoSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	s.cond.Broadcast()
	s.mu.Unlock()
	clear(p[n:])
	return len(p), nil
}

func (s *OtoSink) Start() error {
	s.mu.Lock()
	s.started = true
	s.buf = s.buf[:0]
	s.mu.Unlock()
	s.player.Play()
	return nil
}

func (s *OtoSink) Write(samples [][2]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.started && len(s.buf) >= s.maxBuf {
		s.cond.Wait()
	}
	if !s.started {
		return nil
	}
	s.buf = appendFrames(s.buf, samples, s.gain)
	return nil
}

func (s *OtoSink) SetGain(gain float64) {
	s.mu.Lock()
	s.gain = clampGain(gain)
	s.mu.Unlock()
}

func (s *OtoSink) Gain() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain
}

func (s *OtoSink) SampleRate() int { return s.rate }

func (s *OtoSink) Stop() error {
	s.mu.Lock()
	s.started = false
	s.buf = s.buf[:0]
	s.cond.Broadcast()
	s.mu.Unlock()
	s.player.Pause()
	if _, err := s.player.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "oto: reset player")
	}
	return nil
}

// Close stops output and releases the player.
func (s *OtoSink) Close() error {
	_ = s.Stop()
	return s.player.Close()
}

// appendFrames encodes samples as little-endian float32 stereo, applying gain
// and clipping to [-1, 1].
func appendFrames(dst []byte, samples [][2]float64, gain float64) []byte {
	var frame [bytesPerFrame]byte
	for _, smp := range samples {
		for ch := 0; ch < 2; ch++ {
			v := smp[ch] * gain
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			binary.LittleEndian.PutUint32(frame[ch*4:], math.Float32bits(float32(v)))
		}
		dst = append(dst, frame[:]...)
	}
	return dst
}

var (
	_ Sink      = (*OtoSink)(nil)
	_ io.Seeker = (*OtoSink)(nil)
)

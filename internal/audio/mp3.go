package audio

import (
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
)

const (
	stepFrames      = 512 // frames decoded per Step
	resampleQuality = 3
)

// MP3Decoder decodes MP3 streams with beep, resampling to the sink's rate.
type MP3Decoder struct {
	stream  beep.Streamer
	out     Sink
	buf     [][2]float64
	running bool
}

// NewMP3Decoder creates an idle MP3 decoder.
func NewMP3Decoder() *MP3Decoder {
	return &MP3Decoder{buf: make([][2]float64, stepFrames)}
}

func (d *MP3Decoder) Begin(stream io.ReadCloser, out Sink) error {
	d.Stop()

	// NopCloser keeps beep from closing a stream it does not own.
	s, format, err := mp3.Decode(io.NopCloser(stream))
	if err != nil {
		return errors.Wrap(err, "mp3: decode header")
	}

	var st beep.Streamer = s
	if rate := beep.SampleRate(out.SampleRate()); rate != format.SampleRate {
		st = beep.Resample(resampleQuality, format.SampleRate, rate, s)
	}
	if err := out.Start(); err != nil {
		return errors.Wrap(err, "mp3: start output")
	}

	slog.Debug("mp3: stream opened", "rate", int(format.SampleRate), "channels", format.NumChannels)
	d.stream = st
	d.out = out
	d.running = true
	return nil
}

func (d *MP3Decoder) Step() bool {
	if !d.running {
		return false
	}
	n, ok := d.stream.Stream(d.buf)
	if n > 0 {
		if err := d.out.Write(d.buf[:n]); err != nil {
			slog.Warn("mp3: output write failed", "err", err)
			d.running = false
			return false
		}
	}
	if !ok {
		if err := d.stream.Err(); err != nil {
			slog.Warn("mp3: decode error", "err", err)
		}
		d.running = false
		return false
	}
	return true
}

func (d *MP3Decoder) Stop() {
	d.running = false
	d.stream = nil
}

func (d *MP3Decoder) IsRunning() bool { return d.running }

var _ Decoder = (*MP3Decoder)(nil)

// Package audio provides the decoder and output sink collaborators used by
// the playback controller: an MP3 decoder built on beep and an output sink
// built on oto.
package audio

import "io"

// MaxGain is the upper bound applied to output gain.
const MaxGain = 4.0

// Sink is an audio output. Samples are stereo float frames in [-1, 1].
type Sink interface {
	// Start readies the output for a new stream.
	Start() error

	// Write queues samples for output, blocking while the output buffer is full.
	Write(samples [][2]float64) error

	// SetGain sets the output gain, clamped to [0, MaxGain].
	SetGain(gain float64)

	// Gain returns the current output gain.
	Gain() float64

	// SampleRate returns the output sample rate in Hz.
	SampleRate() int

	// Stop halts output and discards queued samples.
	Stop() error
}

// Decoder turns an encoded stream into samples on a Sink one step at a time.
// The decoder never closes the stream; its owner does.
type Decoder interface {
	// Begin prepares the decoder to read from stream and write to out.
	Begin(stream io.ReadCloser, out Sink) error

	// Step decodes and writes one unit of work. It returns false once the
	// stream is exhausted or failed.
	Step() bool

	// Stop halts decoding. Safe to call when not running.
	Stop()

	// IsRunning reports whether Begin succeeded and the stream is not done.
	IsRunning() bool
}

func clampGain(g float64) float64 {
	if g < 0 {
		return 0
	}
	if g > MaxGain {
		return MaxGain
	}
	return g
}

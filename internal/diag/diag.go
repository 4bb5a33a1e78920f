// Package diag provides the diagnostic log output: stderr, optionally
// mirrored to a serial UART so the device can be debugged with a cable.
package diag

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"go.bug.st/serial"
)

// DefaultBaudRate is the serial console speed.
const DefaultBaudRate = 115200

// port is the part of serial.Port the sink uses.
type port interface {
	io.WriteCloser
	Drain() error
}

// openPort is a variable so tests can inject a fake serial port.
var openPort = func(device string, baud int) (port, error) {
	return serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// Sink is an io.Writer for log output. It is safe for concurrent use.
type Sink struct {
	mu     sync.Mutex
	out    io.Writer
	serial port
	device string
}

// NewSink writes to out and, when device is non-empty, to that serial port.
func NewSink(out io.Writer, device string, baud int) (*Sink, error) {
	s := &Sink{out: out, device: device}
	if device == "" {
		return s, nil
	}
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	p, err := openPort(device, baud)
	if err != nil {
		return nil, errors.Wrapf(err, "diag: open %s", device)
	}
	s.serial = p
	return s, nil
}

func (s *Sink) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.out.Write(b)
	if s.serial != nil {
		// A broken cable must not take logging down with it.
		_, _ = s.serial.Write(b)
	}
	return n, err
}

// Flush waits for pending serial output to be transmitted.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.out.(*os.File); ok {
		_ = f.Sync()
	}
	if s.serial == nil {
		return nil
	}
	if err := s.serial.Drain(); err != nil {
		return errors.Wrapf(err, "diag: drain %s", s.device)
	}
	return nil
}

// Close flushes and closes the serial port, if any.
func (s *Sink) Close() error {
	if err := s.Flush(); err != nil {
		slog.Warn("diag: flush on close failed", "err", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serial == nil {
		return nil
	}
	err := s.serial.Close()
	s.serial = nil
	return err
}

// ParseLevel parses a log level name, defaulting to info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Setup installs a text slog handler writing to sink as the default logger.
func Setup(sink io.Writer, level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(sink, &slog.HandlerOptions{Level: level})))
}

// Package playback owns the single active playback session: it opens sound
// files on a storage volume, hands them to the decoder and output sink,
// advances decoding from the main loop and tears the session down.
package playback

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"

	"github.com/micro-nova/musicbox-go/internal/audio"
	"github.com/micro-nova/musicbox-go/internal/events"
	"github.com/micro-nova/musicbox-go/internal/models"
)

// File name parts. The layout on the card is fixed: /word1.mp3 .. /music4.mp3.
const (
	WordPrefix    = "/word"
	MusicPrefix   = "/music"
	FileExtension = ".mp3"
)

// Source opens sound files by absolute name, e.g. "/word2.mp3".
type Source interface {
	Open(name string) (io.ReadCloser, error)
}

// Status is the result of a Tick.
type Status int

const (
	StatusIdle     Status = iota // nothing playing
	StatusPlaying                // decoding progressed
	StatusFinished               // the stream ended and the session was closed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPlaying:
		return "playing"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// FileName builds the sound file name for a slot of a bank.
func FileName(bank models.Bank, slot int) (string, error) {
	if !models.ValidSlot(slot) {
		return "", errors.Wrapf(models.ErrInvalidSlot, "playback: slot %d", slot)
	}
	var prefix string
	switch bank {
	case models.BankWords:
		prefix = WordPrefix
	case models.BankMusic:
		prefix = MusicPrefix
	default:
		return "", errors.Wrapf(models.ErrInvalidBank, "playback: %s", bank)
	}
	return prefix + strconv.Itoa(slot) + FileExtension, nil
}

// session is the one in-progress playback.
type session struct {
	path    string
	bank    models.Bank
	stream  io.ReadCloser
	started time.Time
}

// Controller owns at most one playback session. It is driven exclusively
// from the main loop and is not safe for concurrent use.
type Controller struct {
	name string
	src  Source
	dec  audio.Decoder
	out  audio.Sink
	bus  *events.Bus

	cur *session
}

// New creates an idle controller playing files from src. bus may be nil.
func New(name string, src Source, dec audio.Decoder, out audio.Sink, bus *events.Bus) *Controller {
	return &Controller{
		name: name,
		src:  src,
		dec:  dec,
		out:  out,
		bus:  bus,
	}
}

// RequestPlay stops any current session and starts the file for slot of
// bank. Invalid input is rejected before anything is stopped or opened.
func (c *Controller) RequestPlay(bank models.Bank, slot int) error {
	name, err := FileName(bank, slot)
	if err != nil {
		return err
	}
	return c.play(name, bank)
}

// PlayFile stops any current session and starts the named file, which
// belongs to neither bank.
func (c *Controller) PlayFile(name string) error {
	return c.play(name, models.BankNone)
}

func (c *Controller) play(name string, bank models.Bank) error {
	c.StopCurrent()

	stream, err := c.src.Open(name)
	if err != nil {
		c.publish(models.EventOpenFailed, bank, name)
		return errors.Mark(errors.Wrapf(err, "playback: open %s", name), models.ErrFileOpen)
	}

	logMetadata(c.name, name, stream)

	if err := c.dec.Begin(stream, c.out); err != nil {
		c.dec.Stop()
		if serr := c.out.Stop(); serr != nil {
			slog.Warn("playback: output stop failed", "player", c.name, "err", serr)
		}
		if cerr := stream.Close(); cerr != nil {
			slog.Warn("playback: stream close failed", "player", c.name, "err", cerr)
		}
		return errors.Wrapf(err, "playback: begin %s", name)
	}

	c.cur = &session{path: name, bank: bank, stream: stream, started: time.Now()}
	slog.Info("playback: started", "player", c.name, "file", name)
	c.publish(models.EventPlaybackStarted, bank, name)
	return nil
}

// Tick advances decoding by one step. When the decoder reports the stream
// exhausted, the session is closed and StatusFinished is returned.
func (c *Controller) Tick() Status {
	if c.cur == nil {
		return StatusIdle
	}
	if c.dec.Step() {
		return StatusPlaying
	}
	cur := c.cur
	c.teardown()
	slog.Info("playback: finished", "player", c.name, "file", cur.path, "elapsed", time.Since(cur.started))
	c.publish(models.EventPlaybackFinished, cur.bank, cur.path)
	return StatusFinished
}

// StopCurrent closes the active session, if any.
func (c *Controller) StopCurrent() {
	if c.cur == nil {
		return
	}
	cur := c.cur
	c.teardown()
	slog.Info("playback: stopped", "player", c.name, "file", cur.path)
	c.publish(models.EventPlaybackStopped, cur.bank, cur.path)
}

// teardown runs the stop sequence: decoder, then output, then stream.
func (c *Controller) teardown() {
	c.dec.Stop()
	if err := c.out.Stop(); err != nil {
		slog.Warn("playback: output stop failed", "player", c.name, "err", err)
	}
	if err := c.cur.stream.Close(); err != nil {
		slog.Warn("playback: stream close failed", "player", c.name, "file", c.cur.path, "err", err)
	}
	c.cur = nil
}

// Drain ticks until the current session finishes. If ctx is cancelled first
// the session is stopped and ctx.Err() returned.
func (c *Controller) Drain(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.StopCurrent()
			return ctx.Err()
		default:
		}
		if c.Tick() != StatusPlaying {
			return nil
		}
	}
}

// Active reports whether a session is open.
func (c *Controller) Active() bool { return c.cur != nil }

// Current returns the file being played, or "" when idle.
func (c *Controller) Current() string {
	if c.cur == nil {
		return ""
	}
	return c.cur.path
}

func (c *Controller) publish(t models.EventType, bank models.Bank, path string) {
	c.bus.Publish(models.Event{Type: t, Player: c.name, Bank: bank, Path: path, Time: time.Now()})
}

// logMetadata logs the ID3 title/artist at debug level when the stream is
// seekable, then rewinds it for the decoder.
func logMetadata(player, name string, stream io.Reader) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	rs, ok := stream.(io.ReadSeeker)
	if !ok {
		return
	}
	m, err := tag.ReadFrom(rs)
	if err == nil {
		slog.Debug("playback: file metadata", "player", player, "file", name,
			"title", m.Title(), "artist", m.Artist(), "format", m.Format())
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		slog.Warn("playback: rewind failed", "player", player, "file", name, "err", err)
	}
}

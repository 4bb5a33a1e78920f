// Package metrics counts device events and writes them to a node_exporter
// textfile, so battery and usage stats can be collected without the device
// listening on the network.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/micro-nova/musicbox-go/internal/events"
	"github.com/micro-nova/musicbox-go/internal/models"
)

const subscriberID = "metrics"

// Recorder turns bus events into prometheus counters.
type Recorder struct {
	reg      *prometheus.Registry
	textfile string

	plays        *prometheus.CounterVec
	finished     *prometheus.CounterVec
	stopped      *prometheus.CounterVec
	openFailures *prometheus.CounterVec
	bankSwitches prometheus.Counter
	sleeps       prometheus.Counter
	wakes        prometheus.Counter
}

// New creates a Recorder. textfile may be empty, in which case Flush is a no-op.
func New(textfile string) *Recorder {
	r := &Recorder{
		reg:      prometheus.NewRegistry(),
		textfile: textfile,
		plays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "musicbox_playback_started_total",
			Help: "Sound files started, by player and bank.",
		}, []string{"player", "bank"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "musicbox_playback_finished_total",
			Help: "Sound files played to the end, by player.",
		}, []string{"player"}),
		stopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "musicbox_playback_stopped_total",
			Help: "Sound files cut short by another request, by player.",
		}, []string{"player"}),
		openFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "musicbox_open_failures_total",
			Help: "Sound files that could not be opened, by file.",
		}, []string{"file"}),
		bankSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "musicbox_bank_switches_total",
			Help: "Mode button bank switches.",
		}),
		sleeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "musicbox_sleeps_total",
			Help: "Idle timeouts that put the device to sleep.",
		}),
		wakes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "musicbox_wakes_total",
			Help: "Wake cycles after sleep.",
		}),
	}
	r.reg.MustRegister(r.plays, r.finished, r.stopped, r.openFailures, r.bankSwitches, r.sleeps, r.wakes)
	return r
}

// Registry returns the registry holding the counters.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Observe updates counters for one event.
func (r *Recorder) Observe(ev models.Event) {
	switch ev.Type {
	case models.EventPlaybackStarted:
		r.plays.WithLabelValues(ev.Player, ev.Bank.String()).Inc()
	case models.EventPlaybackFinished:
		r.finished.WithLabelValues(ev.Player).Inc()
	case models.EventPlaybackStopped:
		r.stopped.WithLabelValues(ev.Player).Inc()
	case models.EventOpenFailed:
		r.openFailures.WithLabelValues(ev.Path).Inc()
	case models.EventBankChanged:
		r.bankSwitches.Inc()
	case models.EventSleep:
		r.sleeps.Inc()
	case models.EventWake:
		r.wakes.Inc()
	}
}

// Start subscribes to bus before returning, so no event published after
// Start is missed, then consumes events in a goroutine until ctx is
// cancelled. The textfile is written every interval, on sleep and on exit.
// The returned channel is closed once the final write is done.
func (r *Recorder) Start(ctx context.Context, bus *events.Bus, interval time.Duration) <-chan struct{} {
	ch := bus.Subscribe(subscriberID,
		models.EventPlaybackStarted, models.EventPlaybackFinished, models.EventPlaybackStopped,
		models.EventOpenFailed, models.EventBankChanged, models.EventSleep, models.EventWake)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer bus.Unsubscribe(subscriberID)
		r.run(ctx, ch, interval)
	}()
	return done
}

func (r *Recorder) run(ctx context.Context, ch <-chan models.Event, interval time.Duration) {
	var tick <-chan time.Time
	if r.textfile != "" && interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			r.drain(ch)
			r.flushOrWarn()
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.Observe(ev)
			if ev.Type == models.EventSleep {
				r.flushOrWarn()
			}
		case <-tick:
			r.flushOrWarn()
		}
	}
}

// drain observes events already queued when shutdown starts.
func (r *Recorder) drain(ch <-chan models.Event) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.Observe(ev)
		default:
			return
		}
	}
}

// Flush writes the textfile. It satisfies power.Flusher.
func (r *Recorder) Flush() error {
	if r.textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(r.textfile, r.reg); err != nil {
		return errors.Wrapf(err, "metrics: write %s", r.textfile)
	}
	return nil
}

func (r *Recorder) flushOrWarn() {
	if err := r.Flush(); err != nil {
		slog.Warn("metrics: flush failed", "err", err)
	}
}

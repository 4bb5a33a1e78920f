// Package idle implements the idle sleep supervisor: a single restartable
// countdown whose expiry tells the main loop to put the device to sleep.
package idle

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// DefaultTimeout is the idle time before the device sleeps.
const DefaultTimeout = 300 * time.Second

// ErrInvalidDuration is returned by New for a non-positive timeout.
var ErrInvalidDuration = errors.New("idle: timeout must be positive")

// Supervisor is a one-shot, restartable idle countdown.
//
// Expiry runs on the runtime timer goroutine. It only records the expiry,
// closes the Expired channel and calls onExpire; the main loop consumes the
// channel and performs the sleep itself. A nil *Supervisor is valid and
// never expires.
type Supervisor struct {
	timeout  time.Duration
	onExpire func()

	mu       sync.Mutex
	timer    *time.Timer
	deadline time.Time // expiry of the latest restart; earlier firings are stale
	started  bool
	stopped  bool
	fired    bool
	expired  chan struct{}
}

// New creates a supervisor. onExpire may be nil; it must be quick and must
// not touch state owned by the main loop.
func New(timeout time.Duration, onExpire func()) (*Supervisor, error) {
	if timeout <= 0 {
		return nil, errors.Wrapf(ErrInvalidDuration, "idle: timeout %s", timeout)
	}
	return &Supervisor{
		timeout:  timeout,
		onExpire: onExpire,
		expired:  make(chan struct{}),
	}, nil
}

// Start begins the countdown. Calling Start again is a no-op.
func (s *Supervisor) Start() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.restartLocked()
}

// NoteActivity restarts the countdown from the full timeout. It has no
// effect before Start, after Stop, or once the supervisor has fired.
func (s *Supervisor) NoteActivity() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped || s.fired {
		return
	}
	s.restartLocked()
}

// restartLocked re-arms the single countdown timer. It runs on every decode
// step, so the timer is reset rather than reallocated.
func (s *Supervisor) restartLocked() {
	s.deadline = time.Now().Add(s.timeout)
	if s.timer == nil {
		s.timer = time.AfterFunc(s.timeout, s.fire)
		return
	}
	s.timer.Reset(s.timeout)
}

func (s *Supervisor) fire() {
	s.mu.Lock()
	if s.stopped || s.fired || time.Now().Before(s.deadline) {
		s.mu.Unlock()
		return
	}
	s.fired = true
	close(s.expired)
	s.mu.Unlock()

	slog.Info("idle: timeout expired", "timeout", s.timeout)
	if s.onExpire != nil {
		s.onExpire()
	}
}

// Stop cancels the countdown permanently.
func (s *Supervisor) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
}

// Expired returns a channel closed when the countdown fires. For a nil
// supervisor it returns a nil channel, which blocks forever.
func (s *Supervisor) Expired() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.expired
}

// Fired reports whether the countdown has fired.
func (s *Supervisor) Fired() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Timeout returns the configured countdown length.
func (s *Supervisor) Timeout() time.Duration {
	if s == nil {
		return 0
	}
	return s.timeout
}

package musicbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/micro-nova/musicbox-go/internal/bank"
	"github.com/micro-nova/musicbox-go/internal/button"
	"github.com/micro-nova/musicbox-go/internal/events"
	"github.com/micro-nova/musicbox-go/internal/hardware"
	"github.com/micro-nova/musicbox-go/internal/models"
	"github.com/micro-nova/musicbox-go/internal/musicbox"
)

var testGains = bank.Gains{Words: 0.4, Music: 0.3}

type rig struct {
	box      *musicbox.Box
	sounds   []*hardware.MockPin
	mode     *hardware.MockPin
	internal *fakeVolume
	external *fakeVolume
	sink     *fakeSink
	sleeper  *fakeSleeper
	bus      *events.Bus
}

func cardFiles() []string {
	return []string{
		"/word1.mp3", "/word2.mp3", "/word3.mp3", "/word4.mp3",
		"/music1.mp3", "/music2.mp3", "/music3.mp3",
	}
}

func newRig(t *testing.T, opts musicbox.Options) *rig {
	t.Helper()
	r := &rig{
		internal: newFakeVolume("internal", "/init.mp3"),
		external: newFakeVolume("card", cardFiles()...),
		sink:     &fakeSink{},
		sleeper:  &fakeSleeper{},
		bus:      events.NewBus(),
		mode:     hardware.NewMockPin("GPIO12"),
	}

	var sounds []*button.Button
	for _, name := range []string{"GPIO14", "GPIO15", "GPIO27", "GPIO13"} {
		p := hardware.NewMockPin(name)
		b, err := button.New([]hardware.Pin{p}, button.Config{})
		require.NoError(t, err)
		r.sounds = append(r.sounds, p)
		sounds = append(sounds, b)
	}
	mode, err := button.New([]hardware.Pin{r.mode}, button.Config{})
	require.NoError(t, err)

	if opts.Gains == (bank.Gains{}) {
		opts.Gains = testGains
	}
	if opts.InitSound == "" {
		opts.InitSound = "/init.mp3"
	}

	r.box, err = musicbox.New(musicbox.Parts{
		SoundButtons: sounds,
		ModeButton:   mode,
		Internal:     r.internal,
		External:     r.external,
		Decoder:      &fakeDecoder{steps: 1000},
		Output:       r.sink,
		Sleeper:      r.sleeper,
		Bus:          r.bus,
	}, opts)
	require.NoError(t, err)
	t.Cleanup(r.box.Close)
	return r
}

// click presses and releases a pin, stepping the loop on each edge.
func (r *rig) click(p *hardware.MockPin) {
	p.Set(gpio.High)
	r.box.Step()
	p.Set(gpio.Low)
	r.box.Step()
}

func nextEvent(t *testing.T, ch <-chan models.Event, want models.EventType) models.Event {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", want)
			return models.Event{}
		}
	}
}

func TestNewRequiresAllButtons(t *testing.T) {
	_, err := musicbox.New(musicbox.Parts{SoundButtons: make([]*button.Button, 3)}, musicbox.Options{})
	assert.Error(t, err)
}

func TestSetupPlaysInitSoundAtMusicGain(t *testing.T) {
	r := newRig(t, musicbox.Options{IdleTimeout: time.Minute})

	require.NoError(t, r.box.Setup(context.Background()))

	assert.Equal(t, 1, r.internal.mounts)
	assert.Equal(t, 1, r.external.mounts)
	assert.Equal(t, []string{"/init.mp3"}, r.internal.opened)
	assert.Equal(t, []float64{0.3, 0.4}, r.sink.gains, "init at MUSIC gain, then WORDS gain")
	assert.Equal(t, models.BankWords, r.box.Bank())
	assert.Equal(t, "", r.box.Playing())
	assert.True(t, r.sleeper.armed)
	require.NotNil(t, r.box.Idle())
	assert.False(t, r.box.Idle().Fired())
}

func TestSetupMissingInitSoundIsNotFatal(t *testing.T) {
	r := newRig(t, musicbox.Options{IdleTimeout: time.Minute})
	delete(r.internal.files, "/init.mp3")

	require.NoError(t, r.box.Setup(context.Background()))
	assert.Equal(t, 0.4, r.sink.Gain())
}

func TestSetupAbortsOnMountFailure(t *testing.T) {
	t.Run("internal", func(t *testing.T) {
		r := newRig(t, musicbox.Options{IdleTimeout: time.Minute})
		r.internal.mountErr = errors.New("no flash")

		err := r.box.Setup(context.Background())
		assert.True(t, errors.Is(err, models.ErrStorageMount))
		assert.Equal(t, 0, r.external.mounts)
		assert.Nil(t, r.box.Idle())
		assert.Empty(t, r.sink.gains)
	})
	t.Run("card", func(t *testing.T) {
		r := newRig(t, musicbox.Options{IdleTimeout: time.Minute})
		r.external.mountErr = errors.New("no card")

		err := r.box.Setup(context.Background())
		assert.True(t, errors.Is(err, models.ErrStorageMount))
		assert.Empty(t, r.internal.opened, "init sound not played")
	})
}

func TestHaltAfterCardFailureStillSleeps(t *testing.T) {
	r := newRig(t, musicbox.Options{IdleTimeout: 30 * time.Millisecond})
	r.external.mountErr = errors.New("no card")

	require.Error(t, r.box.Setup(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := r.box.Halt(ctx)
	assert.True(t, errors.Is(err, models.ErrAsleep))
	assert.Equal(t, 1, r.sleeper.count())
}

func TestHaltAfterInternalFailureWaitsForCancel(t *testing.T) {
	r := newRig(t, musicbox.Options{IdleTimeout: 10 * time.Millisecond})
	r.internal.mountErr = errors.New("no flash")

	require.Error(t, r.box.Setup(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.box.Halt(ctx), context.DeadlineExceeded)
	assert.Equal(t, 0, r.sleeper.count(), "no timer was started")
}

func TestSetupWithoutTimerStaysAwake(t *testing.T) {
	r := newRig(t, musicbox.Options{})
	require.NoError(t, r.box.Setup(context.Background()))
	assert.Nil(t, r.box.Idle())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.box.Run(ctx), context.DeadlineExceeded)
	assert.Equal(t, 0, r.sleeper.count())
}

func TestSoundButtonsPlayBankFiles(t *testing.T) {
	r := newRig(t, musicbox.Options{IdleTimeout: time.Minute})
	require.NoError(t, r.box.Setup(context.Background()))

	for i, p := range r.sounds {
		r.click(p)
		assert.Equal(t, "/word"+string(rune('1'+i))+".mp3", r.box.Playing())
	}
}

func TestModeSwitchWhilePlaying(t *testing.T) {
	r := newRig(t, musicbox.Options{IdleTimeout: time.Minute})
	ch := r.bus.Subscribe("test")
	require.NoError(t, r.box.Setup(context.Background()))

	r.click(r.sounds[1])
	require.Equal(t, "/word2.mp3", r.box.Playing())

	stops := r.sink.stops
	r.click(r.mode)
	assert.Equal(t, models.BankMusic, r.box.Bank())
	assert.Equal(t, "", r.box.Playing(), "bank switch stops playback")
	assert.Greater(t, r.sink.stops, stops)
	assert.Equal(t, 0.4, r.sink.Gain(), "legacy policy keeps the WORDS gain in MUSIC")

	ev := nextEvent(t, ch, models.EventBankChanged)
	assert.Equal(t, models.BankMusic, ev.Bank)

	r.click(r.sounds[1])
	assert.Equal(t, "/music2.mp3", r.box.Playing())

	r.click(r.mode)
	assert.Equal(t, models.BankWords, r.box.Bank())
	assert.Equal(t, 0.3, r.sink.Gain())
}

func TestModeSwitchFollowPolicy(t *testing.T) {
	r := newRig(t, musicbox.Options{IdleTimeout: time.Minute, GainPolicy: bank.PolicyFollow})
	require.NoError(t, r.box.Setup(context.Background()))

	r.click(r.mode)
	assert.Equal(t, 0.3, r.sink.Gain())
}

func TestMissingFileKeepsLoopRunning(t *testing.T) {
	r := newRig(t, musicbox.Options{IdleTimeout: time.Minute})
	ch := r.bus.Subscribe("test")
	require.NoError(t, r.box.Setup(context.Background()))

	r.click(r.mode)
	r.click(r.sounds[3])

	assert.Equal(t, "", r.box.Playing())
	ev := nextEvent(t, ch, models.EventOpenFailed)
	assert.Equal(t, "/music4.mp3", ev.Path)

	r.click(r.sounds[0])
	assert.Equal(t, "/music1.mp3", r.box.Playing())
}

func TestIdleExpirySleepsOnce(t *testing.T) {
	r := newRig(t, musicbox.Options{IdleTimeout: 40 * time.Millisecond, PollInterval: time.Millisecond})
	ch := r.bus.Subscribe("test")
	require.NoError(t, r.box.Setup(context.Background()))

	err := r.box.Run(context.Background())
	assert.True(t, errors.Is(err, models.ErrAsleep))
	assert.Equal(t, 1, r.sleeper.count())
	assert.True(t, r.box.Idle().Fired())

	nextEvent(t, ch, models.EventSleep)
	nextEvent(t, ch, models.EventWake)
}

func TestSleepFailureStillReinitializes(t *testing.T) {
	r := newRig(t, musicbox.Options{IdleTimeout: 20 * time.Millisecond, PollInterval: time.Millisecond})
	r.sleeper.err = errors.New("suspend refused")
	require.NoError(t, r.box.Setup(context.Background()))

	assert.True(t, errors.Is(r.box.Run(context.Background()), models.ErrAsleep))
}

func TestButtonActivityResetsIdleWhenEnabled(t *testing.T) {
	tests := []struct {
		name      string
		reset     bool
		wantFired bool
	}{
		{"reset on button", true, false},
		{"playback only", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, musicbox.Options{IdleTimeout: 100 * time.Millisecond, ResetIdleOnButton: tt.reset})
			delete(r.internal.files, "/init.mp3")
			r.external.files = map[string]bool{}
			require.NoError(t, r.box.Setup(context.Background()))

			deadline := time.Now().Add(250 * time.Millisecond)
			for time.Now().Before(deadline) {
				r.click(r.sounds[0])
				time.Sleep(10 * time.Millisecond)
			}
			assert.Equal(t, tt.wantFired, r.box.Idle().Fired())
		})
	}
}

func TestCloseStopsPlayback(t *testing.T) {
	r := newRig(t, musicbox.Options{IdleTimeout: time.Minute})
	require.NoError(t, r.box.Setup(context.Background()))
	r.click(r.sounds[2])
	require.NotEmpty(t, r.box.Playing())

	r.box.Close()
	assert.Equal(t, "", r.box.Playing())
	r.box.Close()
}

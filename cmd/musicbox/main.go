// Command musicbox is the button-driven MP3 player daemon: four sound buttons,
// a mode button switching between the WORDS and MUSIC banks, and an idle
// timer that puts the device to sleep.
// Run with --mock to use simulated buttons and a silent audio output.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"periph.io/x/conn/v3/gpio"

	"github.com/micro-nova/musicbox-go/internal/audio"
	"github.com/micro-nova/musicbox-go/internal/button"
	"github.com/micro-nova/musicbox-go/internal/config"
	"github.com/micro-nova/musicbox-go/internal/diag"
	"github.com/micro-nova/musicbox-go/internal/events"
	"github.com/micro-nova/musicbox-go/internal/hardware"
	"github.com/micro-nova/musicbox-go/internal/identity"
	"github.com/micro-nova/musicbox-go/internal/metrics"
	"github.com/micro-nova/musicbox-go/internal/models"
	"github.com/micro-nova/musicbox-go/internal/musicbox"
	"github.com/micro-nova/musicbox-go/internal/playback"
	"github.com/micro-nova/musicbox-go/internal/power"
	"github.com/micro-nova/musicbox-go/internal/storage"
)

var (
	app        = kingpin.New("musicbox", "Button-driven MP3 music box")
	configPath = app.Flag("config", "Path to config file").Default(config.DefaultPath).String()
	debug      = app.Flag("debug", "Enable debug logging").Bool()
	mock       = app.Flag("mock", "Use mock GPIO pins and a silent audio output").Bool()

	runCmd        = app.Command("run", "Run the music box (default)").Default()
	checkCmd      = app.Command("check-config", "Validate the config file and exit")
	filesCmd      = app.Command("files", "Print the button to file table and exit")
	initConfigCmd = app.Command("init-config", "Write the built-in defaults to the config path")
)

func main() {
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == initConfigCmd.FullCommand() {
		if err := config.Write(*configPath, config.Default()); err != nil {
			fmt.Fprintf(os.Stderr, "musicbox: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "musicbox: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case checkCmd.FullCommand():
		fmt.Printf("%s: ok\n", *configPath)
		return
	case filesCmd.FullCommand():
		printFiles(cfg)
		return
	case runCmd.FullCommand():
	}

	if err := run(cfg); err != nil {
		slog.Error("musicbox: exiting", "err", err)
		os.Exit(1)
	}
}

// run owns every long-lived resource so deferred cleanup runs on any exit.
func run(cfg *config.Config) error {
	logSink, err := diag.NewSink(os.Stderr, cfg.Diag.Serial, cfg.Diag.Baud)
	if err != nil {
		// Keep going without the serial mirror.
		fmt.Fprintf(os.Stderr, "musicbox: %v\n", err)
		logSink, _ = diag.NewSink(os.Stderr, "", 0)
	}
	defer logSink.Close()

	level := diag.ParseLevel(cfg.Diag.Level)
	if *debug {
		level = slog.LevelDebug
	}
	diag.Setup(logSink, level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var hw hardware.Driver
	if *mock {
		slog.Info("using mock gpio driver")
		hw = hardware.NewMock()
	} else {
		slog.Info("using periph gpio driver")
		hw = hardware.NewGPIO()
	}
	if err := hw.Init(ctx); err != nil {
		return errors.Wrap(err, "gpio init")
	}

	soundButtons, modeButton, err := buildButtons(hw, cfg)
	if err != nil {
		return err
	}
	wakePins, err := hardware.Pins(hw, cfg.WakePins())
	if err != nil {
		return errors.Wrap(err, "wake pins")
	}

	// The audio device is opened once per process and reused across wake cycles.
	var out audio.Sink
	if *mock {
		out = audio.NewNullSink(cfg.Audio.SampleRate)
	} else {
		otoSink, err := audio.NewOtoSink(cfg.Audio.SampleRate, cfg.OutputBuffer())
		if err != nil {
			return errors.Wrap(err, "audio output")
		}
		defer otoSink.Close()
		out = otoSink
	}

	bus := events.NewBus()
	recorder := metrics.New(cfg.Metrics.Textfile)
	metricsDone := recorder.Start(ctx, bus, cfg.MetricsInterval())
	defer func() {
		cancel()
		<-metricsDone
	}()

	wakePull := gpio.PullDown
	if cfg.Buttons.PullUp {
		wakePull = gpio.PullUp
	}
	sleeper := power.New(power.Method(cfg.Power.Method), cfg.Power.Command, wakePins, logSink, recorder)

	internal := storage.New("internal", cfg.Storage.InternalRoot, false)
	external := storage.New("card", cfg.Storage.ExternalRoot, !cfg.Storage.SkipMountCheck)

	parts := musicbox.Parts{
		SoundButtons: soundButtons,
		ModeButton:   modeButton,
		Internal:     internal,
		External:     external,
		Decoder:      audio.NewMP3Decoder(),
		Output:       out,
		Sleeper:      sleeper,
		Bus:          bus,
	}
	opts := musicbox.Options{
		Gains:             cfg.Gains(),
		GainPolicy:        cfg.GainPolicy(),
		IdleTimeout:       cfg.IdleTimeout(),
		ResetIdleOnButton: cfg.Idle.ResetOnButton,
		InitSound:         cfg.Audio.InitSound,
		PollInterval:      cfg.PollInterval(),
		WakePull:          wakePull,
	}

	watching := false
	for cycle := 1; ; cycle++ {
		id := identity.New(cycle, cfg.Storage.InternalRoot)
		slog.Info("musicbox: starting", id.LogAttrs()...)

		box, err := musicbox.New(parts, opts)
		if err != nil {
			return err
		}

		if err := box.Setup(ctx); err != nil {
			if ctx.Err() != nil {
				box.Close()
				return nil
			}
			// No retry while awake. A started sleep timer still puts the
			// device to sleep, and a wake runs setup again.
			slog.Error("musicbox: setup failed, halted", "err", err)
			herr := box.Halt(ctx)
			box.Close()
			if errors.Is(herr, models.ErrAsleep) {
				continue
			}
			return err
		}

		if cfg.Storage.Watch && !watching {
			if err := external.Watch(ctx, nil); err != nil {
				slog.Warn("musicbox: card watch unavailable", "err", err)
			} else {
				slog.Info("musicbox: watching card", "root", external.Root())
			}
			watching = true
		}

		err = box.Run(ctx)
		box.Close()
		switch {
		case errors.Is(err, models.ErrAsleep):
			continue
		case ctx.Err() != nil:
			slog.Info("musicbox: shutting down")
			return nil
		default:
			return err
		}
	}
}

func buildButtons(hw hardware.Driver, cfg *config.Config) ([]*button.Button, *button.Button, error) {
	bcfg := button.Config{
		PullUp:   cfg.Buttons.PullUp,
		Invert:   cfg.Buttons.Invert,
		Debounce: cfg.Debounce(),
	}

	sounds := make([]*button.Button, 0, len(cfg.Buttons.SoundPins))
	for _, name := range cfg.Buttons.SoundPins {
		pins, err := hardware.Pins(hw, []string{name})
		if err != nil {
			return nil, nil, errors.Wrapf(err, "sound button %s", name)
		}
		b, err := button.New(pins, bcfg)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "sound button %s", name)
		}
		sounds = append(sounds, b)
		slog.Info("musicbox: sound button ready", "slot", len(sounds), "pins", b.PinNames())
	}

	pins, err := hardware.Pins(hw, cfg.Buttons.ModePins)
	if err != nil {
		return nil, nil, errors.Wrap(err, "mode button")
	}
	mcfg := bcfg
	mcfg.PullUp = *cfg.Buttons.ModePullUp
	mcfg.Invert = *cfg.Buttons.ModeInvert
	mode, err := button.New(pins, mcfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "mode button")
	}
	slog.Info("musicbox: mode button ready", "pins", mode.PinNames(), "pull_up", mcfg.PullUp, "invert", mcfg.Invert)
	return sounds, mode, nil
}

// printFiles lists which file each button plays and whether it is on the card.
func printFiles(cfg *config.Config) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BANK\tBUTTON\tPIN\tFILE\tPRESENT")
	for _, b := range []models.Bank{models.BankWords, models.BankMusic} {
		for slot := 1; slot <= models.SlotCount; slot++ {
			name, _ := playback.FileName(b, slot)
			_, err := os.Stat(filepath.Join(cfg.Storage.ExternalRoot, name))
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%t\n", b, slot, cfg.Buttons.SoundPins[slot-1], name, err == nil)
		}
	}
	_, err := os.Stat(filepath.Join(cfg.Storage.InternalRoot, cfg.Audio.InitSound))
	fmt.Fprintf(w, "%s\t-\t-\t%s\t%t\n", "init", cfg.Audio.InitSound, err == nil)
	w.Flush()
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gordonklaus/portaudio"

	"github.com/yuhao-he/voice-input-assistant/internal/config"
	"github.com/yuhao-he/voice-input-assistant/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the settings file (default: per-user config dir)")
	logLevel := flag.String("log-level", "", "override the configured log level (trace, debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := logging.WithComponent("main")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Audio.Backend == config.BackendPortAudio {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("initialize portaudio: %w", err)
		}
		defer portaudio.Terminate()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := NewApp(cfg)
	if err := app.Startup(); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer app.Shutdown()

	log.Info().Str("hotkey", cfg.Hotkey.Chord).Msg("listening for the push-to-talk hotkey")
	return app.Run(ctx)
}

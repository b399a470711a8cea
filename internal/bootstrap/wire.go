// Package bootstrap assembles the runtime object graph from configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yuhao-he/voice-input-assistant/internal/audio"
	"github.com/yuhao-he/voice-input-assistant/internal/config"
	"github.com/yuhao-he/voice-input-assistant/internal/hotkey"
	"github.com/yuhao-he/voice-input-assistant/internal/logging"
	"github.com/yuhao-he/voice-input-assistant/internal/paste"
	"github.com/yuhao-he/voice-input-assistant/internal/ports"
	"github.com/yuhao-he/voice-input-assistant/internal/postprocess"
	"github.com/yuhao-he/voice-input-assistant/internal/providers/deepgram"
	"github.com/yuhao-he/voice-input-assistant/internal/providers/googlespeech"
	"github.com/yuhao-he/voice-input-assistant/internal/rules"
	"github.com/yuhao-he/voice-input-assistant/internal/usecase"
)

// newPasteInjector is a seam for tests: the real injector registers a virtual
// keyboard device at construction time, which test environments do not have.
var newPasteInjector = func(modifierHeld func() bool) (ports.PasteInjector, error) {
	return paste.New(modifierHeld)
}

// Services is the assembled runtime graph. The listener is wired to the
// controller but not started; the caller owns its Run loop.
type Services struct {
	Controller *usecase.SessionController
	Listener   *hotkey.Listener
	Config     config.Config

	closeProvider func() error
}

// Close releases provider resources. Call it after the listener has stopped
// and any active session has been cancelled.
func (s *Services) Close() error {
	if s.closeProvider == nil {
		return nil
	}
	return s.closeProvider()
}

// Build wires all backend dependencies from an already-loaded configuration.
func Build(cfg config.Config, events ports.EventSink) (Services, error) {
	log := logging.WithComponent("bootstrap")

	capture, err := buildCapture(cfg.Audio, events)
	if err != nil {
		return Services{}, err
	}

	provider, closeProvider, err := buildProvider(cfg)
	if err != nil {
		return Services{}, err
	}

	rulesEngine, err := rules.NewEngine(cfg.Rules.Path, rulePairs(cfg.Rules.Replacements), cfg.Rules.IterationLimit)
	if err != nil {
		return Services{}, fmt.Errorf("rules engine: %w", err)
	}

	// The listener and the controller reference each other: hotkey actions
	// flow into the controller, and the paste injector asks the listener
	// whether the chord still holds the paste modifier down. The handler
	// closes over the controller variable, which is assigned below before
	// the listener can ever run.
	var controller *usecase.SessionController
	listener, err := hotkey.NewListener(hotkey.Config{
		Chord:        cfg.Hotkey.Chord,
		TapToRecord:  cfg.Hotkey.TapToRecord,
		TapThreshold: cfg.Session.TapThreshold(),
	}, func(action hotkey.Action) {
		dispatchAction(controller, action, log)
	})
	if err != nil {
		return Services{}, fmt.Errorf("hotkey listener: %w", err)
	}

	injector, err := newPasteInjector(listener.PasteModifierHeld)
	if err != nil {
		return Services{}, fmt.Errorf("paste injector: %w", err)
	}

	controller = usecase.NewSessionController(
		capture,
		provider,
		postprocess.NewProcessor(postprocess.Config{
			APIKey:  cfg.Gemini.APIKey,
			BaseURL: cfg.Gemini.BaseURL,
			Model:   cfg.Gemini.Model,
			Prompt:  cfg.Gemini.Prompt,
		}),
		rulesEngine,
		injector,
		events,
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:      cfg.Audio.SampleRate,
				Channels:        cfg.Audio.Channels,
				FramesPerBuffer: cfg.Audio.FramesPerBuffer,
				QueueCapacity:   cfg.Audio.QueueCapacity,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
			},
			TailCapture:       cfg.Session.TailCapture(),
			PasteDelay:        cfg.Session.PasteDelay(),
			RestoreDelay:      cfg.Session.RestoreDelay(),
			StreamWaitTimeout: cfg.Session.StreamWaitTimeout(),
		},
	)

	return Services{
		Controller:    controller,
		Listener:      listener,
		Config:        cfg,
		closeProvider: closeProvider,
	}, nil
}

func buildCapture(cfg config.AudioConfig, events ports.EventSink) (ports.AudioCapture, error) {
	switch cfg.Backend {
	case config.BackendPortAudio:
		return audio.NewPortAudioCapture(events.VolumeLevel), nil
	case config.BackendFFmpeg:
		return audio.NewFFmpegCapture(cfg.FFmpegCommand, cfg.InputFormat, cfg.InputDevice, events.VolumeLevel), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}

func buildProvider(cfg config.Config) (ports.TranscriptionProvider, func() error, error) {
	switch cfg.Provider {
	case config.ProviderGoogle:
		provider := googlespeech.NewProvider(googlespeech.Config{
			CredentialsFile: cfg.Google.CredentialsFile,
			LanguageCode:    cfg.Google.LanguageCode,
			Model:           cfg.Google.Model,
			UseEnhanced:     cfg.Google.UseEnhanced,
			BoostPhrases:    cfg.Google.BoostPhrases,
			BoostValue:      cfg.Google.BoostValue,
		})
		return provider, provider.Close, nil
	case config.ProviderDeepgram:
		provider := deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
			Keywords:    cfg.Deepgram.Keywords,
		})
		return provider, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
	}
}

func rulePairs(replacements []config.Replacement) []rules.Replacement {
	pairs := make([]rules.Replacement, 0, len(replacements))
	for _, r := range replacements {
		pairs = append(pairs, rules.Replacement{Find: r.Find, Replace: r.Replace})
	}
	return pairs
}

func dispatchAction(controller *usecase.SessionController, action hotkey.Action, log zerolog.Logger) {
	switch action {
	case hotkey.ActionPress:
		if err := controller.Press(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to start recording")
		}
	case hotkey.ActionRelease:
		_ = controller.Release()
	case hotkey.ActionLatch:
		controller.Latch()
	case hotkey.ActionCancel:
		_ = controller.Cancel()
	}
}

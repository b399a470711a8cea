package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"

	"github.com/yuhao-he/voice-input-assistant/internal/bootstrap"
	"github.com/yuhao-he/voice-input-assistant/internal/config"
	"github.com/yuhao-he/voice-input-assistant/internal/domain"
	"github.com/yuhao-he/voice-input-assistant/internal/logging"
	"github.com/yuhao-he/voice-input-assistant/internal/usecase"
)

const notifyTitle = "Voice Input"

// App is the daemon root. It owns the assembled services and doubles as the
// event sink, translating backend events into logs and desktop notifications.
type App struct {
	cfg config.Config
	log zerolog.Logger

	controller *usecase.SessionController
	services   bootstrap.Services
	bootErr    error
}

func NewApp(cfg config.Config) *App {
	return &App{cfg: cfg, log: logging.WithComponent("app")}
}

// Startup assembles the runtime graph. It must succeed before Run.
func (a *App) Startup() error {
	services, err := bootstrap.Build(a.cfg, a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return err
	}

	a.services = services
	a.controller = services.Controller

	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)
	event := a.log.Info()
	for key, value := range a.RuntimeInfo() {
		event = event.Str(key, value)
	}
	event.Msg("voice input assistant ready")
	return nil
}

// Run blocks on the hotkey listener until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.SessionError(domain.ErrorCodeHotkey, err.Error())
		return fmt.Errorf("hotkey listener: %w", err)
	}
	return nil
}

// Shutdown discards any in-flight session and releases provider resources.
func (a *App) Shutdown() {
	if a.controller == nil {
		return
	}

	if status := a.GetStatus(); status.Active {
		a.log.Info().Str("state", string(status.State)).Msg("cancelling active session for shutdown")
	}
	_ = a.controller.Cancel()

	if result, ok := a.LastTranscript(); ok {
		a.log.Debug().
			Str("session_id", result.SessionID).
			Bool("pasted", result.Pasted).
			Msg("last session result")
	}

	if err := a.services.Close(); err != nil {
		a.log.Warn().Err(err).Msg("provider shutdown failed")
	}
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateError, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}
	return a.controller.Status()
}

// LastTranscript returns the outcome of the most recent completed session.
func (a *App) LastTranscript() (domain.DictationResult, bool) {
	if a.controller == nil {
		return domain.DictationResult{}, false
	}
	return a.controller.LastResult()
}

// RuntimeInfo returns non-sensitive configuration for logs and diagnostics.
func (a *App) RuntimeInfo() map[string]string {
	return map[string]string{
		"provider":      a.cfg.Provider,
		"model":         a.providerModel(),
		"audio_backend": a.cfg.Audio.Backend,
		"hotkey":        a.cfg.Hotkey.Chord,
		"rules_file":    a.cfg.Rules.Path,
	}
}

func (a *App) providerModel() string {
	if a.cfg.Provider == config.ProviderDeepgram {
		return a.cfg.Deepgram.Model
	}
	return a.cfg.Google.Model
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged logs session lifecycle updates and surfaces the silent
// failure outcomes as desktop notifications.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	a.log.Info().
		Str("state", string(state)).
		Str("reason", string(reason)).
		Msg(sessionReasonMessage(reason))
	if notifiableReason(reason) {
		a.notify(sessionReasonMessage(reason))
	}
}

// PartialTranscript logs live partial transcript text.
func (a *App) PartialTranscript(sessionID string, text string) {
	a.log.Debug().Str("session_id", sessionID).Str("text", text).Msg("partial transcript")
}

// FinalTranscript logs the delivered transcript.
func (a *App) FinalTranscript(sessionID string, raw string, finalText string) {
	a.log.Info().
		Str("session_id", sessionID).
		Str("raw", raw).
		Str("text", finalText).
		Msg("final transcript")
}

// VolumeLevel traces microphone input level updates.
func (a *App) VolumeLevel(db float64) {
	a.log.Trace().Float64("db", db).Msg("input level")
}

// SessionError logs backend errors and notifies the user.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.log.Error().
		Str("code", string(code)).
		Str("detail", detail).
		Msg(errorMessage(code, detail))
	a.notify(errorMessage(code, detail))
}

// notifiableReason selects the outcomes the user would otherwise only
// discover by noticing that no text appeared.
func notifiableReason(reason domain.SessionStateReason) bool {
	switch reason {
	case domain.SessionReasonNoTranscript,
		domain.SessionReasonTranscriptionFailed,
		domain.SessionReasonRulesFailed,
		domain.SessionReasonPasteFailed:
		return true
	default:
		return false
	}
}

func (a *App) notify(message string) {
	if !a.cfg.Notify.Enabled || message == "" {
		return
	}
	if err := beeep.Notify(notifyTitle, message, ""); err != nil {
		a.log.Debug().Err(err).Msg("desktop notification failed")
	}
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready"
	case domain.SessionReasonRecordingStarted:
		return "Recording started"
	case domain.SessionReasonRecordingRestarted:
		return "Recording restarted; previous session discarded"
	case domain.SessionReasonRecordingLatched:
		return "Recording latched; tap again to stop"
	case domain.SessionReasonTranscribing:
		return "Recording stopped. Transcribing..."
	case domain.SessionReasonTranscriptPasted:
		return "Transcript pasted"
	case domain.SessionReasonRecordingDiscarded:
		return "Recording discarded"
	case domain.SessionReasonNoTranscript:
		return "No transcript captured"
	case domain.SessionReasonTranscriptionFailed:
		return "Transcription failed"
	case domain.SessionReasonRulesFailed:
		return "Rules processing failed"
	case domain.SessionReasonPasteFailed:
		return "Paste failed; transcript left in clipboard"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeAudioDevice:
		return "Microphone unavailable"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodePostProcess:
		return "Post-processing failed; raw transcript used"
	case domain.ErrorCodeRules:
		return "Rules processing failed"
	case domain.ErrorCodePaste:
		return "Paste failed"
	case domain.ErrorCodeHotkey:
		return "Hotkey listener issue"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

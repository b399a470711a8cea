package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yuhao-he/voice-input-assistant/internal/domain"
	"github.com/yuhao-he/voice-input-assistant/internal/logging"
	"github.com/yuhao-he/voice-input-assistant/internal/ports"
)

// Config tunes session behavior. Zero values fall back to the defaults the
// desktop push-to-talk flow was tuned with.
type Config struct {
	Audio     ports.AudioConfig
	Streaming ports.StreamingConfig

	// TailCapture keeps the microphone open after hotkey release so word
	// endings are not clipped.
	TailCapture time.Duration
	// PasteDelay separates the clipboard write from the paste keystroke,
	// giving the focused application time to observe the new clipboard.
	PasteDelay time.Duration
	// RestoreDelay is how long after delivery the saved clipboard content is
	// put back.
	RestoreDelay time.Duration
	// StreamWaitTimeout bounds how long a released session waits for the
	// provider to flush its remaining results.
	StreamWaitTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TailCapture <= 0 {
		c.TailCapture = 200 * time.Millisecond
	}
	if c.PasteDelay <= 0 {
		c.PasteDelay = 80 * time.Millisecond
	}
	if c.RestoreDelay <= 0 {
		c.RestoreDelay = 350 * time.Millisecond
	}
	if c.StreamWaitTimeout <= 0 {
		c.StreamWaitTimeout = 4 * time.Second
	}
	return c
}

// SessionController drives the push-to-talk dictation lifecycle: press starts
// capture and streaming, release hands the session to a background waiter
// that assembles, post-processes and delivers the transcript, and cancel
// discards everything in flight.
//
// Deferred work (tail capture, paste keystroke, clipboard restore, the waiter
// itself) never assumes it is still wanted: each step re-checks the
// generation clock at the moment it fires.
type SessionController struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	post     ports.PostProcessor
	rules    ports.RulesEngine
	paste    ports.PasteInjector
	events   ports.EventSink
	cfg      Config
	log      zerolog.Logger

	clock  generationClock
	timers *timerSet

	mu         sync.Mutex
	current    *activeSession
	lastResult *domain.DictationResult
}

func NewSessionController(
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	post ports.PostProcessor,
	rules ports.RulesEngine,
	paste ports.PasteInjector,
	events ports.EventSink,
	cfg Config,
) *SessionController {
	return &SessionController{
		audio:    audio,
		provider: provider,
		post:     post,
		rules:    rules,
		paste:    paste,
		events:   events,
		cfg:      cfg.withDefaults(),
		log:      logging.WithComponent("controller"),
		timers:   newTimerSet(),
	}
}

// Press begins a new dictation session. A press while already recording is
// ignored; a press while a previous session is still processing starts fresh
// immediately and leaves the old session to discover its own staleness.
func (c *SessionController) Press(ctx context.Context) error {
	c.mu.Lock()
	if c.current != nil && c.current.getState() == domain.SessionStateRecording {
		c.mu.Unlock()
		c.log.Debug().Msg("press ignored, already recording")
		return nil
	}
	previous := c.current
	c.mu.Unlock()

	generation := c.clock.bump()

	sessionCtx, cancel := context.WithCancel(ctx)

	// Capture starts before the provider dial so the first words are already
	// buffered in the queue by the time the stream opens.
	queue, err := c.audio.Start(sessionCtx, c.cfg.Audio)
	if err != nil {
		cancel()
		c.events.SessionError(domain.ErrorCodeAudioDevice, err.Error())
		return fmt.Errorf("failed to start audio capture: %w", err)
	}

	stream, err := c.provider.StartStreaming(sessionCtx, c.cfg.Streaming)
	if err != nil {
		c.audio.Finalize(queue)
		cancel()
		c.events.SessionError(domain.ErrorCodeTranscription, err.Error())
		return fmt.Errorf("failed to start transcription stream: %w", err)
	}

	session := &activeSession{
		id:         uuid.NewString(),
		generation: generation,
		ctx:        sessionCtx,
		cancel:     cancel,
		queue:      queue,
		stream:     stream,
		assembler:  newTranscriptAssembler(),
		pumpDone:   make(chan struct{}),
		eventsDone: make(chan struct{}),
	}
	session.setState(domain.SessionStateRecording)

	c.mu.Lock()
	c.current = session
	c.mu.Unlock()

	go c.pumpAudio(session)
	go c.collectEvents(session)

	reason := domain.SessionReasonRecordingStarted
	if previous != nil {
		reason = domain.SessionReasonRecordingRestarted
	}
	c.events.SessionStateChanged(domain.SessionStateRecording, reason)
	c.log.Info().Str("session_id", session.id).Msg("recording started")
	return nil
}

// Release ends capture for the current recording and hands the session to a
// background waiter. The microphone stays open for the tail-capture window so
// the final word is not clipped; processing begins immediately regardless.
func (c *SessionController) Release() error {
	c.mu.Lock()
	active := c.current
	if active == nil || active.getState() != domain.SessionStateRecording {
		c.mu.Unlock()
		c.log.Debug().Msg("release ignored, not recording")
		return nil
	}
	active.setState(domain.SessionStateProcessing)
	c.mu.Unlock()

	c.events.SessionStateChanged(domain.SessionStateProcessing, domain.SessionReasonTranscribing)

	// The timer captures the queue, not the session: if a new press swaps the
	// device over before this fires, Finalize sees a non-current queue and
	// only closes it.
	queue := active.queue
	c.timers.schedule(c.cfg.TailCapture, func() {
		c.audio.Finalize(queue)
	})

	go c.awaitTranscript(active)
	return nil
}

// Latch reports that a quick tap left the recording running. The session
// keeps recording until the next press or a cancel.
func (c *SessionController) Latch() {
	c.mu.Lock()
	active := c.current
	c.mu.Unlock()

	if active == nil || active.getState() != domain.SessionStateRecording {
		return
	}
	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingLatched)
}

// Cancel discards the current session and every pending deferred action. It
// is safe to call at any time, including when nothing is active.
func (c *SessionController) Cancel() error {
	c.mu.Lock()
	active := c.current
	c.current = nil
	c.mu.Unlock()

	// Bump before sweeping timers: a timer that fires past the sweep still
	// sees the stale generation and refuses to act.
	c.clock.bump()
	c.timers.cancelAll()

	samples := c.audio.Stop()

	if active == nil {
		return nil
	}

	active.queue.Close()
	_ = active.stream.Close()
	active.cancel()
	active.setState(domain.SessionStateIdle)

	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingDiscarded)
	c.log.Info().
		Str("session_id", active.id).
		Int("samples_discarded", len(samples)).
		Msg("session cancelled")
	return nil
}

// Status reports the controller state for UI consumption.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	active := c.current
	c.mu.Unlock()

	if active == nil {
		return domain.Status{State: domain.SessionStateIdle}
	}
	return domain.Status{State: active.getState(), Active: true}
}

// LastResult returns the most recent delivery outcome, if any.
func (c *SessionController) LastResult() (domain.DictationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastResult == nil {
		return domain.DictationResult{}, false
	}
	return *c.lastResult, true
}

// awaitTranscript joins the session's goroutines, then walks the delivery
// pipeline. Staleness is re-checked after every blocking stage so work from a
// superseded session never reaches the user.
func (c *SessionController) awaitTranscript(active *activeSession) {
	log := logging.WithSession("controller", active.id)

	streamErr := waitForStream(active.stream, c.cfg.StreamWaitTimeout)
	<-active.pumpDone
	<-active.eventsDone

	raw := active.assembler.Final()

	if !c.clock.isCurrent(active.generation) {
		log.Debug().Str("raw", raw).Msg("discarding stale transcription result")
		c.retire(active, domain.SessionStateIdle)
		return
	}

	if streamErr != nil {
		log.Warn().Err(streamErr).Msg("transcription stream ended with error")
	}

	if raw == "" {
		if streamErr != nil {
			c.events.SessionError(domain.ErrorCodeTranscription, streamErr.Error())
			c.finishSession(active, domain.SessionStateError, domain.SessionReasonTranscriptionFailed)
			return
		}
		c.finishSession(active, domain.SessionStateIdle, domain.SessionReasonNoTranscript)
		return
	}

	text := raw
	if c.post != nil {
		processed, err := c.post.Process(active.ctx, raw)
		if !c.clock.isCurrent(active.generation) {
			log.Debug().Msg("discarding stale post-processed result")
			c.retire(active, domain.SessionStateIdle)
			return
		}
		if err != nil {
			log.Warn().Err(err).Msg("post-processing failed, using raw transcript")
			c.events.SessionError(domain.ErrorCodePostProcess, err.Error())
		} else {
			text = processed
		}
	}

	final, err := c.rules.Apply(text)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeRules, err.Error())
		c.finishSession(active, domain.SessionStateError, domain.SessionReasonRulesFailed)
		return
	}

	c.deliver(active, raw, final)
}

// deliver writes the transcript to the clipboard and schedules the paste
// keystroke and clipboard restore. Both timers re-check the generation when
// they fire, so a newer session or a cancel silently disarms them.
func (c *SessionController) deliver(active *activeSession, raw, final string) {
	log := logging.WithSession("controller", active.id)

	// Last check before the clipboard is touched. A cancel that lands after
	// post-processing must not leave the transcript in the clipboard.
	if !c.clock.isCurrent(active.generation) {
		log.Debug().Msg("discarding stale transcript before paste")
		c.retire(active, domain.SessionStateIdle)
		return
	}

	saved, snapErr := c.paste.Snapshot()
	if snapErr != nil {
		log.Warn().Err(snapErr).Msg("clipboard snapshot failed, restore disabled")
	}

	if err := c.paste.SetText(final); err != nil {
		c.events.SessionError(domain.ErrorCodePaste, err.Error())
		c.events.FinalTranscript(active.id, raw, final)
		c.setLastResult(domain.DictationResult{
			SessionID:     active.id,
			RawTranscript: raw,
			FinalText:     final,
		})
		c.finishSession(active, domain.SessionStateError, domain.SessionReasonPasteFailed)
		return
	}

	c.events.FinalTranscript(active.id, raw, final)
	c.setLastResult(domain.DictationResult{
		SessionID:     active.id,
		RawTranscript: raw,
		FinalText:     final,
		Pasted:        true,
	})

	generation := active.generation
	c.timers.schedule(c.cfg.PasteDelay, func() {
		if !c.clock.isCurrent(generation) {
			return
		}
		if err := c.paste.SendPaste(); err != nil {
			c.events.SessionError(domain.ErrorCodePaste, err.Error())
		}
	})
	if snapErr == nil {
		c.timers.schedule(c.cfg.RestoreDelay, func() {
			if !c.clock.isCurrent(generation) {
				return
			}
			if err := c.paste.Restore(saved); err != nil {
				log.Warn().Err(err).Msg("clipboard restore failed")
			}
		})
	}

	log.Info().Str("text", final).Msg("transcript delivered")
	c.finishSession(active, domain.SessionStateIdle, domain.SessionReasonTranscriptPasted)
}

// retire releases a session's resources and detaches it from the controller
// without emitting any event.
func (c *SessionController) retire(active *activeSession, state domain.SessionState) {
	active.cancel()
	active.setState(state)

	c.mu.Lock()
	if c.current == active {
		c.current = nil
	}
	c.mu.Unlock()
}

func (c *SessionController) finishSession(active *activeSession, state domain.SessionState, reason domain.SessionStateReason) {
	c.retire(active, state)
	c.events.SessionStateChanged(state, reason)
}

func (c *SessionController) setLastResult(result domain.DictationResult) {
	c.mu.Lock()
	c.lastResult = &result
	c.mu.Unlock()
}

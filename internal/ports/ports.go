package ports

import (
	"context"

	"github.com/yuhao-he/voice-input-assistant/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
	QueueCapacity   int
}

// AudioQueue is the chunk hand-off between the capture callback and one
// streaming consumer. Push never blocks; Chunks terminates once the
// end-of-stream sentinel has been delivered and buffered chunks are drained.
type AudioQueue interface {
	Push(chunk []byte) bool
	Close()
	Chunks() <-chan []byte
}

// AudioCapture owns at most one physical input stream at a time. Start
// force-ends any previous session so its consumer always observes the
// sentinel. Finalize stops the device only if q is still the current queue,
// and always closes q. Stop halts the device, closes the current queue and
// returns the samples captured so far; a second Stop returns nil.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioQueue, error)
	Finalize(q AudioQueue)
	Stop() []int16
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active speech-recognition stream.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// PostProcessor rewrites a finished transcript according to a configured
// instruction. Implementations return the transcript unchanged when the
// instruction or transcript is empty; callers treat errors as fail-open.
type PostProcessor interface {
	Process(ctx context.Context, transcript string) (string, error)
}

// RulesEngine applies deterministic find/replace substitutions to final text.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// PasteInjector performs the clipboard-swap paste steps. The controller owns
// sequencing and generation gating between the steps.
type PasteInjector interface {
	Snapshot() (string, error)
	SetText(text string) error
	SendPaste() error
	Restore(saved string) error
}

// EventSink receives backend state and transcript events. Implementations
// must be safe for concurrent use; within one session, partial deliveries
// arrive in order.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	PartialTranscript(sessionID string, text string)
	FinalTranscript(sessionID string, raw string, finalText string)
	VolumeLevel(db float64)
	SessionError(code domain.ErrorCode, detail string)
}

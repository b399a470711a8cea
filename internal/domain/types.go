package domain

// SessionState models the push-to-talk dictation lifecycle.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateRecording  SessionState = "recording"
	SessionStateProcessing SessionState = "processing"
	SessionStateError      SessionState = "error"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady               SessionStateReason = "ready"
	SessionReasonRecordingStarted    SessionStateReason = "recording_started"
	SessionReasonRecordingRestarted  SessionStateReason = "recording_restarted"
	SessionReasonRecordingLatched    SessionStateReason = "recording_latched"
	SessionReasonTranscribing        SessionStateReason = "transcribing"
	SessionReasonTranscriptPasted    SessionStateReason = "transcript_pasted"
	SessionReasonRecordingDiscarded  SessionStateReason = "recording_discarded"
	SessionReasonNoTranscript        SessionStateReason = "no_transcript"
	SessionReasonTranscriptionFailed SessionStateReason = "transcription_failed"
	SessionReasonRulesFailed         SessionStateReason = "rules_failed"
	SessionReasonPasteFailed         SessionStateReason = "paste_failed"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeAudioDevice   ErrorCode = "audio_device"
	ErrorCodeAudioStream   ErrorCode = "audio_stream"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodePostProcess   ErrorCode = "postprocess"
	ErrorCodeRules         ErrorCode = "rules"
	ErrorCodePaste         ErrorCode = "paste"
	ErrorCodeHotkey        ErrorCode = "hotkey"
)

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
// Text carries the top-ranked alternative only.
type TranscriptEvent struct {
	Kind       TranscriptKind `json:"kind"`
	Text       string         `json:"text"`
	Confidence float64        `json:"confidence,omitempty"`
}

// DictationResult is produced once a session's transcript has been assembled,
// post-processed and substituted, before paste delivery.
type DictationResult struct {
	SessionID     string `json:"sessionId"`
	RawTranscript string `json:"rawTranscript"`
	FinalText     string `json:"finalText"`
	Pasted        bool   `json:"pasted"`
}

// Status summarizes the current runtime status.
type Status struct {
	State   SessionState `json:"state"`
	Active  bool         `json:"active"`
	Message string       `json:"message,omitempty"`
}

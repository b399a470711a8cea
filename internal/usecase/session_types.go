package usecase

import (
	"context"
	"sync"

	"github.com/yuhao-he/voice-input-assistant/internal/domain"
	"github.com/yuhao-he/voice-input-assistant/internal/ports"
)

// activeSession carries everything one push-to-talk dictation owns: the
// capture queue, the provider stream, the assembler collecting transcript
// events and the generation stamp that decides whether deferred work started
// on its behalf may still act.
type activeSession struct {
	id         string
	generation uint64

	ctx    context.Context
	cancel context.CancelFunc

	queue  ports.AudioQueue
	stream ports.StreamingSession

	assembler *transcriptAssembler

	pumpDone   chan struct{}
	eventsDone chan struct{}

	stateMu sync.Mutex
	state   domain.SessionState
}

func (s *activeSession) setState(state domain.SessionState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
}

func (s *activeSession) getState() domain.SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

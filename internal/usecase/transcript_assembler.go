package usecase

import (
	"strings"
	"sync"

	"github.com/yuhao-he/voice-input-assistant/internal/domain"
)

// transcriptAssembler folds the provider's event stream into text. Final
// events accumulate; a partial event only replaces the live tail, because
// providers re-send the whole utterance-in-progress with every refinement.
type transcriptAssembler struct {
	mu      sync.Mutex
	finals  []string
	interim string
}

func newTranscriptAssembler() *transcriptAssembler {
	return &transcriptAssembler{}
}

func (a *transcriptAssembler) Add(event domain.TranscriptEvent) {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Kind == domain.TranscriptKindFinal {
		a.finals = append(a.finals, text)
		a.interim = ""
		return
	}
	a.interim = text
}

// Interim returns the confirmed segments plus the live tail. This is what the
// user sees while still speaking.
func (a *transcriptAssembler) Interim() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.interim == "" {
		return strings.Join(a.finals, " ")
	}
	parts := make([]string, 0, len(a.finals)+1)
	parts = append(parts, a.finals...)
	parts = append(parts, a.interim)
	return strings.Join(parts, " ")
}

// Final returns only the confirmed segments. A session that never produced a
// final result yields the empty string; an unconfirmed tail is not good
// enough to paste.
func (a *transcriptAssembler) Final() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.Join(a.finals, " ")
}

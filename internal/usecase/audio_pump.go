package usecase

import (
	"fmt"
	"time"

	"github.com/yuhao-he/voice-input-assistant/internal/domain"
	"github.com/yuhao-he/voice-input-assistant/internal/ports"
)

// pumpAudio forwards captured chunks to the provider until the queue closes,
// then half-closes the stream. Running CloseSend only after the queue's
// sentinel guarantees the tail-capture audio reaches the provider before the
// stream is asked to finish.
func (c *SessionController) pumpAudio(s *activeSession) {
	defer close(s.pumpDone)

	for chunk := range s.queue.Chunks() {
		if err := s.stream.SendAudio(chunk); err != nil {
			// A cancelled session closes its stream under the pump; that
			// send failure is expected and not worth reporting.
			if c.clock.isCurrent(s.generation) {
				c.events.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("failed to stream audio: %v", err))
			}
			break
		}
	}
	_ = s.stream.CloseSend()
}

// collectEvents feeds provider events into the assembler. Partial updates are
// forwarded to the sink only while the session is still current; a stale
// session keeps collecting silently so its waiter can log what it had.
func (c *SessionController) collectEvents(s *activeSession) {
	defer close(s.eventsDone)

	for event := range s.stream.Events() {
		s.assembler.Add(event)
		if event.Kind == domain.TranscriptKindPartial && c.clock.isCurrent(s.generation) {
			c.events.PartialTranscript(s.id, s.assembler.Interim())
		}
	}
}

func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}

package usecase

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yuhao-he/voice-input-assistant/internal/domain"
)

func newPumpHarness(stream *fakeStreamSession) (*SessionController, *activeSession, *fakeQueue, *fakeEventSink) {
	events := &fakeEventSink{}
	c := &SessionController{
		events: events,
		log:    zerolog.Nop(),
		timers: newTimerSet(),
	}
	queue := newFakeQueue()
	session := &activeSession{
		id:         "pump-test",
		generation: c.clock.bump(),
		queue:      queue,
		stream:     stream,
		assembler:  newTranscriptAssembler(),
		pumpDone:   make(chan struct{}),
		eventsDone: make(chan struct{}),
	}
	return c, session, queue, events
}

func TestPumpAudioForwardsChunksThenHalfCloses(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamSession()
	c, session, queue, _ := newPumpHarness(stream)

	go c.pumpAudio(session)

	queue.Push([]byte{0x01})
	queue.Push([]byte{0x02})
	queue.Close()
	<-session.pumpDone

	sent := stream.sentChunks()
	if len(sent) != 2 || sent[0][0] != 0x01 || sent[1][0] != 0x02 {
		t.Fatalf("unexpected forwarded chunks: %v", sent)
	}
	if stream.closeSendCount() != 1 {
		t.Fatalf("expected CloseSend after queue drained")
	}
}

func TestPumpAudioReportsSendErrorWhileCurrent(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamSession()
	stream.sendErr = errors.New("send failed")
	c, session, queue, events := newPumpHarness(stream)

	go c.pumpAudio(session)

	queue.Push([]byte{0x01})
	queue.Close()
	<-session.pumpDone

	errs := events.snapshotErrors()
	if len(errs) == 0 || errs[0].code != domain.ErrorCodeAudioStream {
		t.Fatalf("expected audio stream error, got %+v", errs)
	}
}

func TestPumpAudioSuppressesSendErrorWhenStale(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamSession()
	stream.sendErr = errors.New("session is closed")
	c, session, queue, events := newPumpHarness(stream)
	c.clock.bump()

	go c.pumpAudio(session)

	queue.Push([]byte{0x01})
	queue.Close()
	<-session.pumpDone

	if errs := events.snapshotErrors(); len(errs) != 0 {
		t.Fatalf("stale pump must stay silent, got %+v", errs)
	}
}

func TestCollectEventsGatesPartialEmission(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamSession()
	c, session, _, events := newPumpHarness(stream)

	go c.collectEvents(session)

	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "live"}
	waitUntil(t, time.Second, "gated partial", func() bool {
		return len(events.snapshotPartials()) == 1
	})

	c.clock.bump()
	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "stale update"}
	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "stale final"}
	_ = stream.CloseSend()
	<-session.eventsDone

	if partials := events.snapshotPartials(); len(partials) != 1 || partials[0] != "live" {
		t.Fatalf("stale partials must not surface, got %v", partials)
	}
	if got := session.assembler.Final(); got != "stale final" {
		t.Fatalf("assembler must keep collecting after staleness, got %q", got)
	}
}

func TestWaitForStreamTimeoutClosesSession(t *testing.T) {
	t.Parallel()

	stream := &blockingWaitStream{done: make(chan struct{}), waitErr: errors.New("closed")}
	err := waitForStream(stream, 10*time.Millisecond)
	if err == nil || err.Error() != "closed" {
		t.Fatalf("expected closed error, got %v", err)
	}
	if stream.closeCalls == 0 {
		t.Fatalf("expected close to be called on timeout")
	}
}

type blockingWaitStream struct {
	done       chan struct{}
	waitErr    error
	closeCalls int
}

func (s *blockingWaitStream) SendAudio(_ []byte) error { return nil }
func (s *blockingWaitStream) CloseSend() error         { return nil }
func (s *blockingWaitStream) Events() <-chan domain.TranscriptEvent {
	ch := make(chan domain.TranscriptEvent)
	close(ch)
	return ch
}
func (s *blockingWaitStream) Wait() error {
	<-s.done
	return s.waitErr
}
func (s *blockingWaitStream) Close() error {
	s.closeCalls++
	close(s.done)
	return nil
}

package googlespeech

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/yuhao-he/voice-input-assistant/internal/domain"
	"github.com/yuhao-he/voice-input-assistant/internal/ports"
)

type recvResult struct {
	resp *speechpb.StreamingRecognizeResponse
	err  error
}

type fakeStream struct {
	mu        sync.Mutex
	requests  []*speechpb.StreamingRecognizeRequest
	closeSend int

	responses chan recvResult
}

func newFakeStream() *fakeStream {
	return &fakeStream{responses: make(chan recvResult, 16)}
}

func (f *fakeStream) Send(req *speechpb.StreamingRecognizeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeStream) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	r, ok := <-f.responses
	if !ok {
		return nil, io.EOF
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.resp, nil
}

// CloseSend plays the server side too: once the client is done sending, the
// response stream ends.
func (f *fakeStream) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeSend++
	if f.closeSend == 1 {
		close(f.responses)
	}
	return nil
}

func (f *fakeStream) recorded() []*speechpb.StreamingRecognizeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*speechpb.StreamingRecognizeRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeStream) closeSendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeSend
}

func newTestProvider(cfg Config, stream *fakeStream) *Provider {
	p := NewProvider(cfg)
	p.openStream = func(ctx context.Context) (recognizeStream, error) {
		return stream, nil
	}
	return p
}

func transcriptResponse(text string, final bool, confidence float32) *speechpb.StreamingRecognizeResponse {
	return &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{{
			IsFinal: final,
			Alternatives: []*speechpb.SpeechRecognitionAlternative{{
				Transcript: text,
				Confidence: confidence,
			}},
		}},
	}
}

func TestStartStreamingSendsConfigFirst(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	provider := newTestProvider(Config{
		LanguageCode: "de-DE",
		UseEnhanced:  true,
		BoostPhrases: []string{" Deepgram ", ""},
		BoostValue:   25,
	}, stream)

	session, err := provider.StartStreaming(context.Background(), ports.StreamingConfig{
		SampleRate:     16000,
		Channels:       1,
		Encoding:       "linear16",
		InterimResults: true,
	})
	if err != nil {
		t.Fatalf("start streaming failed: %v", err)
	}
	defer session.Close()

	requests := stream.recorded()
	if len(requests) == 0 {
		t.Fatal("no requests recorded")
	}
	cfgReq := requests[0].GetStreamingConfig()
	if cfgReq == nil {
		t.Fatal("first request must carry the streaming config")
	}
	if !cfgReq.InterimResults {
		t.Error("interim results not enabled")
	}

	recognition := cfgReq.GetConfig()
	if recognition.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
		t.Errorf("encoding = %v", recognition.GetEncoding())
	}
	if recognition.GetSampleRateHertz() != 16000 {
		t.Errorf("sample rate = %d", recognition.GetSampleRateHertz())
	}
	if recognition.GetLanguageCode() != "de-DE" {
		t.Errorf("language = %q", recognition.GetLanguageCode())
	}
	if recognition.GetModel() != "latest_long" {
		t.Errorf("model = %q", recognition.GetModel())
	}
	if !recognition.GetUseEnhanced() {
		t.Error("use enhanced not set")
	}
	if !recognition.GetEnableAutomaticPunctuation() {
		t.Error("automatic punctuation not set")
	}

	contexts := recognition.GetSpeechContexts()
	if len(contexts) != 1 {
		t.Fatalf("speech contexts = %d, want 1", len(contexts))
	}
	if len(contexts[0].GetPhrases()) != 1 || contexts[0].GetPhrases()[0] != "Deepgram" {
		t.Errorf("phrases = %v", contexts[0].GetPhrases())
	}
	if contexts[0].GetBoost() != 20 {
		t.Errorf("boost = %v, want clamped 20", contexts[0].GetBoost())
	}
}

func TestSessionForwardsAudioAndClosesSend(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	provider := newTestProvider(Config{}, stream)

	session, err := provider.StartStreaming(context.Background(), ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("start streaming failed: %v", err)
	}

	if err := session.SendAudio([]byte{1, 2, 3}); err != nil {
		t.Fatalf("send audio failed: %v", err)
	}
	if err := session.CloseSend(); err != nil {
		t.Fatalf("close send failed: %v", err)
	}
	if err := session.Wait(); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	requests := stream.recorded()
	if len(requests) != 2 {
		t.Fatalf("recorded %d requests, want config + audio", len(requests))
	}
	audio := requests[1].GetAudioContent()
	if len(audio) != 3 || audio[0] != 1 {
		t.Fatalf("audio content = %v", audio)
	}
	if stream.closeSendCount() == 0 {
		t.Fatal("stream CloseSend never called")
	}

	if err := session.SendAudio([]byte{4}); err == nil {
		t.Fatal("send after close must fail")
	}
}

func TestSessionMapsTranscriptEvents(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	stream.responses <- recvResult{resp: transcriptResponse("hello", false, 0)}
	stream.responses <- recvResult{resp: transcriptResponse("hello world", true, 0.92)}
	stream.responses <- recvResult{resp: &speechpb.StreamingRecognizeResponse{}}

	provider := newTestProvider(Config{}, stream)
	session, err := provider.StartStreaming(context.Background(), ports.StreamingConfig{InterimResults: true})
	if err != nil {
		t.Fatalf("start streaming failed: %v", err)
	}

	if err := session.CloseSend(); err != nil {
		t.Fatalf("close send failed: %v", err)
	}

	var events []domain.TranscriptEvent
	for event := range session.Events() {
		events = append(events, event)
	}
	if err := session.Wait(); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != domain.TranscriptKindPartial || events[0].Text != "hello" {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Kind != domain.TranscriptKindFinal || events[1].Text != "hello world" {
		t.Errorf("second event = %+v", events[1])
	}
	if events[1].Confidence < 0.91 || events[1].Confidence > 0.93 {
		t.Errorf("confidence = %v", events[1].Confidence)
	}
}

func TestSessionSurfacesRecvError(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	stream.responses <- recvResult{err: errors.New("quota exceeded")}

	provider := newTestProvider(Config{}, stream)
	session, err := provider.StartStreaming(context.Background(), ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("start streaming failed: %v", err)
	}

	if err := session.CloseSend(); err != nil {
		t.Fatalf("close send failed: %v", err)
	}
	waitErr := session.Wait()
	if waitErr == nil {
		t.Fatal("expected stream error")
	}
}

func TestSessionCloseUnblocks(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	provider := newTestProvider(Config{}, stream)

	session, err := provider.StartStreaming(context.Background(), ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("start streaming failed: %v", err)
	}

	doneCh := make(chan error, 1)
	go func() { doneCh <- session.Close() }()

	select {
	case err := <-doneCh:
		if err != nil {
			t.Fatalf("close failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close never returned")
	}
}

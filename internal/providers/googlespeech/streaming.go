// Package googlespeech implements streaming transcription on the Cloud
// Speech-to-Text v1 API.
package googlespeech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/yuhao-he/voice-input-assistant/internal/domain"
	"github.com/yuhao-he/voice-input-assistant/internal/ports"
)

// Config controls the Cloud Speech streaming recognizer.
type Config struct {
	CredentialsFile string
	LanguageCode    string
	Model           string
	UseEnhanced     bool
	BoostPhrases    []string
	BoostValue      float64
}

// recognizeStream is the slice of the generated streaming client the session
// drives. Tests substitute a fake through the openStream seam.
type recognizeStream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

// Provider implements ports.TranscriptionProvider. The underlying client is
// created lazily on the first session and reused until Close.
type Provider struct {
	cfg Config

	clientMu sync.Mutex
	client   *speech.Client

	openStream func(ctx context.Context) (recognizeStream, error)
}

func NewProvider(cfg Config) *Provider {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.Model == "" {
		cfg.Model = "latest_long"
	}
	p := &Provider{cfg: cfg}
	p.openStream = p.defaultOpenStream
	return p
}

func (p *Provider) ensureClient(ctx context.Context) (*speech.Client, error) {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	var opts []option.ClientOption
	if p.cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(p.cfg.CredentialsFile))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	p.client = client
	return client, nil
}

func (p *Provider) defaultOpenStream(ctx context.Context) (recognizeStream, error) {
	client, err := p.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open recognize stream: %w", err)
	}
	return stream, nil
}

// Close releases the shared client. In-flight sessions end on their own
// contexts.
func (p *Provider) Close() error {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	sessionCtx, cancel := context.WithCancel(ctx)

	stream, err := p.openStream(sessionCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	// The first request carries only the recognition config; audio follows.
	configReq := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: p.streamingConfig(cfg),
		},
	}
	if err := stream.Send(configReq); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	session := &streamingSession{
		stream:   stream,
		cancel:   cancel,
		events:   make(chan domain.TranscriptEvent, 64),
		audio:    make(chan []byte, 32),
		sendDone: make(chan struct{}),
		done:     make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		cancel()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()

	return session, nil
}

func (p *Provider) streamingConfig(cfg ports.StreamingConfig) *speechpb.StreamingRecognitionConfig {
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}

	recognition := &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            int32(sampleRate),
		AudioChannelCount:          int32(channels),
		LanguageCode:               p.cfg.LanguageCode,
		Model:                      p.cfg.Model,
		UseEnhanced:                p.cfg.UseEnhanced,
		EnableAutomaticPunctuation: true,
	}

	if phrases := cleanPhrases(p.cfg.BoostPhrases); len(phrases) > 0 {
		recognition.SpeechContexts = []*speechpb.SpeechContext{{
			Phrases: phrases,
			Boost:   clampBoost(p.cfg.BoostValue),
		}}
	}

	return &speechpb.StreamingRecognitionConfig{
		Config:         recognition,
		InterimResults: cfg.InterimResults,
	}
}

func cleanPhrases(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, phrase := range phrases {
		if trimmed := strings.TrimSpace(phrase); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// The API rejects boosts outside [0, 20].
func clampBoost(v float64) float32 {
	if v <= 0 {
		return 10
	}
	if v > 20 {
		return 20
	}
	return float32(v)
}

type streamingSession struct {
	stream recognizeStream
	cancel context.CancelFunc

	events chan domain.TranscriptEvent
	audio  chan []byte

	// sendDone signals the end of outgoing audio. The audio channel itself is
	// never closed, so a SendAudio racing a concurrent Close cannot panic.
	sendDone chan struct{}
	done     chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once

	closingMu sync.Mutex
	closing   bool
}

func (s *streamingSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	select {
	case <-s.sendDone:
		return errors.New("audio stream is already closed")
	default:
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.sendDone:
		return errors.New("audio stream is already closed")
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

func (s *streamingSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		close(s.sendDone)
	})
	return nil
}

func (s *streamingSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *streamingSession) Wait() error {
	<-s.done
	return s.waitErr()
}

// Close aborts the session. Cancelling the stream context unblocks a Recv
// that would otherwise wait for the server.
func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		s.markClosing()
		_ = s.CloseSend()
		s.cancel()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) markClosing() {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()
}

func (s *streamingSession) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

func (s *streamingSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case chunk := <-s.audio:
			if err := s.sendChunk(chunk); err != nil {
				return
			}
		case <-s.sendDone:
			// Flush whatever was queued before the close, then half-close so
			// the server finishes recognition on the tail audio.
			for {
				select {
				case chunk := <-s.audio:
					if err := s.sendChunk(chunk); err != nil {
						return
					}
				default:
					if err := s.stream.CloseSend(); err != nil && !s.isClosing() {
						s.setErr(fmt.Errorf("failed to close audio stream: %w", err))
					}
					return
				}
			}
		}
	}
}

func (s *streamingSession) sendChunk(chunk []byte) error {
	req := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: chunk,
		},
	}
	if err := s.stream.Send(req); err != nil {
		// A dead stream reports io.EOF here; the real cause surfaces from
		// Recv in the read loop.
		if !errors.Is(err, io.EOF) && !s.isClosing() {
			s.setErr(fmt.Errorf("failed to send audio: %w", err))
		}
		return err
	}
	return nil
}

func (s *streamingSession) readLoop() {
	defer s.wg.Done()

	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isClosing() {
				s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			}
			return
		}

		if resp.GetError() != nil {
			message := strings.TrimSpace(resp.GetError().GetMessage())
			if message == "" {
				message = "speech api returned an unknown error"
			}
			s.setErr(errors.New(message))
			return
		}

		for _, result := range resp.GetResults() {
			alternatives := result.GetAlternatives()
			if len(alternatives) == 0 {
				continue
			}
			text := strings.TrimSpace(alternatives[0].GetTranscript())
			if text == "" {
				continue
			}

			event := domain.TranscriptEvent{
				Text:       text,
				Confidence: float64(alternatives[0].GetConfidence()),
			}
			if result.GetIsFinal() {
				event.Kind = domain.TranscriptKindFinal
			} else {
				event.Kind = domain.TranscriptKindPartial
			}
			s.emit(event)
		}
	}
}

// emit drops events when the consumer lags rather than stalling Recv.
func (s *streamingSession) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	default:
	}
}

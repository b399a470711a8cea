package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/yuhao-he/voice-input-assistant/internal/logging"
	"github.com/yuhao-he/voice-input-assistant/internal/ports"
)

// deviceStream is the slice of *portaudio.Stream the capture drives. Tests
// substitute a fake through the openStream seam.
type deviceStream interface {
	Start() error
	Stop() error
	Close() error
}

type openStreamFunc func(cfg ports.AudioConfig, cb func(in []int16)) (deviceStream, error)

func openPortAudioStream(cfg ports.AudioConfig, cb func(in []int16)) (deviceStream, error) {
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.FramesPerBuffer, cb)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// PortAudioCapture records 16-bit PCM from the default input device and fans
// chunks out to a per-session queue. Device methods are never invoked while
// the capture mutex is held, since PortAudio's Stop waits for in-flight
// callbacks which themselves take the mutex.
type PortAudioCapture struct {
	log        zerolog.Logger
	openStream openStreamFunc
	onLevel    func(db float64)

	mu      sync.Mutex
	stream  deviceStream
	queue   *Queue
	samples []int16
}

// NewPortAudioCapture builds a capture backed by the default PortAudio input
// device. onLevel receives the RMS level of each block in dBFS; pass nil to
// disable level reporting. The caller is responsible for portaudio.Initialize
// and portaudio.Terminate.
func NewPortAudioCapture(onLevel func(db float64)) *PortAudioCapture {
	return &PortAudioCapture{
		log:        logging.WithComponent("audio"),
		openStream: openPortAudioStream,
		onLevel:    onLevel,
	}
}

// Start opens the input device and begins pushing encoded chunks into a fresh
// queue. Any session still running is force-ended first so its consumer
// observes the sentinel.
func (c *PortAudioCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioQueue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg = withDefaults(cfg)

	c.mu.Lock()
	prevStream := c.stream
	prevQueue := c.queue
	c.stream = nil
	c.queue = nil
	c.samples = nil
	c.mu.Unlock()

	if prevStream != nil {
		c.log.Warn().Msg("capture already active, ending previous session")
		c.stopDevice(prevStream)
	}
	if prevQueue != nil {
		prevQueue.Close()
	}

	queue := NewQueue(cfg.QueueCapacity)
	stream, err := c.openStream(cfg, c.onChunk)
	if err != nil {
		queue.Close()
		return nil, fmt.Errorf("open audio device: %w", err)
	}

	c.mu.Lock()
	c.stream = stream
	c.queue = queue
	c.mu.Unlock()

	if err := stream.Start(); err != nil {
		c.mu.Lock()
		c.stream = nil
		c.queue = nil
		c.mu.Unlock()
		if cerr := stream.Close(); cerr != nil {
			c.log.Warn().Err(cerr).Msg("close audio device")
		}
		queue.Close()
		return nil, fmt.Errorf("start audio device: %w", err)
	}

	c.log.Debug().
		Int("sampleRate", cfg.SampleRate).
		Int("framesPerBuffer", cfg.FramesPerBuffer).
		Msg("audio capture started")
	return queue, nil
}

// Finalize ends the tail-capture window for q. The device is stopped only
// when q is still the current queue; a session started afterwards keeps the
// device for itself. q is always closed so its consumer terminates.
func (c *PortAudioCapture) Finalize(q ports.AudioQueue) {
	if q == nil {
		return
	}

	c.mu.Lock()
	var stream deviceStream
	if c.queue != nil && ports.AudioQueue(c.queue) == q {
		stream = c.stream
		c.stream = nil
		c.queue = nil
		c.samples = nil
	}
	c.mu.Unlock()

	if stream != nil {
		c.stopDevice(stream)
	}
	q.Close()
}

// Stop halts the device immediately, delivers the current queue's sentinel
// and returns the samples captured so far. A second Stop returns nil.
func (c *PortAudioCapture) Stop() []int16 {
	c.mu.Lock()
	stream := c.stream
	queue := c.queue
	samples := c.samples
	c.stream = nil
	c.queue = nil
	c.samples = nil
	c.mu.Unlock()

	if stream == nil {
		return nil
	}
	c.stopDevice(stream)
	if queue != nil {
		queue.Close()
	}
	return samples
}

func (c *PortAudioCapture) stopDevice(stream deviceStream) {
	if err := stream.Stop(); err != nil {
		c.log.Warn().Err(err).Msg("stop audio device")
	}
	if err := stream.Close(); err != nil {
		c.log.Warn().Err(err).Msg("close audio device")
	}
}

// onChunk runs on the PortAudio callback thread. in is reused by the driver
// between invocations, so both the byte encoding and the sample accumulation
// copy it.
func (c *PortAudioCapture) onChunk(in []int16) {
	if len(in) == 0 {
		return
	}
	chunk := encodePCM16(in)

	c.mu.Lock()
	queue := c.queue
	if queue != nil {
		c.samples = append(c.samples, in...)
	}
	c.mu.Unlock()

	if queue == nil {
		return
	}
	queue.Push(chunk)
	if c.onLevel != nil {
		c.onLevel(levelDBFS(in))
	}
}

func withDefaults(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = 1024
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 64
	}
	return cfg
}

func encodePCM16(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// levelDBFS computes the RMS level of one block relative to full scale,
// floored at -96 dB for silence.
func levelDBFS(samples []int16) float64 {
	if len(samples) == 0 {
		return -96
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms < 1 {
		return -96
	}
	return 20 * math.Log10(rms/32768)
}

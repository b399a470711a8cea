package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yuhao-he/voice-input-assistant/internal/logging"
	"github.com/yuhao-he/voice-input-assistant/internal/ports"
)

// FFmpegCapture streams microphone PCM through an ffmpeg child process. It is
// the fallback backend for hosts where PortAudio is unavailable; chunk
// delivery and session semantics match PortAudioCapture.
type FFmpegCapture struct {
	log     zerolog.Logger
	command string
	format  string
	device  string
	onLevel func(db float64)

	mu      sync.Mutex
	proc    *ffmpegProcess
	queue   *Queue
	samples []int16
}

// NewFFmpegCapture builds the ffmpeg-backed capture. Empty arguments fall
// back to the ffmpeg binary on PATH, the platform's usual input format and
// the default input device.
func NewFFmpegCapture(command, inputFormat, inputDevice string, onLevel func(db float64)) *FFmpegCapture {
	if command == "" {
		command = "ffmpeg"
	}
	if inputFormat == "" {
		inputFormat = defaultInputFormat()
	}
	if inputDevice == "" {
		inputDevice = "default"
	}
	return &FFmpegCapture{
		log:     logging.WithComponent("audio"),
		command: command,
		format:  inputFormat,
		device:  inputDevice,
		onLevel: onLevel,
	}
}

func defaultInputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}

// Start spawns ffmpeg and begins pushing fixed-size PCM chunks into a fresh
// queue. Any session still running is force-ended first.
func (c *FFmpegCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioQueue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg = withDefaults(cfg)

	c.mu.Lock()
	prevProc := c.proc
	prevQueue := c.queue
	c.proc = nil
	c.queue = nil
	c.samples = nil
	c.mu.Unlock()

	if prevProc != nil {
		c.log.Warn().Msg("capture already active, ending previous session")
		if err := prevProc.stop(); err != nil {
			c.log.Warn().Err(err).Msg("stop previous ffmpeg")
		}
	}
	if prevQueue != nil {
		prevQueue.Close()
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", c.format,
		"-i", c.device,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// Give a misconfigured command a moment to fail so the error reaches the
	// caller instead of an empty transcript.
	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, trimmed(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	proc := &ffmpegProcess{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}
	queue := NewQueue(cfg.QueueCapacity)

	c.mu.Lock()
	c.proc = proc
	c.queue = queue
	c.mu.Unlock()

	go c.readLoop(proc, queue, cfg.FramesPerBuffer*cfg.Channels*2)

	c.log.Debug().
		Str("format", c.format).
		Str("device", c.device).
		Int("sampleRate", cfg.SampleRate).
		Msg("ffmpeg capture started")
	return queue, nil
}

// Finalize ends the tail-capture window for q. The child process is stopped
// only when q is still the current queue. q is always closed so its consumer
// terminates.
func (c *FFmpegCapture) Finalize(q ports.AudioQueue) {
	if q == nil {
		return
	}

	c.mu.Lock()
	var proc *ffmpegProcess
	if c.queue != nil && ports.AudioQueue(c.queue) == q {
		proc = c.proc
		c.proc = nil
		c.queue = nil
		c.samples = nil
	}
	c.mu.Unlock()

	if proc != nil {
		if err := proc.stop(); err != nil {
			c.log.Warn().Err(err).Msg("stop ffmpeg")
		}
	}
	q.Close()
}

// Stop halts the child process immediately, delivers the current queue's
// sentinel and returns the samples captured so far. A second Stop returns nil.
func (c *FFmpegCapture) Stop() []int16 {
	c.mu.Lock()
	proc := c.proc
	queue := c.queue
	samples := c.samples
	c.proc = nil
	c.queue = nil
	c.samples = nil
	c.mu.Unlock()

	if proc == nil {
		return nil
	}
	if err := proc.stop(); err != nil {
		c.log.Warn().Err(err).Msg("stop ffmpeg")
	}
	if queue != nil {
		queue.Close()
	}
	return samples
}

// readLoop carves the child's stdout into frame-sized chunks. The loop owns
// the queue it was spawned with and closes it on exit, so the consumer never
// hangs when ffmpeg dies unexpectedly.
func (c *FFmpegCapture) readLoop(proc *ffmpegProcess, queue *Queue, frameBytes int) {
	defer queue.Close()

	buf := make([]byte, frameBytes)
	for {
		n, err := io.ReadFull(proc.stdout, buf)
		if n > 0 {
			n -= n % 2
			if n > 0 {
				c.onPCM(queue, buf[:n])
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *FFmpegCapture) onPCM(queue *Queue, chunk []byte) {
	samples := decodePCM16(chunk)

	c.mu.Lock()
	if c.queue == queue {
		c.samples = append(c.samples, samples...)
	}
	c.mu.Unlock()

	queue.Push(chunk)
	if c.onLevel != nil {
		c.onLevel(levelDBFS(samples))
	}
}

func decodePCM16(chunk []byte) []int16 {
	out := make([]int16, len(chunk)/2)
	for i := range out {
		out[i] = int16(uint16(chunk[i*2]) | uint16(chunk[i*2+1])<<8)
	}
	return out
}

// ffmpegProcess wraps the child so stop is idempotent: interrupt first, kill
// after a grace period, and fold captured stderr into any real failure.
type ffmpegProcess struct {
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (p *ffmpegProcess) stop() error {
	p.stopOnce.Do(func() {
		if p.process != nil {
			_ = p.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-p.waitErr:
			if ok {
				p.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if p.process != nil {
				_ = p.process.Kill()
			}
			err, ok := <-p.waitErr
			if ok {
				p.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := p.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if p.stopErr == nil {
				p.stopErr = closeErr
			}
		}

		if p.stopErr != nil && p.stderr != nil && p.stderr.Len() > 0 {
			p.stopErr = fmt.Errorf("%w: %s", p.stopErr, trimmed(p.stderr.String()))
		}
	})

	return p.stopErr
}

// A signal-terminated ffmpeg still exits nonzero; that is the expected
// shutdown path, not a capture failure.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimmed(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}

package audio

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yuhao-he/voice-input-assistant/internal/ports"
)

func TestFFmpegCaptureStartAndFinalize(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf '\\x02\\x01\\xff\\xff'\nsleep 2\n")
	var levelMu sync.Mutex
	levels := 0
	capture := NewFFmpegCapture(script, "pulse", "default", func(db float64) {
		levelMu.Lock()
		levels++
		levelMu.Unlock()
	})

	q, err := capture.Start(context.Background(), ports.AudioConfig{FramesPerBuffer: 2})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case chunk := <-q.Chunks():
		want := []byte{0x02, 0x01, 0xff, 0xff}
		if len(chunk) != len(want) {
			t.Fatalf("chunk length = %d, want %d", len(chunk), len(want))
		}
		for i := range want {
			if chunk[i] != want[i] {
				t.Fatalf("chunk = %v, want %v", chunk, want)
			}
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no chunk delivered")
	}

	capture.Finalize(q)
	for range q.Chunks() {
	}

	levelMu.Lock()
	if levels == 0 {
		t.Fatal("level callback never fired")
	}
	levelMu.Unlock()

	if s := capture.Stop(); s != nil {
		t.Fatalf("stop after finalize = %v, want nil", s)
	}
}

func TestFFmpegCaptureEarlyExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'boom' 1>&2\nexit 1\n")
	capture := NewFFmpegCapture(script, "", "", nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := capture.Start(ctx, ports.AudioConfig{})
	if err == nil {
		t.Fatalf("expected early exit error")
	}
	if !strings.Contains(err.Error(), "exited before capture started") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFFmpegCaptureReaderClosesQueueOnProcessExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "short.sh", "#!/usr/bin/env bash\nprintf '\\x02\\x01\\xff\\xff'\nsleep 1\n")
	capture := NewFFmpegCapture(script, "", "", nil)

	q, err := capture.Start(context.Background(), ports.AudioConfig{FramesPerBuffer: 2})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// The script ends on its own; the reader must deliver the sentinel
	// without Finalize or Stop being called.
	deadline := time.After(5 * time.Second)
	var chunks int
	for {
		select {
		case _, ok := <-q.Chunks():
			if !ok {
				if chunks != 1 {
					t.Fatalf("drained %d chunks, want 1", chunks)
				}
				samples := capture.Stop()
				if len(samples) != 2 || samples[0] != 258 || samples[1] != -1 {
					t.Fatalf("samples = %v, want [258 -1]", samples)
				}
				return
			}
			chunks++
		case <-deadline:
			t.Fatal("queue never closed after process exit")
		}
	}
}

func TestNormalizeStopErrExitErrorIsIgnored(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-lc", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeStopErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func TestDecodePCM16(t *testing.T) {
	t.Parallel()

	got := decodePCM16([]byte{0x02, 0x01, 0xff, 0xff})
	if len(got) != 2 || got[0] != 258 || got[1] != -1 {
		t.Fatalf("decoded = %v, want [258 -1]", got)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

package paste

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type fakeBackend struct {
	clipboard string
	readErr   error
	writeErr  error
	combos    int
	plains    int
}

func newTestInjector(backend *fakeBackend, modifierHeld func() bool) *Injector {
	return &Injector{
		log:          zerolog.Nop(),
		modifierHeld: modifierHeld,
		readClipboard: func() (string, error) {
			return backend.clipboard, backend.readErr
		},
		writeClipboard: func(text string) error {
			if backend.writeErr != nil {
				return backend.writeErr
			}
			backend.clipboard = text
			return nil
		},
		sendCombo: func() error {
			backend.combos++
			return nil
		},
		sendPlain: func() error {
			backend.plains++
			return nil
		},
	}
}

func TestInjectorSnapshotSetAndRestore(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{clipboard: "user content"}
	inj := newTestInjector(backend, nil)

	saved, err := inj.Snapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if saved != "user content" {
		t.Fatalf("unexpected snapshot: %q", saved)
	}

	if err := inj.SetText("transcript"); err != nil {
		t.Fatalf("set text failed: %v", err)
	}
	if backend.clipboard != "transcript" {
		t.Fatalf("clipboard not updated: %q", backend.clipboard)
	}

	if err := inj.Restore(saved); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if backend.clipboard != "user content" {
		t.Fatalf("clipboard not restored: %q", backend.clipboard)
	}
}

func TestInjectorSendPasteUsesFullChord(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	inj := newTestInjector(backend, func() bool { return false })

	if err := inj.SendPaste(); err != nil {
		t.Fatalf("send paste failed: %v", err)
	}
	if backend.combos != 1 || backend.plains != 0 {
		t.Fatalf("expected full chord, got combos=%d plains=%d", backend.combos, backend.plains)
	}
}

func TestInjectorSendPasteBareVWhileModifierHeld(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	inj := newTestInjector(backend, func() bool { return true })

	if err := inj.SendPaste(); err != nil {
		t.Fatalf("send paste failed: %v", err)
	}
	if backend.combos != 0 || backend.plains != 1 {
		t.Fatalf("expected bare V, got combos=%d plains=%d", backend.combos, backend.plains)
	}
}

func TestInjectorClipboardErrorsAreWrapped(t *testing.T) {
	t.Parallel()

	readErr := errors.New("no clipboard utility")
	backend := &fakeBackend{readErr: readErr, writeErr: errors.New("write blocked")}
	inj := newTestInjector(backend, nil)

	if _, err := inj.Snapshot(); !errors.Is(err, readErr) {
		t.Fatalf("expected wrapped read error, got %v", err)
	}
	if err := inj.SetText("x"); err == nil {
		t.Fatalf("expected write error")
	}
	if err := inj.Restore("x"); err == nil {
		t.Fatalf("expected restore error")
	}
}

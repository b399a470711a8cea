package paste

import (
	"fmt"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
	"github.com/rs/zerolog"

	"github.com/yuhao-he/voice-input-assistant/internal/logging"
)

// Injector delivers text through the system clipboard and a synthesized paste
// chord. Each method is a single immediate action; the session controller
// owns the sequencing and the delays between them.
//
// Only textual clipboard content survives the snapshot/restore cycle. Images
// and rich content are lost, which is the accepted tradeoff of a text paste
// pipeline.
type Injector struct {
	log          zerolog.Logger
	modifierHeld func() bool

	readClipboard  func() (string, error)
	writeClipboard func(string) error
	sendCombo      func() error
	sendPlain      func() error
}

// New prepares the key synthesis backend. modifierHeld reports whether the
// paste chord's modifier key is physically held right now; it may be nil.
func New(modifierHeld func() bool) (*Injector, error) {
	combo, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key synthesis: %w", err)
	}
	plain, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key synthesis: %w", err)
	}

	combo.SetKeys(keybd_event.VK_V)
	plain.SetKeys(keybd_event.VK_V)
	if runtime.GOOS == "darwin" {
		combo.HasSuper(true)
	} else {
		combo.HasCTRL(true)
	}

	// uinput needs a moment to register the virtual keyboard device before
	// the first synthesized event is delivered.
	if runtime.GOOS == "linux" {
		time.Sleep(2 * time.Second)
	}

	return &Injector{
		log:            logging.WithComponent("paste"),
		modifierHeld:   modifierHeld,
		readClipboard:  clipboard.ReadAll,
		writeClipboard: clipboard.WriteAll,
		sendCombo:      func() error { return combo.Launching() },
		sendPlain:      func() error { return plain.Launching() },
	}, nil
}

func (i *Injector) Snapshot() (string, error) {
	text, err := i.readClipboard()
	if err != nil {
		return "", fmt.Errorf("failed to read clipboard: %w", err)
	}
	return text, nil
}

func (i *Injector) SetText(text string) error {
	if err := i.writeClipboard(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}

// SendPaste synthesizes the paste chord. When the hotkey's modifier doubles
// as the paste modifier and is still physically held, only V is sent; the
// held key completes the chord.
func (i *Injector) SendPaste() error {
	send := i.sendCombo
	if i.modifierHeld != nil && i.modifierHeld() {
		i.log.Debug().Msg("paste modifier already held, sending bare V")
		send = i.sendPlain
	}
	if err := send(); err != nil {
		return fmt.Errorf("failed to send paste keystroke: %w", err)
	}
	return nil
}

func (i *Injector) Restore(saved string) error {
	if err := i.writeClipboard(saved); err != nil {
		return fmt.Errorf("failed to restore clipboard: %w", err)
	}
	return nil
}

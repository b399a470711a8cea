package hotkey

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	hook "github.com/robotn/gohook"
	"github.com/rs/zerolog"

	"github.com/yuhao-he/voice-input-assistant/internal/logging"
)

// Action is a high-level gesture decoded from raw key events.
type Action string

const (
	ActionPress   Action = "press"
	ActionRelease Action = "release"
	ActionLatch   Action = "latch"
	ActionCancel  Action = "cancel"
)

// Config describes the hotkey gesture.
type Config struct {
	// Chord is the push-to-talk combination, for example "ctrl+space".
	Chord string
	// TapToRecord latches the recording when the chord is tapped quicker
	// than TapThreshold instead of requiring a continuous hold.
	TapToRecord  bool
	TapThreshold time.Duration
}

// Listener watches global key events and decodes them into press, release,
// latch and cancel actions. Decoded actions are handed to a single dispatch
// goroutine so handlers never block the hook loop; Escape therefore stays
// responsive even while a handler is busy.
type Listener struct {
	log          zerolog.Logger
	handle       func(Action)
	tapMode      bool
	tapThreshold time.Duration
	now          func() time.Time

	modifierByRaw map[uint16]modifier
	triggerRaw    map[uint16]bool
	escapeRaw     map[uint16]bool
	chordMods     []modifier
	pasteModifier modifier

	mu          sync.Mutex
	held        map[modifier]bool
	triggerDown bool
	latched     bool
	swallowUp   bool
	pressedAt   time.Time

	actions chan Action
}

// NewListener resolves the configured chord against the current platform's
// key codes. handle is invoked once per decoded action, in order.
func NewListener(cfg Config, handle func(Action)) (*Listener, error) {
	return newListenerForOS(runtime.GOOS, cfg, handle)
}

func newListenerForOS(goos string, cfg Config, handle func(Action)) (*Listener, error) {
	if cfg.Chord == "" {
		cfg.Chord = "ctrl+space"
	}
	if cfg.TapThreshold <= 0 {
		cfg.TapThreshold = 400 * time.Millisecond
	}

	ch, err := parseChord(cfg.Chord)
	if err != nil {
		return nil, err
	}

	km := keymapForOS(goos)
	triggerCodes, ok := km.triggers[ch.trigger]
	if !ok {
		return nil, fmt.Errorf("unsupported hotkey trigger key %q", ch.trigger)
	}

	l := &Listener{
		log:           logging.WithComponent("hotkey"),
		handle:        handle,
		tapMode:       cfg.TapToRecord,
		tapThreshold:  cfg.TapThreshold,
		now:           time.Now,
		modifierByRaw: make(map[uint16]modifier),
		triggerRaw:    make(map[uint16]bool),
		escapeRaw:     make(map[uint16]bool),
		chordMods:     ch.modifiers,
		pasteModifier: modCtrl,
		held:          make(map[modifier]bool),
		actions:       make(chan Action, 16),
	}
	if goos == "darwin" {
		l.pasteModifier = modSuper
	}

	for mod, codes := range km.modifiers {
		for _, code := range codes {
			l.modifierByRaw[code] = mod
		}
	}
	for _, code := range triggerCodes {
		l.triggerRaw[code] = true
	}
	for _, code := range km.escape {
		l.escapeRaw[code] = true
	}
	return l, nil
}

// Run hooks into the global event stream until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	events := hook.Start()
	defer hook.End()

	l.log.Info().Bool("tap_to_record", l.tapMode).Msg("hotkey listener started")
	return l.run(ctx, events)
}

func (l *Listener) run(ctx context.Context, events <-chan hook.Event) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for action := range l.actions {
			l.handle(action)
		}
	}()
	defer func() {
		close(l.actions)
		<-done
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			l.handleEvent(ev)
		}
	}
}

// PasteModifierHeld reports whether the key that doubles as the platform's
// paste modifier is physically down right now.
func (l *Listener) PasteModifierHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[l.pasteModifier]
}

func (l *Listener) handleEvent(ev hook.Event) {
	switch ev.Kind {
	case hook.KeyDown:
		l.handleKeyDown(ev.Rawcode)
	case hook.KeyUp:
		l.handleKeyUp(ev.Rawcode)
	}
}

func (l *Listener) handleKeyDown(raw uint16) {
	if l.escapeRaw[raw] {
		l.mu.Lock()
		l.latched = false
		if l.triggerDown {
			l.swallowUp = true
		}
		l.mu.Unlock()
		l.emit(ActionCancel)
		return
	}

	if mod, ok := l.modifierByRaw[raw]; ok {
		l.mu.Lock()
		l.held[mod] = true
		l.mu.Unlock()
		return
	}

	if !l.triggerRaw[raw] {
		return
	}

	l.mu.Lock()
	// Key auto-repeat delivers KeyDown again while held.
	if l.triggerDown {
		l.mu.Unlock()
		return
	}
	if !l.chordModifiersHeldLocked() {
		l.mu.Unlock()
		return
	}
	l.triggerDown = true

	if l.tapMode && l.latched {
		// Second tap stops a latched recording. The matching key-up must
		// not be decoded as another release.
		l.latched = false
		l.swallowUp = true
		l.mu.Unlock()
		l.emit(ActionRelease)
		return
	}

	l.pressedAt = l.now()
	l.mu.Unlock()
	l.emit(ActionPress)
}

func (l *Listener) handleKeyUp(raw uint16) {
	if mod, ok := l.modifierByRaw[raw]; ok {
		l.mu.Lock()
		l.held[mod] = false

		// Letting go of a chord modifier while the trigger key is still held
		// ends the chord. The trigger key's own key-up is then already spoken
		// for, and auto-repeat stays suppressed until it arrives.
		if l.chordModifier(mod) && l.triggerDown && !l.swallowUp {
			l.swallowUp = true
			action := l.releaseActionLocked()
			l.mu.Unlock()
			l.emit(action)
			return
		}
		l.mu.Unlock()
		return
	}

	if !l.triggerRaw[raw] {
		return
	}

	l.mu.Lock()
	if !l.triggerDown {
		l.mu.Unlock()
		return
	}
	l.triggerDown = false

	if l.swallowUp {
		l.swallowUp = false
		l.mu.Unlock()
		return
	}

	action := l.releaseActionLocked()
	l.mu.Unlock()
	l.emit(action)
}

// releaseActionLocked decides between latch and release at the moment the
// chord ends. Callers hold l.mu.
func (l *Listener) releaseActionLocked() Action {
	if l.tapMode && l.now().Sub(l.pressedAt) < l.tapThreshold {
		l.latched = true
		return ActionLatch
	}
	return ActionRelease
}

func (l *Listener) chordModifier(mod modifier) bool {
	for _, m := range l.chordMods {
		if m == mod {
			return true
		}
	}
	return false
}

func (l *Listener) chordModifiersHeldLocked() bool {
	for _, mod := range l.chordMods {
		if !l.held[mod] {
			return false
		}
	}
	return true
}

func (l *Listener) emit(action Action) {
	select {
	case l.actions <- action:
	default:
		l.log.Warn().Str("action", string(action)).Msg("action queue full, dropping")
	}
}

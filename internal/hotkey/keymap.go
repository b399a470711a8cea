package hotkey

import (
	"fmt"
	"strings"
)

type modifier string

const (
	modCtrl  modifier = "ctrl"
	modShift modifier = "shift"
	modAlt   modifier = "alt"
	modSuper modifier = "super"
)

// keymap maps modifier and trigger keys to the raw codes gohook reports for
// one platform. Linux entries carry both X11 keycodes and keysyms because
// gohook reports either depending on the display stack.
type keymap struct {
	modifiers map[modifier][]uint16
	triggers  map[string][]uint16
	escape    []uint16
}

func keymapForOS(goos string) keymap {
	switch goos {
	case "darwin":
		return keymap{
			modifiers: map[modifier][]uint16{
				modCtrl:  {59, 62},
				modShift: {56, 60},
				modAlt:   {58, 61},
				modSuper: {54, 55},
			},
			triggers: map[string][]uint16{
				"space": {49},
				"f1":    {122},
				"f2":    {120},
				"f3":    {99},
				"f4":    {118},
				"f5":    {96},
				"f6":    {97},
				"f7":    {98},
				"f8":    {100},
				"f9":    {101},
				"f10":   {109},
				"f11":   {103},
				"f12":   {111},
			},
			escape: []uint16{53},
		}
	case "windows":
		return keymap{
			modifiers: map[modifier][]uint16{
				modCtrl:  {17, 162, 163},
				modShift: {16, 160, 161},
				modAlt:   {18, 164, 165},
				modSuper: {91, 92},
			},
			triggers: map[string][]uint16{
				"space": {32},
				"f1":    {112},
				"f2":    {113},
				"f3":    {114},
				"f4":    {115},
				"f5":    {116},
				"f6":    {117},
				"f7":    {118},
				"f8":    {119},
				"f9":    {120},
				"f10":   {121},
				"f11":   {122},
				"f12":   {123},
			},
			escape: []uint16{27},
		}
	default:
		return keymap{
			modifiers: map[modifier][]uint16{
				modCtrl:  {37, 105, 65507, 65508},
				modShift: {50, 62, 65505, 65506},
				modAlt:   {64, 108, 65513, 65514},
				modSuper: {133, 134, 65515, 65516},
			},
			triggers: map[string][]uint16{
				"space": {65, 32},
				"f1":    {67, 65470},
				"f2":    {68, 65471},
				"f3":    {69, 65472},
				"f4":    {70, 65473},
				"f5":    {71, 65474},
				"f6":    {72, 65475},
				"f7":    {73, 65476},
				"f8":    {74, 65477},
				"f9":    {75, 65478},
				"f10":   {76, 65479},
				"f11":   {95, 65480},
				"f12":   {96, 65481},
			},
			escape: []uint16{9, 65307},
		}
	}
}

// chord is a parsed hotkey description such as "ctrl+space" or "f8".
type chord struct {
	modifiers []modifier
	trigger   string
}

func parseChord(s string) (chord, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	if len(parts) == 0 || parts[0] == "" {
		return chord{}, fmt.Errorf("empty hotkey chord")
	}

	var ch chord
	for i, part := range parts {
		part = strings.TrimSpace(part)
		mod, isMod := canonicalModifier(part)
		if i == len(parts)-1 {
			if isMod {
				return chord{}, fmt.Errorf("hotkey chord %q has no trigger key", s)
			}
			ch.trigger = part
			break
		}
		if !isMod {
			return chord{}, fmt.Errorf("unknown modifier %q in hotkey chord %q", part, s)
		}
		ch.modifiers = append(ch.modifiers, mod)
	}
	return ch, nil
}

func canonicalModifier(name string) (modifier, bool) {
	switch name {
	case "ctrl", "control":
		return modCtrl, true
	case "shift":
		return modShift, true
	case "alt", "option", "opt":
		return modAlt, true
	case "super", "cmd", "command", "win", "meta":
		return modSuper, true
	}
	return "", false
}

package hotkey

import (
	"fmt"
	"strings"

	"golang.design/x/hotkey"
)

var keyMap = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"tab":    hotkey.KeyTab,
	"return": hotkey.KeyReturn,
	"enter":  hotkey.KeyReturn,
	"escape": hotkey.KeyEscape,
	"esc":    hotkey.KeyEscape,
	"a":      hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,
	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
}

// parseCombo parses a combination string like "cmd+shift+ctrl+l" or "⌘⇧⌃+l"
// into hotkey modifiers and a key. The modifier vocabulary is
// platform-specific; see the mods_* files.
func parseCombo(combo string) ([]hotkey.Modifier, hotkey.Key, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(combo)), "+")
	if len(parts) < 2 {
		return nil, 0, fmt.Errorf("%w: %q (need at least one modifier)", ErrInvalidCombo, combo)
	}
	keyPart := parts[len(parts)-1]
	modParts := parts[:len(parts)-1]

	key, ok := keyMap[keyPart]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown key %q", ErrInvalidCombo, keyPart)
	}

	var mods []hotkey.Modifier
	seen := map[string]bool{}
	for _, m := range modParts {
		if seen[m] {
			continue
		}
		seen[m] = true
		mod, ok := modMap[m]
		if !ok {
			return nil, 0, fmt.Errorf("%w: unknown modifier %q", ErrInvalidCombo, m)
		}
		mods = append(mods, mod)
	}
	if len(mods) == 0 {
		return nil, 0, fmt.Errorf("%w: no valid modifier in %q", ErrInvalidCombo, combo)
	}
	return mods, key, nil
}

// FormatCombo converts a combination string into the conventional symbol
// notation, e.g. "cmd+shift+ctrl+l" -> "⌘⇧⌃L".
func FormatCombo(combo string) string {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(combo)), "+")
	if len(parts) < 2 {
		return combo
	}
	symbols := map[string]string{
		"ctrl": "⌃", "control": "⌃",
		"option": "⌥", "alt": "⌥",
		"shift": "⇧",
		"cmd":   "⌘", "command": "⌘", "super": "❖", "win": "⊞",
	}
	display := map[string]string{
		"space": "Space", "tab": "Tab", "return": "Return", "enter": "Return",
	}

	var out strings.Builder
	for _, p := range parts[:len(parts)-1] {
		if s, ok := symbols[p]; ok {
			out.WriteString(s)
		}
	}
	key := parts[len(parts)-1]
	if d, ok := display[key]; ok {
		out.WriteString(d)
	} else {
		out.WriteString(strings.ToUpper(key))
	}
	return out.String()
}

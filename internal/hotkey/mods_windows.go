//go:build windows
// +build windows

package hotkey

import "golang.design/x/hotkey"

var modMap = map[string]hotkey.Modifier{
	"ctrl":    hotkey.ModCtrl,
	"control": hotkey.ModCtrl,
	"shift":   hotkey.ModShift,
	"alt":     hotkey.ModAlt,
	"option":  hotkey.ModAlt,
	// Cmd maps to the Windows key.
	"cmd":     hotkey.ModWin,
	"command": hotkey.ModWin,
	"win":     hotkey.ModWin,
}

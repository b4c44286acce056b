//go:build darwin
// +build darwin

package hotkey

import "golang.design/x/hotkey"

var modMap = map[string]hotkey.Modifier{
	"ctrl":    hotkey.ModCtrl,
	"control": hotkey.ModCtrl,
	"⌃":       hotkey.ModCtrl,
	"option":  hotkey.ModOption,
	"alt":     hotkey.ModOption,
	"⌥":       hotkey.ModOption,
	"shift":   hotkey.ModShift,
	"⇧":       hotkey.ModShift,
	"cmd":     hotkey.ModCmd,
	"command": hotkey.ModCmd,
	"⌘":       hotkey.ModCmd,
}

//go:build linux
// +build linux

package hotkey

import "golang.design/x/hotkey"

var modMap = map[string]hotkey.Modifier{
	"ctrl":    hotkey.ModCtrl,
	"control": hotkey.ModCtrl,
	"shift":   hotkey.ModShift,
	"alt":     hotkey.Mod1,
	"option":  hotkey.Mod1,
	// Cmd maps to the Super key on Linux keyboards.
	"cmd":     hotkey.Mod4,
	"command": hotkey.Mod4,
	"super":   hotkey.Mod4,
}

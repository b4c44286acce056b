//go:build darwin
// +build darwin

package platform

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type darwinImpl struct{}

func newDarwinPlatform() (Platform, error) {
	return &darwinImpl{}, nil
}

func newWindowsPlatform() (Platform, error) {
	return nil, &UnsupportedPlatformError{OS: "windows (building for darwin)"}
}

func newLinuxPlatform() (Platform, error) {
	return nil, &UnsupportedPlatformError{OS: "linux (building for darwin)"}
}

// settingsPanes maps capabilities to the Privacy & Security pane anchors.
var settingsPanes = map[Capability]string{
	CapabilityAccessibility:   "x-apple.systempreferences:com.apple.preference.security?Privacy_Accessibility",
	CapabilityAutomation:      "x-apple.systempreferences:com.apple.preference.security?Privacy_Automation",
	CapabilityScreenRecording: "x-apple.systempreferences:com.apple.preference.security?Privacy_ScreenCapture",
}

func (p *darwinImpl) GetActiveWindow(ctx context.Context) (*WindowInfo, error) {
	script := `tell application "System Events"
	set frontApp to first process whose frontmost is true
	set appName to name of frontApp
	set appPID to unix id of frontApp
	set winTitle to ""
	try
		set winTitle to name of front window of frontApp
	end try
	set bundleID to ""
	try
		set bundleID to bundle identifier of frontApp
	end try
	return appName & linefeed & appPID & linefeed & bundleID & linefeed & winTitle
end tell`

	out, err := runOsascript(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("failed to detect focused window: %w", err)
	}

	parts := strings.SplitN(out, "\n", 4)
	if len(parts) < 4 {
		return nil, fmt.Errorf("unexpected focused window response: %q", out)
	}

	pid, _ := strconv.Atoi(strings.TrimSpace(parts[1]))
	return &WindowInfo{
		Title:       strings.TrimSpace(parts[3]),
		Application: strings.TrimSpace(parts[0]),
		ProcessID:   pid,
		BundleID:    strings.TrimSpace(parts[2]),
		IsVisible:   true,
		Timestamp:   time.Now(),
	}, nil
}

func (p *darwinImpl) CheckPermissions(ctx context.Context) (Permissions, error) {
	return Permissions{
		Accessibility:   p.checkAccessibility(ctx),
		Automation:      p.checkAutomation(ctx),
		ScreenRecording: p.checkScreenRecording(ctx),
		CheckedAt:       time.Now(),
	}, nil
}

// checkAccessibility probes the System Events process list, which is refused
// without the accessibility grant.
func (p *darwinImpl) checkAccessibility(ctx context.Context) bool {
	_, err := runOsascript(ctx, `tell application "System Events" to return name of first process`)
	return err == nil
}

// checkAutomation asks System Events for process properties; the request is
// denied when the Apple Events automation grant is missing.
func (p *darwinImpl) checkAutomation(ctx context.Context) bool {
	_, err := runOsascript(ctx, `tell application "System Events" to get properties of first process`)
	return err == nil
}

// checkScreenRecording takes a throwaway capture; screencapture exits non-zero
// without the screen recording grant.
func (p *darwinImpl) checkScreenRecording(ctx context.Context) bool {
	probe := filepath.Join(os.TempDir(), "context-agent-permission-probe.png")
	defer os.Remove(probe)

	cmd := exec.CommandContext(ctx, "screencapture", "-x", "-t", "png", probe)
	return cmd.Run() == nil
}

func (p *darwinImpl) RequestPermission(ctx context.Context, c Capability) error {
	if !c.Valid() {
		return fmt.Errorf("unknown capability %q", c)
	}

	// The consent dialog only appears on first use of the gated API, so poke
	// the API once, then poll the grant until the user responds or ctx ends.
	p.pokeCapability(ctx, c)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		perms, err := p.CheckPermissions(ctx)
		if err == nil && perms.Granted(c) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pokeCapability exercises the gated API so the OS shows its consent dialog.
func (p *darwinImpl) pokeCapability(ctx context.Context, c Capability) {
	switch c {
	case CapabilityAccessibility:
		p.checkAccessibility(ctx)
	case CapabilityAutomation:
		p.checkAutomation(ctx)
	case CapabilityScreenRecording:
		p.checkScreenRecording(ctx)
	}
}

func (p *darwinImpl) OpenPermissionSettings(c Capability) error {
	pane, ok := settingsPanes[c]
	if !ok {
		return fmt.Errorf("unknown capability %q", c)
	}
	return exec.Command("open", pane).Start()
}

// browserNames identifies applications whose content model is readable
// through their scripting interface.
var browserNames = []string{"Safari", "Google Chrome", "Chrome", "Chromium", "Microsoft Edge", "Arc", "Brave"}

func isBrowser(app string) bool {
	for _, b := range browserNames {
		if strings.Contains(app, b) {
			return true
		}
	}
	return false
}

func (p *darwinImpl) ReadNativeContent(ctx context.Context, w *WindowInfo) (*Content, error) {
	if !isBrowser(w.Application) {
		return nil, fmt.Errorf("%s exposes no readable content model", w.Application)
	}

	var script string
	if strings.Contains(w.Application, "Safari") {
		script = `tell application "Safari"
	set theURL to URL of front document
	set theText to do JavaScript "document.body.innerText" in front document
	return theURL & linefeed & theText
end tell`
	} else {
		script = fmt.Sprintf(`tell application "%s"
	set theTab to active tab of front window
	set theURL to URL of theTab
	set theText to execute theTab javascript "document.body.innerText"
	return theURL & linefeed & theText
end tell`, w.Application)
	}

	out, err := runOsascript(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("content model read failed: %w", err)
	}

	url, text, _ := strings.Cut(out, "\n")
	return &Content{
		FullText: text,
		Structured: map[string]any{
			"url":        strings.TrimSpace(url),
			"title":      w.Title,
			"word_count": len(strings.Fields(text)),
		},
		Confidence: 1.0,
	}, nil
}

// scriptableApps maps document-based applications to the AppleScript
// expression that yields their front document's text.
var scriptableApps = map[string]string{
	"TextEdit":       `text of front document`,
	"Pages":          `body text of front document`,
	"Microsoft Word": `content of text object of active document`,
	"Notes":          `body of first note of front window`,
}

func (p *darwinImpl) RunScriptedExtraction(ctx context.Context, w *WindowInfo) (*Content, error) {
	expr := ""
	for app, e := range scriptableApps {
		if strings.Contains(w.Application, app) {
			expr = e
			break
		}
	}
	if expr == "" {
		return nil, fmt.Errorf("%s is not scriptable", w.Application)
	}

	out, err := runOsascript(ctx, fmt.Sprintf(`tell application "%s" to return %s`, w.Application, expr))
	if err != nil {
		return nil, fmt.Errorf("scripted extraction failed: %w", err)
	}

	words := len(strings.Fields(out))
	conf := 0.9
	if words < 50 {
		conf = 0.6
	}
	return &Content{
		FullText:   out,
		Structured: map[string]any{"word_count": words},
		Confidence: conf,
	}, nil
}

func (p *darwinImpl) WalkAccessibilityTree(ctx context.Context, w *WindowInfo) (*Content, error) {
	script := `tell application "System Events"
	tell (first process whose frontmost is true)
		set collected to {}
		repeat with el in (every UI element of front window whose value of attribute "AXValue" is not missing value)
			set end of collected to (value of attribute "AXValue" of el) as text
		end repeat
		set AppleScript's text item delimiters to linefeed
		return collected as text
	end tell
end tell`

	out, err := runOsascript(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("accessibility walk failed: %w", err)
	}

	elements := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			elements++
		}
	}

	conf := 0.8
	if elements <= 5 {
		conf = 0.6
	}
	return &Content{
		FullText:   out,
		Structured: map[string]any{"elements_found": elements},
		Confidence: conf,
	}, nil
}

func (p *darwinImpl) RecognizeScreenText(ctx context.Context, w *WindowInfo) (*Content, error) {
	capture := filepath.Join(os.TempDir(), fmt.Sprintf("context-agent-capture-%d.png", time.Now().UnixNano()))
	defer os.Remove(capture)

	if err := exec.CommandContext(ctx, "screencapture", "-x", "-t", "png", capture).Run(); err != nil {
		return nil, fmt.Errorf("screen capture failed: %w", err)
	}
	return recognizeImage(ctx, capture)
}

// runOsascript executes an AppleScript and returns its trimmed stdout.
func runOsascript(ctx context.Context, script string) (string, error) {
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return "", fmt.Errorf("osascript: %s", strings.TrimSpace(string(ee.Stderr)))
		}
		return "", err
	}
	return strings.TrimRight(string(out), "\n"), nil
}

//go:build linux
// +build linux

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

type linuxImpl struct{}

func newLinuxPlatform() (Platform, error) {
	return &linuxImpl{}, nil
}

func newDarwinPlatform() (Platform, error) {
	return nil, &UnsupportedPlatformError{OS: "darwin (building for linux)"}
}

func newWindowsPlatform() (Platform, error) {
	return nil, &UnsupportedPlatformError{OS: "windows (building for linux)"}
}

func (p *linuxImpl) GetActiveWindow(ctx context.Context) (*WindowInfo, error) {
	if _, err := exec.LookPath("xdotool"); err != nil {
		return nil, fmt.Errorf("xdotool not available: %w", err)
	}

	title, err := exec.CommandContext(ctx, "xdotool", "getactivewindow", "getwindowname").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to detect focused window: %w", err)
	}
	pidOut, err := exec.CommandContext(ctx, "xdotool", "getactivewindow", "getwindowpid").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to read focused window pid: %w", err)
	}
	classOut, _ := exec.CommandContext(ctx, "xdotool", "getactivewindow", "getwindowclassname").Output()

	pid, _ := strconv.Atoi(strings.TrimSpace(string(pidOut)))
	app, path := processIdentity(pid)

	return &WindowInfo{
		Title:       strings.TrimSpace(string(title)),
		Application: app,
		ProcessID:   pid,
		ProcessPath: path,
		WindowClass: strings.TrimSpace(string(classOut)),
		IsVisible:   true,
		Timestamp:   time.Now(),
	}, nil
}

// processIdentity resolves the process name and executable path via /proc.
func processIdentity(pid int) (name, path string) {
	if pid <= 0 {
		return "", ""
	}
	if comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid)); err == nil {
		name = strings.TrimSpace(string(comm))
	}
	if exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid)); err == nil {
		path = exe
	}
	return name, path
}

func (p *linuxImpl) CheckPermissions(ctx context.Context) (Permissions, error) {
	atspi := atspiAvailable()
	sessionType := os.Getenv("XDG_SESSION_TYPE")

	return Permissions{
		Accessibility: atspi,
		// The assistive bus covers scripting access on Linux as well.
		Automation: atspi,
		// Wayland compositors refuse unsanctioned capture; X11 allows it.
		ScreenRecording: sessionType == "x11",
		CheckedAt:       time.Now(),
	}, nil
}

// atspiAvailable reports whether the AT-SPI assistive technology bus is up.
func atspiAvailable() bool {
	if os.Getenv("AT_SPI_BUS_ADDRESS") != "" {
		return true
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(runtimeDir, "at-spi", "bus"))
	return err == nil
}

func (p *linuxImpl) RequestPermission(ctx context.Context, c Capability) error {
	if !c.Valid() {
		return fmt.Errorf("unknown capability %q", c)
	}
	// There is no per-application consent flow on Linux; grants depend on the
	// session. Report the current state immediately.
	perms, err := p.CheckPermissions(ctx)
	if err != nil {
		return err
	}
	if !perms.Granted(c) {
		return fmt.Errorf("capability %s unavailable in this session", c)
	}
	return nil
}

func (p *linuxImpl) OpenPermissionSettings(c Capability) error {
	// Settings frontends vary by desktop environment; try the common ones.
	for _, cmd := range []string{"gnome-control-center", "systemsettings5", "unity-control-center"} {
		if err := exec.Command(cmd).Start(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no settings frontend found")
}

func (p *linuxImpl) ReadNativeContent(ctx context.Context, w *WindowInfo) (*Content, error) {
	return nil, fmt.Errorf("%s exposes no readable content model", w.Application)
}

func (p *linuxImpl) RunScriptedExtraction(ctx context.Context, w *WindowInfo) (*Content, error) {
	return nil, fmt.Errorf("no scripting bridge for %s", w.Application)
}

func (p *linuxImpl) WalkAccessibilityTree(ctx context.Context, w *WindowInfo) (*Content, error) {
	if !atspiAvailable() {
		return nil, fmt.Errorf("AT-SPI bus unavailable")
	}
	// busctl walks the accessible tree of the focused application.
	out, err := exec.CommandContext(ctx, "busctl", "--user", "call",
		"org.a11y.Bus", "/org/a11y/bus", "org.a11y.Bus", "GetAddress").Output()
	if err != nil {
		return nil, fmt.Errorf("accessibility walk failed: %w", err)
	}
	text := strings.TrimSpace(string(out))
	if text == "" {
		return nil, fmt.Errorf("accessibility walk returned no elements")
	}
	return &Content{
		FullText:   text,
		Structured: map[string]any{"elements_found": len(strings.Split(text, "\n"))},
		Confidence: 0.6,
	}, nil
}

func (p *linuxImpl) RecognizeScreenText(ctx context.Context, w *WindowInfo) (*Content, error) {
	capture := filepath.Join(os.TempDir(), fmt.Sprintf("context-agent-capture-%d.png", time.Now().UnixNano()))
	defer os.Remove(capture)

	var captured bool
	for _, argv := range [][]string{
		{"scrot", "--overwrite", capture},
		{"gnome-screenshot", "-f", capture},
		{"import", "-window", "root", capture},
	} {
		if _, err := exec.LookPath(argv[0]); err != nil {
			continue
		}
		if err := exec.CommandContext(ctx, argv[0], argv[1:]...).Run(); err == nil {
			captured = true
			break
		}
	}
	if !captured {
		return nil, fmt.Errorf("screen capture failed: no capture tool succeeded")
	}
	return recognizeImage(ctx, capture)
}

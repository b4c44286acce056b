//go:build windows
// +build windows

package platform

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

type windowsImpl struct{}

var (
	user32   = windows.NewLazyDLL("user32.dll")
	kernel32 = windows.NewLazyDLL("kernel32.dll")
	psapi    = windows.NewLazyDLL("psapi.dll")

	procGetForegroundWindow      = user32.NewProc("GetForegroundWindow")
	procGetWindowTextW           = user32.NewProc("GetWindowTextW")
	procGetWindowTextLength      = user32.NewProc("GetWindowTextLengthW")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procGetClassNameW            = user32.NewProc("GetClassNameW")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")

	procGetModuleFileNameEx = psapi.NewProc("GetModuleFileNameExW")
	procOpenProcess         = kernel32.NewProc("OpenProcess")
	procCloseHandle         = kernel32.NewProc("CloseHandle")
)

const (
	PROCESS_QUERY_INFORMATION = 0x0400
	PROCESS_VM_READ           = 0x0010
)

func newWindowsPlatform() (Platform, error) {
	return &windowsImpl{}, nil
}

func newDarwinPlatform() (Platform, error) {
	return nil, &UnsupportedPlatformError{OS: "darwin (building for windows)"}
}

func newLinuxPlatform() (Platform, error) {
	return nil, &UnsupportedPlatformError{OS: "linux (building for windows)"}
}

func (p *windowsImpl) GetActiveWindow(ctx context.Context) (*WindowInfo, error) {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return nil, fmt.Errorf("failed to get foreground window")
	}

	var title string
	length, _, _ := procGetWindowTextLength.Call(hwnd)
	if length > 0 {
		length++ // Include null terminator
		buf := make([]uint16, length)
		procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(length))
		title = windows.UTF16ToString(buf)
	}

	classBuf := make([]uint16, 256)
	procGetClassNameW.Call(hwnd, uintptr(unsafe.Pointer(&classBuf[0])), 256)

	var processID uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&processID)))

	processPath := p.getProcessPath(int(processID))
	application := p.getApplicationName(processPath)

	visible, _, _ := procIsWindowVisible.Call(hwnd)

	return &WindowInfo{
		Title:       title,
		Application: application,
		ProcessID:   int(processID),
		ProcessPath: processPath,
		WindowClass: windows.UTF16ToString(classBuf),
		IsVisible:   visible != 0,
		Timestamp:   time.Now(),
	}, nil
}

func (p *windowsImpl) getProcessPath(processID int) string {
	if processID == 0 {
		return ""
	}

	handle, _, _ := procOpenProcess.Call(
		PROCESS_QUERY_INFORMATION|PROCESS_VM_READ,
		0,
		uintptr(processID),
	)
	if handle == 0 {
		return ""
	}
	defer procCloseHandle.Call(handle)

	buf := make([]uint16, 260)
	ret, _, _ := procGetModuleFileNameEx.Call(
		handle,
		0,
		uintptr(unsafe.Pointer(&buf[0])),
		260,
	)
	if ret == 0 {
		return ""
	}

	return windows.UTF16ToString(buf)
}

func (p *windowsImpl) getApplicationName(processPath string) string {
	if processPath == "" {
		return ""
	}

	parts := strings.Split(processPath, "\\")
	exeName := parts[len(parts)-1]
	return strings.TrimSuffix(exeName, ".exe")
}

func (p *windowsImpl) CheckPermissions(ctx context.Context) (Permissions, error) {
	// UI Automation and COM scripting carry no per-application consent on
	// Windows; capture is likewise unrestricted.
	return Permissions{
		Accessibility:   true,
		Automation:      true,
		ScreenRecording: true,
		CheckedAt:       time.Now(),
	}, nil
}

func (p *windowsImpl) RequestPermission(ctx context.Context, c Capability) error {
	if !c.Valid() {
		return fmt.Errorf("unknown capability %q", c)
	}
	return nil
}

func (p *windowsImpl) OpenPermissionSettings(c Capability) error {
	return exec.Command("cmd", "/c", "start", "ms-settings:privacy").Start()
}

func (p *windowsImpl) ReadNativeContent(ctx context.Context, w *WindowInfo) (*Content, error) {
	return nil, fmt.Errorf("%s exposes no readable content model", w.Application)
}

func (p *windowsImpl) RunScriptedExtraction(ctx context.Context, w *WindowInfo) (*Content, error) {
	return nil, fmt.Errorf("no scripting bridge for %s", w.Application)
}

func (p *windowsImpl) WalkAccessibilityTree(ctx context.Context, w *WindowInfo) (*Content, error) {
	return nil, fmt.Errorf("UI Automation walker not available")
}

func (p *windowsImpl) RecognizeScreenText(ctx context.Context, w *WindowInfo) (*Content, error) {
	return nil, fmt.Errorf("screen capture not available")
}

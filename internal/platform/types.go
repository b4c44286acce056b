package platform

import (
	"context"
	"time"
)

// Capability is an OS-gated permission required by extraction surfaces.
type Capability string

const (
	CapabilityAccessibility   Capability = "accessibility"
	CapabilityAutomation      Capability = "automation"
	CapabilityScreenRecording Capability = "screen_recording"
)

// Valid reports whether c names a known capability.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityAccessibility, CapabilityAutomation, CapabilityScreenRecording:
		return true
	}
	return false
}

// Permissions is an immutable snapshot of the current capability grants.
// Snapshots are taken fresh on every check and never cached across
// activation attempts.
type Permissions struct {
	Accessibility   bool
	Automation      bool
	ScreenRecording bool
	CheckedAt       time.Time
}

// Granted reports whether the named capability was granted at snapshot time.
func (p Permissions) Granted(c Capability) bool {
	switch c {
	case CapabilityAccessibility:
		return p.Accessibility
	case CapabilityAutomation:
		return p.Automation
	case CapabilityScreenRecording:
		return p.ScreenRecording
	}
	return false
}

// Platform defines the interface for platform-specific operations
type Platform interface {
	// GetActiveWindow returns information about the currently focused window
	GetActiveWindow(ctx context.Context) (*WindowInfo, error)

	// CheckPermissions queries the OS for the current capability grants
	CheckPermissions(ctx context.Context) (Permissions, error)

	// RequestPermission triggers the OS-native consent flow for one capability.
	// It blocks until the user responds or ctx is done.
	RequestPermission(ctx context.Context, c Capability) error

	// OpenPermissionSettings opens the OS settings panel for the capability
	OpenPermissionSettings(c Capability) error

	// ReadNativeContent reads the focused application's own content model
	ReadNativeContent(ctx context.Context, w *WindowInfo) (*Content, error)

	// RunScriptedExtraction drives the focused application through the OS
	// scripting bridge and returns the document text it reports
	RunScriptedExtraction(ctx context.Context, w *WindowInfo) (*Content, error)

	// WalkAccessibilityTree collects text from the focused window's
	// accessibility element tree
	WalkAccessibilityTree(ctx context.Context, w *WindowInfo) (*Content, error)

	// RecognizeScreenText captures the focused window and runs character
	// recognition over the capture
	RecognizeScreenText(ctx context.Context, w *WindowInfo) (*Content, error)
}

// WindowInfo contains information about the focused window
type WindowInfo struct {
	Title       string    `json:"title"`
	Application string    `json:"application"`
	ProcessID   int       `json:"pid"`
	ProcessPath string    `json:"processPath,omitempty"`
	BundleID    string    `json:"bundleId,omitempty"`    // macOS
	WindowClass string    `json:"windowClass,omitempty"` // Windows/Linux
	IsVisible   bool      `json:"isVisible"`
	Timestamp   time.Time `json:"timestamp"`
}

// Content is the raw payload returned by one extraction surface.
// Confidence is the surface's own estimate in [0,1]; the strategy layer
// decides what to do with it.
type Content struct {
	FullText   string
	Structured map[string]any
	Confidence float64
}

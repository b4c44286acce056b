package extraction

import (
	"context"
	"time"

	"contextagent/internal/platform"
)

// Timeouts bounds each strategy's single attempt. Optical recognition gets
// the longest budget, structured access the shortest, so the full chain has a
// deterministic worst case.
type Timeouts struct {
	Structured    time.Duration
	Scripted      time.Duration
	Accessibility time.Duration
	Optical       time.Duration
}

// DefaultTimeouts mirrors the expected latency of each surface.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Structured:    800 * time.Millisecond,
		Scripted:      1500 * time.Millisecond,
		Accessibility: 1500 * time.Millisecond,
		Optical:       10 * time.Second,
	}
}

// PlatformExtractors builds the four standard strategies backed by the given
// platform.
func PlatformExtractors(p platform.Platform, t Timeouts) []Extractor {
	return []Extractor{
		&structuredExtractor{platform: p, timeout: t.Structured},
		&scriptedExtractor{platform: p, timeout: t.Scripted},
		&accessibilityExtractor{platform: p, timeout: t.Accessibility},
		&opticalExtractor{platform: p, timeout: t.Optical},
	}
}

type structuredExtractor struct {
	platform platform.Platform
	timeout  time.Duration
}

func (e *structuredExtractor) Strategy() Strategy     { return StrategyStructuredAccess }
func (e *structuredExtractor) Timeout() time.Duration { return e.timeout }

func (e *structuredExtractor) Required() []platform.Capability {
	return []platform.Capability{platform.CapabilityAutomation}
}

func (e *structuredExtractor) Extract(ctx context.Context, w *platform.WindowInfo) (*platform.Content, error) {
	return e.platform.ReadNativeContent(ctx, w)
}

type scriptedExtractor struct {
	platform platform.Platform
	timeout  time.Duration
}

func (e *scriptedExtractor) Strategy() Strategy     { return StrategyScriptedAutomation }
func (e *scriptedExtractor) Timeout() time.Duration { return e.timeout }

func (e *scriptedExtractor) Required() []platform.Capability {
	return []platform.Capability{platform.CapabilityAutomation}
}

func (e *scriptedExtractor) Extract(ctx context.Context, w *platform.WindowInfo) (*platform.Content, error) {
	return e.platform.RunScriptedExtraction(ctx, w)
}

type accessibilityExtractor struct {
	platform platform.Platform
	timeout  time.Duration
}

func (e *accessibilityExtractor) Strategy() Strategy     { return StrategyAccessibilityTree }
func (e *accessibilityExtractor) Timeout() time.Duration { return e.timeout }

func (e *accessibilityExtractor) Required() []platform.Capability {
	return []platform.Capability{platform.CapabilityAccessibility}
}

func (e *accessibilityExtractor) Extract(ctx context.Context, w *platform.WindowInfo) (*platform.Content, error) {
	return e.platform.WalkAccessibilityTree(ctx, w)
}

type opticalExtractor struct {
	platform platform.Platform
	timeout  time.Duration
}

func (e *opticalExtractor) Strategy() Strategy     { return StrategyOpticalRecognition }
func (e *opticalExtractor) Timeout() time.Duration { return e.timeout }

func (e *opticalExtractor) Required() []platform.Capability {
	return []platform.Capability{platform.CapabilityScreenRecording}
}

func (e *opticalExtractor) Extract(ctx context.Context, w *platform.WindowInfo) (*platform.Content, error) {
	return e.platform.RecognizeScreenText(ctx, w)
}

package extraction

import (
	"context"
	"fmt"
	"time"

	"contextagent/internal/platform"
)

// Strategy names one method of producing a window context. Strategies are
// ordered by confidence: structured access is the most reliable, optical
// recognition the universal fallback.
type Strategy string

const (
	StrategyStructuredAccess   Strategy = "structured_access"
	StrategyScriptedAutomation Strategy = "scripted_automation"
	StrategyAccessibilityTree  Strategy = "accessibility_tree"
	StrategyOpticalRecognition Strategy = "optical_recognition"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyStructuredAccess, StrategyScriptedAutomation,
		StrategyAccessibilityTree, StrategyOpticalRecognition:
		return true
	}
	return false
}

// ParseStrategy converts a config string into a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(name)
	if !s.Valid() {
		return "", fmt.Errorf("unknown extraction strategy %q", name)
	}
	return s, nil
}

// DefaultOrder is the standard fallback chain, strongest strategy first.
func DefaultOrder() []Strategy {
	return []Strategy{
		StrategyStructuredAccess,
		StrategyScriptedAutomation,
		StrategyAccessibilityTree,
		StrategyOpticalRecognition,
	}
}

// Extractor is one extraction strategy. Implementations declare the
// capability grants they need and a timeout proportional to their expected
// latency.
type Extractor interface {
	Strategy() Strategy
	Required() []platform.Capability
	Timeout() time.Duration
	Extract(ctx context.Context, w *platform.WindowInfo) (*platform.Content, error)
}

// Confidence reports how much the produced context can be trusted and which
// strategy produced it. Scores from different strategies are never combined.
type Confidence struct {
	Score  float64  `json:"score"`
	Method Strategy `json:"extractionMethod"`
}

// Content is the extracted window content. Redacted marks full text that was
// suppressed by the blocked-application policy rather than missing.
type Content struct {
	FullText   string         `json:"fulltext"`
	Structured map[string]any `json:"structured,omitempty"`
	Redacted   bool           `json:"redacted,omitempty"`
}

// WindowContext is a structured snapshot of the focused window's content.
// It is created once per successful extraction and never mutated.
type WindowContext struct {
	ID         string              `json:"id"`
	Source     platform.WindowInfo `json:"source"`
	Content    Content             `json:"content"`
	Confidence Confidence          `json:"confidence"`
	Timestamp  time.Time           `json:"timestamp"`
}

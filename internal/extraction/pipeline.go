package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"contextagent/internal/platform"
)

// CapabilityChecker supplies a fresh permission snapshot per extraction.
type CapabilityChecker interface {
	Check(ctx context.Context) (platform.Permissions, error)
}

// WindowSource supplies the currently focused window.
type WindowSource interface {
	ActiveWindow(ctx context.Context) (*platform.WindowInfo, error)
}

// Observer receives the outcome of each completed extraction attempt.
type Observer func(strategy Strategy, app string, success bool, duration time.Duration, score float64)

// Governance limits what extracted content may leave the pipeline.
type Governance struct {
	// BlockedApps suppresses full text for sensitive applications; the
	// context is still returned with the Redacted flag set.
	BlockedApps []string
	// MaxContentLength truncates oversized full text.
	MaxContentLength int
}

// Attempt records one failed strategy attempt. Skipped (ineligible)
// strategies are never recorded.
type Attempt struct {
	Strategy Strategy `json:"strategy"`
	Reason   string   `json:"reason"`
}

// ExhaustedError reports that every eligible strategy failed, or that none
// was eligible. Attempts holds exactly one entry per attempted strategy.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "extraction failed: no eligible strategy"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %s", a.Strategy, a.Reason)
	}
	return "extraction failed after " + strings.Join(parts, "; ")
}

// CapabilityMissingError reports a direct extraction blocked by an ungranted
// capability.
type CapabilityMissingError struct {
	Strategy   Strategy
	Capability platform.Capability
}

func (e *CapabilityMissingError) Error() string {
	return fmt.Sprintf("strategy %s requires ungranted capability %s", e.Strategy, e.Capability)
}

// ErrWindowDetection wraps failures to identify the focused window.
var ErrWindowDetection = errors.New("focused window detection failed")

// Pipeline runs extraction strategies strictly in order, short-circuiting on
// the first success. Strategies whose required capabilities are missing are
// skipped, not attempted.
type Pipeline struct {
	extractors map[Strategy]Extractor
	checker    CapabilityChecker
	windows    WindowSource
	governance Governance
	observer   Observer
	logger     *zap.Logger
}

// NewPipeline creates a pipeline over the given strategies.
func NewPipeline(
	checker CapabilityChecker,
	windows WindowSource,
	extractors []Extractor,
	governance Governance,
	logger *zap.Logger,
) *Pipeline {
	byStrategy := make(map[Strategy]Extractor, len(extractors))
	for _, e := range extractors {
		byStrategy[e.Strategy()] = e
	}
	return &Pipeline{
		extractors: byStrategy,
		checker:    checker,
		windows:    windows,
		governance: governance,
		logger:     logger,
	}
}

// SetObserver registers a telemetry callback for attempt outcomes.
func (p *Pipeline) SetObserver(o Observer) {
	p.observer = o
}

// Extract attempts the strategies in the given order (the default chain when
// order is nil) and returns the first successful result. Later strategies are
// never attempted once one succeeds. When every eligible strategy fails, the
// returned error is an *ExhaustedError listing each attempt.
func (p *Pipeline) Extract(ctx context.Context, order []Strategy) (*WindowContext, error) {
	if order == nil {
		order = DefaultOrder()
	}

	perms, err := p.checker.Check(ctx)
	if err != nil {
		return nil, err
	}

	window, err := p.windows.ActiveWindow(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWindowDetection, err)
	}

	var attempts []Attempt
	for _, s := range order {
		e, ok := p.extractors[s]
		if !ok {
			p.logger.Debug("No extractor registered for strategy", zap.String("strategy", string(s)))
			continue
		}
		if missing, ok := missingCapability(e, perms); ok {
			p.logger.Debug("Skipping ineligible strategy",
				zap.String("strategy", string(s)),
				zap.String("missing_capability", string(missing)),
			)
			continue
		}

		content, dur, err := p.attempt(ctx, e, window)
		if err != nil {
			p.logger.Debug("Strategy failed",
				zap.String("strategy", string(s)),
				zap.Duration("duration", dur),
				zap.Error(err),
			)
			p.observe(s, window.Application, false, dur, 0)
			attempts = append(attempts, Attempt{Strategy: s, Reason: err.Error()})
			continue
		}

		result := p.assemble(window, e.Strategy(), content)
		p.observe(s, window.Application, true, dur, result.Confidence.Score)
		p.logger.Info("Context extracted",
			zap.String("extraction_id", result.ID),
			zap.String("application", window.Application),
			zap.String("method", string(s)),
			zap.Float64("score", result.Confidence.Score),
			zap.Duration("duration", dur),
		)
		return result, nil
	}

	return nil, &ExhaustedError{Attempts: attempts}
}

// ExtractDirect forces exactly one named strategy, bypassing ordering and
// fallback. Unlike the chain, a missing capability here is an error rather
// than a skip.
func (p *Pipeline) ExtractDirect(ctx context.Context, s Strategy) (*WindowContext, error) {
	e, ok := p.extractors[s]
	if !ok {
		return nil, fmt.Errorf("no extractor registered for strategy %q", s)
	}

	perms, err := p.checker.Check(ctx)
	if err != nil {
		return nil, err
	}
	if missing, ok := missingCapability(e, perms); ok {
		return nil, &CapabilityMissingError{Strategy: s, Capability: missing}
	}

	window, err := p.windows.ActiveWindow(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWindowDetection, err)
	}

	content, dur, err := p.attempt(ctx, e, window)
	if err != nil {
		p.observe(s, window.Application, false, dur, 0)
		return nil, fmt.Errorf("strategy %s failed: %w", s, err)
	}

	result := p.assemble(window, s, content)
	p.observe(s, window.Application, true, dur, result.Confidence.Score)
	p.logger.Info("Context extracted directly",
		zap.String("extraction_id", result.ID),
		zap.String("application", window.Application),
		zap.String("method", string(s)),
		zap.Float64("score", result.Confidence.Score),
	)
	return result, nil
}

// attempt runs one strategy under its own timeout. A panicking strategy is
// caught and recorded as a failure, never propagated.
func (p *Pipeline) attempt(ctx context.Context, e Extractor, w *platform.WindowInfo) (content *platform.Content, dur time.Duration, err error) {
	start := time.Now()
	defer func() {
		dur = time.Since(start)
		if r := recover(); r != nil {
			content = nil
			err = fmt.Errorf("strategy panicked: %v", r)
		}
	}()

	actx, cancel := context.WithTimeout(ctx, e.Timeout())
	defer cancel()

	content, err = e.Extract(actx, w)
	if err != nil {
		return nil, 0, err
	}
	// An empty payload is a failure, not a zero-confidence success.
	if content == nil || (content.FullText == "" && len(content.Structured) == 0) {
		return nil, 0, errors.New("strategy produced no content")
	}
	return content, 0, nil
}

func (p *Pipeline) assemble(w *platform.WindowInfo, s Strategy, c *platform.Content) *WindowContext {
	score := clampScore(c.Confidence)
	if s == StrategyStructuredAccess {
		score = 1.0
	}

	content := Content{
		FullText:   c.FullText,
		Structured: c.Structured,
	}

	if p.isBlocked(w.Application) {
		p.logger.Warn("Full text suppressed for blocked application",
			zap.String("application", w.Application),
		)
		content.FullText = ""
		content.Redacted = true
	}
	if max := p.governance.MaxContentLength; max > 0 && len(content.FullText) > max {
		p.logger.Warn("Content truncated",
			zap.String("application", w.Application),
			zap.Int("max_length", max),
		)
		content.FullText = content.FullText[:max]
	}

	return &WindowContext{
		ID:         uuid.NewString(),
		Source:     *w,
		Content:    content,
		Confidence: Confidence{Score: score, Method: s},
		Timestamp:  time.Now(),
	}
}

func (p *Pipeline) isBlocked(app string) bool {
	for _, blocked := range p.governance.BlockedApps {
		if blocked != "" && strings.Contains(app, blocked) {
			return true
		}
	}
	return false
}

func (p *Pipeline) observe(s Strategy, app string, success bool, dur time.Duration, score float64) {
	if p.observer != nil {
		p.observer(s, app, success, dur, score)
	}
}

func missingCapability(e Extractor, perms platform.Permissions) (platform.Capability, bool) {
	for _, c := range e.Required() {
		if !perms.Granted(c) {
			return c, true
		}
	}
	return "", false
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

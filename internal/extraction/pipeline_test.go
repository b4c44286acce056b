package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"contextagent/internal/platform"
)

type fakeChecker struct {
	perms platform.Permissions
	err   error
	calls int
}

func (f *fakeChecker) Check(ctx context.Context) (platform.Permissions, error) {
	f.calls++
	return f.perms, f.err
}

type fakeWindows struct {
	window *platform.WindowInfo
	err    error
}

func (f *fakeWindows) ActiveWindow(ctx context.Context) (*platform.WindowInfo, error) {
	return f.window, f.err
}

type fakeExtractor struct {
	strategy Strategy
	required []platform.Capability
	timeout  time.Duration
	calls    int
	extract  func(ctx context.Context, w *platform.WindowInfo) (*platform.Content, error)
}

func (f *fakeExtractor) Strategy() Strategy              { return f.strategy }
func (f *fakeExtractor) Required() []platform.Capability { return f.required }
func (f *fakeExtractor) Timeout() time.Duration {
	if f.timeout == 0 {
		return time.Second
	}
	return f.timeout
}

func (f *fakeExtractor) Extract(ctx context.Context, w *platform.WindowInfo) (*platform.Content, error) {
	f.calls++
	return f.extract(ctx, w)
}

func allGranted() platform.Permissions {
	return platform.Permissions{
		Accessibility:   true,
		Automation:      true,
		ScreenRecording: true,
		CheckedAt:       time.Now(),
	}
}

func testWindow() *platform.WindowInfo {
	return &platform.WindowInfo{
		Title:       "Quarterly Report",
		Application: "TextEdit",
		ProcessID:   4242,
		IsVisible:   true,
		Timestamp:   time.Now(),
	}
}

func succeedWith(text string, confidence float64) func(context.Context, *platform.WindowInfo) (*platform.Content, error) {
	return func(ctx context.Context, w *platform.WindowInfo) (*platform.Content, error) {
		return &platform.Content{FullText: text, Confidence: confidence}, nil
	}
}

func failWith(err error) func(context.Context, *platform.WindowInfo) (*platform.Content, error) {
	return func(ctx context.Context, w *platform.WindowInfo) (*platform.Content, error) {
		return nil, err
	}
}

func newTestPipeline(checker CapabilityChecker, windows WindowSource, extractors []Extractor, gov Governance) *Pipeline {
	return NewPipeline(checker, windows, extractors, gov, zap.NewNop())
}

func TestExtractReturnsFirstSuccess(t *testing.T) {
	first := &fakeExtractor{strategy: StrategyStructuredAccess, extract: failWith(errors.New("not a browser"))}
	second := &fakeExtractor{strategy: StrategyScriptedAutomation, extract: succeedWith("document body", 0.8)}
	third := &fakeExtractor{strategy: StrategyAccessibilityTree, extract: succeedWith("never reached", 0.8)}
	fourth := &fakeExtractor{strategy: StrategyOpticalRecognition, extract: succeedWith("never reached", 0.5)}

	p := newTestPipeline(
		&fakeChecker{perms: allGranted()},
		&fakeWindows{window: testWindow()},
		[]Extractor{first, second, third, fourth},
		Governance{},
	)

	result, err := p.Extract(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, StrategyScriptedAutomation, result.Confidence.Method)
	assert.Equal(t, 0.8, result.Confidence.Score)
	assert.Equal(t, "document body", result.Content.FullText)

	// The chain short-circuits: later strategies are never attempted.
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls)
	assert.Equal(t, 0, fourth.calls)
}

func TestExtractRespectsOrder(t *testing.T) {
	var attempted []Strategy
	record := func(s Strategy) func(context.Context, *platform.WindowInfo) (*platform.Content, error) {
		return func(ctx context.Context, w *platform.WindowInfo) (*platform.Content, error) {
			attempted = append(attempted, s)
			return nil, errors.New("fail")
		}
	}

	extractors := []Extractor{
		&fakeExtractor{strategy: StrategyStructuredAccess, extract: record(StrategyStructuredAccess)},
		&fakeExtractor{strategy: StrategyScriptedAutomation, extract: record(StrategyScriptedAutomation)},
		&fakeExtractor{strategy: StrategyAccessibilityTree, extract: record(StrategyAccessibilityTree)},
		&fakeExtractor{strategy: StrategyOpticalRecognition, extract: record(StrategyOpticalRecognition)},
	}

	p := newTestPipeline(
		&fakeChecker{perms: allGranted()},
		&fakeWindows{window: testWindow()},
		extractors,
		Governance{},
	)

	order := []Strategy{StrategyOpticalRecognition, StrategyStructuredAccess, StrategyAccessibilityTree}
	_, err := p.Extract(context.Background(), order)
	require.Error(t, err)

	assert.Equal(t, order, attempted)
}

func TestExtractSkipsIneligibleStrategies(t *testing.T) {
	// Screen recording is not granted, so optical recognition must be
	// skipped without being attempted and without appearing as a failure.
	perms := platform.Permissions{Accessibility: true, Automation: true}

	scripted := &fakeExtractor{
		strategy: StrategyScriptedAutomation,
		required: []platform.Capability{platform.CapabilityAutomation},
		extract:  failWith(errors.New("script error")),
	}
	optical := &fakeExtractor{
		strategy: StrategyOpticalRecognition,
		required: []platform.Capability{platform.CapabilityScreenRecording},
		extract:  succeedWith("should not run", 0.5),
	}

	p := newTestPipeline(
		&fakeChecker{perms: perms},
		&fakeWindows{window: testWindow()},
		[]Extractor{scripted, optical},
		Governance{},
	)

	_, err := p.Extract(context.Background(), []Strategy{StrategyScriptedAutomation, StrategyOpticalRecognition})
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)

	assert.Equal(t, 0, optical.calls)
	require.Len(t, exhausted.Attempts, 1)
	assert.Equal(t, StrategyScriptedAutomation, exhausted.Attempts[0].Strategy)
	assert.Contains(t, exhausted.Attempts[0].Reason, "script error")
}

func TestExtractExhaustedListsEveryAttempt(t *testing.T) {
	extractors := []Extractor{
		&fakeExtractor{strategy: StrategyStructuredAccess, extract: failWith(errors.New("no dom"))},
		&fakeExtractor{strategy: StrategyScriptedAutomation, extract: failWith(errors.New("not scriptable"))},
	}

	p := newTestPipeline(
		&fakeChecker{perms: allGranted()},
		&fakeWindows{window: testWindow()},
		extractors,
		Governance{},
	)

	_, err := p.Extract(context.Background(), []Strategy{StrategyStructuredAccess, StrategyScriptedAutomation})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 2)
	assert.Equal(t, StrategyStructuredAccess, exhausted.Attempts[0].Strategy)
	assert.Equal(t, StrategyScriptedAutomation, exhausted.Attempts[1].Strategy)
}

func TestExtractEmptyContentIsFailure(t *testing.T) {
	empty := &fakeExtractor{
		strategy: StrategyStructuredAccess,
		extract: func(ctx context.Context, w *platform.WindowInfo) (*platform.Content, error) {
			return &platform.Content{FullText: "", Confidence: 0.9}, nil
		},
	}
	fallback := &fakeExtractor{strategy: StrategyAccessibilityTree, extract: succeedWith("tree text", 0.8)}

	p := newTestPipeline(
		&fakeChecker{perms: allGranted()},
		&fakeWindows{window: testWindow()},
		[]Extractor{empty, fallback},
		Governance{},
	)

	result, err := p.Extract(context.Background(), []Strategy{StrategyStructuredAccess, StrategyAccessibilityTree})
	require.NoError(t, err)
	assert.Equal(t, StrategyAccessibilityTree, result.Confidence.Method)
	assert.Equal(t, 1, empty.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestExtractStructuredAccessScoreIsFixed(t *testing.T) {
	e := &fakeExtractor{strategy: StrategyStructuredAccess, extract: succeedWith("page text", 0.42)}

	p := newTestPipeline(
		&fakeChecker{perms: allGranted()},
		&fakeWindows{window: testWindow()},
		[]Extractor{e},
		Governance{},
	)

	result, err := p.Extract(context.Background(), []Strategy{StrategyStructuredAccess})
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Confidence.Score)
}

func TestExtractRecoversFromPanickingStrategy(t *testing.T) {
	panicking := &fakeExtractor{
		strategy: StrategyStructuredAccess,
		extract: func(ctx context.Context, w *platform.WindowInfo) (*platform.Content, error) {
			panic("broken script bridge")
		},
	}
	fallback := &fakeExtractor{strategy: StrategyScriptedAutomation, extract: succeedWith("rescued", 0.9)}

	p := newTestPipeline(
		&fakeChecker{perms: allGranted()},
		&fakeWindows{window: testWindow()},
		[]Extractor{panicking, fallback},
		Governance{},
	)

	result, err := p.Extract(context.Background(), []Strategy{StrategyStructuredAccess, StrategyScriptedAutomation})
	require.NoError(t, err)
	assert.Equal(t, "rescued", result.Content.FullText)
}

func TestExtractStrategyTimeout(t *testing.T) {
	slow := &fakeExtractor{
		strategy: StrategyStructuredAccess,
		timeout:  20 * time.Millisecond,
		extract: func(ctx context.Context, w *platform.WindowInfo) (*platform.Content, error) {
			select {
			case <-time.After(time.Second):
				return &platform.Content{FullText: "too late"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	fallback := &fakeExtractor{strategy: StrategyScriptedAutomation, extract: succeedWith("in time", 0.9)}

	p := newTestPipeline(
		&fakeChecker{perms: allGranted()},
		&fakeWindows{window: testWindow()},
		[]Extractor{slow, fallback},
		Governance{},
	)

	result, err := p.Extract(context.Background(), []Strategy{StrategyStructuredAccess, StrategyScriptedAutomation})
	require.NoError(t, err)
	assert.Equal(t, "in time", result.Content.FullText)
}

func TestExtractWindowDetectionFailure(t *testing.T) {
	e := &fakeExtractor{strategy: StrategyStructuredAccess, extract: succeedWith("text", 0.9)}

	p := newTestPipeline(
		&fakeChecker{perms: allGranted()},
		&fakeWindows{err: errors.New("no focused window")},
		[]Extractor{e},
		Governance{},
	)

	_, err := p.Extract(context.Background(), nil)
	require.ErrorIs(t, err, ErrWindowDetection)
	assert.Equal(t, 0, e.calls)
}

func TestExtractBlockedApplicationRedacted(t *testing.T) {
	e := &fakeExtractor{strategy: StrategyAccessibilityTree, extract: succeedWith("hunter2 secret vault", 0.8)}

	window := testWindow()
	window.Application = "1Password"

	p := newTestPipeline(
		&fakeChecker{perms: allGranted()},
		&fakeWindows{window: window},
		[]Extractor{e},
		Governance{BlockedApps: []string{"1Password", "Keychain Access"}},
	)

	result, err := p.Extract(context.Background(), []Strategy{StrategyAccessibilityTree})
	require.NoError(t, err)
	assert.Empty(t, result.Content.FullText)
	assert.True(t, result.Content.Redacted)
	assert.Equal(t, 0.8, result.Confidence.Score)
}

func TestExtractTruncatesOversizedContent(t *testing.T) {
	long := strings.Repeat("a", 500)
	e := &fakeExtractor{strategy: StrategyAccessibilityTree, extract: succeedWith(long, 0.8)}

	p := newTestPipeline(
		&fakeChecker{perms: allGranted()},
		&fakeWindows{window: testWindow()},
		[]Extractor{e},
		Governance{MaxContentLength: 100},
	)

	result, err := p.Extract(context.Background(), []Strategy{StrategyAccessibilityTree})
	require.NoError(t, err)
	assert.Len(t, result.Content.FullText, 100)
}

func TestExtractObserverSeesAttempts(t *testing.T) {
	type observed struct {
		strategy Strategy
		success  bool
		score    float64
	}
	var seen []observed

	extractors := []Extractor{
		&fakeExtractor{strategy: StrategyStructuredAccess, extract: failWith(errors.New("nope"))},
		&fakeExtractor{strategy: StrategyScriptedAutomation, extract: succeedWith("text", 0.9)},
	}

	p := newTestPipeline(
		&fakeChecker{perms: allGranted()},
		&fakeWindows{window: testWindow()},
		extractors,
		Governance{},
	)
	p.SetObserver(func(s Strategy, app string, success bool, dur time.Duration, score float64) {
		seen = append(seen, observed{strategy: s, success: success, score: score})
	})

	_, err := p.Extract(context.Background(), []Strategy{StrategyStructuredAccess, StrategyScriptedAutomation})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, observed{StrategyStructuredAccess, false, 0}, seen[0])
	assert.Equal(t, observed{StrategyScriptedAutomation, true, 0.9}, seen[1])
}

func TestExtractDirectMissingCapabilityIsError(t *testing.T) {
	optical := &fakeExtractor{
		strategy: StrategyOpticalRecognition,
		required: []platform.Capability{platform.CapabilityScreenRecording},
		extract:  succeedWith("screen text", 0.7),
	}

	p := newTestPipeline(
		&fakeChecker{perms: platform.Permissions{Accessibility: true, Automation: true}},
		&fakeWindows{window: testWindow()},
		[]Extractor{optical},
		Governance{},
	)

	_, err := p.ExtractDirect(context.Background(), StrategyOpticalRecognition)

	var capErr *CapabilityMissingError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, StrategyOpticalRecognition, capErr.Strategy)
	assert.Equal(t, platform.CapabilityScreenRecording, capErr.Capability)
	assert.Equal(t, 0, optical.calls)
}

func TestExtractDirectUnknownStrategy(t *testing.T) {
	p := newTestPipeline(
		&fakeChecker{perms: allGranted()},
		&fakeWindows{window: testWindow()},
		nil,
		Governance{},
	)

	_, err := p.ExtractDirect(context.Background(), Strategy("telepathy"))
	require.Error(t, err)
}

func TestExtractDirectSuccess(t *testing.T) {
	optical := &fakeExtractor{
		strategy: StrategyOpticalRecognition,
		required: []platform.Capability{platform.CapabilityScreenRecording},
		extract:  succeedWith("screen text", 0.7),
	}

	p := newTestPipeline(
		&fakeChecker{perms: allGranted()},
		&fakeWindows{window: testWindow()},
		[]Extractor{optical},
		Governance{},
	)

	result, err := p.ExtractDirect(context.Background(), StrategyOpticalRecognition)
	require.NoError(t, err)
	assert.Equal(t, StrategyOpticalRecognition, result.Confidence.Method)
	assert.Equal(t, 0.7, result.Confidence.Score)
	assert.NotEmpty(t, result.ID)
}

func TestExtractNoEligibleStrategy(t *testing.T) {
	optical := &fakeExtractor{
		strategy: StrategyOpticalRecognition,
		required: []platform.Capability{platform.CapabilityScreenRecording},
		extract:  succeedWith("never", 0.5),
	}

	p := newTestPipeline(
		&fakeChecker{perms: platform.Permissions{Accessibility: true, Automation: true}},
		&fakeWindows{window: testWindow()},
		[]Extractor{optical},
		Governance{},
	)

	_, err := p.Extract(context.Background(), []Strategy{StrategyOpticalRecognition})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Empty(t, exhausted.Attempts)
}

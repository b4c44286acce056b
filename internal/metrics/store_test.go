package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"contextagent/internal/database"
	"contextagent/internal/extraction"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "metrics-test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestSaveBatchAndSummarize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	samples := []Sample{
		NewSample(extraction.StrategyStructuredAccess, "Safari", true, 100*time.Millisecond, 1.0),
		NewSample(extraction.StrategyStructuredAccess, "Safari", true, 90*time.Millisecond, 1.0),
		NewSample(extraction.StrategyScriptedAutomation, "TextEdit", true, 700*time.Millisecond, 0.9),
		NewSample(extraction.StrategyScriptedAutomation, "Mail", false, 1500*time.Millisecond, 0),
		NewSample(extraction.StrategyAccessibilityTree, "Mail", true, 400*time.Millisecond, 0.6),
	}
	require.NoError(t, store.SaveBatch(ctx, samples))

	summary, err := store.Summarize(ctx)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.TotalAttempts)
	assert.Equal(t, 4, summary.Successes)
	assert.InDelta(t, 0.8, summary.SuccessRate, 0.001)
	assert.InDelta(t, (1.0+1.0+0.9+0.6)/4, summary.AverageScore, 0.001)
	assert.Equal(t, map[string]int{
		"structured_access":   2,
		"scripted_automation": 1,
		"accessibility_tree":  1,
	}, summary.ByStrategy)
}

func TestSaveBatchEmpty(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.SaveBatch(context.Background(), nil))
}

func TestSummarizeEmptyStore(t *testing.T) {
	store := newTestStore(t)

	summary, err := store.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalAttempts)
	assert.Zero(t, summary.SuccessRate)
	assert.Empty(t, summary.ByStrategy)
}

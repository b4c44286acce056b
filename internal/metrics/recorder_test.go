package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"contextagent/internal/extraction"
)

type batchSink struct {
	mu      sync.Mutex
	batches [][]Sample
}

func (s *batchSink) collect(samples []Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, samples)
}

func (s *batchSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *batchSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestRecorderFlushesFullBatch(t *testing.T) {
	sink := &batchSink{}
	r := NewRecorder(3, time.Hour, zap.NewNop())
	r.Start(sink.collect)
	defer r.Stop()

	r.Observe(extraction.StrategyStructuredAccess, "Safari", true, 120*time.Millisecond, 1.0)
	r.Observe(extraction.StrategyScriptedAutomation, "TextEdit", false, 800*time.Millisecond, 0)
	assert.Equal(t, 0, sink.batchCount())
	assert.Equal(t, 2, r.GetPendingCount())

	r.Observe(extraction.StrategyAccessibilityTree, "Mail", true, 300*time.Millisecond, 0.8)

	require.Equal(t, 1, sink.batchCount())
	assert.Equal(t, 3, sink.total())
	assert.Equal(t, 0, r.GetPendingCount())
}

func TestRecorderStopFlushesRemainder(t *testing.T) {
	sink := &batchSink{}
	r := NewRecorder(100, time.Hour, zap.NewNop())
	r.Start(sink.collect)

	r.Observe(extraction.StrategyOpticalRecognition, "Preview", true, 2*time.Second, 0.7)
	r.Stop()

	assert.Equal(t, 1, sink.total())
	// Stop is idempotent.
	r.Stop()
	assert.Equal(t, 1, sink.total())
}

func TestRecorderAutoFlush(t *testing.T) {
	sink := &batchSink{}
	r := NewRecorder(100, 20*time.Millisecond, zap.NewNop())
	r.Start(sink.collect)
	defer r.Stop()

	r.Observe(extraction.StrategyStructuredAccess, "Safari", true, time.Millisecond, 1.0)

	require.Eventually(t, func() bool {
		return sink.total() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRecorderManualFlushEmpty(t *testing.T) {
	sink := &batchSink{}
	r := NewRecorder(10, time.Hour, zap.NewNop())
	r.Start(sink.collect)
	defer r.Stop()

	r.Flush()
	assert.Equal(t, 0, sink.batchCount())
}

func TestNewSampleFields(t *testing.T) {
	s := NewSample(extraction.StrategyScriptedAutomation, "Pages", true, 1500*time.Millisecond, 0.9)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "scripted_automation", s.Strategy)
	assert.Equal(t, "Pages", s.Application)
	assert.True(t, s.Success)
	assert.Equal(t, int64(1500), s.DurationMS)
	assert.Equal(t, 0.9, s.Score)
	assert.False(t, s.RecordedAt.IsZero())
}

package metrics

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"contextagent/internal/extraction"
)

// Recorder collects and batches extraction samples
type Recorder struct {
	samples       []Sample
	batchSize     int
	flushInterval time.Duration
	onBatchReady  func([]Sample)
	logger        *zap.Logger
	mu            sync.Mutex
	flushTicker   *time.Ticker
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// NewRecorder creates a new sample recorder
func NewRecorder(
	batchSize int,
	flushInterval time.Duration,
	logger *zap.Logger,
) *Recorder {
	return &Recorder{
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the recorder with auto-flush
func (r *Recorder) Start(onBatchReady func([]Sample)) {
	r.onBatchReady = onBatchReady
	r.flushTicker = time.NewTicker(r.flushInterval)

	r.wg.Add(1)
	go r.autoFlushLoop()

	r.logger.Info("Metrics recorder started",
		zap.Int("batch_size", r.batchSize),
		zap.Duration("flush_interval", r.flushInterval),
	)
}

// Stop stops the recorder and flushes any remaining samples
func (r *Recorder) Stop() {
	r.mu.Lock()
	select {
	case <-r.stopChan:
		// Already closed
		r.mu.Unlock()
		return
	default:
		close(r.stopChan)
	}
	r.mu.Unlock()

	r.wg.Wait()
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	r.Flush()
	r.logger.Info("Metrics recorder stopped")
}

// Observe records one extraction attempt outcome. Matches the pipeline's
// observer signature so it can be wired directly.
func (r *Recorder) Observe(strategy extraction.Strategy, app string, success bool, duration time.Duration, score float64) {
	r.Add(NewSample(strategy, app, success, duration, score))
}

// Add appends a sample, flushing when the batch is full
func (r *Recorder) Add(sample Sample) {
	r.mu.Lock()
	r.samples = append(r.samples, sample)
	shouldFlush := len(r.samples) >= r.batchSize
	var samples []Sample
	if shouldFlush {
		samples = make([]Sample, len(r.samples))
		copy(samples, r.samples)
		r.samples = r.samples[:0]
	}
	r.mu.Unlock()

	if shouldFlush {
		r.logger.Debug("Batch size reached, flushing samples",
			zap.Int("count", len(samples)),
		)
		if r.onBatchReady != nil {
			r.onBatchReady(samples)
		}
	}
}

// Flush manually flushes all pending samples
func (r *Recorder) Flush() {
	r.mu.Lock()
	if len(r.samples) == 0 {
		r.mu.Unlock()
		return
	}
	samples := make([]Sample, len(r.samples))
	copy(samples, r.samples)
	r.samples = r.samples[:0]
	r.mu.Unlock()

	r.logger.Debug("Manual flush triggered",
		zap.Int("count", len(samples)),
	)
	if r.onBatchReady != nil {
		r.onBatchReady(samples)
	}
}

// GetPendingCount returns the number of pending samples
func (r *Recorder) GetPendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func (r *Recorder) autoFlushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.flushTicker.C:
			r.Flush()
		case <-r.stopChan:
			return
		}
	}
}

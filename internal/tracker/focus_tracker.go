package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"contextagent/internal/platform"
)

// FocusTracker monitors which window holds OS focus. It keeps the latest
// snapshot so the extraction pipeline can read it without a platform
// round-trip on every call.
type FocusTracker struct {
	platform      platform.Platform
	pollInterval  time.Duration
	currentWindow *platform.WindowInfo
	onChange      func(*platform.WindowInfo)
	logger        *zap.Logger
	stopChan      chan struct{}
	wg            sync.WaitGroup
	mu            sync.RWMutex
}

// NewFocusTracker creates a new focus tracker
func NewFocusTracker(p platform.Platform, pollInterval time.Duration, logger *zap.Logger) *FocusTracker {
	return &FocusTracker{
		platform:     p,
		pollInterval: pollInterval,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

// Start begins monitoring focus changes
func (ft *FocusTracker) Start(onChange func(*platform.WindowInfo)) error {
	ft.onChange = onChange

	ft.wg.Add(1)
	go ft.pollLoop()

	ft.logger.Info("Focus tracker started",
		zap.Duration("poll_interval", ft.pollInterval),
	)
	return nil
}

// Stop stops monitoring focus changes
func (ft *FocusTracker) Stop() {
	ft.mu.Lock()
	select {
	case <-ft.stopChan:
		// Already closed
		ft.mu.Unlock()
		return
	default:
		close(ft.stopChan)
	}
	ft.mu.Unlock()

	ft.wg.Wait()
	ft.logger.Info("Focus tracker stopped")
}

// ActiveWindow returns the focused window, serving the cached snapshot while
// it is fresh and querying the platform otherwise. Implements the pipeline's
// window source.
func (ft *FocusTracker) ActiveWindow(ctx context.Context) (*platform.WindowInfo, error) {
	ft.mu.RLock()
	current := ft.currentWindow
	ft.mu.RUnlock()

	if current != nil && time.Since(current.Timestamp) < ft.pollInterval {
		return current, nil
	}

	window, err := ft.platform.GetActiveWindow(ctx)
	if err != nil {
		return nil, err
	}

	ft.mu.Lock()
	ft.currentWindow = window
	ft.mu.Unlock()
	return window, nil
}

// CurrentWindow returns the last observed focused window without querying
// the platform.
func (ft *FocusTracker) CurrentWindow() *platform.WindowInfo {
	ft.mu.RLock()
	defer ft.mu.RUnlock()
	return ft.currentWindow
}

func (ft *FocusTracker) pollLoop() {
	defer ft.wg.Done()

	ticker := time.NewTicker(ft.pollInterval)
	defer ticker.Stop()

	// Initial poll
	ft.checkWindow()

	for {
		select {
		case <-ticker.C:
			ft.checkWindow()
		case <-ft.stopChan:
			return
		}
	}
}

func (ft *FocusTracker) checkWindow() {
	// Check if we should stop
	select {
	case <-ft.stopChan:
		return
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), ft.pollInterval)
	window, err := ft.platform.GetActiveWindow(ctx)
	cancel()
	if err != nil {
		ft.logger.Debug("Failed to get focused window", zap.Error(err))
		return
	}

	// Check again after potentially slow operation
	select {
	case <-ft.stopChan:
		return
	default:
	}

	ft.mu.Lock()
	changed := ft.hasFocusChanged(window)
	ft.currentWindow = window
	ft.mu.Unlock()

	if changed {
		ft.logger.Debug("Focus changed",
			zap.String("application", window.Application),
			zap.String("title", window.Title),
		)
		if ft.onChange != nil {
			ft.onChange(window)
		}
	}
}

func (ft *FocusTracker) hasFocusChanged(newWindow *platform.WindowInfo) bool {
	if ft.currentWindow == nil {
		return true
	}
	if ft.currentWindow.ProcessID != newWindow.ProcessID {
		return true
	}
	if ft.currentWindow.Title != newWindow.Title {
		return true
	}
	if ft.currentWindow.Application != newWindow.Application {
		return true
	}
	return false
}

package permissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sync"

	"go.uber.org/zap"

	"contextagent/internal/platform"
)

// RequiredCapabilities returns the grants the service cannot activate
// without. Screen recording is optional; it only enables the optical
// recognition fallback.
func RequiredCapabilities() []platform.Capability {
	return []platform.Capability{
		platform.CapabilityAccessibility,
		platform.CapabilityAutomation,
	}
}

// Gate queries and requests OS capability grants. Requests are single-flight
// per capability so repeated calls never stack duplicate consent dialogs.
type Gate struct {
	platform       platform.Platform
	requestTimeout time.Duration
	logger         *zap.Logger

	mu       sync.Mutex
	inflight map[platform.Capability]*inflightRequest
}

type inflightRequest struct {
	done chan struct{}
	err  error
}

// NewGate creates a permission gate backed by the given platform.
func NewGate(p platform.Platform, requestTimeout time.Duration, logger *zap.Logger) *Gate {
	return &Gate{
		platform:       p,
		requestTimeout: requestTimeout,
		logger:         logger,
		inflight:       make(map[platform.Capability]*inflightRequest),
	}
}

// Check takes a fresh snapshot of the current capability grants.
func (g *Gate) Check(ctx context.Context) (platform.Permissions, error) {
	perms, err := g.platform.CheckPermissions(ctx)
	if err != nil {
		return platform.Permissions{}, fmt.Errorf("permission check failed: %w", err)
	}

	g.logger.Debug("Permission snapshot",
		zap.Bool("accessibility", perms.Accessibility),
		zap.Bool("automation", perms.Automation),
		zap.Bool("screen_recording", perms.ScreenRecording),
	)
	return perms, nil
}

// HasRequired reports whether both required capabilities were granted in the
// given snapshot.
func (g *Gate) HasRequired(p platform.Permissions) bool {
	return p.Accessibility && p.Automation
}

// Request triggers the OS consent flow for one capability and waits for the
// user's response. Concurrent requests for the same capability coalesce onto
// a single dialog. An abandoned flow resolves to a timed-out Error after the
// gate's bounded interval.
func (g *Gate) Request(ctx context.Context, c platform.Capability) error {
	if !c.Valid() {
		return fmt.Errorf("unknown capability %q", c)
	}

	g.mu.Lock()
	call, ok := g.inflight[c]
	if !ok {
		call = &inflightRequest{done: make(chan struct{})}
		g.inflight[c] = call
		go g.runRequest(c, call)
	}
	g.mu.Unlock()

	if ok {
		g.logger.Debug("Joining in-flight permission request", zap.String("capability", string(c)))
	}

	select {
	case <-call.done:
		return call.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) runRequest(c platform.Capability, call *inflightRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), g.requestTimeout)
	defer cancel()

	g.logger.Info("Requesting capability", zap.String("capability", string(c)))
	err := g.platform.RequestPermission(ctx, c)

	switch {
	case err == nil:
		g.logger.Info("Capability granted", zap.String("capability", string(c)))
	case errors.Is(err, context.DeadlineExceeded):
		g.logger.Warn("Permission request timed out", zap.String("capability", string(c)))
		err = &Error{Capability: c, Reason: ReasonTimedOut}
	default:
		g.logger.Warn("Permission request denied",
			zap.String("capability", string(c)),
			zap.Error(err),
		)
		err = &Error{Capability: c, Reason: ReasonDenied, Cause: err}
	}

	g.mu.Lock()
	delete(g.inflight, c)
	g.mu.Unlock()

	call.err = err
	close(call.done)
}

// OpenSettings opens the OS settings panel for the capability. Fire and
// forget: failures are logged, not returned.
func (g *Gate) OpenSettings(c platform.Capability) {
	if err := g.platform.OpenPermissionSettings(c); err != nil {
		g.logger.Warn("Failed to open settings panel",
			zap.String("capability", string(c)),
			zap.Error(err),
		)
	}
}

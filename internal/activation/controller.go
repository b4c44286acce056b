package activation

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"contextagent/internal/extraction"
	"contextagent/internal/permissions"
	"contextagent/internal/platform"
)

// State is the service activation state. Exactly one value holds at a time,
// owned exclusively by the Controller.
type State int

const (
	StateDisabled State = iota
	StatePermissionsPending
	StateActive
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StatePermissionsPending:
		return "permissions_pending"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	}
	return "unknown"
}

// MarshalText lets the state serialize by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrBusy rejects a concurrent activation or extraction request. One call at
// a time: the second caller retries rather than coalescing onto the first
// call's result.
var ErrBusy = errors.New("activation: another operation is in flight")

// ErrNotActive rejects extraction while the service is not activated.
var ErrNotActive = errors.New("activation: service is not active")

// PermissionGate is the slice of the permission gate the controller needs.
type PermissionGate interface {
	Check(ctx context.Context) (platform.Permissions, error)
	HasRequired(platform.Permissions) bool
	Request(ctx context.Context, c platform.Capability) error
}

// Pipeline is the slice of the extraction pipeline the controller needs.
type Pipeline interface {
	Extract(ctx context.Context, order []extraction.Strategy) (*extraction.WindowContext, error)
	ExtractDirect(ctx context.Context, s extraction.Strategy) (*extraction.WindowContext, error)
}

// HotkeyDisarmer releases the live hotkey registration on deactivation.
type HotkeyDisarmer interface {
	Disarm() error
}

// Controller owns the activation state machine:
//
//	Disabled -> PermissionsPending -> Active | Error
//	Active   -> Disabled (Deactivate)
//	Error    -> PermissionsPending (Activate retry)
//	Error    -> Disabled (ClearError)
//
// There is no terminal state; the controller is reusable across cycles.
type Controller struct {
	gate     PermissionGate
	pipeline Pipeline
	logger   *zap.Logger

	mu       sync.Mutex
	state    State
	lastErr  error
	inflight bool
	hotkeys  HotkeyDisarmer
	onChange []func(State)
}

// NewController creates a controller in the Disabled state.
func NewController(gate PermissionGate, pipeline Pipeline, logger *zap.Logger) *Controller {
	return &Controller{
		gate:     gate,
		pipeline: pipeline,
		logger:   logger,
		state:    StateDisabled,
	}
}

// SetHotkeys injects the coordinator to disarm on deactivation. Optional.
func (c *Controller) SetHotkeys(h HotkeyDisarmer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hotkeys = h
}

// OnStateChange registers a callback invoked after every state transition.
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// State returns the current activation state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the error that moved the controller into StateError, or
// nil.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Activate validates permissions and transitions the service to Active.
// Idempotent while Active. From Disabled or Error it passes through
// PermissionsPending, requesting any missing required capability; denial or
// an abandoned consent flow resolves to StateError. A concurrent call is
// rejected with ErrBusy.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateActive {
		c.mu.Unlock()
		return nil
	}
	if c.inflight {
		c.mu.Unlock()
		return ErrBusy
	}
	c.inflight = true
	c.mu.Unlock()
	defer c.release()

	c.setState(StatePermissionsPending, nil)

	perms, err := c.gate.Check(ctx)
	if err != nil {
		c.setState(StateError, err)
		return err
	}

	if !c.gate.HasRequired(perms) {
		for _, capability := range permissions.RequiredCapabilities() {
			if perms.Granted(capability) {
				continue
			}
			if err := c.gate.Request(ctx, capability); err != nil {
				c.setState(StateError, err)
				return err
			}
		}

		// Grants may have changed while dialogs were up; never trust a
		// stale snapshot.
		perms, err = c.gate.Check(ctx)
		if err != nil {
			c.setState(StateError, err)
			return err
		}
		if !c.gate.HasRequired(perms) {
			err = deniedError(perms)
			c.setState(StateError, err)
			return err
		}
	}

	c.setState(StateActive, nil)
	return nil
}

// Deactivate always succeeds: the service returns to Disabled and any armed
// hotkey is released.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	hotkeys := c.hotkeys
	c.mu.Unlock()

	if hotkeys != nil {
		if err := hotkeys.Disarm(); err != nil {
			c.logger.Warn("Failed to disarm hotkey on deactivation", zap.Error(err))
		}
	}
	c.setState(StateDisabled, nil)
}

// ClearError dismisses a visible error without retrying permissions.
func (c *Controller) ClearError() {
	c.mu.Lock()
	if c.state != StateError {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.setState(StateDisabled, nil)
}

// TestExtraction runs the fallback chain. Only meaningful while Active; a
// failed extraction is local to this call and never changes activation state.
func (c *Controller) TestExtraction(ctx context.Context, order []extraction.Strategy) (*extraction.WindowContext, error) {
	if err := c.acquireActive(); err != nil {
		return nil, err
	}
	defer c.release()
	return c.pipeline.Extract(ctx, order)
}

// DirectExtraction forces one named strategy, bypassing the fallback chain.
// Same guards as TestExtraction.
func (c *Controller) DirectExtraction(ctx context.Context, s extraction.Strategy) (*extraction.WindowContext, error) {
	if err := c.acquireActive(); err != nil {
		return nil, err
	}
	defer c.release()
	return c.pipeline.ExtractDirect(ctx, s)
}

func (c *Controller) acquireActive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive {
		return ErrNotActive
	}
	if c.inflight {
		return ErrBusy
	}
	c.inflight = true
	return nil
}

func (c *Controller) release() {
	c.mu.Lock()
	c.inflight = false
	c.mu.Unlock()
}

func (c *Controller) setState(s State, cause error) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.lastErr = cause
	listeners := make([]func(State), len(c.onChange))
	copy(listeners, c.onChange)
	c.mu.Unlock()

	if prev != s {
		c.logger.Info("Activation state changed",
			zap.Stringer("from", prev),
			zap.Stringer("to", s),
			zap.Error(cause),
		)
		for _, fn := range listeners {
			fn(s)
		}
	}
}

// deniedError picks the first still-missing required capability for the
// user-facing error.
func deniedError(perms platform.Permissions) error {
	for _, capability := range permissions.RequiredCapabilities() {
		if !perms.Granted(capability) {
			return &permissions.Error{Capability: capability, Reason: permissions.ReasonDenied}
		}
	}
	return errors.New("required permissions not granted")
}

package hotkey

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrConflict is returned when the key combination is already registered by
// another application.
var ErrConflict = errors.New("hotkey: key combination already registered by another application")

// ErrPermissionDenied is returned when the OS refuses registration because
// the accessibility permission is missing.
var ErrPermissionDenied = errors.New("hotkey: registration denied, accessibility permission missing")

// ErrInvalidCombo is returned when the combination string cannot be parsed.
var ErrInvalidCombo = errors.New("hotkey: invalid key combination")

// Trigger is the fire-and-forget notification emitted on every key press.
type Trigger struct {
	Combo string
	At    time.Time
}

// Binding describes the single live OS registration.
type Binding struct {
	Combo         string
	CreatedAt     time.Time
	LastTriggered time.Time // zero until the first fire
}

// backend abstracts the OS hotkey registration so tests never touch real
// CGo/OS state.
type backend interface {
	Register() error
	Unregister() error
	Keydown() <-chan struct{}
}

type backendFactory func(combo string) (backend, error)

// Coordinator owns at most one global hotkey registration at a time and
// broadcasts a Trigger to subscribers on every press. It never invokes
// extraction itself; that wiring belongs to the owner.
type Coordinator struct {
	factory backendFactory
	logger  *zap.Logger

	// opMu serializes Arm/Disarm so two registrations can never overlap.
	opMu sync.Mutex

	mu      sync.Mutex
	backend backend
	binding *Binding
	cancel  context.CancelFunc
	done    chan struct{}
	subs    map[int]chan Trigger
	nextSub int
}

// NewCoordinator creates a coordinator backed by the real OS hotkey API.
func NewCoordinator(logger *zap.Logger) *Coordinator {
	return &Coordinator{
		factory: newOSBackend,
		logger:  logger,
		subs:    make(map[int]chan Trigger),
	}
}

// newCoordinatorWithFactory creates a coordinator with a custom backend
// factory (for tests).
func newCoordinatorWithFactory(f backendFactory, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		factory: f,
		logger:  logger,
		subs:    make(map[int]chan Trigger),
	}
}

// Arm registers the combination with the OS. If a binding is already live it
// is released first, so the OS never holds two registrations. Returns
// ErrConflict, ErrPermissionDenied, or ErrInvalidCombo, classified.
func (c *Coordinator) Arm(combo string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.disarm(); err != nil {
		c.logger.Warn("Failed to release previous binding", zap.Error(err))
	}

	b, err := c.factory(combo)
	if err != nil {
		return err
	}
	if err := b.Register(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.backend = b
	c.binding = &Binding{Combo: combo, CreatedAt: time.Now()}
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.listen(ctx, b.Keydown(), combo, done)

	c.logger.Info("Hotkey armed", zap.String("combo", combo))
	return nil
}

// Disarm unregisters the current binding. No-op when not armed.
func (c *Coordinator) Disarm() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.disarm()
}

func (c *Coordinator) disarm() error {
	c.mu.Lock()
	b := c.backend
	cancel := c.cancel
	done := c.done
	combo := ""
	if c.binding != nil {
		combo = c.binding.Combo
	}
	c.backend = nil
	c.binding = nil
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if b == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	err := b.Unregister()

	// Wait for the listener to exit so no trigger fires after disarm.
	if done != nil {
		select {
		case <-done:
		case <-time.After(200 * time.Millisecond):
			c.logger.Warn("Timed out waiting for hotkey listener to exit")
		}
	}

	c.logger.Info("Hotkey disarmed", zap.String("combo", combo))
	return err
}

// Armed reports whether a binding is currently live.
func (c *Coordinator) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.binding != nil
}

// Binding returns a copy of the live binding, if any.
func (c *Coordinator) Binding() (Binding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.binding == nil {
		return Binding{}, false
	}
	return *c.binding, true
}

// Subscribe registers a trigger listener. Delivery is at most once per key
// press; a subscriber that is not draining its channel misses presses rather
// than blocking the coordinator. The returned cancel removes the
// subscription.
func (c *Coordinator) Subscribe() (<-chan Trigger, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Trigger, 1)
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Coordinator) listen(ctx context.Context, keydown <-chan struct{}, combo string, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-keydown:
			if !ok {
				return
			}
			now := time.Now()

			c.mu.Lock()
			if c.binding != nil && c.binding.Combo == combo {
				c.binding.LastTriggered = now
			}
			listeners := make([]chan Trigger, 0, len(c.subs))
			for _, ch := range c.subs {
				listeners = append(listeners, ch)
			}
			c.mu.Unlock()

			c.logger.Debug("Hotkey triggered", zap.String("combo", combo))
			t := Trigger{Combo: combo, At: now}
			for _, ch := range listeners {
				select {
				case ch <- t:
				default: // subscriber not draining; drop
				}
			}
		}
	}
}

package hotkey

import (
	"strings"
	"sync"

	"golang.design/x/hotkey"
)

// osBackend wraps golang.design/x/hotkey for production use. The hotkey
// object is created lazily in Register to keep OS-level goroutines out of
// construction (and out of unit tests).
type osBackend struct {
	mods []hotkey.Modifier
	key  hotkey.Key

	hk        *hotkey.Hotkey
	keyCh     chan struct{}
	closeOnce sync.Once
}

func newOSBackend(combo string) (backend, error) {
	mods, key, err := parseCombo(combo)
	if err != nil {
		return nil, err
	}
	return &osBackend{mods: mods, key: key}, nil
}

func (b *osBackend) Register() error {
	b.hk = hotkey.New(b.mods, b.key)
	if err := b.hk.Register(); err != nil {
		// Release any OS-level state created by hotkey.New before the
		// object is abandoned.
		_ = b.hk.Unregister()
		b.hk = nil
		return classifyRegisterError(err)
	}

	// Relay keydown events through a buffered channel so rapid presses
	// never block the OS event pump.
	b.keyCh = make(chan struct{}, 4)
	src := b.hk.Keydown()
	go func() {
		for range src {
			select {
			case b.keyCh <- struct{}{}:
			default:
			}
		}
		b.closeOnce.Do(func() { close(b.keyCh) })
	}()
	return nil
}

func (b *osBackend) Unregister() error {
	if b.hk == nil {
		return nil
	}
	return b.hk.Unregister()
}

func (b *osBackend) Keydown() <-chan struct{} {
	return b.keyCh
}

// classifyRegisterError maps the OS registration failure onto the
// coordinator's error taxonomy.
func classifyRegisterError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "accessibility") {
		return ErrPermissionDenied
	}
	return ErrConflict
}

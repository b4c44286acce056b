package tray

import (
	"context"
	"time"

	"github.com/getlantern/systray"
	"go.uber.org/zap"

	"contextagent/internal/activation"
)

// Tray drives the system-tray menu for the agent. Menu state follows the
// activation controller through its state-change notifications.
type Tray struct {
	controller *activation.Controller
	logger     *zap.Logger
	onQuit     func()

	statusItem  *systray.MenuItem
	toggleItem  *systray.MenuItem
	extractItem *systray.MenuItem
}

func New(controller *activation.Controller, logger *zap.Logger, onQuit func()) *Tray {
	return &Tray{
		controller: controller,
		logger:     logger,
		onQuit:     onQuit,
	}
}

// Run starts the tray event loop. Blocks until Quit is selected, so the
// caller typically runs it on the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit tears the tray down from outside the menu.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("CA")
	systray.SetTooltip("Context Agent")

	t.statusItem = systray.AddMenuItem(statusLabel(t.controller.State()), "Current state")
	t.statusItem.Disable()
	systray.AddSeparator()
	t.toggleItem = systray.AddMenuItem(toggleLabel(t.controller.State()), "Enable or disable extraction")
	t.extractItem = systray.AddMenuItem("Extract Now", "Capture context from the focused window")
	systray.AddSeparator()
	quitItem := systray.AddMenuItem("Quit Context Agent", "Exit the application")

	t.controller.OnStateChange(func(s activation.State) {
		t.statusItem.SetTitle(statusLabel(s))
		t.toggleItem.SetTitle(toggleLabel(s))
		if s == activation.StateActive {
			t.extractItem.Enable()
		} else {
			t.extractItem.Disable()
		}
	})
	if t.controller.State() != activation.StateActive {
		t.extractItem.Disable()
	}

	go func() {
		for {
			select {
			case <-t.toggleItem.ClickedCh:
				t.handleToggle()
			case <-t.extractItem.ClickedCh:
				t.handleExtract()
			case <-quitItem.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	if t.onQuit != nil {
		t.onQuit()
	}
}

func (t *Tray) handleToggle() {
	switch t.controller.State() {
	case activation.StateActive:
		t.controller.Deactivate()
	case activation.StateError:
		t.controller.ClearError()
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()
		if err := t.controller.Activate(ctx); err != nil {
			t.logger.Warn("Activation from tray failed", zap.Error(err))
		}
	}
}

func (t *Tray) handleExtract() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := t.controller.TestExtraction(ctx, nil)
	if err != nil {
		t.logger.Warn("Extraction from tray failed", zap.Error(err))
		return
	}
	t.logger.Info("Extraction from tray succeeded",
		zap.String("application", result.Source.Application),
		zap.String("method", string(result.Confidence.Method)),
		zap.Float64("score", result.Confidence.Score),
	)
}

func statusLabel(s activation.State) string {
	switch s {
	case activation.StateActive:
		return "Status: Active"
	case activation.StatePermissionsPending:
		return "Status: Waiting for permissions"
	case activation.StateError:
		return "Status: Error"
	default:
		return "Status: Disabled"
	}
}

func toggleLabel(s activation.State) string {
	switch s {
	case activation.StateActive:
		return "Deactivate"
	case activation.StateError:
		return "Clear Error"
	default:
		return "Activate"
	}
}

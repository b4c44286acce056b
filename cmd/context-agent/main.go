package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"contextagent/internal/activation"
	"contextagent/internal/config"
	"contextagent/internal/database"
	"contextagent/internal/extraction"
	"contextagent/internal/hotkey"
	"contextagent/internal/logger"
	"contextagent/internal/metrics"
	"contextagent/internal/permissions"
	"contextagent/internal/platform"
	"contextagent/internal/server"
	"contextagent/internal/tracker"
	"contextagent/internal/tray"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/local.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting context agent",
		zap.String("env", cfg.Env),
		zap.String("config_path", *configPath),
	)

	// Initialize database
	db, err := database.New(cfg.StoragePath, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()

	// Initialize platform
	platformInstance, err := platform.NewPlatform()
	if err != nil {
		log.Fatal("Failed to initialize platform", zap.Error(err))
	}

	// Initialize permission gate
	gate := permissions.NewGate(
		platformInstance,
		time.Duration(cfg.Permissions.RequestTimeout)*time.Second,
		log.Logger,
	)

	// Initialize focus tracker
	focusTracker := tracker.NewFocusTracker(
		platformInstance,
		time.Duration(cfg.Tracker.PollInterval)*time.Second,
		log.Logger,
	)
	if err := focusTracker.Start(nil); err != nil {
		log.Fatal("Failed to start focus tracker", zap.Error(err))
	}

	// Initialize metrics recorder and store
	store := metrics.NewStore(db)
	recorder := metrics.NewRecorder(
		cfg.Metrics.BatchSize,
		time.Duration(cfg.Metrics.FlushInterval)*time.Second,
		log.Logger,
	)
	recorder.Start(func(samples []metrics.Sample) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.SaveBatch(ctx, samples); err != nil {
			log.Error("Failed to persist metrics batch", zap.Error(err))
		}
	})

	// Initialize extraction pipeline
	pipeline := extraction.NewPipeline(
		gate,
		focusTracker,
		extraction.PlatformExtractors(platformInstance, extractionTimeouts(cfg)),
		extraction.Governance{
			BlockedApps:      cfg.Extraction.BlockedApps,
			MaxContentLength: cfg.Extraction.MaxContentLength,
		},
		log.Logger,
	)
	pipeline.SetObserver(recorder.Observe)

	strategyOrder, err := parseStrategyOrder(cfg.Extraction.StrategyOrder)
	if err != nil {
		log.Fatal("Invalid strategy order in config", zap.Error(err))
	}

	// Initialize activation controller
	controller := activation.NewController(gate, pipeline, log.Logger)

	// Initialize hotkey coordinator
	var coordinator *hotkey.Coordinator
	if cfg.Hotkey.Enabled {
		coordinator = hotkey.NewCoordinator(log.Logger)
		controller.SetHotkeys(coordinator)

		triggers, unsubscribe := coordinator.Subscribe()
		defer unsubscribe()
		go func() {
			for trigger := range triggers {
				log.Info("Hotkey pressed", zap.String("combo", trigger.Combo))
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				result, err := controller.TestExtraction(ctx, strategyOrder)
				cancel()
				if err != nil {
					log.Warn("Hotkey extraction failed", zap.Error(err))
					continue
				}
				log.Info("Hotkey extraction succeeded",
					zap.String("id", result.ID),
					zap.String("application", result.Source.Application),
					zap.String("method", string(result.Confidence.Method)),
					zap.Float64("score", result.Confidence.Score),
				)
			}
		}()

		// Arm on activation, release on any other state.
		controller.OnStateChange(func(s activation.State) {
			if s == activation.StateActive {
				if err := coordinator.Arm(cfg.Hotkey.Combo); err != nil {
					log.Warn("Failed to arm hotkey",
						zap.String("combo", cfg.Hotkey.Combo),
						zap.Error(err),
					)
				}
			}
		})
	} else {
		log.Info("Hotkey disabled in configuration")
	}

	// Initialize local HTTP server
	var httpServer *http.Server
	if cfg.Server.Enabled {
		agentServer := server.NewAgentServer(controller, store, log.Logger)
		addr := fmt.Sprintf("localhost:%d", cfg.Server.Port)
		httpServer = &http.Server{
			Addr:         addr,
			Handler:      agentServer,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			log.Info("Starting agent control server",
				zap.String("address", addr),
			)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Agent control server error", zap.Error(err))
			}
		}()
	} else {
		log.Info("Control server disabled in configuration")
	}

	log.Info("Context agent started successfully",
		zap.String("state", controller.State().String()),
	)

	var shutdownOnce sync.Once
	shutdown := func() {
		shutdownOnce.Do(func() {
			log.Info("Shutting down context agent...")

			controller.Deactivate()

			if httpServer != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(ctx); err != nil {
					log.Warn("Control server shutdown error", zap.Error(err))
				} else {
					log.Info("Control server stopped")
				}
			}

			focusTracker.Stop()
			recorder.Stop()

			log.Info("Context agent stopped")
		})
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	if cfg.Tray.Enabled {
		// The tray event loop owns the main goroutine. Signals fold into
		// the same quit path as the tray's Quit item.
		trayUI := tray.New(controller, log.Logger, shutdown)
		go func() {
			sig := <-quit
			log.Info("Received shutdown signal", zap.String("signal", sig.String()))
			trayUI.Quit()
		}()
		trayUI.Run()
	} else {
		sig := <-quit
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
		shutdown()
	}
}

// extractionTimeouts maps config values (milliseconds) onto pipeline timeouts.
func extractionTimeouts(cfg *config.Config) extraction.Timeouts {
	return extraction.Timeouts{
		Structured:    time.Duration(cfg.Extraction.StructuredTimeout) * time.Millisecond,
		Scripted:      time.Duration(cfg.Extraction.ScriptedTimeout) * time.Millisecond,
		Accessibility: time.Duration(cfg.Extraction.AccessibilityTimeout) * time.Millisecond,
		Optical:       time.Duration(cfg.Extraction.OpticalTimeout) * time.Millisecond,
	}
}

// parseStrategyOrder converts configured strategy names to the typed chain.
// An empty list means the built-in default order.
func parseStrategyOrder(names []string) ([]extraction.Strategy, error) {
	if len(names) == 0 {
		return nil, nil
	}
	order := make([]extraction.Strategy, 0, len(names))
	for _, name := range names {
		strategy, err := extraction.ParseStrategy(name)
		if err != nil {
			return nil, err
		}
		order = append(order, strategy)
	}
	return order, nil
}

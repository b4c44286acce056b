package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"contextagent/internal/activation"
	"contextagent/internal/extraction"
	"contextagent/internal/metrics"
	"contextagent/internal/permissions"
)

// ExtractRequest represents the request body for an extraction trigger
type ExtractRequest struct {
	Strategy string `json:"strategy,omitempty"`
}

// AgentServer handles local HTTP requests to control the agent
type AgentServer struct {
	controller *activation.Controller
	store      *metrics.Store
	logger     *zap.Logger
}

// NewAgentServer creates a new agent server
func NewAgentServer(controller *activation.Controller, store *metrics.Store, logger *zap.Logger) *AgentServer {
	return &AgentServer{
		controller: controller,
		store:      store,
		logger:     logger,
	}
}

// ServeHTTP implements http.Handler
func (s *AgentServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/activate":
		if r.Method == http.MethodPost {
			s.handleActivate(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "/api/v1/deactivate":
		if r.Method == http.MethodPost {
			s.handleDeactivate(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "/api/v1/extract":
		if r.Method == http.MethodPost {
			s.handleExtract(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "/api/v1/state":
		if r.Method == http.MethodGet {
			s.handleState(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "/api/v1/metrics":
		if r.Method == http.MethodGet {
			s.handleMetrics(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "/api/v1/health":
		if r.Method == http.MethodGet {
			s.handleHealth(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

// handleActivate requests capability grants and enables extraction
func (s *AgentServer) handleActivate(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Activate(r.Context()); err != nil {
		s.logger.Warn("Activation failed", zap.Error(err))
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  s.controller.State().String(),
	})
}

// handleDeactivate disables extraction and releases the hotkey
func (s *AgentServer) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	s.controller.Deactivate()

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  s.controller.State().String(),
	})
}

// handleExtract triggers one extraction, optionally pinned to a strategy
func (s *AgentServer) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if r.ContentLength > 0 {
		decoder := json.NewDecoder(r.Body)
		if err := decoder.Decode(&req); err != nil {
			s.logger.Warn("Failed to decode extract request", zap.Error(err))
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var result *extraction.WindowContext
	var err error
	if req.Strategy != "" {
		strategy, parseErr := extraction.ParseStrategy(req.Strategy)
		if parseErr != nil {
			http.Error(w, parseErr.Error(), http.StatusBadRequest)
			return
		}
		result, err = s.controller.DirectExtraction(ctx, strategy)
	} else {
		result, err = s.controller.TestExtraction(ctx, nil)
	}
	if err != nil {
		s.logger.Warn("Extraction request failed", zap.Error(err))
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleState reports the activation state
func (s *AgentServer) handleState(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"state": s.controller.State().String(),
	}
	if err := s.controller.LastError(); err != nil {
		resp["lastError"] = err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleMetrics reports aggregate extraction telemetry
func (s *AgentServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.Summarize(r.Context())
	if err != nil {
		s.logger.Error("Failed to summarize metrics", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// handleHealth provides a health check endpoint
func (s *AgentServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"state":     s.controller.State().String(),
		"timestamp": time.Now().Unix(),
	})
}

func (s *AgentServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors onto HTTP status codes
func (s *AgentServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var permErr *permissions.Error
	var exhausted *extraction.ExhaustedError
	var capMissing *extraction.CapabilityMissingError
	switch {
	case errors.As(err, &permErr):
		status = http.StatusForbidden
	case errors.Is(err, activation.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, activation.ErrNotActive):
		status = http.StatusPreconditionFailed
	case errors.As(err, &capMissing):
		status = http.StatusForbidden
	case errors.As(err, &exhausted):
		status = http.StatusUnprocessableEntity
	}

	s.writeJSON(w, status, map[string]string{
		"status": "error",
		"error":  err.Error(),
	})
}

package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"liuproxy_prober/internal/app"
	"liuproxy_prober/internal/core/engine"
	"liuproxy_prober/internal/shared/logger"
	"liuproxy_prober/internal/shared/types"
)

// BatchRunner is what the handler needs from the application.
type BatchRunner interface {
	RunBatch(ctx context.Context, nodes []*types.ProxyNode) ([]*types.ProxyNode, error)
	Status() (bool, *engine.BatchEvent)
}

type Handler struct {
	runner BatchRunner
}

func NewHandler(runner BatchRunner) *Handler {
	return &Handler{runner: runner}
}

type checkResponse struct {
	Nodes []*types.ProxyNode `json:"nodes"`
	Error string             `json:"error,omitempty"`
}

// HandleCheck 处理 POST /api/check: 请求体为节点数组, 返回带注解的节点数组。
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var nodes []*types.ProxyNode
	if err := json.NewDecoder(r.Body).Decode(&nodes); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	out, err := h.runner.RunBatch(r.Context(), nodes)
	status := http.StatusOK
	resp := checkResponse{Nodes: out}
	if err != nil {
		resp.Error = err.Error()
		switch {
		case errors.Is(err, app.ErrBusy):
			status = http.StatusConflict
		case errors.Is(err, engine.ErrNoTargets):
			status = http.StatusUnprocessableEntity
		default:
			status = http.StatusBadGateway
		}
		logger.Warn().Err(err).Int("status", status).Msg("Check request finished with error.")
	}

	writeJSON(w, status, resp)
}

// HandleStatus 处理 GET /api/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	running, last := h.runner.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running":    running,
		"last_batch": last,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

package offers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"printfarm-system/internal/common/logger"
	"printfarm-system/internal/dispatch"
	"printfarm-system/internal/domain"
	"printfarm-system/internal/repository"
)

type Handler struct {
	lg    *logger.Logger
	d     *dispatch.Dispatcher
	audit *repository.AuditPG // nil when no database is configured
}

func NewHandler(lg *logger.Logger, d *dispatch.Dispatcher, audit *repository.AuditPG) *Handler {
	return &Handler{lg: lg, d: d, audit: audit}
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sequential-offers/start", h.start)
	mux.HandleFunc("POST /sequential-offers/response", h.response)
	mux.HandleFunc("DELETE /sequential-offers/{orderID}", h.cancel)
	mux.HandleFunc("GET /sequential-offers/active", h.active)
	mux.HandleFunc("GET /sequential-offers/finished", h.finished)
	mux.HandleFunc("GET /sequential-offers/{orderID}", h.status)
	mux.HandleFunc("GET /healthz", h.health)
	return mux
}

type startRequest struct {
	Order          domain.OrderDescriptor `json:"order"`
	Candidates     []candidateRequest     `json:"candidates"`
	TimeoutSeconds int                    `json:"timeout_seconds"`
}

type candidateRequest struct {
	FarmerID   string  `json:"farmer_id"`
	MatchScore float64 `json:"match_score"`
}

// start blocks until the dispatch reaches a terminal outcome; the request
// goroutine is the session's driving loop.
func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Order.OrderID == "" {
		writeError(w, http.StatusBadRequest, "order.order_id is required")
		return
	}
	candidates := make([]domain.Candidate, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		if c.FarmerID == "" {
			writeError(w, http.StatusBadRequest, "candidate farmer_id must not be empty")
			return
		}
		candidates = append(candidates, domain.Candidate{FarmerID: c.FarmerID, MatchScore: c.MatchScore})
	}
	timeout := time.Duration(req.TimeoutSeconds) * time.Second

	result, err := h.d.Start(r.Context(), req.Order, candidates, timeout)
	if err != nil {
		if errors.Is(err, dispatch.ErrDuplicateSession) {
			writeError(w, http.StatusConflict, "order already has an active dispatch session")
			return
		}
		h.lg.Error("dispatch_start_failed", err, map[string]any{"order_id": req.Order.OrderID})
		writeError(w, http.StatusInternalServerError, "dispatch failed to start")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// response acknowledges every well-formed delivery; a stale or duplicate
// decision is dropped internally, which the caller cannot distinguish.
func (h *Handler) response(w http.ResponseWriter, r *http.Request) {
	var msg domain.OfferResponseMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg.OrderID == "" || msg.FarmerID == "" {
		writeError(w, http.StatusBadRequest, "order_id and farmer_id are required")
		return
	}
	_ = h.d.SubmitResponse(msg.OrderID, msg.FarmerID, msg.Accepted)
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderID")
	if !h.d.Cancel(orderID) {
		writeError(w, http.StatusNotFound, "no active session for order")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderID")
	snap, ok := h.d.Status(orderID)
	if !ok {
		writeError(w, http.StatusNotFound, "no active session for order")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) active(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": h.d.Active()})
}

func (h *Handler) finished(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "audit storage is not configured")
		return
	}
	sessions, err := h.audit.FinishedSessions(r.Context(), 50)
	if err != nil {
		h.lg.Error("finished_sessions_query_failed", err, nil)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

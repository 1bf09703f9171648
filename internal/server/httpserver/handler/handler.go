package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yndnr/zonemesh-go/internal/core/domain"
	"github.com/yndnr/zonemesh-go/internal/server/clusterserver"
	"github.com/yndnr/zonemesh-go/internal/telemetry/logger"
)

// Node is the view of the local peer the handlers read from.
// *clusterserver.Node implements it.
type Node interface {
	Name() string
	Ready() bool
	Snapshot(ctx context.Context) (clusterserver.Snapshot, error)
	GetSessionInfo(ctx context.Context, name string) (domain.SessionInfo, bool, error)
}

// Handler serves the admin API.
type Handler struct {
	node   Node
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a Handler for node.
func New(node Node, logger *slog.Logger) *Handler {
	h := &Handler{
		node:   node,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	h.mux.HandleFunc("GET /v1/peers", h.handlePeers)
	h.mux.HandleFunc("GET /v1/sessions", h.handleListSessions)
	h.mux.HandleFunc("GET /v1/sessions/{name}", h.handleGetSession)
	h.mux.HandleFunc("GET /v1/instances", h.handleListInstances)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID, data)); err != nil {
		h.logger.Error("failed to encode response", "error", err, "request_id", requestID)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(NewErrorResponse(requestID, code, message))
}

// handleNodeError converts node errors to HTTP responses.
func (h *Handler) handleNodeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		h.writeError(w, r, http.StatusGatewayTimeout, "ZM-SYS-5040", "node did not answer in time")
		return
	}
	if code := domain.GetErrorCode(err); code != "" {
		h.writeError(w, r, errorCodeToHTTPStatus(code), code, err.Error())
		return
	}
	logger.L(r.Context()).Error("internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, "ZM-SYS-5000", "internal server error")
}

// errorCodeToHTTPStatus maps ZM-<AREA>-<NNNN> codes to HTTP status codes
// by their leading three digits.
func errorCodeToHTTPStatus(code string) int {
	i := strings.LastIndexByte(code, '-')
	if i < 0 || len(code)-i-1 != 4 {
		return http.StatusInternalServerError
	}
	switch code[i+1 : i+4] {
	case "400":
		return http.StatusBadRequest
	case "403":
		return http.StatusForbidden
	case "404":
		return http.StatusNotFound
	case "409":
		return http.StatusConflict
	case "410":
		return http.StatusGone
	case "503":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

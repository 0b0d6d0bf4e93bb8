package blacklist

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"stablegate/internal/platform/metrics"
	"stablegate/internal/platform/middleware"
	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/httputil"
)

// HandlerService is the slice of the blacklist service the HTTP layer needs.
type HandlerService interface {
	Add(ctx context.Context, actor domain.Actor, req AddRequest) (*Entry, error)
	Clear(ctx context.Context, actor domain.Actor, addr domain.Address, reason string) error
	IsBlacklisted(ctx context.Context, addr domain.Address) (bool, error)
	Get(ctx context.Context, addr domain.Address) (*Entry, error)
	List(ctx context.Context) ([]*Entry, error)
}

// Handler exposes the blacklist over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   HandlerService
	metrics   *metrics.Metrics
	validator middleware.ActorValidator
}

// NewHandler creates the blacklist HTTP handler.
func NewHandler(service HandlerService, validator middleware.ActorValidator, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		metrics:   m,
		validator: validator,
	}
}

// Register mounts the blacklist routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(br chi.Router) {
		br.Use(middleware.Recovery(h.logger))
		br.Use(middleware.RequestID)
		br.Use(middleware.Logger(h.logger))
		br.Use(middleware.Timeout(30 * time.Second))
		br.Use(middleware.ContentTypeJSON)
		br.Use(middleware.Latency(h.metrics))
		br.Use(middleware.RequireActor(h.validator, h.logger))

		br.Post("/blacklist", h.handleAdd)
		br.Get("/blacklist", h.handleList)
		br.Get("/blacklist/{address}", h.handleGet)
		br.Post("/blacklist/{address}/clear", h.handleClear)
	})
}

type addRequest struct {
	Address     string `json:"address"`
	Reason      string `json:"reason"`
	Action      string `json:"action"`
	EvidenceRef string `json:"evidence_ref,omitempty"`
	AlertID     string `json:"alert_id,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

type clearRequest struct {
	Reason string `json:"reason"`
}

type entryResponse struct {
	Address     string `json:"address"`
	Reason      string `json:"reason"`
	Action      string `json:"action"`
	EvidenceRef string `json:"evidence_ref,omitempty"`
	AlertID     string `json:"alert_id,omitempty"`
	AddedBy     string `json:"added_by"`
	Active      bool   `json:"active"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	CreatedAt   string `json:"created_at"`
	ClearReason string `json:"clear_reason,omitempty"`
}

func toEntryResponse(e *Entry) entryResponse {
	resp := entryResponse{
		Address:     e.Address.String(),
		Reason:      string(e.Reason),
		Action:      string(e.Action),
		EvidenceRef: e.EvidenceRef,
		AlertID:     e.AlertID,
		AddedBy:     e.AddedBy.String(),
		Active:      e.Active,
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
		ClearReason: e.ClearReason,
	}
	if !e.ExpiresAt.IsZero() {
		resp.ExpiresAt = e.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	addr, err := domain.ParseAddress(req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reason, err := ParseReason(req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	action, err := ParseAction(req.Action)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var expiresAt time.Time
	if req.ExpiresAt != "" {
		expiresAt, err = time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "expires_at must be RFC3339"))
			return
		}
	}

	entry, err := h.service.Add(ctx, actor, AddRequest{
		Address:     addr,
		Reason:      reason,
		Action:      action,
		EvidenceRef: req.EvidenceRef,
		AlertID:     req.AlertID,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.service.Clear(ctx, actor, addr, req.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entry, err := h.service.Get(ctx, addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, err := h.service.List(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

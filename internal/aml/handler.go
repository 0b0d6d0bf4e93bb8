package aml

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"stablegate/internal/blacklist"
	"stablegate/internal/platform/metrics"
	"stablegate/internal/platform/middleware"
	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/httputil"
)

// HandlerService is the slice of the AML service the HTTP layer needs.
type HandlerService interface {
	RegisterAuthority(ctx context.Context, actor domain.Actor, req RegisterAuthorityRequest) (*Authority, error)
	UpdateAuthorityPowers(ctx context.Context, actor domain.Actor, addr domain.Address, powers Power) (*Authority, error)
	DeactivateAuthority(ctx context.Context, actor domain.Actor, addr domain.Address, reason string) error
	CreateAlert(ctx context.Context, actor domain.Actor, req CreateAlertRequest) (*Alert, error)
	UpdateAlert(ctx context.Context, actor domain.Actor, id string, newStatus AlertStatus, resolution string) (*Alert, error)
	TakeAction(ctx context.Context, actor domain.Actor, req TakeActionRequest) (*blacklist.Entry, error)
	GetAuthority(ctx context.Context, addr domain.Address) (*Authority, error)
	GetAlert(ctx context.Context, id string) (*Alert, error)
	AlertsBySubject(ctx context.Context, subject domain.Address) ([]*Alert, error)
}

// Handler exposes the AML workflow over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   HandlerService
	metrics   *metrics.Metrics
	validator middleware.ActorValidator
}

// NewHandler creates the AML HTTP handler.
func NewHandler(service HandlerService, validator middleware.ActorValidator, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		metrics:   m,
		validator: validator,
	}
}

// Register mounts the AML routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(ar chi.Router) {
		ar.Use(middleware.Recovery(h.logger))
		ar.Use(middleware.RequestID)
		ar.Use(middleware.Logger(h.logger))
		ar.Use(middleware.Timeout(30 * time.Second))
		ar.Use(middleware.ContentTypeJSON)
		ar.Use(middleware.Latency(h.metrics))
		ar.Use(middleware.RequireActor(h.validator, h.logger))

		ar.Post("/aml/authorities", h.handleRegisterAuthority)
		ar.Get("/aml/authorities/{address}", h.handleGetAuthority)
		ar.Patch("/aml/authorities/{address}/powers", h.handleUpdatePowers)
		ar.Post("/aml/authorities/{address}/deactivate", h.handleDeactivateAuthority)
		ar.Post("/aml/alerts", h.handleCreateAlert)
		ar.Get("/aml/alerts/{id}", h.handleGetAlert)
		ar.Post("/aml/alerts/{id}/status", h.handleUpdateAlert)
		ar.Get("/aml/subjects/{address}/alerts", h.handleAlertsBySubject)
		ar.Post("/aml/actions", h.handleTakeAction)
	})
}

type registerAuthorityRequest struct {
	Address      string `json:"address"`
	Name         string `json:"name"`
	Jurisdiction string `json:"jurisdiction"`
	Powers       uint32 `json:"powers"`
}

type updatePowersRequest struct {
	Powers uint32 `json:"powers"`
}

type deactivateAuthorityRequest struct {
	Reason string `json:"reason"`
}

type createAlertRequest struct {
	Subject     string `json:"subject"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

type updateAlertRequest struct {
	Status     string `json:"status"`
	Resolution string `json:"resolution,omitempty"`
}

type takeActionRequest struct {
	Subject     string `json:"subject"`
	Action      string `json:"action"`
	Reason      string `json:"reason"`
	EvidenceRef string `json:"evidence_ref,omitempty"`
	AlertID     string `json:"alert_id,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

type authorityResponse struct {
	Address      string `json:"address"`
	Name         string `json:"name"`
	Jurisdiction string `json:"jurisdiction"`
	Powers       uint32 `json:"powers"`
	PowerNames   string `json:"power_names"`
	Active       bool   `json:"active"`
	RegisteredAt string `json:"registered_at"`
}

func toAuthorityResponse(a *Authority) authorityResponse {
	return authorityResponse{
		Address:      a.Address.String(),
		Name:         a.Name,
		Jurisdiction: a.Jurisdiction.String(),
		Powers:       uint32(a.Powers),
		PowerNames:   a.Powers.String(),
		Active:       a.Active,
		RegisteredAt: a.RegisteredAt.UTC().Format(time.RFC3339),
	}
}

type alertResponse struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	RaisedBy    string `json:"raised_by"`
	Status      string `json:"status"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Resolution  string `json:"resolution,omitempty"`
	CreatedAt   string `json:"created_at"`
	ClosedAt    string `json:"closed_at,omitempty"`
}

func toAlertResponse(a *Alert) alertResponse {
	resp := alertResponse{
		ID:          a.ID,
		Subject:     a.Subject.String(),
		RaisedBy:    a.RaisedBy.String(),
		Status:      string(a.Status),
		Severity:    string(a.Severity),
		Description: a.Description,
		Resolution:  a.Resolution,
		CreatedAt:   a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !a.ClosedAt.IsZero() {
		resp.ClosedAt = a.ClosedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) handleRegisterAuthority(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req registerAuthorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	addr, err := domain.ParseAddress(req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	jurisdiction, err := domain.ParseCountryCode(req.Jurisdiction)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	powers, err := ParsePowers(req.Powers)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	a, err := h.service.RegisterAuthority(ctx, actor, RegisterAuthorityRequest{
		Address:      addr,
		Name:         req.Name,
		Jurisdiction: jurisdiction,
		Powers:       powers,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toAuthorityResponse(a))
}

func (h *Handler) handleGetAuthority(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	a, err := h.service.GetAuthority(ctx, addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAuthorityResponse(a))
}

func (h *Handler) handleUpdatePowers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req updatePowersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	powers, err := ParsePowers(req.Powers)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	a, err := h.service.UpdateAuthorityPowers(ctx, actor, addr, powers)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAuthorityResponse(a))
}

func (h *Handler) handleDeactivateAuthority(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req deactivateAuthorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.service.DeactivateAuthority(ctx, actor, addr, req.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	subject, err := domain.ParseAddress(req.Subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	severity, err := ParseSeverity(req.Severity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	alert, err := h.service.CreateAlert(ctx, actor, CreateAlertRequest{
		Subject:     subject,
		Severity:    severity,
		Description: req.Description,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toAlertResponse(alert))
}

func (h *Handler) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	alert, err := h.service.GetAlert(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAlertResponse(alert))
}

func (h *Handler) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req updateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	status, err := ParseAlertStatus(req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	alert, err := h.service.UpdateAlert(ctx, actor, chi.URLParam(r, "id"), status, req.Resolution)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAlertResponse(alert))
}

func (h *Handler) handleAlertsBySubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subject, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	alerts, err := h.service.AlertsBySubject(ctx, subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertResponse(a))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleTakeAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req takeActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	subject, err := domain.ParseAddress(req.Subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	action, err := blacklist.ParseAction(req.Action)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reason, err := blacklist.ParseReason(req.Reason)
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

	entry, err := h.service.TakeAction(ctx, actor, TakeActionRequest{
		Subject:     subject,
		Action:      action,
		Reason:      reason,
		EvidenceRef: req.EvidenceRef,
		AlertID:     req.AlertID,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "enforcement action rejected",
			"actor", actor.Address.String(),
			"code", string(dErrors.GetCode(err)),
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"address": entry.Address.String(),
		"action":  string(entry.Action),
		"reason":  string(entry.Reason),
		"active":  entry.Active,
	})
}

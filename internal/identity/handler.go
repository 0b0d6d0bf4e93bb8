package identity

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"stablegate/internal/platform/metrics"
	"stablegate/internal/platform/middleware"
	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/httputil"
)

// HandlerService is the slice of the identity service the HTTP layer needs.
type HandlerService interface {
	Register(ctx context.Context, actor domain.Actor, req RegisterRequest) (*Record, error)
	UpdateStatus(ctx context.Context, actor domain.Actor, user domain.Address, newStatus KycStatus, newLevel domain.VerificationLevel, validityDays int) (*Record, error)
	SetRequiredLevel(ctx context.Context, actor domain.Actor, user domain.Address, required domain.VerificationLevel) error
	Get(ctx context.Context, user domain.Address) (*Record, error)
	IsVerified(ctx context.Context, user domain.Address, minLevel domain.VerificationLevel) (bool, error)
	VerifiedCount(ctx context.Context) (int64, error)
}

// Handler exposes the identity registry over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   HandlerService
	metrics   *metrics.Metrics
	validator middleware.ActorValidator
}

// NewHandler creates the identity HTTP handler.
func NewHandler(service HandlerService, validator middleware.ActorValidator, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		metrics:   m,
		validator: validator,
	}
}

// Register mounts the identity routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(ir chi.Router) {
		ir.Use(middleware.Recovery(h.logger))
		ir.Use(middleware.RequestID)
		ir.Use(middleware.Logger(h.logger))
		ir.Use(middleware.Timeout(30 * time.Second))
		ir.Use(middleware.ContentTypeJSON)
		ir.Use(middleware.Latency(h.metrics))
		ir.Use(middleware.RequireActor(h.validator, h.logger))

		ir.Post("/identity/register", h.handleRegister)
		ir.Post("/identity/{address}/status", h.handleUpdateStatus)
		ir.Post("/identity/{address}/required-level", h.handleSetRequiredLevel)
		ir.Get("/identity/{address}", h.handleGet)
		ir.Get("/identity/{address}/verified", h.handleIsVerified)
		ir.Get("/identity/stats", h.handleStats)
	})
}

type registerRequest struct {
	User        string `json:"user"`
	RoutingCode string `json:"routing_code"`
	IBAN        string `json:"iban"`
	Country     string `json:"country"`
	Provider    string `json:"provider,omitempty"`
	Business    bool   `json:"business,omitempty"`
}

type updateStatusRequest struct {
	Status       string `json:"status"`
	Level        uint8  `json:"level"`
	ValidityDays int    `json:"validity_days,omitempty"`
}

type setRequiredLevelRequest struct {
	RequiredLevel uint8 `json:"required_level"`
}

type recordResponse struct {
	User          string `json:"user"`
	Status        string `json:"status"`
	Level         uint8  `json:"level"`
	RequiredLevel uint8  `json:"required_level"`
	Country       string `json:"country"`
	RoutingCode   string `json:"routing_code"`
	Provider      string `json:"provider,omitempty"`
	Business      bool   `json:"business"`
	RegisteredAt  string `json:"registered_at"`
	VerifiedAt    string `json:"verified_at,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

func toRecordResponse(rec *Record) recordResponse {
	resp := recordResponse{
		User:          rec.User.String(),
		Status:        rec.Status.String(),
		Level:         uint8(rec.Level),
		RequiredLevel: uint8(rec.RequiredLevel),
		Country:       rec.Country.String(),
		RoutingCode:   rec.RoutingCode,
		Provider:      rec.Provider,
		Business:      rec.Business,
		RegisteredAt:  rec.RegisteredAt.UTC().Format(time.RFC3339),
	}
	if !rec.VerifiedAt.IsZero() {
		resp.VerifiedAt = rec.VerifiedAt.UTC().Format(time.RFC3339)
	}
	if !rec.ExpiresAt.IsZero() {
		resp.ExpiresAt = rec.ExpiresAt.UTC().Format(time.RFC3339)
	}
	// IBANHash stays out of responses: the hash exists for dedup checks, not
	// for clients.
	return resp
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	user, err := domain.ParseAddress(req.User)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	country, err := domain.ParseCountryCode(req.Country)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.Register(ctx, actor, RegisterRequest{
		User:        user,
		RoutingCode: req.RoutingCode,
		IBAN:        req.IBAN,
		Country:     country,
		Provider:    req.Provider,
		Business:    req.Business,
	})
	if err != nil {
		h.logServiceError(ctx, "register user", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toRecordResponse(rec))
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	user, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	status, err := ParseKycStatus(req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	level, err := domain.ParseVerificationLevel(req.Level)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.UpdateStatus(ctx, actor, user, status, level, req.ValidityDays)
	if err != nil {
		h.logServiceError(ctx, "update status", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleSetRequiredLevel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	user, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req setRequiredLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	required, err := domain.ParseVerificationLevel(req.RequiredLevel)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.SetRequiredLevel(ctx, actor, user, required); err != nil {
		h.logServiceError(ctx, "set required level", err)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.Get(ctx, user)
	if err != nil {
		h.logServiceError(ctx, "get record", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleIsVerified(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	minLevel := domain.LevelBasic
	if q := r.URL.Query().Get("min_level"); q != "" {
		n, err := strconv.ParseUint(q, 10, 8)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid min_level"))
			return
		}
		minLevel, err = domain.ParseVerificationLevel(uint8(n))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	ok, err := h.service.IsVerified(ctx, user, minLevel)
	if err != nil {
		h.logServiceError(ctx, "check verification", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"user":      user.String(),
		"verified":  ok,
		"min_level": uint8(minLevel),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := h.service.VerifiedCount(ctx)
	if err != nil {
		h.logServiceError(ctx, "count verified users", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"verified_users": count})
}

func (h *Handler) logServiceError(ctx context.Context, action string, err error) {
	code := dErrors.GetCode(err)
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "identity operation failed",
			"action", action,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		return
	}
	h.logger.WarnContext(ctx, "identity operation rejected",
		"action", action,
		"code", string(code),
		"request_id", middleware.GetRequestID(ctx),
	)
}

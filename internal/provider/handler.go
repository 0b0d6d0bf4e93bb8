package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"stablegate/internal/identity"
	"stablegate/internal/platform/metrics"
	"stablegate/internal/platform/middleware"
	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/httputil"
)

// HandlerService is the slice of the provider service the HTTP layer needs.
type HandlerService interface {
	RegisterProvider(ctx context.Context, actor domain.Actor, req RegisterProviderRequest) (*Provider, error)
	UpdateProvider(ctx context.Context, actor domain.Actor, addr domain.Address, req UpdateProviderRequest) (*Provider, error)
	DeactivateProvider(ctx context.Context, actor domain.Actor, addr domain.Address, reason string) error
	SubmitAttestation(ctx context.Context, att Attestation) (*identity.Record, error)
	Get(ctx context.Context, addr domain.Address) (*Provider, error)
	List(ctx context.Context) ([]*Provider, error)
}

// Handler exposes the provider registry over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   HandlerService
	metrics   *metrics.Metrics
	validator middleware.ActorValidator
}

// NewHandler creates the provider HTTP handler.
func NewHandler(service HandlerService, validator middleware.ActorValidator, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		metrics:   m,
		validator: validator,
	}
}

// Register mounts the provider routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.Recovery(h.logger))
		pr.Use(middleware.RequestID)
		pr.Use(middleware.Logger(h.logger))
		pr.Use(middleware.Timeout(30 * time.Second))
		pr.Use(middleware.ContentTypeJSON)
		pr.Use(middleware.Latency(h.metrics))
		pr.Use(middleware.RequireActor(h.validator, h.logger))

		pr.Post("/providers", h.handleRegisterProvider)
		pr.Get("/providers", h.handleList)
		pr.Get("/providers/{address}", h.handleGet)
		pr.Patch("/providers/{address}", h.handleUpdateProvider)
		pr.Post("/providers/{address}/deactivate", h.handleDeactivate)
		pr.Post("/attestations", h.handleSubmitAttestation)
	})
}

type registerProviderRequest struct {
	Address      string `json:"address"`
	Name         string `json:"name"`
	PublicKey    string `json:"public_key"`
	Jurisdiction string `json:"jurisdiction"`
	MaxLevel     uint8  `json:"max_level"`
	TrustScore   uint8  `json:"trust_score"`
}

type updateProviderRequest struct {
	Name       *string `json:"name,omitempty"`
	PublicKey  *string `json:"public_key,omitempty"`
	MaxLevel   *uint8  `json:"max_level,omitempty"`
	TrustScore *uint8  `json:"trust_score,omitempty"`
}

type deactivateRequest struct {
	Reason string `json:"reason"`
}

type attestationRequest struct {
	Provider     string `json:"provider"`
	User         string `json:"user"`
	Level        uint8  `json:"level"`
	ValidityDays int    `json:"validity_days,omitempty"`
	IssuedAt     string `json:"issued_at"`
	Nonce        string `json:"nonce"`
	Signature    string `json:"signature"`
}

type providerResponse struct {
	Address       string `json:"address"`
	Name          string `json:"name"`
	PublicKey     string `json:"public_key"`
	Jurisdiction  string `json:"jurisdiction"`
	MaxLevel      uint8  `json:"max_level"`
	TrustScore    uint8  `json:"trust_score"`
	Active        bool   `json:"active"`
	AcceptedCount uint64 `json:"accepted_count"`
	RegisteredAt  string `json:"registered_at"`
}

func toProviderResponse(p *Provider) providerResponse {
	return providerResponse{
		Address:       p.Address.String(),
		Name:          p.Name,
		PublicKey:     base64.StdEncoding.EncodeToString(p.PublicKey),
		Jurisdiction:  p.Jurisdiction.String(),
		MaxLevel:      uint8(p.MaxLevel),
		TrustScore:    p.TrustScore,
		Active:        p.Active,
		AcceptedCount: p.AcceptedCount,
		RegisteredAt:  p.RegisteredAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) handleRegisterProvider(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req registerProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	addr, err := domain.ParseAddress(req.Address)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	pub, err := ParsePublicKey(req.PublicKey)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	jurisdiction, err := domain.ParseCountryCode(req.Jurisdiction)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	maxLevel, err := domain.ParseVerificationLevel(req.MaxLevel)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	score, err := ParseTrustScore(req.TrustScore)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, err := h.service.RegisterProvider(ctx, actor, RegisterProviderRequest{
		Address:      addr,
		Name:         req.Name,
		PublicKey:    pub,
		Jurisdiction: jurisdiction,
		MaxLevel:     maxLevel,
		TrustScore:   score,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toProviderResponse(p))
}

func (h *Handler) handleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req updateProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	update := UpdateProviderRequest{Name: req.Name}
	if req.PublicKey != nil {
		pub, err := ParsePublicKey(*req.PublicKey)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		update.PublicKey = pub
	}
	if req.MaxLevel != nil {
		level, err := domain.ParseVerificationLevel(*req.MaxLevel)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		update.MaxLevel = &level
	}
	if req.TrustScore != nil {
		score, err := ParseTrustScore(*req.TrustScore)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		update.TrustScore = &score
	}

	p, err := h.service.UpdateProvider(ctx, actor, addr, update)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toProviderResponse(p))
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req deactivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.service.DeactivateProvider(ctx, actor, addr, req.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubmitAttestation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req attestationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	providerAddr, err := domain.ParseAddress(req.Provider)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	user, err := domain.ParseAddress(req.User)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	level, err := domain.ParseVerificationLevel(req.Level)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	issuedAt, err := time.Parse(time.RFC3339, req.IssuedAt)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "issued_at must be RFC3339"))
		return
	}
	signature, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "signature is not valid base64"))
		return
	}

	record, err := h.service.SubmitAttestation(ctx, Attestation{
		Provider:     providerAddr,
		User:         user,
		Level:        level,
		ValidityDays: req.ValidityDays,
		IssuedAt:     issuedAt,
		Nonce:        req.Nonce,
		Signature:    signature,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "attestation rejected",
			"provider", providerAddr.String(),
			"code", string(dErrors.GetCode(err)),
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"user":   record.User.String(),
		"status": record.Status.String(),
		"level":  uint8(record.Level),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, err := h.service.Get(ctx, addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toProviderResponse(p))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	providers, err := h.service.List(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]providerResponse, 0, len(providers))
	for _, p := range providers {
		out = append(out, toProviderResponse(p))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

package token

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

// HandlerService is the slice of the token service the HTTP layer needs.
type HandlerService interface {
	InitPolicy(ctx context.Context, actor domain.Actor, policy *Policy) error
	UpdatePolicy(ctx context.Context, actor domain.Actor, policy *Policy) error
	GetPolicy(ctx context.Context) (*Policy, error)
	Mint(ctx context.Context, actor domain.Actor, req MintRequest) (*Account, error)
	Transfer(ctx context.Context, actor domain.Actor, req TransferRequest) error
	Burn(ctx context.Context, actor domain.Actor, from domain.Address, amount domain.Amount, reference string) error
	Freeze(ctx context.Context, actor domain.Actor, addr domain.Address, reference string) error
	Thaw(ctx context.Context, actor domain.Actor, addr domain.Address, reference string) error
	Seize(ctx context.Context, actor domain.Actor, req SeizeRequest) error
	GetAccount(ctx context.Context, addr domain.Address) (*Account, error)
	Supply(ctx context.Context) (domain.Amount, error)
}

// Handler exposes the token policy engine over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   HandlerService
	metrics   *metrics.Metrics
	validator middleware.ActorValidator
}

// NewHandler creates the token HTTP handler.
func NewHandler(service HandlerService, validator middleware.ActorValidator, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		metrics:   m,
		validator: validator,
	}
}

// Register mounts the token routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(tr chi.Router) {
		tr.Use(middleware.Recovery(h.logger))
		tr.Use(middleware.RequestID)
		tr.Use(middleware.Logger(h.logger))
		tr.Use(middleware.Timeout(30 * time.Second))
		tr.Use(middleware.ContentTypeJSON)
		tr.Use(middleware.Latency(h.metrics))
		tr.Use(middleware.RequireActor(h.validator, h.logger))

		tr.Post("/token/policy", h.handleInitPolicy)
		tr.Put("/token/policy", h.handleUpdatePolicy)
		tr.Get("/token/policy", h.handleGetPolicy)
		tr.Post("/token/mint", h.handleMint)
		tr.Post("/token/transfer", h.handleTransfer)
		tr.Post("/token/burn", h.handleBurn)
		tr.Post("/token/accounts/{address}/freeze", h.handleFreeze)
		tr.Post("/token/accounts/{address}/thaw", h.handleThaw)
		tr.Post("/token/seize", h.handleSeize)
		tr.Get("/token/accounts/{address}", h.handleGetAccount)
		tr.Get("/token/supply", h.handleSupply)
	})
}

type policyRequest struct {
	Issuer                     string           `json:"issuer"`
	FreezeAuthority            string           `json:"freeze_authority"`
	PermanentDelegate          string           `json:"permanent_delegate"`
	MinLevelTransfer           uint8            `json:"min_level_transfer"`
	MinLevelMint               uint8            `json:"min_level_mint"`
	MinLevelRedemption         uint8            `json:"min_level_redemption"`
	MinLevelBusinessRedemption uint8            `json:"min_level_business_redemption"`
	EnforceBlacklist           bool             `json:"enforce_blacklist"`
	Ceilings                   map[uint8]uint64 `json:"ceilings"`
	MinRedemption              uint64           `json:"min_redemption"`
	WhitepaperURI              string           `json:"whitepaper_uri,omitempty"`
}

type policyResponse struct {
	Issuer                     string           `json:"issuer"`
	FreezeAuthority            string           `json:"freeze_authority"`
	PermanentDelegate          string           `json:"permanent_delegate"`
	MinLevelTransfer           uint8            `json:"min_level_transfer"`
	MinLevelMint               uint8            `json:"min_level_mint"`
	MinLevelRedemption         uint8            `json:"min_level_redemption"`
	MinLevelBusinessRedemption uint8            `json:"min_level_business_redemption"`
	EnforceBlacklist           bool             `json:"enforce_blacklist"`
	Ceilings                   map[uint8]uint64 `json:"ceilings"`
	MinRedemption              uint64           `json:"min_redemption"`
	WhitepaperURI              string           `json:"whitepaper_uri,omitempty"`
	UpdatedAt                  string           `json:"updated_at"`
}

func toPolicyResponse(p *Policy) policyResponse {
	ceilings := make(map[uint8]uint64, len(p.Ceilings))
	for level, amount := range p.Ceilings {
		ceilings[uint8(level)] = uint64(amount)
	}
	return policyResponse{
		Issuer:                     p.Issuer.String(),
		FreezeAuthority:            p.FreezeAuthority.String(),
		PermanentDelegate:          p.PermanentDelegate.String(),
		MinLevelTransfer:           uint8(p.MinLevelTransfer),
		MinLevelMint:               uint8(p.MinLevelMint),
		MinLevelRedemption:         uint8(p.MinLevelRedemption),
		MinLevelBusinessRedemption: uint8(p.MinLevelBusinessRedemption),
		EnforceBlacklist:           p.EnforceBlacklist,
		Ceilings:                   ceilings,
		MinRedemption:              uint64(p.MinRedemption),
		WhitepaperURI:              p.WhitepaperURI,
		UpdatedAt:                  p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) decodePolicy(req policyRequest) (*Policy, error) {
	issuer, err := domain.ParseAddress(req.Issuer)
	if err != nil {
		return nil, err
	}
	freezeAuthority, err := domain.ParseAddress(req.FreezeAuthority)
	if err != nil {
		return nil, err
	}
	permanentDelegate, err := domain.ParseAddress(req.PermanentDelegate)
	if err != nil {
		return nil, err
	}
	transfer, err := domain.ParseVerificationLevel(req.MinLevelTransfer)
	if err != nil {
		return nil, err
	}
	mint, err := domain.ParseVerificationLevel(req.MinLevelMint)
	if err != nil {
		return nil, err
	}
	redemption, err := domain.ParseVerificationLevel(req.MinLevelRedemption)
	if err != nil {
		return nil, err
	}
	business, err := domain.ParseVerificationLevel(req.MinLevelBusinessRedemption)
	if err != nil {
		return nil, err
	}
	ceilings := make(map[domain.VerificationLevel]domain.Amount, len(req.Ceilings))
	for rawLevel, amount := range req.Ceilings {
		level, err := domain.ParseVerificationLevel(rawLevel)
		if err != nil {
			return nil, err
		}
		ceilings[level] = domain.Amount(amount)
	}
	return &Policy{
		Issuer:                     issuer,
		FreezeAuthority:            freezeAuthority,
		PermanentDelegate:          permanentDelegate,
		MinLevelTransfer:           transfer,
		MinLevelMint:               mint,
		MinLevelRedemption:         redemption,
		MinLevelBusinessRedemption: business,
		EnforceBlacklist:           req.EnforceBlacklist,
		Ceilings:                   ceilings,
		MinRedemption:              domain.Amount(req.MinRedemption),
		WhitepaperURI:              req.WhitepaperURI,
	}, nil
}

func (h *Handler) handleInitPolicy(w http.ResponseWriter, r *http.Request) {
	h.handlePolicyWrite(w, r, h.service.InitPolicy, http.StatusCreated)
}

func (h *Handler) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	h.handlePolicyWrite(w, r, h.service.UpdatePolicy, http.StatusOK)
}

func (h *Handler) handlePolicyWrite(
	w http.ResponseWriter,
	r *http.Request,
	write func(context.Context, domain.Actor, *Policy) error,
	status int,
) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req policyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	policy, err := h.decodePolicy(req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := write(ctx, actor, policy); err != nil {
		h.logServiceError(ctx, "write policy", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, status, toPolicyResponse(policy))
}

func (h *Handler) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.service.GetPolicy(r.Context())
	if err != nil {
		h.logServiceError(r.Context(), "get policy", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPolicyResponse(policy))
}

type mintRequest struct {
	To        string `json:"to"`
	Amount    uint64 `json:"amount"`
	Reference string `json:"reference"`
}

type accountResponse struct {
	Address   string `json:"address"`
	Balance   uint64 `json:"balance"`
	Frozen    bool   `json:"frozen"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toAccountResponse(a *Account) accountResponse {
	return accountResponse{
		Address:   a.Address.String(),
		Balance:   uint64(a.Balance),
		Frozen:    a.Frozen,
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	to, err := domain.ParseAddress(req.To)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	account, err := h.service.Mint(ctx, actor, MintRequest{
		To:        to,
		Amount:    domain.Amount(req.Amount),
		Reference: req.Reference,
	})
	if err != nil {
		h.logServiceError(ctx, "mint", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	from, err := domain.ParseAddress(req.From)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	to, err := domain.ParseAddress(req.To)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Transfer(ctx, actor, TransferRequest{
		From:   from,
		To:     to,
		Amount: domain.Amount(req.Amount),
	}); err != nil {
		h.logServiceError(ctx, "transfer", err)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type burnRequest struct {
	From      string `json:"from"`
	Amount    uint64 `json:"amount"`
	Reference string `json:"reference,omitempty"`
}

func (h *Handler) handleBurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req burnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	from, err := domain.ParseAddress(req.From)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Burn(ctx, actor, from, domain.Amount(req.Amount), req.Reference); err != nil {
		h.logServiceError(ctx, "burn", err)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type freezeRequest struct {
	Reference string `json:"reference,omitempty"`
}

func (h *Handler) handleFreeze(w http.ResponseWriter, r *http.Request) {
	h.handleFrozenState(w, r, h.service.Freeze, "freeze account")
}

func (h *Handler) handleThaw(w http.ResponseWriter, r *http.Request) {
	h.handleFrozenState(w, r, h.service.Thaw, "thaw account")
}

func (h *Handler) handleFrozenState(
	w http.ResponseWriter,
	r *http.Request,
	set func(context.Context, domain.Actor, domain.Address, string) error,
	op string,
) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req freezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := set(ctx, actor, addr, req.Reference); err != nil {
		h.logServiceError(ctx, op, err)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type seizeRequest struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Amount        uint64 `json:"amount"`
	CaseReference string `json:"case_reference"`
}

func (h *Handler) handleSeize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req seizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	from, err := domain.ParseAddress(req.From)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	to, err := domain.ParseAddress(req.To)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Seize(ctx, actor, SeizeRequest{
		From:          from,
		To:            to,
		Amount:        domain.Amount(req.Amount),
		CaseReference: req.CaseReference,
	}); err != nil {
		h.logServiceError(ctx, "seize", err)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	account, err := h.service.GetAccount(r.Context(), addr)
	if err != nil {
		h.logServiceError(r.Context(), "get account", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) handleSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := h.service.Supply(r.Context())
	if err != nil {
		h.logServiceError(r.Context(), "get supply", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"supply": uint64(supply)})
}

func (h *Handler) logServiceError(ctx context.Context, op string, err error) {
	if dErrors.GetCode(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "token operation failed", "op", op, "error", err)
		return
	}
	h.logger.WarnContext(ctx, "token operation rejected", "op", op, "error", err)
}

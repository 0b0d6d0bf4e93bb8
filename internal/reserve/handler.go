package reserve

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

// HandlerService is the slice of the reserve service the HTTP layer needs.
type HandlerService interface {
	LogFiatDeposit(ctx context.Context, actor domain.Actor, amount domain.Amount, reference string) (*State, error)
	LogFiatWithdrawal(ctx context.Context, actor domain.Actor, amount domain.Amount, reference string) (*State, error)
	UpdateReserveProof(ctx context.Context, actor domain.Actor, update ProofUpdate) (*State, error)
	RequestRedemption(ctx context.Context, actor domain.Actor, req RedemptionRequest) (*Redemption, error)
	ApproveRedemption(ctx context.Context, actor domain.Actor, id string) (*Redemption, error)
	ProcessRedemption(ctx context.Context, actor domain.Actor, id, payoutReference string) (*Redemption, error)
	GetState(ctx context.Context) (*State, error)
	GetRedemption(ctx context.Context, id string) (*Redemption, error)
	PendingRedemptions(ctx context.Context, lane Lane) ([]*Redemption, error)
}

// Handler exposes the reserve ledger over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   HandlerService
	metrics   *metrics.Metrics
	validator middleware.ActorValidator
}

// NewHandler creates the reserve HTTP handler.
func NewHandler(service HandlerService, validator middleware.ActorValidator, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		metrics:   m,
		validator: validator,
	}
}

// Register mounts the reserve routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(rr chi.Router) {
		rr.Use(middleware.Recovery(h.logger))
		rr.Use(middleware.RequestID)
		rr.Use(middleware.Logger(h.logger))
		rr.Use(middleware.Timeout(30 * time.Second))
		rr.Use(middleware.ContentTypeJSON)
		rr.Use(middleware.Latency(h.metrics))
		rr.Use(middleware.RequireActor(h.validator, h.logger))

		rr.Get("/reserve", h.handleGetState)
		rr.Post("/reserve/deposits", h.handleDeposit)
		rr.Post("/reserve/withdrawals", h.handleWithdrawal)
		rr.Post("/reserve/proof", h.handleProof)
		rr.Post("/redemptions", h.handleRequestRedemption)
		rr.Get("/redemptions", h.handleListPending)
		rr.Get("/redemptions/{id}", h.handleGetRedemption)
		rr.Post("/redemptions/{id}/approve", h.handleApprove)
		rr.Post("/redemptions/{id}/process", h.handleProcess)
	})
}

type stateResponse struct {
	ProvenReserves     uint64 `json:"proven_reserves"`
	PendingRedemptions uint64 `json:"pending_redemptions"`
	RatioRequirement   uint32 `json:"ratio_requirement"`
	ProofRoot          string `json:"proof_root,omitempty"`
	ProofCID           string `json:"proof_cid,omitempty"`
	ProofAuditor       string `json:"proof_auditor,omitempty"`
	ProofUpdatedAt     string `json:"proof_updated_at,omitempty"`
	LastReference      string `json:"last_reference,omitempty"`
	UpdatedAt          string `json:"updated_at,omitempty"`
}

func toStateResponse(st *State) stateResponse {
	resp := stateResponse{
		ProvenReserves:     uint64(st.ProvenReserves),
		PendingRedemptions: uint64(st.PendingRedemptions),
		RatioRequirement:   st.RatioRequirement,
		ProofRoot:          st.ProofRoot,
		ProofCID:           st.ProofCID,
		ProofAuditor:       st.ProofAuditor,
		LastReference:      st.LastReference,
	}
	if !st.ProofUpdatedAt.IsZero() {
		resp.ProofUpdatedAt = st.ProofUpdatedAt.UTC().Format(time.RFC3339)
	}
	if !st.UpdatedAt.IsZero() {
		resp.UpdatedAt = st.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

type redemptionResponse struct {
	ID              string `json:"id"`
	Requester       string `json:"requester"`
	Amount          uint64 `json:"amount"`
	Lane            string `json:"lane"`
	Status          string `json:"status"`
	ApprovedBy      string `json:"approved_by,omitempty"`
	PayoutReference string `json:"payout_reference,omitempty"`
	Sequence        uint64 `json:"sequence"`
	RequestedAt     string `json:"requested_at"`
	ApprovedAt      string `json:"approved_at,omitempty"`
	ProcessedAt     string `json:"processed_at,omitempty"`
}

func toRedemptionResponse(r *Redemption) redemptionResponse {
	resp := redemptionResponse{
		ID:              r.ID,
		Requester:       r.Requester.String(),
		Amount:          uint64(r.Amount),
		Lane:            string(r.Lane),
		Status:          string(r.Status),
		ApprovedBy:      r.ApprovedBy.String(),
		PayoutReference: r.PayoutReference,
		Sequence:        r.Sequence,
		RequestedAt:     r.RequestedAt.UTC().Format(time.RFC3339),
	}
	if !r.ApprovedAt.IsZero() {
		resp.ApprovedAt = r.ApprovedAt.UTC().Format(time.RFC3339)
	}
	if !r.ProcessedAt.IsZero() {
		resp.ProcessedAt = r.ProcessedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

type fiatMovementRequest struct {
	Amount    uint64 `json:"amount"`
	Reference string `json:"reference"`
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	h.handleFiatMovement(w, r, h.service.LogFiatDeposit, "log deposit")
}

func (h *Handler) handleWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.handleFiatMovement(w, r, h.service.LogFiatWithdrawal, "log withdrawal")
}

func (h *Handler) handleFiatMovement(
	w http.ResponseWriter,
	r *http.Request,
	log func(context.Context, domain.Actor, domain.Amount, string) (*State, error),
	op string,
) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req fiatMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	state, err := log(ctx, actor, domain.Amount(req.Amount), req.Reference)
	if err != nil {
		h.logServiceError(ctx, op, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toStateResponse(state))
}

type proofRequest struct {
	Root    string `json:"root"`
	CID     string `json:"cid,omitempty"`
	Auditor string `json:"auditor"`
}

func (h *Handler) handleProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req proofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	state, err := h.service.UpdateReserveProof(ctx, actor, ProofUpdate{
		Root:    req.Root,
		CID:     req.CID,
		Auditor: req.Auditor,
	})
	if err != nil {
		h.logServiceError(ctx, "update proof", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toStateResponse(state))
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.GetState(r.Context())
	if err != nil {
		h.logServiceError(r.Context(), "get state", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStateResponse(state))
}

type requestRedemptionRequest struct {
	Amount        uint64 `json:"amount"`
	BankDetails   string `json:"bank_details"`
	Institutional bool   `json:"institutional,omitempty"`
}

func (h *Handler) handleRequestRedemption(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req requestRedemptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	entry, err := h.service.RequestRedemption(ctx, actor, RedemptionRequest{
		Amount:        domain.Amount(req.Amount),
		BankDetails:   req.BankDetails,
		Institutional: req.Institutional,
	})
	if err != nil {
		h.logServiceError(ctx, "request redemption", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toRedemptionResponse(entry))
}

func (h *Handler) handleGetRedemption(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.GetRedemption(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logServiceError(r.Context(), "get redemption", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRedemptionResponse(entry))
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	lane := Lane(r.URL.Query().Get("lane"))
	switch lane {
	case "":
		lane = LaneStandard
	case LaneStandard, LaneLarge, LaneInstitutional:
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown redemption lane"))
		return
	}

	entries, err := h.service.PendingRedemptions(r.Context(), lane)
	if err != nil {
		h.logServiceError(r.Context(), "list redemptions", err)
		httputil.WriteError(w, err)
		return
	}

	responses := make([]redemptionResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, toRedemptionResponse(entry))
	}
	httputil.WriteJSON(w, http.StatusOK, responses)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	entry, err := h.service.ApproveRedemption(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		h.logServiceError(ctx, "approve redemption", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toRedemptionResponse(entry))
}

type processRequest struct {
	PayoutReference string `json:"payout_reference"`
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	entry, err := h.service.ProcessRedemption(ctx, actor, chi.URLParam(r, "id"), req.PayoutReference)
	if err != nil {
		h.logServiceError(ctx, "process redemption", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toRedemptionResponse(entry))
}

func (h *Handler) logServiceError(ctx context.Context, op string, err error) {
	if dErrors.GetCode(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "reserve operation failed", "op", op, "error", err)
		return
	}
	h.logger.WarnContext(ctx, "reserve operation rejected", "op", op, "error", err)
}

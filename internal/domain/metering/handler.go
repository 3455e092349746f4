package metering

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/helpmaton/billing-api/internal/domain/ledger"
	"github.com/helpmaton/billing-api/internal/domain/workspace"
	"github.com/helpmaton/billing-api/internal/middleware"
	"github.com/helpmaton/billing-api/internal/pkg/response"
	"github.com/helpmaton/billing-api/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Reserve places a hold for the estimated cost of a metered operation.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, "workspaceID"))
	if err != nil {
		response.BadRequest(w, "invalid workspace id")
		return
	}

	var req reserveRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	agentID, ok := parseOptionalUUID(w, req.AgentID, "agent_id")
	if !ok {
		return
	}
	conversationID, ok := parseOptionalUUID(w, req.ConversationID, "conversation_id")
	if !ok {
		return
	}

	result, err := h.service.Reserve(r.Context(), ReserveParams{
		WorkspaceID:          workspaceID,
		EstimatedCostNanoUSD: req.EstimatedCostNanoUSD,
		MaxRetries:           req.MaxRetries,
		UsesByok:             req.UsesByok,
		AgentID:              agentID,
		ConversationID:       conversationID,
		Source:               ledger.Source(req.Source),
		Supplier:             req.Supplier,
		Model:                req.Model,
		ToolCall:             req.ToolCall,
		RequestID:            middleware.GetRequestID(r.Context()),
		Description:          req.Description,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.Created(w, result)
}

// Settle closes a reservation against actual usage.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, "workspaceID"))
	if err != nil {
		response.BadRequest(w, "invalid workspace id")
		return
	}

	var req settleRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	reservationID, err := uuid.Parse(req.ReservationID)
	if err != nil {
		response.BadRequest(w, "invalid reservation id")
		return
	}
	agentID, ok := parseOptionalUUID(w, req.AgentID, "agent_id")
	if !ok {
		return
	}
	conversationID, ok := parseOptionalUUID(w, req.ConversationID, "conversation_id")
	if !ok {
		return
	}

	result, err := h.service.Settle(r.Context(), SettleParams{
		ReservationID: reservationID,
		WorkspaceID:   workspaceID,
		Usage: Usage{
			CostNanoUSD:      req.CostNanoUSD,
			PromptTokens:     req.PromptTokens,
			CompletionTokens: req.OutputTokens,
			Model:            req.Model,
		},
		GenerationID:   req.GenerationID,
		AgentID:        agentID,
		ConversationID: conversationID,
		Source:         ledger.Source(req.Source),
		Supplier:       req.Supplier,
		ToolCall:       req.ToolCall,
		RequestID:      middleware.GetRequestID(r.Context()),
		Description:    req.Description,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	if result.Deferred {
		response.JSON(w, http.StatusAccepted, result)
		return
	}
	response.OK(w, result)
}

// Refund releases a reservation in full.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, "workspaceID"))
	if err != nil {
		response.BadRequest(w, "invalid workspace id")
		return
	}

	var req refundRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	reservationID, err := uuid.Parse(req.ReservationID)
	if err != nil {
		response.BadRequest(w, "invalid reservation id")
		return
	}
	agentID, ok := parseOptionalUUID(w, req.AgentID, "agent_id")
	if !ok {
		return
	}
	conversationID, ok := parseOptionalUUID(w, req.ConversationID, "conversation_id")
	if !ok {
		return
	}

	result, err := h.service.Refund(r.Context(), RefundParams{
		ReservationID:  reservationID,
		WorkspaceID:    workspaceID,
		AgentID:        agentID,
		ConversationID: conversationID,
		Source:         ledger.Source(req.Source),
		Supplier:       req.Supplier,
		RequestID:      middleware.GetRequestID(r.Context()),
		Description:    req.Description,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.OK(w, result)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var limitErr *LimitExceededError
	switch {
	case errors.As(err, &limitErr):
		response.ErrorWithData(w, http.StatusPaymentRequired, "SPENDING_LIMIT_EXCEEDED",
			limitErr.Error(), limitErr.FailedLimits)
	case errors.Is(err, ErrReservationNotFound):
		response.NotFound(w, "reservation not found or already closed")
	case errors.Is(err, ErrInsufficientRetries), errors.Is(err, ledger.ErrRetriesExhausted):
		response.Conflict(w, "balance update contention, retry later")
	case errors.Is(err, ErrPricingUnavailable):
		response.UnprocessableEntity(w, "PRICING_UNAVAILABLE", "no usable cost data for settlement")
	case errors.Is(err, ledger.ErrInvalidSource):
		response.BadRequest(w, "invalid transaction source")
	case errors.Is(err, workspace.ErrNotFound), errors.Is(err, ledger.ErrWorkspaceNotFound):
		response.NotFound(w, "workspace not found")
	case errors.Is(err, workspace.ErrAgentNotFound):
		response.NotFound(w, "agent not found")
	default:
		response.InternalError(w)
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Post("/{workspaceID}/reserve", h.Reserve)
	r.Post("/{workspaceID}/settle", h.Settle)
	r.Post("/{workspaceID}/refund", h.Refund)

	return r
}

func parseOptionalUUID(w http.ResponseWriter, raw *string, field string) (*uuid.UUID, bool) {
	if raw == nil {
		return nil, true
	}
	parsed, err := uuid.Parse(*raw)
	if err != nil {
		response.BadRequest(w, "invalid "+field)
		return nil, false
	}
	return &parsed, true
}

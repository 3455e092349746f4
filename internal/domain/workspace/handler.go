package workspace

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/helpmaton/billing-api/internal/pkg/response"
	"github.com/helpmaton/billing-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	ws, err := h.svc.Create(r.Context(), req.Name, req.Timezone, req.UsesByok)
	if err != nil {
		if errors.Is(err, ErrInvalidName) {
			response.BadRequest(w, "name is required")
			return
		}
		response.InternalError(w)
		return
	}

	response.Created(w, ws)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseWorkspaceID(w, r)
	if !ok {
		return
	}

	ws, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "workspace not found")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, ws)
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	id, ok := parseWorkspaceID(w, r)
	if !ok {
		return
	}

	balance, err := h.svc.GetBalance(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "workspace not found")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, balanceResponse{
		WorkspaceID:          id.String(),
		CreditBalanceNanoUSD: balance,
	})
}

func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := parseWorkspaceID(w, r)
	if !ok {
		return
	}

	var req createAgentRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	agent, err := h.svc.CreateAgent(r.Context(), id, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(w, "workspace not found")
		case errors.Is(err, ErrInvalidName):
			response.BadRequest(w, "name is required")
		default:
			response.InternalError(w)
		}
		return
	}

	response.Created(w, agent)
}

func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	id, ok := parseWorkspaceID(w, r)
	if !ok {
		return
	}

	agents, err := h.svc.ListAgents(r.Context(), id)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, agents)
}

func (h *Handler) SetByokKey(w http.ResponseWriter, r *http.Request) {
	id, ok := parseWorkspaceID(w, r)
	if !ok {
		return
	}

	var req setByokKeyRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	if err := h.svc.SetByokKey(r.Context(), id, req.APIKey); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(w, "workspace not found")
		case errors.Is(err, ErrByokNotConfigured):
			response.UnprocessableEntity(w, "BYOK_DISABLED", "BYOK key storage is not configured")
		case errors.Is(err, ErrInvalidName):
			response.BadRequest(w, "api_key is required")
		default:
			response.InternalError(w)
		}
		return
	}

	response.NoContent(w)
}

func parseWorkspaceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "workspaceID"))
	if err != nil {
		response.BadRequest(w, "invalid workspace id")
		return uuid.Nil, false
	}
	return id, true
}

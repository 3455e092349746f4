package limits

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/helpmaton/billing-api/internal/pkg/response"
	"github.com/helpmaton/billing-api/internal/pkg/validator"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Create adds a workspace-level or agent-level spending limit.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, "workspaceID"))
	if err != nil {
		response.BadRequest(w, "invalid workspace id")
		return
	}

	var req createLimitRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	var agentID *uuid.UUID
	if req.AgentID != nil {
		parsed, err := uuid.Parse(*req.AgentID)
		if err != nil {
			response.BadRequest(w, "invalid agent id")
			return
		}
		agentID = &parsed
	}

	limit, err := h.repo.Create(r.Context(), workspaceID, agentID, TimeFrame(req.TimeFrame), req.AmountUSD)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.Created(w, limit)
}

// List returns every limit of a workspace, workspace-level and per-agent.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, "workspaceID"))
	if err != nil {
		response.BadRequest(w, "invalid workspace id")
		return
	}

	configured, err := h.repo.ListAll(r.Context(), workspaceID)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, configured)
}

// Delete removes a limit.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, "workspaceID"))
	if err != nil {
		response.BadRequest(w, "invalid workspace id")
		return
	}

	limitID, err := uuid.Parse(chi.URLParam(r, "limitID"))
	if err != nil {
		response.BadRequest(w, "invalid limit id")
		return
	}

	if err := h.repo.Delete(r.Context(), workspaceID, limitID); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "spending limit not found")
			return
		}
		response.InternalError(w)
		return
	}

	response.NoContent(w)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Post("/{workspaceID}/limits", h.Create)
	r.Get("/{workspaceID}/limits", h.List)
	r.Delete("/{workspaceID}/limits/{limitID}", h.Delete)

	return r
}

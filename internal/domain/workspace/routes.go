package workspace

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Post("/", h.Create)
	r.Get("/{workspaceID}", h.Get)
	r.Get("/{workspaceID}/balance", h.Balance)
	r.Post("/{workspaceID}/agents", h.CreateAgent)
	r.Get("/{workspaceID}/agents", h.ListAgents)
	r.Put("/{workspaceID}/byok-key", h.SetByokKey)

	return r
}

package ledger

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/helpmaton/billing-api/internal/pkg/response"
)

type Handler struct {
	writer *Writer
}

func NewHandler(writer *Writer) *Handler {
	return &Handler{writer: writer}
}

// Transactions lists a workspace's ledger, newest first.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, "workspaceID"))
	if err != nil {
		response.BadRequest(w, "invalid workspace id")
		return
	}

	limit := parseQueryInt(r, "limit", 20)
	page := parseQueryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	transactions, total, err := h.writer.ListTransactions(r.Context(), workspaceID, limit, offset)
	if err != nil {
		response.InternalError(w)
		return
	}

	pages := (total + limit - 1) / limit
	response.WithMeta(w, transactions, response.Meta{
		Total:   total,
		Page:    page,
		Limit:   limit,
		Pages:   pages,
		HasNext: page < pages,
		HasPrev: page > 1,
	})
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/{workspaceID}/transactions", h.Transactions)
	return r
}

func parseQueryInt(r *http.Request, key string, defaultValue int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

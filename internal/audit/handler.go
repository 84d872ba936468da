package audit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/procureflow/procureflow/internal/access"
	"github.com/procureflow/procureflow/internal/platform/httpx"
)

// Handler exposes the audit trail over HTTP. Read-only.
type Handler struct {
	logger   *slog.Logger
	recorder *PGRecorder
}

// NewHandler constructs an audit handler.
func NewHandler(logger *slog.Logger, recorder *PGRecorder) *Handler {
	return &Handler{logger: logger, recorder: recorder}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit/{entity}/{id}", h.history)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	actor := access.ActorFromContext(r.Context())
	if !actor.Role.Global() {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	entity := chi.URLParam(r, "entity")
	entityID := chi.URLParam(r, "id")
	events, err := h.recorder.History(r.Context(), entity, entityID)
	if err != nil {
		h.logger.Error("audit history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": events})
}

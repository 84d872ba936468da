package transfer

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/procureflow/procureflow/internal/access"
	"github.com/procureflow/procureflow/internal/platform/httpx"
)

// Handler manages transfer endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/requests/{id}/transfer", h.transferRequest)
	r.Post("/orders/{id}/transfer", h.transferOrder)
	r.Get("/requests/{id}/transfers", h.requestHistory)
	r.Get("/orders/{id}/transfers", h.orderHistory)
}

func respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrSameDepartment), errors.Is(err, ErrReasonRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

type transferBody struct {
	DepartmentID uuid.UUID `json:"department_id" validate:"required"`
	Reason       string    `json:"reason" validate:"required"`
}

func (h *Handler) transferRequest(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.service.TransferRequest)
}

func (h *Handler) transferOrder(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.service.TransferOrder)
}

type moveFunc func(ctx context.Context, actor access.Actor, entityID, destination uuid.UUID, reason string) (Transfer, error)

func (h *Handler) move(w http.ResponseWriter, r *http.Request, fn moveFunc) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var body transferBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	record, err := fn(r.Context(), access.ActorFromContext(r.Context()), id, body.DepartmentID, body.Reason)
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, record)
}

func (h *Handler) requestHistory(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, EntityRequest)
}

func (h *Handler) orderHistory(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, EntityOrder)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request, entityType EntityType) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	transfers, err := h.service.History(r.Context(), access.ActorFromContext(r.Context()), entityType, id)
	if err != nil {
		h.logger.Error("transfer history", slog.Any("error", err))
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": transfers})
}

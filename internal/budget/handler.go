package budget

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/procureflow/procureflow/internal/access"
	"github.com/procureflow/procureflow/internal/platform/httpx"
)

// Handler manages budget endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers budget routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/budget-lines", func(r chi.Router) {
		r.Get("/", h.list)
		r.Put("/", h.setEnvelope)
	})
}

type envelopeBody struct {
	DepartmentID uuid.UUID       `json:"department_id" validate:"required"`
	FiscalYear   int             `json:"fiscal_year" validate:"required,gt=0"`
	Budgeted     decimal.Decimal `json:"budgeted" validate:"required"`
}

func (h *Handler) setEnvelope(w http.ResponseWriter, r *http.Request) {
	var body envelopeBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	line, err := h.service.SetEnvelope(r.Context(), body.DepartmentID, body.FiscalYear, body.Budgeted)
	if errors.Is(err, ErrValidation) {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err != nil {
		h.logger.Error("set envelope", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	year, _ := strconv.Atoi(r.URL.Query().Get("year"))
	if year <= 0 {
		year = time.Now().Year()
	}
	lines, err := h.service.List(r.Context(), access.ActorFromContext(r.Context()), year)
	if err != nil {
		h.logger.Error("list budget lines", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": lines})
}

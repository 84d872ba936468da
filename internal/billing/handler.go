package billing

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/procureflow/procureflow/internal/access"
	"github.com/procureflow/procureflow/internal/finance"
	"github.com/procureflow/procureflow/internal/platform/httpx"
)

// Handler manages billing endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.listInvoices)
		r.Post("/", h.createInvoice)
		r.Post("/{id}/status", h.setInvoiceStatus)
	})
	r.Route("/payments", func(r chi.Router) {
		r.Get("/", h.listPayments)
		r.Post("/{id}/status", h.setPaymentStatus)
	})
	r.Post("/orders/{id}/payments", h.partialPayment)
	r.Get("/orders/{id}/payments", h.orderPayments)
	r.Get("/orders/{id}/position", h.position)
}

func respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrValidation),
		errors.Is(err, finance.ErrPercentage),
		errors.Is(err, finance.ErrNoAuthorized),
		errors.Is(err, finance.ErrFullyPaid),
		errors.Is(err, finance.ErrNothingPayable):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

type createInvoiceBody struct {
	Number       string          `json:"number" validate:"required"`
	OrderID      uuid.UUID       `json:"order_id" validate:"required"`
	PreTaxAmount decimal.Decimal `json:"pre_tax_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount" validate:"required"`
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var body createInvoiceBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), access.ActorFromContext(r.Context()), CreateInvoiceInput{
		Number:       body.Number,
		OrderID:      body.OrderID,
		PreTaxAmount: body.PreTaxAmount,
		TotalAmount:  body.TotalAmount,
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.ListInvoices(r.Context(), access.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": invoices})
}

type invoiceStatusBody struct {
	Status InvoiceStatus `json:"status" validate:"required"`
}

func (h *Handler) setInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var body invoiceStatusBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	inv, err := h.service.SetInvoiceStatus(r.Context(), access.ActorFromContext(r.Context()), id, body.Status)
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

type partialPaymentBody struct {
	Percentage decimal.Decimal `json:"percentage" validate:"required"`
	BankID     uuid.UUID       `json:"bank_id" validate:"required"`
	MethodID   uuid.UUID       `json:"method_id"`
	InvoiceID  uuid.UUID       `json:"invoice_id"`
}

func (h *Handler) partialPayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var body partialPaymentBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	result, err := h.service.PartialPaymentOrder(r.Context(), access.ActorFromContext(r.Context()), PartialPaymentInput{
		OrderID:    orderID,
		Percentage: body.Percentage,
		BankID:     body.BankID,
		MethodID:   body.MethodID,
		InvoiceID:  body.InvoiceID,
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) orderPayments(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	payments, err := h.service.OrderPayments(r.Context(), orderID)
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": payments})
}

func (h *Handler) position(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	pos, err := h.service.Position(r.Context(), orderID)
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pos)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPayments(r.Context(), access.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("list payments", slog.Any("error", err))
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": payments})
}

type paymentStatusBody struct {
	Status PaymentStatus `json:"status" validate:"required"`
}

func (h *Handler) setPaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var body paymentStatusBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	payment, err := h.service.SetPaymentStatus(r.Context(), access.ActorFromContext(r.Context()), id, body.Status)
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

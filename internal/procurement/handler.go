package procurement

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/procureflow/procureflow/internal/access"
	"github.com/procureflow/procureflow/internal/platform/httpx"
)

// Handler manages procurement endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Get("/", h.listRequests)
		r.Post("/", h.createRequest)
		r.Get("/{id}", h.getRequest)
		r.Post("/{id}/status", h.updateRequestStatus)
		r.Post("/{id}/sign", h.signRequest)
		r.Post("/{id}/agent", h.assignAgent)
		r.Post("/{id}/lines", h.addRequestLine)
		r.Put("/{id}/lines/{lineID}", h.updateRequestLine)
		r.Delete("/{id}/lines/{lineID}", h.deleteRequestLine)
	})
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Get("/{id}", h.getOrder)
		r.Post("/{id}/status", h.setOrderStatus)
		r.Post("/{id}/sign", h.signOrder)
		r.Post("/{id}/lines", h.addOrderLine)
	})
	r.Route("/order-lines", func(r chi.Router) {
		r.Put("/{id}", h.updateOrderLine)
		r.Delete("/{id}", h.deleteOrderLine)
	})
}

func respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrValidation), errors.Is(err, ErrDecisionRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

type lineBody struct {
	Description string              `json:"description" validate:"required"`
	Quantity    decimal.Decimal     `json:"quantity" validate:"required"`
	UnitPrice   decimal.Decimal     `json:"unit_price"`
	Currency    string              `json:"currency"`
	VATRate     decimal.NullDecimal `json:"vat_rate"`
	Surcharge   decimal.NullDecimal `json:"surcharge"`
}

func (b lineBody) toInput() LineInput {
	return LineInput{
		Description: b.Description,
		Quantity:    b.Quantity,
		UnitPrice:   b.UnitPrice,
		Currency:    b.Currency,
		VATRate:     b.VATRate,
		Surcharge:   b.Surcharge,
	}
}

type createRequestBody struct {
	Object       string     `json:"object" validate:"required"`
	DepartmentID uuid.UUID  `json:"department_id" validate:"required"`
	Lines        []lineBody `json:"lines" validate:"dive"`
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	input := CreateRequestInput{Object: body.Object, DepartmentID: body.DepartmentID}
	for _, line := range body.Lines {
		input.Lines = append(input.Lines, line.toInput())
	}
	req, err := h.service.CreateRequest(r.Context(), access.ActorFromContext(r.Context()), input)
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListRequests(r.Context(), access.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("list requests", slog.Any("error", err))
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": requests})
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	req, lines, err := h.service.GetRequest(r.Context(), access.ActorFromContext(r.Context()), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"request": req, "lines": lines})
}

type statusBody struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) updateRequestStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var body statusBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	req, err := h.service.UpdateRequestStatus(r.Context(), access.ActorFromContext(r.Context()), id, body.Status)
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

type signRequestBody struct {
	Decision      string `json:"decision" validate:"required"`
	Comment       string `json:"comment"`
	ProofDocument string `json:"proof_document"`
}

func (h *Handler) signRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var body signRequestBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	req, err := h.service.SignRequest(r.Context(), access.ActorFromContext(r.Context()), id, SignRequestInput{
		Decision:      body.Decision,
		Comment:       body.Comment,
		ProofDocument: body.ProofDocument,
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

type assignAgentBody struct {
	// AgentID empty or omitted clears the assignment.
	AgentID uuid.UUID `json:"agent_id"`
}

func (h *Handler) assignAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var body assignAgentBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	req, err := h.service.AssignAgent(r.Context(), access.ActorFromContext(r.Context()), id, body.AgentID)
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) addRequestLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var body lineBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	line, err := h.service.AddRequestLine(r.Context(), access.ActorFromContext(r.Context()), id, body.toInput())
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

func (h *Handler) updateRequestLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	lineID, err := uuid.Parse(chi.URLParam(r, "lineID"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var body lineBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	line, err := h.service.UpdateRequestLine(r.Context(), access.ActorFromContext(r.Context()), id, lineID, body.toInput())
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) deleteRequestLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	lineID, err := uuid.Parse(chi.URLParam(r, "lineID"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.DeleteRequestLine(r.Context(), access.ActorFromContext(r.Context()), id, lineID); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createOrderBody struct {
	RequestID       uuid.UUID           `json:"request_id" validate:"required"`
	SupplierID      uuid.UUID           `json:"supplier_id" validate:"required"`
	Currency        string              `json:"currency"`
	DefaultVAT      decimal.NullDecimal `json:"default_vat"`
	DefaultDiscount decimal.NullDecimal `json:"default_discount"`
	Lines           []lineBody          `json:"lines" validate:"dive"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var body createOrderBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	input := CreateOrderInput{
		RequestID:       body.RequestID,
		SupplierID:      body.SupplierID,
		Currency:        body.Currency,
		DefaultVAT:      body.DefaultVAT,
		DefaultDiscount: body.DefaultDiscount,
	}
	for _, line := range body.Lines {
		input.Lines = append(input.Lines, line.toInput())
	}
	order, err := h.service.CreatePurchaseOrder(r.Context(), access.ActorFromContext(r.Context()), input)
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), access.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": orders})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	order, lines, err := h.service.GetOrder(r.Context(), access.ActorFromContext(r.Context()), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order, "lines": lines})
}

func (h *Handler) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var body statusBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	order, err := h.service.SetOrderStatus(r.Context(), access.ActorFromContext(r.Context()), id, body.Status)
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

type signOrderBody struct {
	Level         int    `json:"level" validate:"required,gt=0"`
	Decision      string `json:"decision" validate:"required"`
	Comment       string `json:"comment"`
	ProofDocument string `json:"proof_document"`
}

func (h *Handler) signOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var body signOrderBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	sig, err := h.service.SignOrder(r.Context(), access.ActorFromContext(r.Context()), id, SignOrderInput{
		Level:         body.Level,
		Decision:      body.Decision,
		Comment:       body.Comment,
		ProofDocument: body.ProofDocument,
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sig)
}

func (h *Handler) addOrderLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var body lineBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	line, order, err := h.service.AddOrderLine(r.Context(), access.ActorFromContext(r.Context()), id, body.toInput())
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"line": line, "committed_amount": order.CommittedAmount})
}

type updateOrderLineBody struct {
	lineBody
	OrderID uuid.UUID `json:"order_id"`
}

func (h *Handler) updateOrderLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var body updateOrderLineBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	line, order, err := h.service.UpdateOrderLine(r.Context(), access.ActorFromContext(r.Context()), id, UpdateOrderLineInput{
		LineInput: body.toInput(),
		OrderID:   body.OrderID,
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"line": line, "committed_amount": order.CommittedAmount})
}

func (h *Handler) deleteOrderLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	order, err := h.service.DeleteOrderLine(r.Context(), access.ActorFromContext(r.Context()), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"committed_amount": order.CommittedAmount})
}

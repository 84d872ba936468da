// Package billing manages invoices and payment orders, including the
// percentage-based partial payment flow against a purchase order's
// authorized amount.
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/procureflow/procureflow/internal/access"
	"github.com/procureflow/procureflow/internal/audit"
	"github.com/procureflow/procureflow/internal/finance"
	"github.com/procureflow/procureflow/internal/procurement"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	// GetOrderForUpdate locks the order row so concurrent payment orders
	// serialise against the remaining balance.
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (procurement.PurchaseOrder, error)
	ListInvoicesByOrder(ctx context.Context, orderID uuid.UUID) ([]Invoice, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error)
	InsertInvoice(ctx context.Context, inv Invoice) error
	UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status InvoiceStatus) error
	InsertPayment(ctx context.Context, p Payment) error
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus, executedAt time.Time) error
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id uuid.UUID) (procurement.PurchaseOrder, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
	GetPayment(ctx context.Context, id uuid.UUID) (Payment, error)
	ListInvoicesByOrder(ctx context.Context, orderID uuid.UUID) ([]Invoice, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error)
	ListInvoices(ctx context.Context, scope access.Scope) ([]Invoice, error)
	ListPayments(ctx context.Context, scope access.Scope) ([]Payment, error)
}

// Service orchestrates billing flows.
type Service struct {
	repo   RepositoryPort
	audit  audit.Recorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the billing service.
func NewService(repo RepositoryPort, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: recorder, logger: logger, now: time.Now}
}

// CreateInvoiceInput describes an invoice registration payload.
type CreateInvoiceInput struct {
	Number       string
	OrderID      uuid.UUID
	PreTaxAmount decimal.Decimal
	TotalAmount  decimal.Decimal
}

// CreateInvoice registers a received supplier invoice against an order.
func (s *Service) CreateInvoice(ctx context.Context, actor access.Actor, input CreateInvoiceInput) (Invoice, error) {
	if input.Number == "" || !input.TotalAmount.IsPositive() {
		return Invoice{}, ErrValidation
	}
	order, err := s.repo.GetOrder(ctx, input.OrderID)
	if err != nil {
		return Invoice{}, err
	}
	if err := authorize(actor, order.DepartmentID); err != nil {
		return Invoice{}, err
	}
	inv := Invoice{
		ID:           uuid.New(),
		Number:       input.Number,
		OrderID:      order.ID,
		DepartmentID: order.DepartmentID,
		PreTaxAmount: finance.Round2(input.PreTaxAmount),
		TotalAmount:  finance.Round2(input.TotalAmount),
		Status:       InvoiceStatusReceived,
		CreatedAt:    s.now(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertInvoice(ctx, inv)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.emit(ctx, actor, "INVOICE_CREATE", "invoice", inv.ID, map[string]any{"number": inv.Number, "order": order.ID})
	return inv, nil
}

// invoiceFlow lists the legal invoice status transitions.
var invoiceFlow = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusReceived:        {InvoiceStatusValidated, InvoiceStatusRejected},
	InvoiceStatusValidated:       {InvoiceStatusAwaitingPayment, InvoiceStatusRejected},
	InvoiceStatusAwaitingPayment: {InvoiceStatusPaid},
}

// SetInvoiceStatus applies an explicit invoice transition.
func (s *Service) SetInvoiceStatus(ctx context.Context, actor access.Actor, id uuid.UUID, status InvoiceStatus) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if err := authorize(actor, inv.DepartmentID); err != nil {
		return Invoice{}, err
	}
	allowed := false
	for _, next := range invoiceFlow[inv.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return Invoice{}, ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateInvoiceStatus(ctx, id, status)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.emit(ctx, actor, "INVOICE_STATUS", "invoice", id, map[string]any{"from": inv.Status, "to": status})
	inv.Status = status
	return inv, nil
}

// PartialPaymentInput sizes a payment as a percentage of the order's
// authorized amount.
type PartialPaymentInput struct {
	OrderID    uuid.UUID
	Percentage decimal.Decimal
	BankID     uuid.UUID
	// MethodID is optional.
	MethodID uuid.UUID
	// InvoiceID, when set, attaches the payment to an existing invoice
	// instead of synthesizing one.
	InvoiceID uuid.UUID
}

// PartialPaymentResult reports the created payment and the order's
// post-payment position.
type PartialPaymentResult struct {
	PaymentID        uuid.UUID
	InvoiceID        uuid.UUID
	Effective        decimal.Decimal
	Remaining        decimal.Decimal
	PaidPercent      decimal.Decimal
	RemainingPercent decimal.Decimal
}

// PartialPaymentOrder creates a pending payment for a percentage of the
// order's authorized amount, clamped to the remaining balance. Without an
// invoice reference it synthesizes an awaiting-payment invoice carrying the
// effective amount. The failed preconditions surface as finance sentinel
// errors.
func (s *Service) PartialPaymentOrder(ctx context.Context, actor access.Actor, input PartialPaymentInput) (PartialPaymentResult, error) {
	if input.BankID == uuid.Nil {
		return PartialPaymentResult{}, ErrValidation
	}
	order, err := s.repo.GetOrder(ctx, input.OrderID)
	if err != nil {
		return PartialPaymentResult{}, err
	}
	if err := authorize(actor, order.DepartmentID); err != nil {
		return PartialPaymentResult{}, err
	}
	if input.InvoiceID != uuid.Nil {
		if _, err := s.repo.GetInvoice(ctx, input.InvoiceID); err != nil {
			return PartialPaymentResult{}, err
		}
	}

	var (
		payment Payment
		plan    finance.PaymentPlan
	)
	invoiceID := input.InvoiceID
	// Totals are read and the plan sized under the order row lock, so the
	// payment sum can never overshoot the remaining balance under
	// concurrent payment orders.
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		invoices, err := tx.ListInvoicesByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		payments, err := tx.ListPaymentsByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		invoiceTotals := make([]decimal.Decimal, 0, len(invoices))
		for _, inv := range invoices {
			invoiceTotals = append(invoiceTotals, inv.TotalAmount)
		}
		paid := make([]decimal.Decimal, 0, len(payments))
		for _, p := range payments {
			if p.Status != PaymentStatusRejected {
				paid = append(paid, p.Amount)
			}
		}
		plan, err = finance.PlanPartialPayment(finance.PaymentTotals(order.CommittedAmount, invoiceTotals, paid), input.Percentage)
		if err != nil {
			return err
		}
		if invoiceID == uuid.Nil {
			synthesized := Invoice{
				ID:           uuid.New(),
				Number:       fmt.Sprintf("FAC/AUTO/%s/%d", order.Number, s.now().Unix()),
				OrderID:      order.ID,
				DepartmentID: order.DepartmentID,
				PreTaxAmount: plan.Effective,
				TotalAmount:  plan.Effective,
				Status:       InvoiceStatusAwaitingPayment,
				Synthesized:  true,
				CreatedAt:    s.now(),
			}
			if err := tx.InsertInvoice(ctx, synthesized); err != nil {
				return err
			}
			invoiceID = synthesized.ID
		}
		payment = Payment{
			ID:        uuid.New(),
			InvoiceID: invoiceID,
			OrderID:   order.ID,
			BankID:    input.BankID,
			MethodID:  input.MethodID,
			Amount:    plan.Effective,
			Status:    PaymentStatusPending,
			OrderedAt: s.now(),
		}
		return tx.InsertPayment(ctx, payment)
	})
	if err != nil {
		return PartialPaymentResult{}, err
	}
	s.emit(ctx, actor, "PAYMENT_ORDER", "order", order.ID, map[string]any{
		"payment": payment.ID, "effective": plan.Effective, "remaining": plan.Remaining,
	})
	return PartialPaymentResult{
		PaymentID:        payment.ID,
		InvoiceID:        invoiceID,
		Effective:        plan.Effective,
		Remaining:        plan.Remaining,
		PaidPercent:      plan.PaidPercent,
		RemainingPercent: plan.RemainingPercent,
	}, nil
}

// paymentFlow lists the legal payment status transitions.
var paymentFlow = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusInProgress, PaymentStatusRejected},
	PaymentStatusInProgress: {PaymentStatusExecuted, PaymentStatusRejected},
}

// SetPaymentStatus advances a payment. Executed payments record their
// execution time.
func (s *Service) SetPaymentStatus(ctx context.Context, actor access.Actor, id uuid.UUID, status PaymentStatus) (Payment, error) {
	payment, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	order, err := s.repo.GetOrder(ctx, payment.OrderID)
	if err != nil {
		return Payment{}, err
	}
	if err := authorize(actor, order.DepartmentID); err != nil {
		return Payment{}, err
	}
	allowed := false
	for _, next := range paymentFlow[payment.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return Payment{}, ErrInvalidState
	}
	executedAt := payment.ExecutedAt
	if status == PaymentStatusExecuted {
		executedAt = s.now()
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePaymentStatus(ctx, id, status, executedAt)
	})
	if err != nil {
		return Payment{}, err
	}
	s.emit(ctx, actor, "PAYMENT_STATUS", "payment", id, map[string]any{"from": payment.Status, "to": status})
	payment.Status = status
	payment.ExecutedAt = executedAt
	return payment, nil
}

// OrderPosition reports an order's payment totals for listings.
type OrderPosition struct {
	Authorized decimal.Decimal
	Paid       decimal.Decimal
	Remaining  decimal.Decimal
}

// Position derives the current payment position of an order.
func (s *Service) Position(ctx context.Context, orderID uuid.UUID) (OrderPosition, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return OrderPosition{}, err
	}
	invoices, err := s.repo.ListInvoicesByOrder(ctx, orderID)
	if err != nil {
		return OrderPosition{}, err
	}
	payments, err := s.repo.ListPaymentsByOrder(ctx, orderID)
	if err != nil {
		return OrderPosition{}, err
	}
	invoiceTotals := make([]decimal.Decimal, 0, len(invoices))
	for _, inv := range invoices {
		invoiceTotals = append(invoiceTotals, inv.TotalAmount)
	}
	paid := make([]decimal.Decimal, 0, len(payments))
	for _, p := range payments {
		if p.Status != PaymentStatusRejected {
			paid = append(paid, p.Amount)
		}
	}
	totals := finance.PaymentTotals(order.CommittedAmount, invoiceTotals, paid)
	return OrderPosition{Authorized: totals.Authorized, Paid: totals.Paid, Remaining: totals.Remaining()}, nil
}

// OrderPayment pairs a payment with its share of the authorized amount.
type OrderPayment struct {
	Payment
	PercentOfAuthorized decimal.Decimal
}

// OrderPayments lists an order's payments with each payment's percentage
// of the authorized amount. Rejected payments carry a zero percentage.
func (s *Service) OrderPayments(ctx context.Context, orderID uuid.UUID) ([]OrderPayment, error) {
	position, err := s.Position(ctx, orderID)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPaymentsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := make([]OrderPayment, 0, len(payments))
	for _, p := range payments {
		op := OrderPayment{Payment: p}
		if p.Status != PaymentStatusRejected && position.Authorized.IsPositive() {
			op.PercentOfAuthorized = finance.Round2(p.Amount.Mul(decimal.NewFromInt(100)).Div(position.Authorized))
		}
		out = append(out, op)
	}
	return out, nil
}

// ListInvoices returns the invoices visible to the actor.
func (s *Service) ListInvoices(ctx context.Context, actor access.Actor) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, access.ForDepartmentEntity(actor))
}

// ListPayments returns the payments visible to the actor.
func (s *Service) ListPayments(ctx context.Context, actor access.Actor) ([]Payment, error) {
	return s.repo.ListPayments(ctx, access.ForDepartmentEntity(actor))
}

// authorize checks the actor's department scope against a billing entity's
// owning department. Out-of-scope entities surface as ErrNotFound.
func authorize(actor access.Actor, department uuid.UUID) error {
	if !access.ForDepartmentEntity(actor).AllowsDepartment(department) {
		return ErrNotFound
	}
	return nil
}

func (s *Service) emit(ctx context.Context, actor access.Actor, action, entity string, entityID uuid.UUID, meta map[string]any) {
	audit.Emit(ctx, s.audit, s.logger, audit.Event{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID.String(),
		Meta:     meta,
	})
}

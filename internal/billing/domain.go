package billing

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice lifecycle statuses.
type InvoiceStatus string

const (
	InvoiceStatusReceived        InvoiceStatus = "received"
	InvoiceStatusValidated       InvoiceStatus = "validated"
	InvoiceStatusAwaitingPayment InvoiceStatus = "awaiting_payment"
	InvoiceStatusPaid            InvoiceStatus = "paid"
	InvoiceStatusRejected        InvoiceStatus = "rejected"
)

// Payment lifecycle statuses.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusInProgress PaymentStatus = "in_progress"
	PaymentStatusExecuted   PaymentStatus = "executed"
	PaymentStatusRejected   PaymentStatus = "rejected"
)

// Invoice is a supplier bill tied to one purchase order.
type Invoice struct {
	ID           uuid.UUID
	Number       string
	OrderID      uuid.UUID
	DepartmentID uuid.UUID
	PreTaxAmount decimal.Decimal
	TotalAmount  decimal.Decimal
	Status       InvoiceStatus
	// Synthesized marks invoices auto-created by a partial payment order.
	Synthesized bool
	CreatedAt   time.Time
}

// Payment is one payment order against an invoice.
type Payment struct {
	ID        uuid.UUID
	InvoiceID uuid.UUID
	OrderID   uuid.UUID
	BankID    uuid.UUID
	// MethodID is the payment method, uuid.Nil when unspecified.
	MethodID   uuid.UUID
	Amount     decimal.Decimal
	Status     PaymentStatus
	OrderedAt  time.Time
	ExecutedAt time.Time
}

var (
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("billing: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("billing: invalid input")
	// ErrInvalidState occurs when a status change violates the workflow.
	ErrInvalidState = errors.New("billing: invalid state transition")
)

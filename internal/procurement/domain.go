package procurement

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request lifecycle statuses.
type RequestStatus string

const (
	RequestStatusDraft      RequestStatus = "draft"
	RequestStatusPending    RequestStatus = "pending"
	RequestStatusProcessing RequestStatus = "processing"
	RequestStatusValidated  RequestStatus = "validated"
	RequestStatusRejected   RequestStatus = "rejected"
)

// Terminal reports whether no further status change is legal.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusValidated || s == RequestStatusRejected
}

// Purchase order lifecycle statuses. Orders have no rejected state; the
// actor sets status explicitly.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusValidated  OrderStatus = "validated"
)

// Decision outcomes shared by request sign-off and per-level order
// signatures.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRefused  Decision = "refused"
)

// Request is a department's procurement intent.
type Request struct {
	ID           uuid.UUID
	Number       string
	Object       string
	Status       RequestStatus
	Decision     Decision
	DepartmentID uuid.UUID
	// AgentID is the assigned handling agent, uuid.Nil when unassigned.
	AgentID uuid.UUID
	// RetainedAccess lists users who keep read access after transfers.
	RetainedAccess []uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RequestLine is one priced row of a Request.
type RequestLine struct {
	ID          uuid.UUID
	RequestID   uuid.UUID
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Currency    string
	VATRate     decimal.NullDecimal
	Surcharge   decimal.NullDecimal
}

// PurchaseOrder is the commercial commitment derived from one Request.
type PurchaseOrder struct {
	ID           uuid.UUID
	Number       string
	RequestID    uuid.UUID
	SupplierID   uuid.UUID
	Status       OrderStatus
	DepartmentID uuid.UUID
	Currency     string
	// DefaultVAT applies to lines without their own rate.
	DefaultVAT      decimal.NullDecimal
	DefaultDiscount decimal.NullDecimal
	// CommittedAmount is derived from the lines and cached; recomputed
	// synchronously on every line mutation.
	CommittedAmount decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderLine is one priced row of a PurchaseOrder.
type OrderLine struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Currency    string
	VATRate     decimal.NullDecimal
	Surcharge   decimal.NullDecimal
}

// Signature is one approval record per (order, validation level). Signatures
// are approval evidence only; they never drive the order's status.
type Signature struct {
	ID       uuid.UUID
	OrderID  uuid.UUID
	Level    int
	Decision Decision
	SignerID uuid.UUID
	Comment  string
	// ProofDocument references an uploaded supporting document.
	ProofDocument string
	SignedAt      time.Time
}

var (
	// ErrInvalidState occurs when an action violates the status workflow.
	ErrInvalidState = errors.New("procurement: invalid state transition")
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("procurement: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
	// ErrDecisionRequired rejects a sign-off whose decision is absent or
	// unknown, before any mutation.
	ErrDecisionRequired = errors.New("procurement: decision required or invalid")
)

package transfer

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// EntityType names the kind of entity a transfer moves.
type EntityType string

const (
	EntityRequest EntityType = "request"
	EntityOrder   EntityType = "order"
)

// Transfer is an immutable custody change record.
type Transfer struct {
	ID                      uuid.UUID
	EntityType              EntityType
	EntityID                uuid.UUID
	SourceDepartmentID      uuid.UUID
	DestinationDepartmentID uuid.UUID
	// AgentID is the acting user who performed the transfer.
	AgentID   uuid.UUID
	Reason    string
	CreatedAt time.Time
}

var (
	// ErrSameDepartment rejects a transfer whose destination equals the
	// entity's current department.
	ErrSameDepartment = errors.New("transfer: destination equals current department")
	// ErrReasonRequired rejects a transfer without a reason.
	ErrReasonRequired = errors.New("transfer: reason required")
	// ErrNotFound indicates a missing entity.
	ErrNotFound = errors.New("transfer: not found")
)

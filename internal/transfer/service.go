// Package transfer records department-to-department custody changes for
// requests and purchase orders and keeps the chain continuous.
package transfer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/procureflow/procureflow/internal/access"
	"github.com/procureflow/procureflow/internal/audit"
	"github.com/procureflow/procureflow/internal/procurement"
)

// TxRepository exposes the transactional operations of one transfer. All of
// them must land or none: a department move without its ledger row must
// never be observable.
type TxRepository interface {
	InsertTransfer(ctx context.Context, t Transfer) error
	UpdateRequestDepartment(ctx context.Context, requestID, departmentID uuid.UUID) error
	ClearRequestAgent(ctx context.Context, requestID uuid.UUID) error
	// GrantRetainedAccess is idempotent; adding a present user is a no-op.
	GrantRetainedAccess(ctx context.Context, requestID, userID uuid.UUID) error
	UpdateOrderDepartment(ctx context.Context, orderID, departmentID uuid.UUID) error
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRequest(ctx context.Context, id uuid.UUID) (procurement.Request, error)
	GetOrder(ctx context.Context, id uuid.UUID) (procurement.PurchaseOrder, error)
	// LastTransfer returns the most recent transfer for an entity, or
	// ErrNotFound when the chain is empty.
	LastTransfer(ctx context.Context, entityType EntityType, entityID uuid.UUID) (Transfer, error)
	ListTransfers(ctx context.Context, entityType EntityType, entityID uuid.UUID) ([]Transfer, error)
}

// Service maintains the transfer ledger.
type Service struct {
	repo   RepositoryPort
	audit  audit.Recorder
	logger *slog.Logger
}

// NewService constructs the transfer service.
func NewService(repo RepositoryPort, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: recorder, logger: logger}
}

// TransferRequest moves a request to another department. The acting agent
// durably joins the request's retained-access set and any assigned handling
// agent is cleared. Status never changes.
func (s *Service) TransferRequest(ctx context.Context, actor access.Actor, requestID, destination uuid.UUID, reason string) (Transfer, error) {
	if strings.TrimSpace(reason) == "" {
		return Transfer{}, ErrReasonRequired
	}
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return Transfer{}, err
	}
	if !access.ForRequests(actor).AllowsRequest(req.DepartmentID, req.RetainedAccess) {
		return Transfer{}, ErrNotFound
	}
	if destination == req.DepartmentID {
		return Transfer{}, ErrSameDepartment
	}
	source, err := s.chainSource(ctx, EntityRequest, requestID, req.DepartmentID)
	if err != nil {
		return Transfer{}, err
	}
	record := Transfer{
		ID:                      uuid.New(),
		EntityType:              EntityRequest,
		EntityID:                requestID,
		SourceDepartmentID:      source,
		DestinationDepartmentID: destination,
		AgentID:                 actor.ID,
		Reason:                  reason,
		CreatedAt:               time.Now(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateRequestDepartment(ctx, requestID, destination); err != nil {
			return err
		}
		if err := tx.ClearRequestAgent(ctx, requestID); err != nil {
			return err
		}
		if err := tx.GrantRetainedAccess(ctx, requestID, actor.ID); err != nil {
			return err
		}
		return tx.InsertTransfer(ctx, record)
	})
	if err != nil {
		return Transfer{}, err
	}
	s.emit(ctx, actor, "REQUEST_TRANSFER", "request", requestID, map[string]any{
		"from": record.SourceDepartmentID, "to": destination, "reason": reason,
	})
	return record, nil
}

// TransferOrder moves a purchase order to another department. When the
// parent request sits in a different department it follows the order, and
// that cascade is flagged in the audit details.
func (s *Service) TransferOrder(ctx context.Context, actor access.Actor, orderID, destination uuid.UUID, reason string) (Transfer, error) {
	if strings.TrimSpace(reason) == "" {
		return Transfer{}, ErrReasonRequired
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Transfer{}, err
	}
	req, err := s.repo.GetRequest(ctx, order.RequestID)
	if err != nil {
		return Transfer{}, err
	}
	if !access.ForOrders(actor).AllowsOrder(order.DepartmentID, req.Status == procurement.RequestStatusDraft) {
		return Transfer{}, ErrNotFound
	}
	if destination == order.DepartmentID {
		return Transfer{}, ErrSameDepartment
	}
	source, err := s.chainSource(ctx, EntityOrder, orderID, order.DepartmentID)
	if err != nil {
		return Transfer{}, err
	}
	record := Transfer{
		ID:                      uuid.New(),
		EntityType:              EntityOrder,
		EntityID:                orderID,
		SourceDepartmentID:      source,
		DestinationDepartmentID: destination,
		AgentID:                 actor.ID,
		Reason:                  reason,
		CreatedAt:               time.Now(),
	}
	cascaded := req.DepartmentID != destination
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateOrderDepartment(ctx, orderID, destination); err != nil {
			return err
		}
		if cascaded {
			if err := tx.UpdateRequestDepartment(ctx, req.ID, destination); err != nil {
				return err
			}
		}
		return tx.InsertTransfer(ctx, record)
	})
	if err != nil {
		return Transfer{}, err
	}
	s.emit(ctx, actor, "ORDER_TRANSFER", "order", orderID, map[string]any{
		"from": record.SourceDepartmentID, "to": destination, "reason": reason,
		"request_cascaded": cascaded,
	})
	return record, nil
}

// History returns an entity's transfer chain, oldest first, when the
// actor's scope admits the entity's current department.
func (s *Service) History(ctx context.Context, actor access.Actor, entityType EntityType, entityID uuid.UUID) ([]Transfer, error) {
	var department uuid.UUID
	switch entityType {
	case EntityRequest:
		req, err := s.repo.GetRequest(ctx, entityID)
		if err != nil {
			return nil, err
		}
		department = req.DepartmentID
	case EntityOrder:
		order, err := s.repo.GetOrder(ctx, entityID)
		if err != nil {
			return nil, err
		}
		department = order.DepartmentID
	default:
		return nil, ErrNotFound
	}
	if !access.ForTransfers(actor).AllowsDepartment(department) {
		return nil, ErrNotFound
	}
	return s.repo.ListTransfers(ctx, entityType, entityID)
}

// chainSource keeps the ledger continuous: the source is the destination of
// the most recent transfer, or the entity's current department when the
// chain is empty. Lookup failures other than an empty chain propagate.
func (s *Service) chainSource(ctx context.Context, entityType EntityType, entityID, current uuid.UUID) (uuid.UUID, error) {
	last, err := s.repo.LastTransfer(ctx, entityType, entityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return current, nil
		}
		return uuid.Nil, err
	}
	return last.DestinationDepartmentID, nil
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

package transfer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/procureflow/procureflow/internal/access"
	"github.com/procureflow/procureflow/internal/procurement"
)

type memoryLedger struct {
	requests        map[uuid.UUID]procurement.Request
	orders          map[uuid.UUID]procurement.PurchaseOrder
	transfers       []Transfer
	failTx          bool
	lastTransferErr error
}

type memoryLedgerTx struct {
	repo *memoryLedger
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		requests: make(map[uuid.UUID]procurement.Request),
		orders:   make(map[uuid.UUID]procurement.PurchaseOrder),
	}
}

func (r *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	// Snapshot so a failed callback leaves no partial transfer behind.
	requests := make(map[uuid.UUID]procurement.Request, len(r.requests))
	for k, v := range r.requests {
		requests[k] = v
	}
	orders := make(map[uuid.UUID]procurement.PurchaseOrder, len(r.orders))
	for k, v := range r.orders {
		orders[k] = v
	}
	transfers := append([]Transfer(nil), r.transfers...)
	if err := fn(ctx, &memoryLedgerTx{repo: r}); err != nil {
		r.requests = requests
		r.orders = orders
		r.transfers = transfers
		return err
	}
	return nil
}

func (r *memoryLedger) GetRequest(ctx context.Context, id uuid.UUID) (procurement.Request, error) {
	req, ok := r.requests[id]
	if !ok {
		return procurement.Request{}, ErrNotFound
	}
	return req, nil
}

func (r *memoryLedger) GetOrder(ctx context.Context, id uuid.UUID) (procurement.PurchaseOrder, error) {
	order, ok := r.orders[id]
	if !ok {
		return procurement.PurchaseOrder{}, ErrNotFound
	}
	return order, nil
}

func (r *memoryLedger) LastTransfer(ctx context.Context, entityType EntityType, entityID uuid.UUID) (Transfer, error) {
	if r.lastTransferErr != nil {
		return Transfer{}, r.lastTransferErr
	}
	for i := len(r.transfers) - 1; i >= 0; i-- {
		if r.transfers[i].EntityType == entityType && r.transfers[i].EntityID == entityID {
			return r.transfers[i], nil
		}
	}
	return Transfer{}, ErrNotFound
}

func (r *memoryLedger) ListTransfers(ctx context.Context, entityType EntityType, entityID uuid.UUID) ([]Transfer, error) {
	var out []Transfer
	for _, t := range r.transfers {
		if t.EntityType == entityType && t.EntityID == entityID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (tx *memoryLedgerTx) InsertTransfer(ctx context.Context, record Transfer) error {
	if tx.repo.failTx {
		return ErrNotFound
	}
	tx.repo.transfers = append(tx.repo.transfers, record)
	return nil
}

func (tx *memoryLedgerTx) UpdateRequestDepartment(ctx context.Context, requestID, departmentID uuid.UUID) error {
	req, ok := tx.repo.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	req.DepartmentID = departmentID
	tx.repo.requests[requestID] = req
	return nil
}

func (tx *memoryLedgerTx) ClearRequestAgent(ctx context.Context, requestID uuid.UUID) error {
	req, ok := tx.repo.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	req.AgentID = uuid.Nil
	tx.repo.requests[requestID] = req
	return nil
}

func (tx *memoryLedgerTx) GrantRetainedAccess(ctx context.Context, requestID, userID uuid.UUID) error {
	req, ok := tx.repo.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	for _, id := range req.RetainedAccess {
		if id == userID {
			return nil
		}
	}
	req.RetainedAccess = append(req.RetainedAccess, userID)
	tx.repo.requests[requestID] = req
	return nil
}

func (tx *memoryLedgerTx) UpdateOrderDepartment(ctx context.Context, orderID, departmentID uuid.UUID) error {
	order, ok := tx.repo.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	order.DepartmentID = departmentID
	tx.repo.orders[orderID] = order
	return nil
}

func seedLedger() (*Service, *memoryLedger, procurement.Request) {
	repo := newMemoryLedger()
	req := procurement.Request{
		ID:           uuid.New(),
		Number:       "DM/NUM01/2026/",
		Status:       procurement.RequestStatusPending,
		DepartmentID: uuid.New(),
		AgentID:      uuid.New(),
	}
	repo.requests[req.ID] = req
	return NewService(repo, nil, nil), repo, req
}

func TestSameDepartmentTransferRejectedUnchanged(t *testing.T) {
	svc, repo, req := seedLedger()
	actor := access.Actor{ID: uuid.New(), Role: access.RoleAgent, DepartmentID: req.DepartmentID}

	_, err := svc.TransferRequest(context.Background(), actor, req.ID, req.DepartmentID, "rebalance")
	require.ErrorIs(t, err, ErrSameDepartment)
	require.Empty(t, repo.transfers)
	require.Equal(t, req, repo.requests[req.ID], "entity state unchanged")
}

func TestEmptyReasonRejected(t *testing.T) {
	svc, repo, req := seedLedger()
	actor := access.Actor{ID: uuid.New(), Role: access.RoleAgent, DepartmentID: req.DepartmentID}

	_, err := svc.TransferRequest(context.Background(), actor, req.ID, uuid.New(), "   ")
	require.ErrorIs(t, err, ErrReasonRequired)
	require.Empty(t, repo.transfers)
}

func TestRequestTransferMovesClearsAgentAndRetainsAccess(t *testing.T) {
	svc, repo, req := seedLedger()
	actor := access.Actor{ID: uuid.New(), Role: access.RoleAgent, DepartmentID: req.DepartmentID}
	dest := uuid.New()

	record, err := svc.TransferRequest(context.Background(), actor, req.ID, dest, "capacity")
	require.NoError(t, err)
	require.Equal(t, req.DepartmentID, record.SourceDepartmentID)
	require.Equal(t, dest, record.DestinationDepartmentID)

	moved := repo.requests[req.ID]
	require.Equal(t, dest, moved.DepartmentID)
	require.Equal(t, uuid.Nil, moved.AgentID, "handling agent cleared")
	require.Equal(t, []uuid.UUID{actor.ID}, moved.RetainedAccess)
	require.Equal(t, req.Status, moved.Status, "status untouched")
}

func TestRetainedAccessGrantIsIdempotent(t *testing.T) {
	svc, repo, req := seedLedger()
	actor := access.Actor{ID: uuid.New(), Role: access.RoleAgent, DepartmentID: req.DepartmentID}
	deptB := uuid.New()

	_, err := svc.TransferRequest(context.Background(), actor, req.ID, deptB, "first")
	require.NoError(t, err)
	_, err = svc.TransferRequest(context.Background(), actor, req.ID, req.DepartmentID, "back")
	require.NoError(t, err)
	_, err = svc.TransferRequest(context.Background(), actor, req.ID, deptB, "again")
	require.NoError(t, err)

	require.Equal(t, []uuid.UUID{actor.ID}, repo.requests[req.ID].RetainedAccess, "added exactly once")
}

func TestChainSourceFollowsLastDestination(t *testing.T) {
	svc, repo, req := seedLedger()
	actor := access.Actor{ID: uuid.New(), Role: access.RoleAgent, DepartmentID: req.DepartmentID}
	deptB := uuid.New()
	deptC := uuid.New()

	first, err := svc.TransferRequest(context.Background(), actor, req.ID, deptB, "one")
	require.NoError(t, err)
	require.Equal(t, req.DepartmentID, first.SourceDepartmentID, "empty chain starts at current department")

	second, err := svc.TransferRequest(context.Background(), actor, req.ID, deptC, "two")
	require.NoError(t, err)
	require.Equal(t, deptB, second.SourceDepartmentID, "source is previous destination")

	chain, err := repo.ListTransfers(context.Background(), EntityRequest, req.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
}

func TestOrderTransferCascadesToRequest(t *testing.T) {
	svc, repo, req := seedLedger()
	order := procurement.PurchaseOrder{
		ID:           uuid.New(),
		Number:       "BC/NUM1/DAA/DG/2026",
		RequestID:    req.ID,
		DepartmentID: req.DepartmentID,
	}
	repo.orders[order.ID] = order
	actor := access.Actor{ID: uuid.New(), Role: access.RoleProcurement}
	dest := uuid.New()

	record, err := svc.TransferOrder(context.Background(), actor, order.ID, dest, "supplier region")
	require.NoError(t, err)
	require.Equal(t, EntityOrder, record.EntityType)
	require.Equal(t, dest, repo.orders[order.ID].DepartmentID)
	require.Equal(t, dest, repo.requests[req.ID].DepartmentID, "parent request follows the order")
}

func TestFailedTransferLeavesNoPartialState(t *testing.T) {
	svc, repo, req := seedLedger()
	repo.failTx = true
	actor := access.Actor{ID: uuid.New(), Role: access.RoleAgent, DepartmentID: req.DepartmentID}

	_, err := svc.TransferRequest(context.Background(), actor, req.ID, uuid.New(), "doomed")
	require.Error(t, err)
	require.Empty(t, repo.transfers)
	require.Equal(t, req, repo.requests[req.ID], "atomic unit rolled back")
}

func TestTransferHiddenFromForeignDepartment(t *testing.T) {
	ctx := context.Background()
	svc, repo, req := seedLedger()
	foreign := access.Actor{ID: uuid.New(), Role: access.RoleAgent, DepartmentID: uuid.New()}

	_, err := svc.TransferRequest(ctx, foreign, req.ID, uuid.New(), "poach")
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, repo.transfers)
	require.Equal(t, req, repo.requests[req.ID], "entity state unchanged")

	order := procurement.PurchaseOrder{
		ID:           uuid.New(),
		RequestID:    req.ID,
		DepartmentID: req.DepartmentID,
	}
	repo.orders[order.ID] = order
	_, err = svc.TransferOrder(ctx, foreign, order.ID, uuid.New(), "poach")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, order, repo.orders[order.ID])
}

func TestChainSourceLookupFailureAborts(t *testing.T) {
	svc, repo, req := seedLedger()
	actor := access.Actor{ID: uuid.New(), Role: access.RoleAgent, DepartmentID: req.DepartmentID}
	boom := errors.New("connection reset")
	repo.lastTransferErr = boom

	_, err := svc.TransferRequest(context.Background(), actor, req.ID, uuid.New(), "rebalance")
	require.ErrorIs(t, err, boom)
	require.Empty(t, repo.transfers, "no transfer recorded on a broken chain read")
}

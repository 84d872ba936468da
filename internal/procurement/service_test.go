package procurement

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/procureflow/procureflow/internal/access"
)

type memoryRepo struct {
	requests     map[uuid.UUID]Request
	requestLines map[uuid.UUID]RequestLine
	orders       map[uuid.UUID]PurchaseOrder
	orderLines   map[uuid.UUID]OrderLine
	signatures   map[uuid.UUID]map[int]Signature
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		requests:     make(map[uuid.UUID]Request),
		requestLines: make(map[uuid.UUID]RequestLine),
		orders:       make(map[uuid.UUID]PurchaseOrder),
		orderLines:   make(map[uuid.UUID]OrderLine),
		signatures:   make(map[uuid.UUID]map[int]Signature),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetRequest(ctx context.Context, id uuid.UUID) (Request, []RequestLine, error) {
	req, ok := r.requests[id]
	if !ok {
		return Request{}, nil, ErrNotFound
	}
	var lines []RequestLine
	for _, line := range r.requestLines {
		if line.RequestID == id {
			lines = append(lines, line)
		}
	}
	return req, lines, nil
}

func (r *memoryRepo) GetOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, []OrderLine, error) {
	order, ok := r.orders[id]
	if !ok {
		return PurchaseOrder{}, nil, ErrNotFound
	}
	var lines []OrderLine
	for _, line := range r.orderLines {
		if line.OrderID == id {
			lines = append(lines, line)
		}
	}
	return order, lines, nil
}

func (r *memoryRepo) ListRequests(ctx context.Context, scope access.Scope) ([]Request, error) {
	var out []Request
	for _, req := range r.requests {
		if scope.AllowsRequest(req.DepartmentID, req.RetainedAccess) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListOrders(ctx context.Context, scope access.Scope) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	for _, order := range r.orders {
		draft := r.requests[order.RequestID].Status == RequestStatusDraft
		if scope.AllowsOrder(order.DepartmentID, draft) {
			out = append(out, order)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListSignatures(ctx context.Context, orderID uuid.UUID) ([]Signature, error) {
	var out []Signature
	for _, sig := range r.signatures[orderID] {
		out = append(out, sig)
	}
	return out, nil
}

func (tx *memoryTx) CreateRequest(ctx context.Context, req Request) error {
	tx.repo.requests[req.ID] = req
	return nil
}

func (tx *memoryTx) UpdateRequestStatus(ctx context.Context, id uuid.UUID, status RequestStatus) error {
	req, ok := tx.repo.requests[id]
	if !ok {
		return ErrNotFound
	}
	req.Status = status
	tx.repo.requests[id] = req
	return nil
}

func (tx *memoryTx) FinalizeRequest(ctx context.Context, id uuid.UUID, decision Decision, status RequestStatus) error {
	req, ok := tx.repo.requests[id]
	if !ok {
		return ErrNotFound
	}
	req.Decision = decision
	req.Status = status
	tx.repo.requests[id] = req
	return nil
}

func (tx *memoryTx) SetRequestAgent(ctx context.Context, id uuid.UUID, agentID uuid.UUID) error {
	req, ok := tx.repo.requests[id]
	if !ok {
		return ErrNotFound
	}
	req.AgentID = agentID
	tx.repo.requests[id] = req
	return nil
}

func (tx *memoryTx) InsertRequestLine(ctx context.Context, line RequestLine) error {
	tx.repo.requestLines[line.ID] = line
	return nil
}

func (tx *memoryTx) UpdateRequestLine(ctx context.Context, line RequestLine) error {
	if _, ok := tx.repo.requestLines[line.ID]; !ok {
		return ErrNotFound
	}
	tx.repo.requestLines[line.ID] = line
	return nil
}

func (tx *memoryTx) DeleteRequestLine(ctx context.Context, id uuid.UUID) error {
	delete(tx.repo.requestLines, id)
	return nil
}

func (tx *memoryTx) CreateOrder(ctx context.Context, order PurchaseOrder) error {
	tx.repo.orders[order.ID] = order
	return nil
}

func (tx *memoryTx) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	order, ok := tx.repo.orders[id]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	return order, nil
}

func (tx *memoryTx) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status OrderStatus) error {
	order, ok := tx.repo.orders[id]
	if !ok {
		return ErrNotFound
	}
	order.Status = status
	tx.repo.orders[id] = order
	return nil
}

func (tx *memoryTx) SetOrderCommitted(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	order, ok := tx.repo.orders[id]
	if !ok {
		return ErrNotFound
	}
	order.CommittedAmount = amount
	tx.repo.orders[id] = order
	return nil
}

func (tx *memoryTx) InsertOrderLine(ctx context.Context, line OrderLine) error {
	tx.repo.orderLines[line.ID] = line
	return nil
}

func (tx *memoryTx) UpdateOrderLine(ctx context.Context, line OrderLine) error {
	if _, ok := tx.repo.orderLines[line.ID]; !ok {
		return ErrNotFound
	}
	tx.repo.orderLines[line.ID] = line
	return nil
}

func (tx *memoryTx) DeleteOrderLine(ctx context.Context, id uuid.UUID) error {
	delete(tx.repo.orderLines, id)
	return nil
}

func (tx *memoryTx) GetOrderLine(ctx context.Context, id uuid.UUID) (OrderLine, error) {
	line, ok := tx.repo.orderLines[id]
	if !ok {
		return OrderLine{}, ErrNotFound
	}
	return line, nil
}

func (tx *memoryTx) ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error) {
	var lines []OrderLine
	for _, line := range tx.repo.orderLines {
		if line.OrderID == orderID {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (tx *memoryTx) UpsertSignature(ctx context.Context, sig Signature) error {
	levels, ok := tx.repo.signatures[sig.OrderID]
	if !ok {
		levels = make(map[int]Signature)
		tx.repo.signatures[sig.OrderID] = levels
	}
	levels[sig.Level] = sig
	return nil
}

type stubNumbers struct {
	requests int
	orders   int
}

func (s *stubNumbers) RequestNumber(ctx context.Context) (string, error) {
	s.requests++
	return fmt.Sprintf("DM/NUM%02d/2026/", s.requests), nil
}

func (s *stubNumbers) OrderNumber(ctx context.Context) (string, error) {
	s.orders++
	return fmt.Sprintf("BC/NUM%d/DAA/DG/2026", s.orders), nil
}

func newTestService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	return NewService(repo, &stubNumbers{}, nil, nil), repo
}

func adminActor() access.Actor {
	return access.Actor{ID: uuid.New(), Role: access.RoleSuperAdmin}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nullDec(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}

func seedRequest(t *testing.T, svc *Service) Request {
	t.Helper()
	req, err := svc.CreateRequest(context.Background(), adminActor(), CreateRequestInput{
		Object:       "server racks",
		DepartmentID: uuid.New(),
	})
	require.NoError(t, err)
	return req
}

func TestCreateRequestAssignsNumberAndDraftStatus(t *testing.T) {
	svc, _ := newTestService()
	req := seedRequest(t, svc)
	require.Equal(t, "DM/NUM01/2026/", req.Number)
	require.Equal(t, RequestStatusDraft, req.Status)
	require.Equal(t, DecisionPending, req.Decision)
}

func TestSignRequestFinalizesIrrespectiveOfStatus(t *testing.T) {
	ctx := context.Background()
	for _, from := range []RequestStatus{RequestStatusDraft, RequestStatusPending, RequestStatusProcessing} {
		svc, repo := newTestService()
		req := seedRequest(t, svc)
		stored := repo.requests[req.ID]
		stored.Status = from
		repo.requests[req.ID] = stored

		signed, err := svc.SignRequest(ctx, adminActor(), req.ID, SignRequestInput{Decision: "refuse"})
		require.NoError(t, err)
		require.Equal(t, RequestStatusRejected, signed.Status)
		require.Equal(t, DecisionRefused, signed.Decision)
	}
}

func TestSignRequestApproveValidates(t *testing.T) {
	svc, _ := newTestService()
	req := seedRequest(t, svc)

	signed, err := svc.SignRequest(context.Background(), adminActor(), req.ID, SignRequestInput{Decision: "approve"})
	require.NoError(t, err)
	require.Equal(t, RequestStatusValidated, signed.Status)
	require.Equal(t, DecisionApproved, signed.Decision)
}

func TestSignRequestUnknownDecisionRejectedBeforeMutation(t *testing.T) {
	svc, repo := newTestService()
	req := seedRequest(t, svc)

	_, err := svc.SignRequest(context.Background(), adminActor(), req.ID, SignRequestInput{Decision: "maybe"})
	require.ErrorIs(t, err, ErrDecisionRequired)
	require.Equal(t, RequestStatusDraft, repo.requests[req.ID].Status)
	require.Equal(t, DecisionPending, repo.requests[req.ID].Decision)

	_, err = svc.SignRequest(context.Background(), adminActor(), req.ID, SignRequestInput{})
	require.ErrorIs(t, err, ErrDecisionRequired)
}

func TestRequestStatusTransitions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	req := seedRequest(t, svc)

	_, err := svc.UpdateRequestStatus(ctx, adminActor(), req.ID, "processing")
	require.ErrorIs(t, err, ErrInvalidState, "draft cannot jump to processing")

	updated, err := svc.UpdateRequestStatus(ctx, adminActor(), req.ID, "pending")
	require.NoError(t, err)
	require.Equal(t, RequestStatusPending, updated.Status)

	updated, err = svc.UpdateRequestStatus(ctx, adminActor(), req.ID, "processing")
	require.NoError(t, err)
	require.Equal(t, RequestStatusProcessing, updated.Status)

	_, err = svc.UpdateRequestStatus(ctx, adminActor(), req.ID, "bogus")
	require.ErrorIs(t, err, ErrValidation)
}

func TestAssignAgentIsIdempotentAndKeepsStatus(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	req := seedRequest(t, svc)
	agent := uuid.New()

	updated, err := svc.AssignAgent(ctx, adminActor(), req.ID, agent)
	require.NoError(t, err)
	require.Equal(t, agent, updated.AgentID)
	require.Equal(t, RequestStatusDraft, updated.Status)

	updated, err = svc.AssignAgent(ctx, adminActor(), req.ID, agent)
	require.NoError(t, err)
	require.Equal(t, agent, updated.AgentID)

	updated, err = svc.AssignAgent(ctx, adminActor(), req.ID, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, uuid.Nil, updated.AgentID)
	require.Equal(t, uuid.Nil, repo.requests[req.ID].AgentID)
}

func seedOrder(t *testing.T, svc *Service, lines []LineInput) PurchaseOrder {
	t.Helper()
	req := seedRequest(t, svc)
	order, err := svc.CreatePurchaseOrder(context.Background(), adminActor(), CreateOrderInput{
		RequestID:  req.ID,
		SupplierID: uuid.New(),
		Currency:   "DZD",
		Lines:      lines,
	})
	require.NoError(t, err)
	return order
}

func TestCreatePurchaseOrderComputesCommittedAmount(t *testing.T) {
	svc, _ := newTestService()
	order := seedOrder(t, svc, []LineInput{{
		Description: "servers",
		Quantity:    dec("10"),
		UnitPrice:   dec("350000"),
		VATRate:     nullDec("19.25"),
	}})
	require.Equal(t, "BC/NUM1/DAA/DG/2026", order.Number)
	require.Equal(t, OrderStatusPending, order.Status)
	require.True(t, dec("4173750.00").Equal(order.CommittedAmount), "got %s", order.CommittedAmount)
}

func TestOrderLineMutationsRecomputeCommitted(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	order := seedOrder(t, svc, nil)
	require.True(t, order.CommittedAmount.IsZero())

	line, updated, err := svc.AddOrderLine(ctx, adminActor(), order.ID, LineInput{
		Description: "cabling",
		Quantity:    dec("4"),
		UnitPrice:   dec("100"),
	})
	require.NoError(t, err)
	require.True(t, dec("400.00").Equal(updated.CommittedAmount))

	_, parent, err := svc.UpdateOrderLine(ctx, adminActor(), line.ID, UpdateOrderLineInput{LineInput: LineInput{
		Description: "cabling",
		Quantity:    dec("4"),
		UnitPrice:   dec("150"),
	}})
	require.NoError(t, err)
	require.True(t, dec("600.00").Equal(parent.CommittedAmount))
	require.True(t, dec("600.00").Equal(repo.orders[order.ID].CommittedAmount))

	updated, err = svc.DeleteOrderLine(ctx, adminActor(), line.ID)
	require.NoError(t, err)
	require.True(t, updated.CommittedAmount.IsZero())
}

func TestReparentedLineRecomputesBothOrders(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	source := seedOrder(t, svc, nil)
	target := seedOrder(t, svc, nil)

	line, _, err := svc.AddOrderLine(ctx, adminActor(), source.ID, LineInput{
		Description: "switch",
		Quantity:    dec("2"),
		UnitPrice:   dec("500"),
	})
	require.NoError(t, err)
	require.True(t, dec("1000.00").Equal(repo.orders[source.ID].CommittedAmount))

	_, _, err = svc.UpdateOrderLine(ctx, adminActor(), line.ID, UpdateOrderLineInput{
		LineInput: LineInput{Description: "switch", Quantity: dec("2"), UnitPrice: dec("500")},
		OrderID:   target.ID,
	})
	require.NoError(t, err)
	require.True(t, repo.orders[source.ID].CommittedAmount.IsZero(), "old parent recomputed")
	require.True(t, dec("1000.00").Equal(repo.orders[target.ID].CommittedAmount), "new parent recomputed")
}

func TestExplicitOrderTransitions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	order := seedOrder(t, svc, nil)

	_, err := svc.SetOrderStatus(ctx, adminActor(), order.ID, "validated")
	require.ErrorIs(t, err, ErrInvalidState, "pending cannot jump to validated")

	updated, err := svc.SetOrderStatus(ctx, adminActor(), order.ID, "processing")
	require.NoError(t, err)
	require.Equal(t, OrderStatusProcessing, updated.Status)

	updated, err = svc.SetOrderStatus(ctx, adminActor(), order.ID, "validated")
	require.NoError(t, err)
	require.Equal(t, OrderStatusValidated, updated.Status)
}

func TestSignOrderDoesNotDriveStatus(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	order := seedOrder(t, svc, nil)
	signer := adminActor()

	sig, err := svc.SignOrder(ctx, signer, order.ID, SignOrderInput{Level: 1, Decision: "approved"})
	require.NoError(t, err)
	require.Equal(t, DecisionApproved, sig.Decision)
	require.Equal(t, OrderStatusPending, repo.orders[order.ID].Status, "status untouched by signatures")

	// Re-signing the same level replaces the record.
	_, err = svc.SignOrder(ctx, signer, order.ID, SignOrderInput{Level: 1, Decision: "refused"})
	require.NoError(t, err)
	sigs, err := repo.ListSignatures(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	require.Equal(t, DecisionRefused, sigs[0].Decision)

	_, err = svc.SignOrder(ctx, signer, order.ID, SignOrderInput{Level: 2, Decision: "nope"})
	require.ErrorIs(t, err, ErrDecisionRequired)
}

func TestGetOrderHidesDraftLinkedOrderFromForeignSubDirector(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	order := seedOrder(t, svc, nil)

	sd := access.Actor{ID: uuid.New(), Role: access.RoleSubDirector, DepartmentID: uuid.New()}
	_, _, err := svc.GetOrder(ctx, sd, order.ID)
	require.ErrorIs(t, err, ErrNotFound)

	req := repo.requests[order.RequestID]
	req.Status = RequestStatusPending
	repo.requests[req.ID] = req

	_, _, err = svc.GetOrder(ctx, sd, order.ID)
	require.NoError(t, err)
}

func TestRequestLineLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	req := seedRequest(t, svc)
	actor := adminActor()

	line, err := svc.AddRequestLine(ctx, actor, req.ID, LineInput{
		Description: "laptops",
		Quantity:    dec("4"),
		UnitPrice:   dec("1200"),
	})
	require.NoError(t, err)

	updated, err := svc.UpdateRequestLine(ctx, actor, req.ID, line.ID, LineInput{
		Description: "laptops",
		Quantity:    dec("6"),
		UnitPrice:   dec("1100"),
	})
	require.NoError(t, err)
	require.True(t, updated.Quantity.Equal(dec("6")))

	_, err = svc.UpdateRequestLine(ctx, actor, req.ID, uuid.New(), LineInput{
		Description: "ghost",
		Quantity:    dec("1"),
	})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.DeleteRequestLine(ctx, actor, req.ID, line.ID))
	_, lines, err := svc.GetRequest(ctx, actor, req.ID)
	require.NoError(t, err)
	require.Empty(t, lines)

	require.ErrorIs(t, svc.DeleteRequestLine(ctx, actor, req.ID, line.ID), ErrNotFound)
}

func TestRequestMutationsHiddenFromForeignDepartment(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	req := seedRequest(t, svc)
	stored := repo.requests[req.ID]
	stored.Status = RequestStatusPending
	repo.requests[req.ID] = stored

	foreign := access.Actor{ID: uuid.New(), Role: access.RoleAgent, DepartmentID: uuid.New()}

	_, err := svc.SignRequest(ctx, foreign, req.ID, SignRequestInput{Decision: "refuse"})
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, RequestStatusPending, repo.requests[req.ID].Status, "no mutation")
	require.Equal(t, DecisionPending, repo.requests[req.ID].Decision)

	_, err = svc.UpdateRequestStatus(ctx, foreign, req.ID, "processing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.AssignAgent(ctx, foreign, req.ID, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.AddRequestLine(ctx, foreign, req.ID, LineInput{
		Description: "paper", Quantity: dec("1"), UnitPrice: dec("10"),
	})
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.CreatePurchaseOrder(ctx, foreign, CreateOrderInput{
		RequestID: req.ID, SupplierID: uuid.New(),
	})
	require.ErrorIs(t, err, ErrNotFound)

	local := access.Actor{ID: uuid.New(), Role: access.RoleAgent, DepartmentID: req.DepartmentID}
	signed, err := svc.SignRequest(ctx, local, req.ID, SignRequestInput{Decision: "approve"})
	require.NoError(t, err)
	require.Equal(t, RequestStatusValidated, signed.Status)
}

func TestOrderMutationsHiddenFromForeignDepartment(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	order := seedOrder(t, svc, nil)
	line, _, err := svc.AddOrderLine(ctx, adminActor(), order.ID, LineInput{
		Description: "rack", Quantity: dec("1"), UnitPrice: dec("900"),
	})
	require.NoError(t, err)

	foreign := access.Actor{ID: uuid.New(), Role: access.RoleAgent, DepartmentID: uuid.New()}

	_, err = svc.SetOrderStatus(ctx, foreign, order.ID, "processing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.SignOrder(ctx, foreign, order.ID, SignOrderInput{Level: 1, Decision: "approved"})
	require.ErrorIs(t, err, ErrNotFound)
	_, _, err = svc.AddOrderLine(ctx, foreign, order.ID, LineInput{
		Description: "rack", Quantity: dec("1"), UnitPrice: dec("900"),
	})
	require.ErrorIs(t, err, ErrNotFound)
	_, _, err = svc.UpdateOrderLine(ctx, foreign, line.ID, UpdateOrderLineInput{LineInput: LineInput{
		Description: "rack", Quantity: dec("5"), UnitPrice: dec("900"),
	}})
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.DeleteOrderLine(ctx, foreign, line.ID)
	require.ErrorIs(t, err, ErrNotFound)

	require.True(t, dec("900.00").Equal(repo.orders[order.ID].CommittedAmount), "committed untouched")
	require.Empty(t, repo.signatures[order.ID])

	local := access.Actor{ID: uuid.New(), Role: access.RoleAgent, DepartmentID: order.DepartmentID}
	updated, err := svc.DeleteOrderLine(ctx, local, line.ID)
	require.NoError(t, err)
	require.True(t, updated.CommittedAmount.IsZero())
}

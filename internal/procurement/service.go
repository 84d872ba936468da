package procurement

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/procureflow/procureflow/internal/access"
	"github.com/procureflow/procureflow/internal/audit"
	"github.com/procureflow/procureflow/internal/finance"
)

// NumberSource issues entity numbers. Satisfied by sequence.Sequencer.
type NumberSource interface {
	RequestNumber(ctx context.Context) (string, error)
	OrderNumber(ctx context.Context) (string, error)
}

// Service orchestrates request and purchase order flows.
type Service struct {
	repo    RepositoryPort
	numbers NumberSource
	audit   audit.Recorder
	logger  *slog.Logger
}

// NewService constructs the procurement service.
func NewService(repo RepositoryPort, numbers NumberSource, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, numbers: numbers, audit: recorder, logger: logger}
}

// LineInput describes one priced line on a request or order.
type LineInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Currency    string
	VATRate     decimal.NullDecimal
	Surcharge   decimal.NullDecimal
}

func (l LineInput) validate() error {
	if l.Description == "" || !l.Quantity.IsPositive() || l.UnitPrice.IsNegative() {
		return ErrValidation
	}
	return nil
}

// CreateRequestInput describes the creation payload.
type CreateRequestInput struct {
	Object       string
	DepartmentID uuid.UUID
	Lines        []LineInput
}

// CreateRequest persists a draft request with its number assigned
// atomically at creation.
func (s *Service) CreateRequest(ctx context.Context, actor access.Actor, input CreateRequestInput) (Request, error) {
	if input.Object == "" || input.DepartmentID == uuid.Nil {
		return Request{}, ErrValidation
	}
	number, err := s.numbers.RequestNumber(ctx)
	if err != nil {
		return Request{}, err
	}
	req := Request{
		ID:           uuid.New(),
		Number:       number,
		Object:       input.Object,
		Status:       RequestStatusDraft,
		Decision:     DecisionPending,
		DepartmentID: input.DepartmentID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.CreateRequest(ctx, req); err != nil {
			return err
		}
		for _, line := range input.Lines {
			if err := line.validate(); err != nil {
				return err
			}
			if err := tx.InsertRequestLine(ctx, RequestLine{
				ID:          uuid.New(),
				RequestID:   req.ID,
				Description: line.Description,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				Currency:    line.Currency,
				VATRate:     line.VATRate,
				Surcharge:   line.Surcharge,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	s.emit(ctx, actor, "REQUEST_CREATE", "request", req.ID, map[string]any{"number": req.Number})
	return req, nil
}

// GetRequest loads a request with its lines, enforcing the actor's scope.
func (s *Service) GetRequest(ctx context.Context, actor access.Actor, id uuid.UUID) (Request, []RequestLine, error) {
	req, lines, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, nil, err
	}
	if !access.ForRequests(actor).AllowsRequest(req.DepartmentID, req.RetainedAccess) {
		return Request{}, nil, ErrNotFound
	}
	return req, lines, nil
}

// ListRequests returns the requests visible to the actor.
func (s *Service) ListRequests(ctx context.Context, actor access.Actor) ([]Request, error) {
	return s.repo.ListRequests(ctx, access.ForRequests(actor))
}

// UpdateRequestStatus applies an explicit workflow transition.
func (s *Service) UpdateRequestStatus(ctx context.Context, actor access.Actor, id uuid.UUID, status string) (Request, error) {
	target, ok := ParseRequestStatus(status)
	if !ok {
		return Request{}, ErrValidation
	}
	req, _, err := s.GetRequest(ctx, actor, id)
	if err != nil {
		return Request{}, err
	}
	if !requestTransitionAllowed(req.Status, target) {
		return Request{}, ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateRequestStatus(ctx, id, target)
	})
	if err != nil {
		return Request{}, err
	}
	s.emit(ctx, actor, "REQUEST_STATUS", "request", id, map[string]any{"from": req.Status, "to": target})
	req.Status = target
	return req, nil
}

// SignRequestInput carries a sign-off decision.
type SignRequestInput struct {
	Decision      string
	Comment       string
	ProofDocument string
}

// SignRequest finalizes a request: approve validates it, refuse rejects it,
// irrespective of current status. An unknown decision is rejected before
// any mutation.
func (s *Service) SignRequest(ctx context.Context, actor access.Actor, id uuid.UUID, input SignRequestInput) (Request, error) {
	decision, final, ok := SignOffOutcome(input.Decision)
	if !ok {
		return Request{}, ErrDecisionRequired
	}
	req, _, err := s.GetRequest(ctx, actor, id)
	if err != nil {
		return Request{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.FinalizeRequest(ctx, id, decision, final)
	})
	if err != nil {
		return Request{}, err
	}
	s.emit(ctx, actor, "REQUEST_SIGN", "request", id, map[string]any{
		"decision": decision, "status": final, "comment": input.Comment, "proof": input.ProofDocument,
	})
	req.Decision = decision
	req.Status = final
	return req, nil
}

// AssignAgent sets or clears the handling agent. Idempotent: assigning the
// current agent, or clearing an already clear slot, succeeds unchanged.
// Status is never affected.
func (s *Service) AssignAgent(ctx context.Context, actor access.Actor, id uuid.UUID, agentID uuid.UUID) (Request, error) {
	req, _, err := s.GetRequest(ctx, actor, id)
	if err != nil {
		return Request{}, err
	}
	if req.AgentID == agentID {
		return req, nil
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetRequestAgent(ctx, id, agentID)
	})
	if err != nil {
		return Request{}, err
	}
	s.emit(ctx, actor, "REQUEST_ASSIGN", "request", id, map[string]any{"agent": agentID})
	req.AgentID = agentID
	return req, nil
}

// AddRequestLine appends a line to a request.
func (s *Service) AddRequestLine(ctx context.Context, actor access.Actor, requestID uuid.UUID, input LineInput) (RequestLine, error) {
	if err := input.validate(); err != nil {
		return RequestLine{}, err
	}
	if _, _, err := s.GetRequest(ctx, actor, requestID); err != nil {
		return RequestLine{}, err
	}
	line := RequestLine{
		ID:          uuid.New(),
		RequestID:   requestID,
		Description: input.Description,
		Quantity:    input.Quantity,
		UnitPrice:   input.UnitPrice,
		Currency:    input.Currency,
		VATRate:     input.VATRate,
		Surcharge:   input.Surcharge,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertRequestLine(ctx, line)
	})
	if err != nil {
		return RequestLine{}, err
	}
	s.emit(ctx, actor, "REQUEST_LINE_ADD", "request", requestID, map[string]any{"line": line.ID})
	return line, nil
}

// UpdateRequestLine replaces the priced fields of one request line.
func (s *Service) UpdateRequestLine(ctx context.Context, actor access.Actor, requestID, lineID uuid.UUID, input LineInput) (RequestLine, error) {
	if err := input.validate(); err != nil {
		return RequestLine{}, err
	}
	_, lines, err := s.GetRequest(ctx, actor, requestID)
	if err != nil {
		return RequestLine{}, err
	}
	line, err := findRequestLine(lines, lineID)
	if err != nil {
		return RequestLine{}, err
	}
	line.Description = input.Description
	line.Quantity = input.Quantity
	line.UnitPrice = input.UnitPrice
	line.Currency = input.Currency
	line.VATRate = input.VATRate
	line.Surcharge = input.Surcharge
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateRequestLine(ctx, line)
	})
	if err != nil {
		return RequestLine{}, err
	}
	s.emit(ctx, actor, "REQUEST_LINE_UPDATE", "request", requestID, map[string]any{"line": lineID})
	return line, nil
}

// DeleteRequestLine removes one request line.
func (s *Service) DeleteRequestLine(ctx context.Context, actor access.Actor, requestID, lineID uuid.UUID) error {
	_, lines, err := s.GetRequest(ctx, actor, requestID)
	if err != nil {
		return err
	}
	if _, err := findRequestLine(lines, lineID); err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteRequestLine(ctx, lineID)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, actor, "REQUEST_LINE_DELETE", "request", requestID, map[string]any{"line": lineID})
	return nil
}

func findRequestLine(lines []RequestLine, id uuid.UUID) (RequestLine, error) {
	for _, line := range lines {
		if line.ID == id {
			return line, nil
		}
	}
	return RequestLine{}, ErrNotFound
}

// CreateOrderInput describes a purchase order creation payload.
type CreateOrderInput struct {
	RequestID       uuid.UUID
	SupplierID      uuid.UUID
	Currency        string
	DefaultVAT      decimal.NullDecimal
	DefaultDiscount decimal.NullDecimal
	Lines           []LineInput
}

// CreatePurchaseOrder derives an order from a request. The number is
// assigned atomically and the committed amount computed from the lines
// before the order becomes visible.
func (s *Service) CreatePurchaseOrder(ctx context.Context, actor access.Actor, input CreateOrderInput) (PurchaseOrder, error) {
	req, _, err := s.GetRequest(ctx, actor, input.RequestID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if input.SupplierID == uuid.Nil {
		return PurchaseOrder{}, ErrValidation
	}
	number, err := s.numbers.OrderNumber(ctx)
	if err != nil {
		return PurchaseOrder{}, err
	}
	order := PurchaseOrder{
		ID:              uuid.New(),
		Number:          number,
		RequestID:       req.ID,
		SupplierID:      input.SupplierID,
		Status:          OrderStatusPending,
		DepartmentID:    req.DepartmentID,
		Currency:        input.Currency,
		DefaultVAT:      input.DefaultVAT,
		DefaultDiscount: input.DefaultDiscount,
	}
	var financeLines []finance.Line
	var lines []OrderLine
	for _, line := range input.Lines {
		if err := line.validate(); err != nil {
			return PurchaseOrder{}, err
		}
		lines = append(lines, OrderLine{
			ID:          uuid.New(),
			OrderID:     order.ID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Currency:    line.Currency,
			VATRate:     line.VATRate,
			Surcharge:   line.Surcharge,
		})
		financeLines = append(financeLines, finance.Line{
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			VATRate:   line.VATRate,
			Surcharge: line.Surcharge,
		})
	}
	order.CommittedAmount = finance.CommittedAmount(financeLines, order.DefaultVAT)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		for _, line := range lines {
			if err := tx.InsertOrderLine(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.emit(ctx, actor, "ORDER_CREATE", "order", order.ID, map[string]any{
		"number": order.Number, "request": req.ID, "committed": order.CommittedAmount,
	})
	return order, nil
}

// GetOrder loads an order with its lines, enforcing the actor's scope.
func (s *Service) GetOrder(ctx context.Context, actor access.Actor, id uuid.UUID) (PurchaseOrder, []OrderLine, error) {
	order, lines, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	if err := s.authorizeOrder(ctx, actor, order); err != nil {
		return PurchaseOrder{}, nil, err
	}
	return order, lines, nil
}

// authorizeOrder checks a loaded order against the actor's order scope.
// Out-of-scope orders surface as ErrNotFound, indistinguishable from
// missing ones.
func (s *Service) authorizeOrder(ctx context.Context, actor access.Actor, order PurchaseOrder) error {
	req, _, err := s.repo.GetRequest(ctx, order.RequestID)
	if err != nil {
		return err
	}
	if !access.ForOrders(actor).AllowsOrder(order.DepartmentID, req.Status == RequestStatusDraft) {
		return ErrNotFound
	}
	return nil
}

// ListOrders returns the orders visible to the actor.
func (s *Service) ListOrders(ctx context.Context, actor access.Actor) ([]PurchaseOrder, error) {
	return s.repo.ListOrders(ctx, access.ForOrders(actor))
}

// SetOrderStatus applies an explicit order transition. Signature decisions
// never drive this field.
func (s *Service) SetOrderStatus(ctx context.Context, actor access.Actor, id uuid.UUID, status string) (PurchaseOrder, error) {
	target, ok := ParseOrderStatus(status)
	if !ok {
		return PurchaseOrder{}, ErrValidation
	}
	order, _, err := s.GetOrder(ctx, actor, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if !orderTransitionAllowed(order.Status, target) {
		return PurchaseOrder{}, ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateOrderStatus(ctx, id, target)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.emit(ctx, actor, "ORDER_STATUS", "order", id, map[string]any{"from": order.Status, "to": target})
	order.Status = target
	return order, nil
}

// SignOrderInput carries one per-level signature decision.
type SignOrderInput struct {
	Level         int
	Decision      string
	Comment       string
	ProofDocument string
}

// SignOrder records one signature per (order, level). Re-signing a level
// replaces the previous record. The order's own status is untouched.
func (s *Service) SignOrder(ctx context.Context, actor access.Actor, orderID uuid.UUID, input SignOrderInput) (Signature, error) {
	decision, ok := ParseSignatureDecision(input.Decision)
	if !ok {
		return Signature{}, ErrDecisionRequired
	}
	if input.Level <= 0 {
		return Signature{}, ErrValidation
	}
	if _, _, err := s.GetOrder(ctx, actor, orderID); err != nil {
		return Signature{}, err
	}
	sig := Signature{
		ID:            uuid.New(),
		OrderID:       orderID,
		Level:         input.Level,
		Decision:      decision,
		SignerID:      actor.ID,
		Comment:       input.Comment,
		ProofDocument: input.ProofDocument,
		SignedAt:      time.Now(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpsertSignature(ctx, sig)
	})
	if err != nil {
		return Signature{}, err
	}
	s.emit(ctx, actor, "ORDER_SIGN", "order", orderID, map[string]any{"level": input.Level, "decision": decision})
	return sig, nil
}

// AddOrderLine appends a line and synchronously recomputes the order's
// committed amount.
func (s *Service) AddOrderLine(ctx context.Context, actor access.Actor, orderID uuid.UUID, input LineInput) (OrderLine, PurchaseOrder, error) {
	if err := input.validate(); err != nil {
		return OrderLine{}, PurchaseOrder{}, err
	}
	line := OrderLine{
		ID:          uuid.New(),
		OrderID:     orderID,
		Description: input.Description,
		Quantity:    input.Quantity,
		UnitPrice:   input.UnitPrice,
		Currency:    input.Currency,
		VATRate:     input.VATRate,
		Surcharge:   input.Surcharge,
	}
	var updated PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.authorizeOrder(ctx, actor, order); err != nil {
			return err
		}
		if err := tx.InsertOrderLine(ctx, line); err != nil {
			return err
		}
		updated, err = recomputeCommitted(ctx, tx, order)
		return err
	})
	if err != nil {
		return OrderLine{}, PurchaseOrder{}, err
	}
	s.emit(ctx, actor, "ORDER_LINE_ADD", "order", orderID, map[string]any{"line": line.ID, "committed": updated.CommittedAmount})
	return line, updated, nil
}

// UpdateOrderLineInput carries a line mutation. A non-zero OrderID reparents
// the line onto another order.
type UpdateOrderLineInput struct {
	LineInput
	OrderID uuid.UUID
}

// UpdateOrderLine mutates a line and recomputes the committed amount of its
// parent order. When the line is reparented, both the old and new parent
// are recomputed in the same transaction.
func (s *Service) UpdateOrderLine(ctx context.Context, actor access.Actor, lineID uuid.UUID, input UpdateOrderLineInput) (OrderLine, PurchaseOrder, error) {
	if err := input.validate(); err != nil {
		return OrderLine{}, PurchaseOrder{}, err
	}
	var (
		updated OrderLine
		parent  PurchaseOrder
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetOrderLine(ctx, lineID)
		if err != nil {
			return err
		}
		targetOrderID := current.OrderID
		if input.OrderID != uuid.Nil {
			targetOrderID = input.OrderID
		}
		oldParent, err := tx.GetOrderForUpdate(ctx, current.OrderID)
		if err != nil {
			return err
		}
		if err := s.authorizeOrder(ctx, actor, oldParent); err != nil {
			return err
		}
		updated = OrderLine{
			ID:          lineID,
			OrderID:     targetOrderID,
			Description: input.Description,
			Quantity:    input.Quantity,
			UnitPrice:   input.UnitPrice,
			Currency:    input.Currency,
			VATRate:     input.VATRate,
			Surcharge:   input.Surcharge,
		}
		if err := tx.UpdateOrderLine(ctx, updated); err != nil {
			return err
		}
		parent, err = recomputeCommitted(ctx, tx, oldParent)
		if err != nil {
			return err
		}
		if targetOrderID != current.OrderID {
			newParent, err := tx.GetOrderForUpdate(ctx, targetOrderID)
			if err != nil {
				return err
			}
			if err := s.authorizeOrder(ctx, actor, newParent); err != nil {
				return err
			}
			parent, err = recomputeCommitted(ctx, tx, newParent)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return OrderLine{}, PurchaseOrder{}, err
	}
	s.emit(ctx, actor, "ORDER_LINE_UPDATE", "order", updated.OrderID, map[string]any{"line": lineID, "committed": parent.CommittedAmount})
	return updated, parent, nil
}

// DeleteOrderLine removes a line and recomputes the parent's committed
// amount.
func (s *Service) DeleteOrderLine(ctx context.Context, actor access.Actor, lineID uuid.UUID) (PurchaseOrder, error) {
	var updated PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := tx.GetOrderLine(ctx, lineID)
		if err != nil {
			return err
		}
		order, err := tx.GetOrderForUpdate(ctx, line.OrderID)
		if err != nil {
			return err
		}
		if err := s.authorizeOrder(ctx, actor, order); err != nil {
			return err
		}
		if err := tx.DeleteOrderLine(ctx, lineID); err != nil {
			return err
		}
		updated, err = recomputeCommitted(ctx, tx, order)
		return err
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.emit(ctx, actor, "ORDER_LINE_DELETE", "order", updated.ID, map[string]any{"line": lineID, "committed": updated.CommittedAmount})
	return updated, nil
}

// recomputeCommitted rereads the order's lines inside the transaction and
// persists the derived amount. The caller must hold the order row lock.
func recomputeCommitted(ctx context.Context, tx TxRepository, order PurchaseOrder) (PurchaseOrder, error) {
	lines, err := tx.ListOrderLines(ctx, order.ID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	financeLines := make([]finance.Line, 0, len(lines))
	for _, line := range lines {
		financeLines = append(financeLines, finance.Line{
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			VATRate:   line.VATRate,
			Surcharge: line.Surcharge,
		})
	}
	order.CommittedAmount = finance.CommittedAmount(financeLines, order.DefaultVAT)
	if err := tx.SetOrderCommitted(ctx, order.ID, order.CommittedAmount); err != nil {
		return PurchaseOrder{}, err
	}
	return order, nil
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

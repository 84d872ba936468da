package procurement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/procureflow/procureflow/internal/access"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreateRequest(ctx context.Context, req Request) error
	UpdateRequestStatus(ctx context.Context, id uuid.UUID, status RequestStatus) error
	FinalizeRequest(ctx context.Context, id uuid.UUID, decision Decision, status RequestStatus) error
	SetRequestAgent(ctx context.Context, id uuid.UUID, agentID uuid.UUID) error
	InsertRequestLine(ctx context.Context, line RequestLine) error
	UpdateRequestLine(ctx context.Context, line RequestLine) error
	DeleteRequestLine(ctx context.Context, id uuid.UUID) error

	CreateOrder(ctx context.Context, order PurchaseOrder) error
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (PurchaseOrder, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status OrderStatus) error
	SetOrderCommitted(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	InsertOrderLine(ctx context.Context, line OrderLine) error
	UpdateOrderLine(ctx context.Context, line OrderLine) error
	DeleteOrderLine(ctx context.Context, id uuid.UUID) error
	GetOrderLine(ctx context.Context, id uuid.UUID) (OrderLine, error)
	ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error)
	UpsertSignature(ctx context.Context, sig Signature) error
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRequest(ctx context.Context, id uuid.UUID) (Request, []RequestLine, error)
	GetOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, []OrderLine, error)
	ListRequests(ctx context.Context, scope access.Scope) ([]Request, error)
	ListOrders(ctx context.Context, scope access.Scope) ([]PurchaseOrder, error)
	ListSignatures(ctx context.Context, orderID uuid.UUID) ([]Signature, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const requestColumns = `id, number, object, status, decision, department_id, agent_id, retained_access, created_at, updated_at`

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req      Request
		agent    *uuid.UUID
		retained []uuid.UUID
	)
	err := row.Scan(&req.ID, &req.Number, &req.Object, &req.Status, &req.Decision,
		&req.DepartmentID, &agent, &retained, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	if agent != nil {
		req.AgentID = *agent
	}
	req.RetainedAccess = retained
	return req, nil
}

// GetRequest returns a request and its lines.
func (r *Repository) GetRequest(ctx context.Context, id uuid.UUID) (Request, []RequestLine, error) {
	req, err := scanRequest(r.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = $1`, id))
	if err != nil {
		return Request{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, request_id, description, quantity, unit_price, currency, vat_rate, surcharge
FROM request_lines WHERE request_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return Request{}, nil, err
	}
	defer rows.Close()
	var lines []RequestLine
	for rows.Next() {
		var line RequestLine
		if err := rows.Scan(&line.ID, &line.RequestID, &line.Description, &line.Quantity,
			&line.UnitPrice, &line.Currency, &line.VATRate, &line.Surcharge); err != nil {
			return Request{}, nil, err
		}
		lines = append(lines, line)
	}
	return req, lines, rows.Err()
}

// ListRequests returns requests visible under the scope: the scope's
// department plus any request whose retained-access set names the actor.
func (r *Repository) ListRequests(ctx context.Context, scope access.Scope) ([]Request, error) {
	if scope.Empty {
		return nil, nil
	}
	query := `SELECT ` + requestColumns + ` FROM requests`
	var args []any
	if !scope.All {
		query += ` WHERE department_id = $1 OR $2 = ANY(retained_access)`
		args = append(args, scope.DepartmentID, scope.ActorID)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var requests []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

const orderColumns = `id, number, request_id, supplier_id, status, department_id, currency, default_vat, default_discount, committed_amount, created_at, updated_at`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var order PurchaseOrder
	err := row.Scan(&order.ID, &order.Number, &order.RequestID, &order.SupplierID, &order.Status,
		&order.DepartmentID, &order.Currency, &order.DefaultVAT, &order.DefaultDiscount,
		&order.CommittedAmount, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	return order, nil
}

// GetOrder returns an order and its lines.
func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, []OrderLine, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1`, id))
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	lines, err := listOrderLines(ctx, r.pool, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return order, lines, nil
}

// ListOrders returns orders visible under the scope. The beyond-draft
// exception admits orders whose linked request has left draft regardless of
// department.
func (r *Repository) ListOrders(ctx context.Context, scope access.Scope) ([]PurchaseOrder, error) {
	if scope.Empty {
		return nil, nil
	}
	query := `SELECT o.id, o.number, o.request_id, o.supplier_id, o.status, o.department_id, o.currency, o.default_vat, o.default_discount, o.committed_amount, o.created_at, o.updated_at FROM purchase_orders o`
	var args []any
	switch {
	case scope.All:
	case scope.BeyondDraftRequests:
		query += ` JOIN requests r ON r.id = o.request_id WHERE r.status <> 'draft' OR o.department_id = $1`
		args = append(args, scope.DepartmentID)
	default:
		query += ` WHERE o.department_id = $1`
		args = append(args, scope.DepartmentID)
	}
	query += ` ORDER BY o.created_at DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []PurchaseOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// ListSignatures returns an order's signatures ordered by level.
func (r *Repository) ListSignatures(ctx context.Context, orderID uuid.UUID) ([]Signature, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, level, decision, signer_id, comment, proof_document, signed_at
FROM signatures WHERE order_id = $1 ORDER BY level`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sigs []Signature
	for rows.Next() {
		var sig Signature
		if err := rows.Scan(&sig.ID, &sig.OrderID, &sig.Level, &sig.Decision, &sig.SignerID,
			&sig.Comment, &sig.ProofDocument, &sig.SignedAt); err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

// Transactional operations.

func (t *txRepo) CreateRequest(ctx context.Context, req Request) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO requests (id, number, object, status, decision, department_id, agent_id, retained_access, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())`,
		req.ID, req.Number, req.Object, req.Status, req.Decision, req.DepartmentID,
		nullable(req.AgentID), req.RetainedAccess)
	return err
}

func (t *txRepo) UpdateRequestStatus(ctx context.Context, id uuid.UUID, status RequestStatus) error {
	return execOne(ctx, t.tx, `UPDATE requests SET status = $2, updated_at = now() WHERE id = $1`, id, status)
}

func (t *txRepo) FinalizeRequest(ctx context.Context, id uuid.UUID, decision Decision, status RequestStatus) error {
	return execOne(ctx, t.tx, `UPDATE requests SET decision = $2, status = $3, updated_at = now() WHERE id = $1`, id, decision, status)
}

func (t *txRepo) SetRequestAgent(ctx context.Context, id uuid.UUID, agentID uuid.UUID) error {
	return execOne(ctx, t.tx, `UPDATE requests SET agent_id = $2, updated_at = now() WHERE id = $1`, id, nullable(agentID))
}

func (t *txRepo) InsertRequestLine(ctx context.Context, line RequestLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO request_lines (id, request_id, description, quantity, unit_price, currency, vat_rate, surcharge, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		line.ID, line.RequestID, line.Description, line.Quantity, line.UnitPrice, line.Currency, line.VATRate, line.Surcharge)
	return err
}

func (t *txRepo) UpdateRequestLine(ctx context.Context, line RequestLine) error {
	return execOne(ctx, t.tx, `UPDATE request_lines SET request_id = $2, description = $3, quantity = $4, unit_price = $5, currency = $6, vat_rate = $7, surcharge = $8 WHERE id = $1`,
		line.ID, line.RequestID, line.Description, line.Quantity, line.UnitPrice, line.Currency, line.VATRate, line.Surcharge)
}

func (t *txRepo) DeleteRequestLine(ctx context.Context, id uuid.UUID) error {
	return execOne(ctx, t.tx, `DELETE FROM request_lines WHERE id = $1`, id)
}

func (t *txRepo) CreateOrder(ctx context.Context, order PurchaseOrder) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_orders (id, number, request_id, supplier_id, status, department_id, currency, default_vat, default_discount, committed_amount, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())`,
		order.ID, order.Number, order.RequestID, order.SupplierID, order.Status, order.DepartmentID,
		order.Currency, order.DefaultVAT, order.DefaultDiscount, order.CommittedAmount)
	return err
}

// GetOrderForUpdate locks the order row so overlapping line mutations
// serialise before recomputing the committed amount.
func (t *txRepo) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	return scanOrder(t.tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status OrderStatus) error {
	return execOne(ctx, t.tx, `UPDATE purchase_orders SET status = $2, updated_at = now() WHERE id = $1`, id, status)
}

func (t *txRepo) SetOrderCommitted(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return execOne(ctx, t.tx, `UPDATE purchase_orders SET committed_amount = $2, updated_at = now() WHERE id = $1`, id, amount)
}

func (t *txRepo) InsertOrderLine(ctx context.Context, line OrderLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO order_lines (id, order_id, description, quantity, unit_price, currency, vat_rate, surcharge, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		line.ID, line.OrderID, line.Description, line.Quantity, line.UnitPrice, line.Currency, line.VATRate, line.Surcharge)
	return err
}

func (t *txRepo) UpdateOrderLine(ctx context.Context, line OrderLine) error {
	return execOne(ctx, t.tx, `UPDATE order_lines SET order_id = $2, description = $3, quantity = $4, unit_price = $5, currency = $6, vat_rate = $7, surcharge = $8 WHERE id = $1`,
		line.ID, line.OrderID, line.Description, line.Quantity, line.UnitPrice, line.Currency, line.VATRate, line.Surcharge)
}

func (t *txRepo) DeleteOrderLine(ctx context.Context, id uuid.UUID) error {
	return execOne(ctx, t.tx, `DELETE FROM order_lines WHERE id = $1`, id)
}

func (t *txRepo) GetOrderLine(ctx context.Context, id uuid.UUID) (OrderLine, error) {
	var line OrderLine
	err := t.tx.QueryRow(ctx, `SELECT id, order_id, description, quantity, unit_price, currency, vat_rate, surcharge
FROM order_lines WHERE id = $1 FOR UPDATE`, id).Scan(&line.ID, &line.OrderID, &line.Description,
		&line.Quantity, &line.UnitPrice, &line.Currency, &line.VATRate, &line.Surcharge)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderLine{}, ErrNotFound
	}
	return line, err
}

func (t *txRepo) ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error) {
	return listOrderLines(ctx, t.tx, orderID)
}

func (t *txRepo) UpsertSignature(ctx context.Context, sig Signature) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO signatures (id, order_id, level, decision, signer_id, comment, proof_document, signed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (order_id, level) DO UPDATE SET decision = $4, signer_id = $5, comment = $6, proof_document = $7, signed_at = $8`,
		sig.ID, sig.OrderID, sig.Level, sig.Decision, sig.SignerID, sig.Comment, sig.ProofDocument, sig.SignedAt)
	return err
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listOrderLines(ctx context.Context, q rowQuerier, orderID uuid.UUID) ([]OrderLine, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, description, quantity, unit_price, currency, vat_rate, surcharge
FROM order_lines WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []OrderLine
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.Description, &line.Quantity,
			&line.UnitPrice, &line.Currency, &line.VATRate, &line.Surcharge); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func execOne(ctx context.Context, tx pgx.Tx, sql string, args ...any) error {
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}


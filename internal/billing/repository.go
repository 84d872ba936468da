package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procureflow/procureflow/internal/access"
	"github.com/procureflow/procureflow/internal/procurement"
)

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

// GetOrder loads the order header used for payment sizing.
func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (procurement.PurchaseOrder, error) {
	var order procurement.PurchaseOrder
	err := r.pool.QueryRow(ctx, `SELECT id, number, request_id, status, department_id, committed_amount
FROM purchase_orders WHERE id = $1`, id).Scan(&order.ID, &order.Number, &order.RequestID,
		&order.Status, &order.DepartmentID, &order.CommittedAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return procurement.PurchaseOrder{}, ErrNotFound
	}
	return order, err
}

const invoiceColumns = `id, number, order_id, department_id, pre_tax_amount, total_amount, status, synthesized, created_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.OrderID, &inv.DepartmentID, &inv.PreTaxAmount,
		&inv.TotalAmount, &inv.Status, &inv.Synthesized, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrNotFound
	}
	return inv, err
}

// GetInvoice loads one invoice.
func (r *Repository) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
}

// ListInvoicesByOrder returns an order's invoices.
func (r *Repository) ListInvoicesByOrder(ctx context.Context, orderID uuid.UUID) ([]Invoice, error) {
	return queryInvoices(ctx, r.pool, `SELECT `+invoiceColumns+` FROM invoices WHERE order_id = $1 ORDER BY created_at`, orderID)
}

// ListInvoices returns invoices visible under the scope.
func (r *Repository) ListInvoices(ctx context.Context, scope access.Scope) ([]Invoice, error) {
	if scope.Empty {
		return nil, nil
	}
	if scope.All {
		return queryInvoices(ctx, r.pool, `SELECT `+invoiceColumns+` FROM invoices ORDER BY created_at DESC`)
	}
	return queryInvoices(ctx, r.pool, `SELECT `+invoiceColumns+` FROM invoices WHERE department_id = $1 ORDER BY created_at DESC`, scope.DepartmentID)
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryInvoices(ctx context.Context, q rowQuerier, sql string, args ...any) ([]Invoice, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

const paymentColumns = `id, invoice_id, order_id, bank_id, method_id, amount, status, ordered_at, executed_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var (
		p          Payment
		method     *uuid.UUID
		executedAt *time.Time
	)
	err := row.Scan(&p.ID, &p.InvoiceID, &p.OrderID, &p.BankID, &method, &p.Amount, &p.Status, &p.OrderedAt, &executedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, err
	}
	if method != nil {
		p.MethodID = *method
	}
	if executedAt != nil {
		p.ExecutedAt = *executedAt
	}
	return p, nil
}

// GetPayment loads one payment.
func (r *Repository) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// ListPaymentsByOrder returns an order's payments.
func (r *Repository) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	return queryPayments(ctx, r.pool, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY ordered_at`, orderID)
}

// ListPayments returns payments visible under the scope, via the invoice's
// owning department.
func (r *Repository) ListPayments(ctx context.Context, scope access.Scope) ([]Payment, error) {
	if scope.Empty {
		return nil, nil
	}
	if scope.All {
		return queryPayments(ctx, r.pool, `SELECT `+paymentColumns+` FROM payments ORDER BY ordered_at DESC`)
	}
	return queryPayments(ctx, r.pool, `SELECT p.id, p.invoice_id, p.order_id, p.bank_id, p.method_id, p.amount, p.status, p.ordered_at, p.executed_at
FROM payments p JOIN invoices i ON i.id = p.invoice_id
WHERE i.department_id = $1 ORDER BY p.ordered_at DESC`, scope.DepartmentID)
}

func queryPayments(ctx context.Context, q rowQuerier, sql string, args ...any) ([]Payment, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// GetOrderForUpdate locks the order row while a payment is sized against the
// remaining balance.
func (t *txRepo) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (procurement.PurchaseOrder, error) {
	var order procurement.PurchaseOrder
	err := t.tx.QueryRow(ctx, `SELECT id, number, request_id, status, department_id, committed_amount
FROM purchase_orders WHERE id = $1 FOR UPDATE`, id).Scan(&order.ID, &order.Number, &order.RequestID,
		&order.Status, &order.DepartmentID, &order.CommittedAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return procurement.PurchaseOrder{}, ErrNotFound
	}
	return order, err
}

func (t *txRepo) ListInvoicesByOrder(ctx context.Context, orderID uuid.UUID) ([]Invoice, error) {
	return queryInvoices(ctx, t.tx, `SELECT `+invoiceColumns+` FROM invoices WHERE order_id = $1 ORDER BY created_at`, orderID)
}

func (t *txRepo) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	return queryPayments(ctx, t.tx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY ordered_at`, orderID)
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO invoices (`+invoiceColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inv.ID, inv.Number, inv.OrderID, inv.DepartmentID, inv.PreTaxAmount, inv.TotalAmount,
		inv.Status, inv.Synthesized, inv.CreatedAt)
	return err
}

func (t *txRepo) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status InvoiceStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE invoices SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) error {
	var method *uuid.UUID
	if p.MethodID != uuid.Nil {
		method = &p.MethodID
	}
	var executedAt *time.Time
	if !p.ExecutedAt.IsZero() {
		executedAt = &p.ExecutedAt
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO payments (`+paymentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.InvoiceID, p.OrderID, p.BankID, method, p.Amount, p.Status, p.OrderedAt, executedAt)
	return err
}

func (t *txRepo) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus, executedAt time.Time) error {
	var executed *time.Time
	if !executedAt.IsZero() {
		executed = &executedAt
	}
	tag, err := t.tx.Exec(ctx, `UPDATE payments SET status = $2, executed_at = $3 WHERE id = $1`, id, status, executed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

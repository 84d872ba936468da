package transfer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procureflow/procureflow/internal/procurement"
)

// Repository provides PostgreSQL backed persistence for the ledger.
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

// GetRequest loads the request header needed for transfer validation.
func (r *Repository) GetRequest(ctx context.Context, id uuid.UUID) (procurement.Request, error) {
	var (
		req   procurement.Request
		agent *uuid.UUID
	)
	err := r.pool.QueryRow(ctx, `SELECT id, number, status, department_id, agent_id, retained_access
FROM requests WHERE id = $1`, id).Scan(&req.ID, &req.Number, &req.Status, &req.DepartmentID, &agent, &req.RetainedAccess)
	if errors.Is(err, pgx.ErrNoRows) {
		return procurement.Request{}, ErrNotFound
	}
	if err != nil {
		return procurement.Request{}, err
	}
	if agent != nil {
		req.AgentID = *agent
	}
	return req, nil
}

// GetOrder loads the order header needed for transfer validation.
func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (procurement.PurchaseOrder, error) {
	var order procurement.PurchaseOrder
	err := r.pool.QueryRow(ctx, `SELECT id, number, request_id, status, department_id
FROM purchase_orders WHERE id = $1`, id).Scan(&order.ID, &order.Number, &order.RequestID, &order.Status, &order.DepartmentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return procurement.PurchaseOrder{}, ErrNotFound
	}
	return order, err
}

const transferColumns = `id, entity_type, entity_id, source_department_id, destination_department_id, agent_id, reason, created_at`

// LastTransfer returns the most recent transfer for an entity.
func (r *Repository) LastTransfer(ctx context.Context, entityType EntityType, entityID uuid.UUID) (Transfer, error) {
	var t Transfer
	err := r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers
WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at DESC LIMIT 1`, entityType, entityID).
		Scan(&t.ID, &t.EntityType, &t.EntityID, &t.SourceDepartmentID, &t.DestinationDepartmentID,
			&t.AgentID, &t.Reason, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, ErrNotFound
	}
	return t, err
}

// ListTransfers returns an entity's chain, oldest first.
func (r *Repository) ListTransfers(ctx context.Context, entityType EntityType, entityID uuid.UUID) ([]Transfer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+transferColumns+` FROM transfers
WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var transfers []Transfer
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.ID, &t.EntityType, &t.EntityID, &t.SourceDepartmentID,
			&t.DestinationDepartmentID, &t.AgentID, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

func (t *txRepo) InsertTransfer(ctx context.Context, record Transfer) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO transfers (`+transferColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.EntityType, record.EntityID, record.SourceDepartmentID,
		record.DestinationDepartmentID, record.AgentID, record.Reason, record.CreatedAt)
	return err
}

func (t *txRepo) UpdateRequestDepartment(ctx context.Context, requestID, departmentID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `UPDATE requests SET department_id = $2, updated_at = now() WHERE id = $1`, requestID, departmentID)
	return err
}

func (t *txRepo) ClearRequestAgent(ctx context.Context, requestID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `UPDATE requests SET agent_id = NULL, updated_at = now() WHERE id = $1`, requestID)
	return err
}

// GrantRetainedAccess appends the user only when absent; set semantics.
func (t *txRepo) GrantRetainedAccess(ctx context.Context, requestID, userID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `UPDATE requests SET retained_access = array_append(retained_access, $2), updated_at = now()
WHERE id = $1 AND NOT ($2 = ANY(retained_access))`, requestID, userID)
	return err
}

func (t *txRepo) UpdateOrderDepartment(ctx context.Context, orderID, departmentID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET department_id = $2, updated_at = now() WHERE id = $1`, orderID, departmentID)
	return err
}

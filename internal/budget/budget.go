// Package budget tracks per-department, per-fiscal-year envelopes. The
// committed column mirrors purchase order commitments via a periodic
// snapshot job; it is bookkeeping, not enforcement.
package budget

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/procureflow/procureflow/internal/access"
)

// Line is one department budget envelope for a fiscal year.
type Line struct {
	ID           uuid.UUID
	DepartmentID uuid.UUID
	FiscalYear   int
	Budgeted     decimal.Decimal
	Committed    decimal.Decimal
	Remaining    decimal.Decimal
	UpdatedAt    time.Time
}

var (
	// ErrNotFound indicates a missing budget line.
	ErrNotFound = errors.New("budget: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("budget: invalid input")
)

// RepositoryPort describes budget persistence.
type RepositoryPort interface {
	Upsert(ctx context.Context, line Line) error
	List(ctx context.Context, scope access.Scope, fiscalYear int) ([]Line, error)
	// CommittedByDepartment sums validated purchase order commitments per
	// department for one year.
	CommittedByDepartment(ctx context.Context, fiscalYear int) (map[uuid.UUID]decimal.Decimal, error)
	SetCommitted(ctx context.Context, departmentID uuid.UUID, fiscalYear int, committed decimal.Decimal) error
}

// Service manages budget lines.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService constructs the budget service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// SetEnvelope creates or replaces a department's envelope for a year.
func (s *Service) SetEnvelope(ctx context.Context, departmentID uuid.UUID, fiscalYear int, budgeted decimal.Decimal) (Line, error) {
	if departmentID == uuid.Nil || fiscalYear <= 0 || budgeted.IsNegative() {
		return Line{}, ErrValidation
	}
	line := Line{
		ID:           uuid.New(),
		DepartmentID: departmentID,
		FiscalYear:   fiscalYear,
		Budgeted:     budgeted,
		Remaining:    budgeted,
		UpdatedAt:    time.Now(),
	}
	if err := s.repo.Upsert(ctx, line); err != nil {
		return Line{}, err
	}
	return line, nil
}

// List returns the lines visible to the actor for one fiscal year.
func (s *Service) List(ctx context.Context, actor access.Actor, fiscalYear int) ([]Line, error) {
	return s.repo.List(ctx, access.ForDepartmentEntity(actor), fiscalYear)
}

// SnapshotCommitments refreshes the committed column from the current
// purchase order totals. Run periodically by the worker.
func (s *Service) SnapshotCommitments(ctx context.Context, fiscalYear int) error {
	committed, err := s.repo.CommittedByDepartment(ctx, fiscalYear)
	if err != nil {
		return err
	}
	for departmentID, amount := range committed {
		err := s.repo.SetCommitted(ctx, departmentID, fiscalYear, amount)
		if errors.Is(err, ErrNotFound) {
			// Department without an envelope for this year; nothing to mirror.
			continue
		}
		if err != nil {
			return err
		}
	}
	if s.logger != nil {
		s.logger.Info("budget snapshot complete", "fiscal_year", fiscalYear, "departments", len(committed))
	}
	return nil
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert replaces a department's envelope for the year.
func (r *Repository) Upsert(ctx context.Context, line Line) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO budget_lines (id, department_id, fiscal_year, budgeted, committed, remaining, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (department_id, fiscal_year) DO UPDATE SET budgeted = $4, remaining = $4 - budget_lines.committed, updated_at = $7`,
		line.ID, line.DepartmentID, line.FiscalYear, line.Budgeted, line.Committed, line.Remaining, line.UpdatedAt)
	return err
}

// List returns scoped budget lines for a fiscal year.
func (r *Repository) List(ctx context.Context, scope access.Scope, fiscalYear int) ([]Line, error) {
	if scope.Empty {
		return nil, nil
	}
	query := `SELECT id, department_id, fiscal_year, budgeted, committed, remaining, updated_at
FROM budget_lines WHERE fiscal_year = $1`
	args := []any{fiscalYear}
	if !scope.All {
		query += ` AND department_id = $2`
		args = append(args, scope.DepartmentID)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.DepartmentID, &line.FiscalYear, &line.Budgeted,
			&line.Committed, &line.Remaining, &line.UpdatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// CommittedByDepartment aggregates order commitments per department.
func (r *Repository) CommittedByDepartment(ctx context.Context, fiscalYear int) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `SELECT department_id, COALESCE(SUM(committed_amount), 0)
FROM purchase_orders
WHERE date_part('year', created_at) = $1
GROUP BY department_id`, fiscalYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]decimal.Decimal)
	for rows.Next() {
		var (
			departmentID uuid.UUID
			amount       decimal.Decimal
		)
		if err := rows.Scan(&departmentID, &amount); err != nil {
			return nil, err
		}
		out[departmentID] = amount
	}
	return out, rows.Err()
}

// SetCommitted updates one envelope's committed and remaining columns.
func (r *Repository) SetCommitted(ctx context.Context, departmentID uuid.UUID, fiscalYear int, committed decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, `UPDATE budget_lines SET committed = $3, remaining = budgeted - $3, updated_at = now()
WHERE department_id = $1 AND fiscal_year = $2`, departmentID, fiscalYear, committed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package budget

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/procureflow/procureflow/internal/access"
)

type envelopeKey struct {
	department uuid.UUID
	year       int
}

type memoryBudget struct {
	lines     map[envelopeKey]Line
	committed map[uuid.UUID]decimal.Decimal
}

func newMemoryBudget() *memoryBudget {
	return &memoryBudget{
		lines:     make(map[envelopeKey]Line),
		committed: make(map[uuid.UUID]decimal.Decimal),
	}
}

func (r *memoryBudget) Upsert(ctx context.Context, line Line) error {
	key := envelopeKey{line.DepartmentID, line.FiscalYear}
	if existing, ok := r.lines[key]; ok {
		existing.Budgeted = line.Budgeted
		existing.Remaining = line.Budgeted.Sub(existing.Committed)
		r.lines[key] = existing
		return nil
	}
	r.lines[key] = line
	return nil
}

func (r *memoryBudget) List(ctx context.Context, scope access.Scope, fiscalYear int) ([]Line, error) {
	var out []Line
	for key, line := range r.lines {
		if key.year == fiscalYear && scope.AllowsDepartment(key.department) {
			out = append(out, line)
		}
	}
	return out, nil
}

func (r *memoryBudget) CommittedByDepartment(ctx context.Context, fiscalYear int) (map[uuid.UUID]decimal.Decimal, error) {
	return r.committed, nil
}

func (r *memoryBudget) SetCommitted(ctx context.Context, departmentID uuid.UUID, fiscalYear int, committed decimal.Decimal) error {
	key := envelopeKey{departmentID, fiscalYear}
	line, ok := r.lines[key]
	if !ok {
		return ErrNotFound
	}
	line.Committed = committed
	line.Remaining = line.Budgeted.Sub(committed)
	r.lines[key] = line
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSnapshotMirrorsCommitments(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBudget()
	svc := NewService(repo, nil)
	dept := uuid.New()

	_, err := svc.SetEnvelope(ctx, dept, 2026, dec("10000000"))
	require.NoError(t, err)

	repo.committed[dept] = dec("4173750.00")
	// Departments without envelopes are skipped, not errors.
	repo.committed[uuid.New()] = dec("999")

	require.NoError(t, svc.SnapshotCommitments(ctx, 2026))

	line := repo.lines[envelopeKey{dept, 2026}]
	require.True(t, dec("4173750.00").Equal(line.Committed))
	require.True(t, dec("5826250.00").Equal(line.Remaining))
}

func TestListIsScoped(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBudget()
	svc := NewService(repo, nil)
	dept := uuid.New()

	_, err := svc.SetEnvelope(ctx, dept, 2026, dec("500"))
	require.NoError(t, err)
	_, err = svc.SetEnvelope(ctx, uuid.New(), 2026, dec("700"))
	require.NoError(t, err)

	local := access.Actor{ID: uuid.New(), Role: access.RoleAgent, DepartmentID: dept}
	lines, err := svc.List(ctx, local, 2026)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	global := access.Actor{ID: uuid.New(), Role: access.RoleBudget}
	lines, err = svc.List(ctx, global, 2026)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	noDept := access.Actor{ID: uuid.New(), Role: access.RoleAgent}
	lines, err = svc.List(ctx, noDept, 2026)
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestSetEnvelopeValidates(t *testing.T) {
	svc := NewService(newMemoryBudget(), nil)
	_, err := svc.SetEnvelope(context.Background(), uuid.Nil, 2026, dec("1"))
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.SetEnvelope(context.Background(), uuid.New(), 2026, dec("-5"))
	require.ErrorIs(t, err, ErrValidation)
}

package org

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/procureflow/procureflow/internal/access"
)

type memoryDepts struct {
	byID   map[uuid.UUID]Department
	bySlug map[string]Department
}

func newMemoryDepts() *memoryDepts {
	return &memoryDepts{byID: make(map[uuid.UUID]Department), bySlug: make(map[string]Department)}
}

func (r *memoryDepts) Insert(ctx context.Context, dept Department) error {
	if _, ok := r.bySlug[dept.Slug]; ok {
		return ErrDuplicate
	}
	r.byID[dept.ID] = dept
	r.bySlug[dept.Slug] = dept
	return nil
}

func (r *memoryDepts) Get(ctx context.Context, id uuid.UUID) (Department, error) {
	dept, ok := r.byID[id]
	if !ok {
		return Department{}, ErrNotFound
	}
	return dept, nil
}

func (r *memoryDepts) GetBySlug(ctx context.Context, slug string) (Department, error) {
	dept, ok := r.bySlug[slug]
	if !ok {
		return Department{}, ErrNotFound
	}
	return dept, nil
}

func (r *memoryDepts) List(ctx context.Context) ([]Department, error) {
	var out []Department
	for _, dept := range r.byID {
		out = append(out, dept)
	}
	return out, nil
}

func (r *memoryDepts) SlugExists(ctx context.Context, slug string) (bool, error) {
	_, ok := r.bySlug[slug]
	return ok, nil
}

func TestSlugify(t *testing.T) {
	require.Equal(t, "direction-des-achats", Slugify("Direction des Achats"))
	require.Equal(t, "tresorerie-generale", Slugify("Trésorerie Générale"))
	require.Equal(t, "r-d", Slugify("R&D"))
}

func TestCodeFromName(t *testing.T) {
	require.Equal(t, "DAA", CodeFromName("Direction des Achats et Approvisionnements"))
	require.Equal(t, "TG", CodeFromName("Trésorerie Générale"))
	require.Equal(t, "B", CodeFromName("Budget"))
}

func TestCreateDepartmentGeneratesCodeAndSlug(t *testing.T) {
	svc := NewService(newMemoryDepts(), nil, nil)
	actor := access.Actor{ID: uuid.New(), Role: access.RoleSuperAdmin}

	dept, err := svc.CreateDepartment(context.Background(), actor, "  Trésorerie Générale ")
	require.NoError(t, err)
	require.Equal(t, "Trésorerie Générale", dept.Name)
	require.Equal(t, "TG", dept.Code)
	require.Equal(t, "tresorerie-generale", dept.Slug)
}

func TestCreateDepartmentSuffixesSlugCollisions(t *testing.T) {
	svc := NewService(newMemoryDepts(), nil, nil)
	actor := access.Actor{ID: uuid.New(), Role: access.RoleSuperAdmin}
	ctx := context.Background()

	first, err := svc.CreateDepartment(ctx, actor, "Budget")
	require.NoError(t, err)
	require.Equal(t, "budget", first.Slug)

	second, err := svc.CreateDepartment(ctx, actor, "Budget")
	require.NoError(t, err)
	require.Equal(t, "budget-2", second.Slug)
}

func TestCreateDepartmentRejectsEmptyName(t *testing.T) {
	svc := NewService(newMemoryDepts(), nil, nil)
	_, err := svc.CreateDepartment(context.Background(), access.Actor{}, "   ")
	require.ErrorIs(t, err, ErrValidation)
}

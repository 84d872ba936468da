// Package org manages departments.
package org

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procureflow/procureflow/internal/access"
	"github.com/procureflow/procureflow/internal/audit"
)

// RepositoryPort describes department persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, dept Department) error
	Get(ctx context.Context, id uuid.UUID) (Department, error)
	GetBySlug(ctx context.Context, slug string) (Department, error)
	List(ctx context.Context) ([]Department, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// Service manages departments.
type Service struct {
	repo   RepositoryPort
	audit  audit.Recorder
	logger *slog.Logger
}

// NewService constructs the org service.
func NewService(repo RepositoryPort, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: recorder, logger: logger}
}

// CreateDepartment generates a stable code and slug from the name. Slug
// collisions get a numeric suffix.
func (s *Service) CreateDepartment(ctx context.Context, actor access.Actor, name string) (Department, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Department{}, ErrValidation
	}
	slug := Slugify(name)
	if slug == "" {
		return Department{}, ErrValidation
	}
	candidate := slug
	for i := 2; ; i++ {
		exists, err := s.repo.SlugExists(ctx, candidate)
		if err != nil {
			return Department{}, err
		}
		if !exists {
			break
		}
		candidate = fmt.Sprintf("%s-%d", slug, i)
	}
	dept := Department{
		ID:        uuid.New(),
		Name:      name,
		Code:      CodeFromName(name),
		Slug:      candidate,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Insert(ctx, dept); err != nil {
		return Department{}, err
	}
	audit.Emit(ctx, s.audit, s.logger, audit.Event{
		ActorID: actor.ID, Action: "DEPARTMENT_CREATE", Entity: "department",
		EntityID: dept.ID.String(), Meta: map[string]any{"slug": dept.Slug},
	})
	return dept, nil
}

// Get loads one department.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Department, error) {
	return s.repo.Get(ctx, id)
}

// List returns all departments.
func (s *Service) List(ctx context.Context) ([]Department, error) {
	return s.repo.List(ctx)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const deptColumns = `id, name, code, slug, created_at`

// Insert persists a department; slug and name collisions surface as
// ErrDuplicate.
func (r *Repository) Insert(ctx context.Context, dept Department) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO departments (`+deptColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		dept.ID, dept.Name, dept.Code, dept.Slug, dept.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func scanDepartment(row pgx.Row) (Department, error) {
	var dept Department
	err := row.Scan(&dept.ID, &dept.Name, &dept.Code, &dept.Slug, &dept.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Department{}, ErrNotFound
	}
	return dept, err
}

// Get loads a department by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Department, error) {
	return scanDepartment(r.pool.QueryRow(ctx, `SELECT `+deptColumns+` FROM departments WHERE id = $1`, id))
}

// GetBySlug loads a department by slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (Department, error) {
	return scanDepartment(r.pool.QueryRow(ctx, `SELECT `+deptColumns+` FROM departments WHERE slug = $1`, slug))
}

// List returns all departments by name.
func (r *Repository) List(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+deptColumns+` FROM departments ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var depts []Department
	for rows.Next() {
		dept, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		depts = append(depts, dept)
	}
	return depts, rows.Err()
}

// SlugExists reports whether a slug is taken.
func (r *Repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM departments WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

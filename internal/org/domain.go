package org

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Department is an organizational unit. Code and Slug are generated at
// creation and stable afterwards.
type Department struct {
	ID        uuid.UUID
	Name      string
	Code      string
	Slug      string
	CreatedAt time.Time
}

var (
	// ErrNotFound indicates a missing department.
	ErrNotFound = errors.New("org: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("org: invalid input")
	// ErrDuplicate indicates a name, code or slug collision.
	ErrDuplicate = errors.New("org: duplicate department")
)

package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/procureflow/procureflow/internal/access"
)

// User represents an authenticated user account.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         access.Role
	// DepartmentID is uuid.Nil for users outside any department.
	DepartmentID uuid.UUID
	IsActive     bool
	TwoFactor    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor converts a user into its authorization identity.
func (u User) Actor() access.Actor {
	return access.Actor{ID: u.ID, Role: u.Role, DepartmentID: u.DepartmentID}
}

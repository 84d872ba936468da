package access

import (
	"context"

	"github.com/google/uuid"
)

// Actor describes the authenticated caller for scoping decisions.
// DepartmentID is uuid.Nil when the user has no department assignment.
type Actor struct {
	ID           uuid.UUID
	Role         Role
	DepartmentID uuid.UUID
}

// Anonymous reports whether the actor carries no identity.
func (a Actor) Anonymous() bool {
	return a.ID == uuid.Nil
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The zero Actor is
// returned for unauthenticated requests.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}

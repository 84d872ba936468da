// Package access computes role/department visibility scopes.
//
// A Scope is a value describing which rows of an entity type the actor may
// see. Repositories translate it into SQL predicates; in-memory fakes
// evaluate it with the Allows* helpers. Actors without a department and
// without a global role receive an empty scope (fail-closed).
package access

import "github.com/google/uuid"

// Scope restricts visibility of one entity type for one actor.
type Scope struct {
	// All grants unrestricted visibility.
	All bool
	// Empty denies everything. Takes precedence over the other fields.
	Empty bool
	// DepartmentID limits rows to this department when set.
	DepartmentID uuid.UUID
	// ActorID, when set, additionally admits requests whose retained-access
	// set contains the actor (granted by past transfers).
	ActorID uuid.UUID
	// BeyondDraftRequests additionally admits purchase orders whose linked
	// request has progressed past draft, regardless of department.
	BeyondDraftRequests bool
}

func unrestricted() Scope { return Scope{All: true} }

func denied() Scope { return Scope{Empty: true} }

// ForDepartmentEntity scopes entity types that filter purely on an owning
// department: request/order lines, invoices, payments, budget lines.
func ForDepartmentEntity(actor Actor) Scope {
	if actor.Role.Global() {
		return unrestricted()
	}
	if actor.DepartmentID == uuid.Nil {
		return denied()
	}
	return Scope{DepartmentID: actor.DepartmentID}
}

// ForRequests scopes procurement requests. Non-global actors see their
// department's requests plus any request whose retained-access set names
// them.
func ForRequests(actor Actor) Scope {
	if actor.Role.Global() {
		return unrestricted()
	}
	if actor.DepartmentID == uuid.Nil && actor.ID == uuid.Nil {
		return denied()
	}
	return Scope{DepartmentID: actor.DepartmentID, ActorID: actor.ID}
}

// ForOrders scopes purchase orders. The sub-director role sees every order
// whose linked request has left draft, in addition to orders owned by the
// sub-director's own department.
func ForOrders(actor Actor) Scope {
	if actor.Role == RoleSubDirector {
		return Scope{DepartmentID: actor.DepartmentID, BeyondDraftRequests: true}
	}
	if actor.Role.Global() {
		return unrestricted()
	}
	return ForDepartmentEntity(actor)
}

// ForTransfers scopes the transfer ledger: a transfer is visible when the
// actor's department is either endpoint or owns the transferred entity.
func ForTransfers(actor Actor) Scope {
	return ForDepartmentEntity(actor)
}

// AllowsDepartment evaluates the scope against a row's owning department.
func (s Scope) AllowsDepartment(department uuid.UUID) bool {
	if s.Empty {
		return false
	}
	if s.All {
		return true
	}
	return s.DepartmentID != uuid.Nil && s.DepartmentID == department
}

// AllowsRequest evaluates the scope against a request's department and
// retained-access set.
func (s Scope) AllowsRequest(department uuid.UUID, retained []uuid.UUID) bool {
	if s.AllowsDepartment(department) {
		return true
	}
	if s.Empty || s.ActorID == uuid.Nil {
		return false
	}
	for _, id := range retained {
		if id == s.ActorID {
			return true
		}
	}
	return false
}

// AllowsOrder evaluates the scope against an order's department and the
// draft state of its linked request.
func (s Scope) AllowsOrder(department uuid.UUID, requestDraft bool) bool {
	if s.AllowsDepartment(department) {
		return true
	}
	if s.Empty {
		return false
	}
	return s.BeyondDraftRequests && !requestDraft
}

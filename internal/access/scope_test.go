package access

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGlobalRolesBypassDepartmentFilter(t *testing.T) {
	dept := uuid.New()
	other := uuid.New()
	for _, role := range []Role{RoleSuperAdmin, RoleProcurement, RoleBudget, RoleFinance, RoleTreasury} {
		actor := Actor{ID: uuid.New(), Role: role, DepartmentID: dept}
		scope := ForRequests(actor)
		require.True(t, scope.AllowsRequest(other, nil), "role %s should see all requests", role)
		require.True(t, ForDepartmentEntity(actor).AllowsDepartment(other))
	}
}

func TestFailClosedWithoutDepartment(t *testing.T) {
	actor := Actor{Role: RoleAgent}
	scope := ForDepartmentEntity(actor)
	require.True(t, scope.Empty)
	require.False(t, scope.AllowsDepartment(uuid.New()))
	require.False(t, scope.AllowsDepartment(uuid.Nil))

	orders := ForOrders(actor)
	require.False(t, orders.AllowsOrder(uuid.New(), false))
}

func TestAnonymousSeesNothing(t *testing.T) {
	scope := ForRequests(Actor{})
	require.True(t, scope.Empty)
	require.False(t, scope.AllowsRequest(uuid.New(), []uuid.UUID{uuid.Nil}))
}

func TestDepartmentScopedActor(t *testing.T) {
	dept := uuid.New()
	actor := Actor{ID: uuid.New(), Role: RoleAgent, DepartmentID: dept}

	scope := ForRequests(actor)
	require.True(t, scope.AllowsRequest(dept, nil))
	require.False(t, scope.AllowsRequest(uuid.New(), nil))
}

func TestRetainedAccessAdmitsTransferredRequest(t *testing.T) {
	actorID := uuid.New()
	actor := Actor{ID: actorID, Role: RoleAgent, DepartmentID: uuid.New()}

	scope := ForRequests(actor)
	foreign := uuid.New()
	require.False(t, scope.AllowsRequest(foreign, nil))
	require.True(t, scope.AllowsRequest(foreign, []uuid.UUID{uuid.New(), actorID}))
}

func TestSubDirectorOrderVisibility(t *testing.T) {
	dept := uuid.New()
	actor := Actor{ID: uuid.New(), Role: RoleSubDirector, DepartmentID: dept}

	scope := ForOrders(actor)
	require.True(t, scope.AllowsOrder(uuid.New(), false), "non-draft linked request is visible everywhere")
	require.False(t, scope.AllowsOrder(uuid.New(), true), "draft-linked foreign order is hidden")
	require.True(t, scope.AllowsOrder(dept, true), "own department always visible")

	// Elsewhere the sub-director remains global.
	require.True(t, ForRequests(actor).All)
}

func TestParseRole(t *testing.T) {
	require.Equal(t, RoleSuperAdmin, ParseRole(" sad "))
	require.Equal(t, Role("CUSTOM"), ParseRole("custom"))
	require.False(t, ParseRole("custom").Global())
}

package filterbuild

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/principal"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/filter"
)

var hierarchy = map[string][]string{
	"admin":   {"admin", "manager", "analyst", "viewer"},
	"manager": {"manager", "analyst", "viewer"},
	"analyst": {"analyst", "viewer"},
	"viewer":  {"viewer"},
}

func userFilter() filter.Filter {
	return filter.New().With("domain", filter.Eq("financial"))
}

func TestNoopPolicy(t *testing.T) {
	f, err := NoopPolicy{}.Apply(userFilter(), principal.Principal{Role: "viewer"})
	require.NoError(t, err)
	assert.Equal(t, []string{"domain"}, f.Fields())
	assert.Empty(t, f.AndClauses())
}

func TestTenantScopedPolicy_Admins(t *testing.T) {
	pol := NewTenantScopedPolicy(hierarchy)
	for _, who := range []principal.Principal{
		{Role: principal.RoleSuperAdmin, OpCo: "NE"},
		{Role: principal.RoleAdmin},
	} {
		f, err := pol.Apply(userFilter(), who)
		require.NoError(t, err)
		assert.Empty(t, f.AndClauses(), "admin %+v must be unrestricted", who)
	}
}

func TestTenantScopedPolicy_OpCoUser(t *testing.T) {
	pol := NewTenantScopedPolicy(hierarchy)
	f, err := pol.Apply(userFilter(), principal.Principal{UserID: "u", Role: "analyst", OpCo: "NE"})
	require.NoError(t, err)

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"$and":[
		{"domain":{"$eq":"financial"}},
		{"opco_id":{"$eq":"NE"},"role_required":{"$in":["analyst","viewer"]}}
	]}`, string(data))
}

func TestTenantScopedPolicy_OpCoAdminIsScoped(t *testing.T) {
	pol := NewTenantScopedPolicy(hierarchy)
	f, err := pol.Apply(filter.New(), principal.Principal{UserID: "u", Role: "admin", OpCo: "SW"})
	require.NoError(t, err)

	c, ok := f.Condition("opco_id")
	require.True(t, ok, "an empty user filter collapses to the scope itself")
	v, _ := c.EqValue()
	assert.Equal(t, "SW", v)
}

func TestTenantScopedPolicy_NoOpCo(t *testing.T) {
	pol := NewTenantScopedPolicy(hierarchy)
	_, err := pol.Apply(userFilter(), principal.Principal{UserID: "u", Role: "analyst"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestTenantScopedPolicy_NoRole(t *testing.T) {
	pol := NewTenantScopedPolicy(hierarchy)
	for _, role := range []string{"", "  "} {
		_, err := pol.Apply(userFilter(), principal.Principal{UserID: "u", Role: role, OpCo: "NE"})
		assert.ErrorIs(t, err, domain.ErrForbidden, "role %q", role)
	}
}

func TestTenantScopedPolicy_VendorPortal(t *testing.T) {
	pol := NewTenantScopedPolicy(hierarchy)

	f, err := pol.Apply(userFilter(), principal.Principal{UserID: "v", Role: principal.RoleVendor, VendorID: "V-17"})
	require.NoError(t, err)
	require.Len(t, f.AndClauses(), 2)
	c, ok := f.AndClauses()[1].Condition(FieldVendorID)
	require.True(t, ok)
	v, _ := c.EqValue()
	assert.Equal(t, "V-17", v)

	_, err = pol.Apply(userFilter(), principal.Principal{UserID: "v", Role: principal.RoleVendor})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestAllowedRoles_IncludesOwnRole(t *testing.T) {
	pol := NewTenantScopedPolicy(nil)
	assert.Equal(t, []string{"technician"}, pol.AllowedRoles("technician"))
	assert.Equal(t, []string{"manager", "analyst", "viewer"}, NewTenantScopedPolicy(hierarchy).AllowedRoles("manager"))
}

func TestAllowedRoles_NeverBlank(t *testing.T) {
	pol := NewTenantScopedPolicy(map[string][]string{"viewer": {"viewer", ""}})
	assert.Empty(t, pol.AllowedRoles(""))
	assert.Equal(t, []string{"viewer"}, pol.AllowedRoles("viewer"))
}

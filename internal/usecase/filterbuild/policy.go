package filterbuild

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/domain/principal"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/hvacsearch/internal/domain/search/result"
)

// SecurityPolicy layers access constraints on top of a user filter.
type SecurityPolicy interface {
	Apply(f filter.Filter, p principal.Principal) (filter.Filter, error)
}

// NoopPolicy leaves filters untouched.
type NoopPolicy struct{}

// Apply implements SecurityPolicy.
func (NoopPolicy) Apply(f filter.Filter, _ principal.Principal) (filter.Filter, error) {
	return f, nil
}

// FieldVendorID scopes vendor-portal users to their own records.
const FieldVendorID = "vendor_id"

// TenantScopedPolicy restricts non-admin callers to their OpCo and to records whose
// role_required their role may read. Vendor-portal callers see only their vendor.
type TenantScopedPolicy struct {
	hierarchy map[string][]string
}

// NewTenantScopedPolicy creates the policy. hierarchy maps a role to every role
// whose records it may read; a role missing from the map reads only its own.
func NewTenantScopedPolicy(hierarchy map[string][]string) *TenantScopedPolicy {
	h := make(map[string][]string, len(hierarchy))
	for role, allowed := range hierarchy {
		h[role] = slices.Clone(allowed)
	}
	return &TenantScopedPolicy{hierarchy: h}
}

// Apply implements SecurityPolicy.
func (p *TenantScopedPolicy) Apply(f filter.Filter, who principal.Principal) (filter.Filter, error) {
	if who.IsAdmin() {
		return f, nil
	}

	if who.IsVendorPortal() {
		if who.VendorID == "" {
			return filter.Filter{}, fmt.Errorf("%w: vendor account %q has no vendor binding", domain.ErrForbidden, who.UserID)
		}
		scope := filter.New().With(FieldVendorID, filter.Eq(who.VendorID))
		return filter.And(f, scope), nil
	}

	if strings.TrimSpace(who.Role) == "" {
		return filter.Filter{}, fmt.Errorf("%w: user %q has no role", domain.ErrForbidden, who.UserID)
	}
	if who.OpCo == "" {
		return filter.Filter{}, fmt.Errorf("%w: user %q has no operating company", domain.ErrForbidden, who.UserID)
	}

	scope := filter.New().
		With(result.FieldOpCo, filter.Eq(who.OpCo)).
		With(result.FieldRoleRequired, filter.In(p.AllowedRoles(who.Role)...))
	return filter.And(f, scope), nil
}

// AllowedRoles returns the role_required values readable by role.
// Blank roles are never returned.
func (p *TenantScopedPolicy) AllowedRoles(role string) []string {
	allowed := slices.DeleteFunc(slices.Clone(p.hierarchy[role]), func(r string) bool {
		return strings.TrimSpace(r) == ""
	})
	if strings.TrimSpace(role) != "" && !slices.Contains(allowed, role) {
		allowed = append(allowed, role)
	}
	return allowed
}

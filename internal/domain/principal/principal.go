package principal

import "time"

// Roles known to the access policy, least privileged first.
const (
	RoleViewer     = "viewer"
	RoleAnalyst    = "analyst"
	RoleManager    = "manager"
	RoleAdmin      = "admin"
	RoleVendor     = "vendor"
	RoleSuperAdmin = "super_admin"
)

// Principal is the authenticated caller as supplied by the session collaborator.
type Principal struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	OpCo      string    `json:"opco_id,omitempty"`   // empty for global admins
	VendorID  string    `json:"vendor_id,omitempty"` // set for vendor-portal users
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// IsAdmin reports whether the caller has unrestricted data access.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleSuperAdmin || (p.Role == RoleAdmin && p.OpCo == "")
}

// IsVendorPortal reports whether the caller is scoped to a single vendor.
func (p Principal) IsVendorPortal() bool {
	return p.VendorID != "" || p.Role == RoleVendor
}

// Expired reports whether the session backing the principal has lapsed at now.
func (p Principal) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

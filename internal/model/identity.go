package model

import "strings"

// Role is the console role derived from the claims of a session token.  The
// set is closed: every switch over Role in this module handles all three
// values.
type Role int

const (
	RoleEmployee    Role = iota // no elevated privilege
	RoleTenantAdmin             // administers a single tenant
	RoleSuperAdmin              // administers all tenants
)

// String returns the wire/display name of the role.
func (r Role) String() string {
	switch r {
	case RoleSuperAdmin:
		return "SuperAdmin"
	case RoleTenantAdmin:
		return "TenantAdmin"
	case RoleEmployee:
		return "Employee"
	}
	return "Employee"
}

// MarshalText lets Role appear as its name in JSON view models.
func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Privilege types carried in the PrivilegeType claim.
const (
	PrivilegeEmsAdmin    = "EmsAdmin"
	PrivilegeTenantAdmin = "TenantAdmin"
)

// DeriveRole computes the role from the privilege type and tenant claims.
// An administrative privilege without a tenant claim is a super admin; a
// tenant-admin privilege or any tenant claim is a tenant admin; everything
// else is an employee.
func DeriveRole(privilegeType, tenant string) Role {
	switch {
	case privilegeType == PrivilegeEmsAdmin && tenant == "":
		return RoleSuperAdmin
	case privilegeType == PrivilegeTenantAdmin || tenant != "":
		return RoleTenantAdmin
	default:
		return RoleEmployee
	}
}

// Identity is the locally decoded representation of the signed-in user.  It
// is rebuilt from the session token on every load and never persisted.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Role      Role   `json:"role"`
	TenantID  string `json:"tenantId,omitempty"`
	TenantKey string `json:"tenantKey,omitempty"`
}

// DisplayName is what the dashboard greets the user with: the name claim, or
// the local part of the email when no name was issued.
func (i Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	local, _, _ := strings.Cut(i.Email, "@")
	return local
}

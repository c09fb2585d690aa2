package auth

import (
	"fmt"
	"time"
)

// SystemRole is one of the closed, code-defined roles with built-in grants.
// System roles are policy, not data: they are never persisted as rows.
type SystemRole string

const (
	RoleSuperadmin SystemRole = "superadmin"
	RoleAdmin      SystemRole = "admin"
	RoleEditor     SystemRole = "editor"
	RoleReader     SystemRole = "reader"
	RoleViewer     SystemRole = "viewer"
)

// SystemRoles lists every valid system role.
func SystemRoles() []SystemRole {
	return []SystemRole{RoleSuperadmin, RoleAdmin, RoleEditor, RoleReader, RoleViewer}
}

// ParseSystemRole validates a role name against the closed set.
func ParseSystemRole(name string) (SystemRole, error) {
	role := SystemRole(name)
	for _, r := range SystemRoles() {
		if role == r {
			return role, nil
		}
	}
	return "", fmt.Errorf("unknown system role: %q", name)
}

// RoleKind discriminates the two variants of RoleRef.
type RoleKind string

const (
	RoleKindSystem RoleKind = "system"
	RoleKindCustom RoleKind = "custom"
)

// RoleRef is a tagged reference to either a system role or a tenant-scoped
// custom role. Memberships carry a RoleRef so the permission engine can
// dispatch on a real variant instead of parsing a name convention.
type RoleRef struct {
	Kind     RoleKind   `json:"kind"`
	System   SystemRole `json:"system,omitempty"`
	CustomID int64      `json:"custom_id,omitempty"`
}

// SystemRoleRef builds a RoleRef for a system role.
func SystemRoleRef(role SystemRole) RoleRef {
	return RoleRef{Kind: RoleKindSystem, System: role}
}

// CustomRoleRef builds a RoleRef for a custom role by id.
func CustomRoleRef(id int64) RoleRef {
	return RoleRef{Kind: RoleKindCustom, CustomID: id}
}

// IsZero reports whether the reference is unset.
func (r RoleRef) IsZero() bool {
	return r.Kind == ""
}

// IsSystem reports whether the reference points at the given system role.
func (r RoleRef) IsSystem(role SystemRole) bool {
	return r.Kind == RoleKindSystem && r.System == role
}

func (r RoleRef) String() string {
	switch r.Kind {
	case RoleKindSystem:
		return string(r.System)
	case RoleKindCustom:
		return fmt.Sprintf("custom:%d", r.CustomID)
	default:
		return "unset"
	}
}

// Subject is an authenticated actor. Credential verification happens outside
// this core; by the time a Subject exists, identity is established.
type Subject struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      RoleRef   `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsSuperadmin reports whether the subject holds the global superadmin role.
func (s *Subject) IsSuperadmin() bool {
	return s != nil && s.Role.IsSystem(RoleSuperadmin)
}

// Membership links a subject to a tenant with a role scoped to that tenant.
type Membership struct {
	ID        int64     `json:"id"`
	SubjectID int64     `json:"subject_id"`
	TenantID  int64     `json:"tenant_id"`
	Role      RoleRef   `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

package rbac

import (
	"errors"
	"fmt"
	"time"

	"github.com/origolabs/origo/pkg/auth"
)

// Resource names used by the content platform.
const (
	ResourcePages    = "pages"
	ResourcePosts    = "posts"
	ResourceCourses  = "courses"
	ResourceMedia    = "media"
	ResourceUsers    = "users"
	ResourceRoles    = "roles"
	ResourceSettings = "settings"
	ResourceDomains  = "domains"
)

// Wildcard matches any resource or action in a grant or override.
const Wildcard = "*"

// PermissionKey builds the canonical "resource.action" form.
func PermissionKey(resource, action string) string {
	return resource + "." + action
}

// CustomRole is a tenant-defined role extending one system role with
// explicit allow/deny overrides.
type CustomRole struct {
	ID          int64           `json:"id"`
	TenantID    int64           `json:"tenant_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	BasedOn     auth.SystemRole `json:"based_on"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RoleOverride is a per-role allow/deny fact for a (resource, action) pair.
// Resource and action may be the wildcard "*".
type RoleOverride struct {
	ID        int64     `json:"id"`
	RoleID    int64     `json:"role_id"`
	Resource  string    `json:"resource"`
	Action    string    `json:"action"`
	Allowed   bool      `json:"allowed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubjectOverride is the finest-grained, highest-precedence authorization
// fact: a per-subject allow/deny for a (resource, action) pair inside a
// tenant. It is independent of the subject's role and survives role changes.
type SubjectOverride struct {
	ID        int64     `json:"id"`
	SubjectID int64     `json:"subject_id"`
	TenantID  int64     `json:"tenant_id"`
	Resource  string    `json:"resource"`
	Action    string    `json:"action"`
	Allowed   bool      `json:"allowed"`
	CreatedAt time.Time `json:"created_at"`
}

// ResolvedRole is the display/editing view of a custom role: the grants of
// its base system role plus its override list.
type ResolvedRole struct {
	Role       CustomRole     `json:"role"`
	BaseGrants []string       `json:"base_grants"`
	Overrides  []RoleOverride `json:"overrides"`
}

// ErrRoleNotFound is returned when a custom role id does not exist.
var ErrRoleNotFound = errors.New("custom role not found")

// RoleNameConflictError reports a role name already taken within a tenant.
type RoleNameConflictError struct {
	TenantID int64
	Name     string
}

func (e *RoleNameConflictError) Error() string {
	return fmt.Sprintf("role name %q already exists in tenant %d", e.Name, e.TenantID)
}

// RoleInUseError reports a delete attempt on a role still referenced by
// subjects. Count lets the caller build a precise message.
type RoleInUseError struct {
	RoleID int64
	Count  int64
}

func (e *RoleInUseError) Error() string {
	return fmt.Sprintf("role %d is referenced by %d subject(s)", e.RoleID, e.Count)
}

// IsRoleInUse checks if an error is a RoleInUseError.
func IsRoleInUse(err error) bool {
	var target *RoleInUseError
	return errors.As(err, &target)
}

// PermissionDeniedError reports a denied action; it carries the resource and
// action for logging and UI messages.
type PermissionDeniedError struct {
	Resource string
	Action   string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied for %s", PermissionKey(e.Resource, e.Action))
}

// IsPermissionDenied checks if an error is a PermissionDeniedError.
func IsPermissionDenied(err error) bool {
	var target *PermissionDeniedError
	return errors.As(err, &target)
}

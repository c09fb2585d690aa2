package rbac

import "github.com/origolabs/origo/pkg/auth"

// Table is the immutable grant table for system roles. It is built once at
// startup from code-level policy and never mutated afterwards; treating the
// baseline grants as configuration keeps them out of reach of runtime
// tampering.
type Table struct {
	grants map[auth.SystemRole]map[string]struct{}
}

// systemGrants is the baseline policy. Entries use "resource.action" keys;
// "resource.*" grants every action on a resource and "*" grants everything.
var systemGrants = map[auth.SystemRole][]string{
	auth.RoleSuperadmin: {Wildcard},
	auth.RoleAdmin:      {Wildcard},
	auth.RoleEditor: {
		PermissionKey(ResourcePages, Wildcard),
		PermissionKey(ResourcePosts, Wildcard),
		PermissionKey(ResourceMedia, Wildcard),
		PermissionKey(ResourceCourses, "create"),
		PermissionKey(ResourceCourses, "read"),
		PermissionKey(ResourceCourses, "update"),
	},
	auth.RoleReader: {
		PermissionKey(ResourcePages, "read"),
		PermissionKey(ResourcePosts, "read"),
		PermissionKey(ResourceCourses, "read"),
		PermissionKey(ResourceMedia, "read"),
		PermissionKey(ResourceCourses, "enroll"),
	},
	auth.RoleViewer: {
		PermissionKey(ResourcePages, "read"),
		PermissionKey(ResourcePosts, "read"),
	},
}

// NewTable builds the grant table from the baseline policy.
func NewTable() *Table {
	grants := make(map[auth.SystemRole]map[string]struct{}, len(systemGrants))
	for role, keys := range systemGrants {
		set := make(map[string]struct{}, len(keys))
		for _, k := range keys {
			set[k] = struct{}{}
		}
		grants[role] = set
	}
	return &Table{grants: grants}
}

// Allows reports whether a system role grants the (resource, action) pair.
// Lookup precedence is exact match, then "resource.*", then "*"; the base
// table only contains grants, so any match allows.
func (t *Table) Allows(role auth.SystemRole, resource, action string) bool {
	set, ok := t.grants[role]
	if !ok {
		return false
	}
	if _, ok := set[PermissionKey(resource, action)]; ok {
		return true
	}
	if _, ok := set[PermissionKey(resource, Wildcard)]; ok {
		return true
	}
	_, ok = set[Wildcard]
	return ok
}

// Grants returns the grant keys for a system role, for the resolved-role
// view. The returned slice is a copy.
func (t *Table) Grants(role auth.SystemRole) []string {
	set, ok := t.grants[role]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}

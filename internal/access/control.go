package access

import (
	"sort"
	"sync"
)

// Control is the in-memory role and permission authority. Unknown
// principals have empty sets and are denied by default. All methods are
// safe for concurrent use.
type Control struct {
	mu     sync.RWMutex
	roles  map[string]map[Role]struct{}
	custom map[string]map[Permission]struct{}
}

// NewControl creates an empty authority.
func NewControl() *Control {
	return &Control{
		roles:  make(map[string]map[Role]struct{}),
		custom: make(map[string]map[Permission]struct{}),
	}
}

// AssignRole adds a role to the principal. Assigning an already held role
// is a no-op.
func (c *Control) AssignRole(principal string, role Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.roles[principal]
	if !ok {
		set = make(map[Role]struct{})
		c.roles[principal] = set
	}
	set[role] = struct{}{}
}

// RemoveRole removes a role from the principal. Removing an absent role is
// a no-op.
func (c *Control) RemoveRole(principal string, role Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.roles[principal]; ok {
		delete(set, role)
	}
}

// AddCustomPermission grants a permission directly, independent of roles.
func (c *Control) AddCustomPermission(principal string, perm Permission) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.custom[principal]
	if !ok {
		set = make(map[Permission]struct{})
		c.custom[principal] = set
	}
	set[perm] = struct{}{}
}

// RemoveCustomPermission revokes a directly granted permission. Permissions
// derived from roles are unaffected.
func (c *Control) RemoveCustomPermission(principal string, perm Permission) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.custom[principal]; ok {
		delete(set, perm)
	}
}

// HasPermission reports whether the principal holds the permission either
// directly or through any assigned role.
func (c *Control) HasPermission(principal string, perm Permission) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if set, ok := c.custom[principal]; ok {
		if _, ok := set[perm]; ok {
			return true
		}
	}
	for role := range c.roles[principal] {
		for _, p := range rolePermissions[role] {
			if p == perm {
				return true
			}
		}
	}
	return false
}

// HasRole reports whether the principal holds the role.
func (c *Control) HasRole(principal string, role Role) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.roles[principal][role]
	return ok
}

// IsAdmin reports whether the principal holds the admin role.
func (c *Control) IsAdmin(principal string) bool {
	return c.HasRole(principal, RoleAdmin)
}

// UserPermissions returns the principal's effective permission set: the
// union of role-derived and directly granted permissions, sorted.
func (c *Control) UserPermissions(principal string) []Permission {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set := make(map[Permission]struct{})
	for role := range c.roles[principal] {
		for _, p := range rolePermissions[role] {
			set[p] = struct{}{}
		}
	}
	for p := range c.custom[principal] {
		set[p] = struct{}{}
	}

	out := make([]Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UserRoles returns the principal's assigned roles, sorted.
func (c *Control) UserRoles(principal string) []Role {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Role, 0, len(c.roles[principal]))
	for r := range c.roles[principal] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidatePermissions reports whether the principal holds every listed
// permission.
func (c *Control) ValidatePermissions(principal string, perms []Permission) bool {
	for _, p := range perms {
		if !c.HasPermission(principal, p) {
			return false
		}
	}
	return true
}

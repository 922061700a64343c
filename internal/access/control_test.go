package access

import (
	"math/rand"
	"sync"
	"testing"
)

func TestDenyByDefault(t *testing.T) {
	c := NewControl()
	if c.HasPermission("nobody", PermViewProject) {
		t.Fatal("unknown principal must be denied")
	}
	if c.HasRole("nobody", RoleUser) {
		t.Fatal("unknown principal must have no roles")
	}
	if perms := c.UserPermissions("nobody"); len(perms) != 0 {
		t.Fatalf("expected empty permission set, got %v", perms)
	}
}

func TestRolePermissions(t *testing.T) {
	c := NewControl()
	c.AssignRole("carol", RoleCreator)

	if !c.HasPermission("carol", PermCreateProject) {
		t.Fatal("creator must be able to create projects")
	}
	if c.HasPermission("carol", PermManagePlatform) {
		t.Fatal("creator must not manage the platform")
	}
}

func TestAdminHasFullUniverse(t *testing.T) {
	c := NewControl()
	c.AssignRole("root", RoleAdmin)
	for _, p := range AllPermissions() {
		if !c.HasPermission("root", p) {
			t.Fatalf("admin missing %s", p)
		}
	}
	if !c.IsAdmin("root") {
		t.Fatal("IsAdmin must report true")
	}
}

func TestCustomPermissionsIndependentOfRoles(t *testing.T) {
	c := NewControl()
	c.AssignRole("ivan", RoleInvestor)
	c.AddCustomPermission("ivan", PermCreateProject)

	if !c.HasPermission("ivan", PermCreateProject) {
		t.Fatal("custom grant must apply")
	}
	c.RemoveRole("ivan", RoleInvestor)
	if !c.HasPermission("ivan", PermCreateProject) {
		t.Fatal("custom grant must survive role removal")
	}
	c.RemoveCustomPermission("ivan", PermCreateProject)
	if c.HasPermission("ivan", PermCreateProject) {
		t.Fatal("revoked custom grant must not apply")
	}
}

func TestAssignRemoveRoundTrip(t *testing.T) {
	c := NewControl()
	before := c.UserPermissions("u")

	c.AssignRole("u", RoleCollaborator)
	c.AssignRole("u", RoleCollaborator) // idempotent
	c.RemoveRole("u", RoleCollaborator)

	c.AddCustomPermission("u", PermViewAnalytics)
	c.RemoveCustomPermission("u", PermViewAnalytics)
	c.RemoveCustomPermission("u", PermViewAnalytics) // idempotent

	after := c.UserPermissions("u")
	if len(before) != 0 || len(after) != 0 {
		t.Fatalf("round trip must be a no-op: before=%v after=%v", before, after)
	}
}

// Effective set must equal the union of role-derived and custom grants for
// random assignments.
func TestEffectivePermissionUnionProperty(t *testing.T) {
	roles := []Role{RoleAdmin, RoleCreator, RoleCollaborator, RoleInvestor, RoleUser}
	universe := AllPermissions()
	rnd := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		c := NewControl()
		expected := make(map[Permission]struct{})

		for _, r := range roles {
			if rnd.Intn(2) == 0 {
				continue
			}
			c.AssignRole("p", r)
			for _, perm := range PermissionsForRole(r) {
				expected[perm] = struct{}{}
			}
		}
		for _, perm := range universe {
			if rnd.Intn(4) == 0 {
				c.AddCustomPermission("p", perm)
				expected[perm] = struct{}{}
			}
		}

		for _, perm := range universe {
			_, want := expected[perm]
			if got := c.HasPermission("p", perm); got != want {
				t.Fatalf("iteration %d: HasPermission(%s)=%v, want %v", i, perm, got, want)
			}
		}
		if got := c.UserPermissions("p"); len(got) != len(expected) {
			t.Fatalf("iteration %d: effective set size %d, want %d", i, len(got), len(expected))
		}
	}
}

func TestValidatePermissions(t *testing.T) {
	c := NewControl()
	c.AssignRole("dev", RoleCollaborator)

	if !c.ValidatePermissions("dev", []Permission{PermViewProject, PermJoinProject}) {
		t.Fatal("expected all permissions held")
	}
	if c.ValidatePermissions("dev", []Permission{PermViewProject, PermManageUsers}) {
		t.Fatal("expected AND over permissions to fail")
	}
	if !c.ValidatePermissions("dev", nil) {
		t.Fatal("empty permission list must validate")
	}
}

func TestConcurrentMutation(t *testing.T) {
	c := NewControl()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.AssignRole("p", RoleUser)
			c.AddCustomPermission("p", PermViewAnalytics)
		}()
		go func() {
			defer wg.Done()
			_ = c.HasPermission("p", PermViewAnalytics)
			_ = c.UserRoles("p")
		}()
	}
	wg.Wait()

	if !c.HasRole("p", RoleUser) {
		t.Fatal("role lost under concurrency")
	}
}

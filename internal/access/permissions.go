package access

// Role is one of the fixed platform roles.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleCreator      Role = "creator"
	RoleCollaborator Role = "collaborator"
	RoleInvestor     Role = "investor"
	RoleUser         Role = "user"
)

// Permission is a fine-grained capability.
type Permission string

const (
	PermCreateProject Permission = "create:project"
	PermUpdateProject Permission = "update:project"
	PermDeleteProject Permission = "delete:project"
	PermViewProject   Permission = "view:project"

	PermCreateResource Permission = "create:resource"
	PermUpdateResource Permission = "update:resource"
	PermDeleteResource Permission = "delete:resource"
	PermViewResource   Permission = "view:resource"

	PermManageCollaborators Permission = "manage:collaborators"
	PermJoinProject         Permission = "join:project"

	PermManageUsers    Permission = "manage:users"
	PermManageRoles    Permission = "manage:roles"
	PermViewAnalytics  Permission = "view:analytics"
	PermManagePlatform Permission = "manage:platform"
)

// allPermissions is the full permission universe, granted to admins.
var allPermissions = []Permission{
	PermCreateProject, PermUpdateProject, PermDeleteProject, PermViewProject,
	PermCreateResource, PermUpdateResource, PermDeleteResource, PermViewResource,
	PermManageCollaborators, PermJoinProject,
	PermManageUsers, PermManageRoles, PermViewAnalytics, PermManagePlatform,
}

// rolePermissions is the static role-to-permission table. It is never
// mutated after init.
var rolePermissions = map[Role][]Permission{
	RoleAdmin: allPermissions,
	RoleCreator: {
		PermCreateProject, PermUpdateProject, PermDeleteProject, PermViewProject,
		PermCreateResource, PermUpdateResource, PermDeleteResource, PermViewResource,
		PermManageCollaborators,
	},
	RoleCollaborator: {
		PermViewProject, PermCreateResource, PermUpdateResource, PermViewResource,
		PermJoinProject,
	},
	RoleInvestor: {
		PermViewProject, PermViewResource, PermViewAnalytics,
	},
	RoleUser: {
		PermViewProject, PermViewResource, PermJoinProject,
	},
}

// AllPermissions returns a copy of the permission universe.
func AllPermissions() []Permission {
	out := make([]Permission, len(allPermissions))
	copy(out, allPermissions)
	return out
}

// PermissionsForRole returns a copy of the permissions a role grants.
func PermissionsForRole(r Role) []Permission {
	perms, ok := rolePermissions[r]
	if !ok {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// ValidRole reports whether r is one of the fixed roles.
func ValidRole(r Role) bool {
	_, ok := rolePermissions[r]
	return ok
}

// RoleStrings converts roles for wire responses.
func RoleStrings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

// PermissionStrings converts permissions for wire responses.
func PermissionStrings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

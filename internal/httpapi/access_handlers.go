package httpapi

import (
	"net/http"
	"strings"

	"neplus.org/internal/access"
)

type roleRequest struct {
	Role string `json:"role"`
}

type permissionRequest struct {
	Permission string `json:"permission"`
}

type validatePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// requirePermission checks the caller against the access authority. A
// refusal is audited as an access violation.
func (a *API) requirePermission(w http.ResponseWriter, r *http.Request, perm access.Permission) (string, bool) {
	actor, ok := a.requireActor(w, r)
	if !ok {
		return "", false
	}
	if !a.access.HasPermission(actor, perm) {
		_ = a.auditor.AccessViolation(r.Context(), actor, r.URL.Path, map[string]any{
			"permission": string(perm),
			"method":     r.Method,
		})
		writeError(w, r, http.StatusForbidden, "permission denied")
		return "", false
	}
	return actor, true
}

func (a *API) handlePrincipalScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/access/principals/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	principal := parts[0]

	switch parts[1] {
	case "roles":
		switch len(parts) {
		case 2:
			a.handlePrincipalRoles(w, r, principal)
		case 3:
			a.handlePrincipalRole(w, r, principal, parts[2])
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	case "permissions":
		switch {
		case len(parts) == 2:
			a.handlePrincipalPermissions(w, r, principal)
		case len(parts) == 3 && parts[2] == "validate":
			a.validatePrincipalPermissions(w, r, principal)
		case len(parts) == 3:
			a.handlePrincipalPermission(w, r, principal, parts[2])
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handlePrincipalRoles(w http.ResponseWriter, r *http.Request, principal string) {
	switch r.Method {
	case http.MethodGet:
		if !a.allowRead(w, r, principal, access.PermManageRoles) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"principal": principal,
			"roles":     access.RoleStrings(a.access.UserRoles(principal)),
		})
	case http.MethodPost:
		if _, ok := a.requirePermission(w, r, access.PermManageRoles); !ok {
			return
		}
		var req roleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role := access.Role(strings.TrimSpace(req.Role))
		if !access.ValidRole(role) {
			writeError(w, r, http.StatusBadRequest, "unknown role")
			return
		}
		a.access.AssignRole(principal, role)
		if err := a.auditor.RoleChange(r.Context(), principal, role, "assign"); err != nil {
			writeError(w, r, http.StatusInternalServerError, "audit failure")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"principal": principal,
			"role":      string(role),
		})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePrincipalRole(w http.ResponseWriter, r *http.Request, principal, rawRole string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if _, ok := a.requirePermission(w, r, access.PermManageRoles); !ok {
		return
	}
	role := access.Role(rawRole)
	if !access.ValidRole(role) {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}
	a.access.RemoveRole(principal, role)
	if err := a.auditor.RoleChange(r.Context(), principal, role, "remove"); err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit failure")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePrincipalPermissions(w http.ResponseWriter, r *http.Request, principal string) {
	switch r.Method {
	case http.MethodGet:
		if !a.allowRead(w, r, principal, access.PermManageUsers) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"principal":   principal,
			"permissions": access.PermissionStrings(a.access.UserPermissions(principal)),
		})
	case http.MethodPost:
		if _, ok := a.requirePermission(w, r, access.PermManageUsers); !ok {
			return
		}
		var req permissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		perm := access.Permission(strings.TrimSpace(req.Permission))
		if perm == "" {
			writeError(w, r, http.StatusBadRequest, "permission is required")
			return
		}
		a.access.AddCustomPermission(principal, perm)
		if err := a.auditor.PermissionChange(r.Context(), principal, perm, "grant"); err != nil {
			writeError(w, r, http.StatusInternalServerError, "audit failure")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"principal":  principal,
			"permission": string(perm),
		})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePrincipalPermission(w http.ResponseWriter, r *http.Request, principal, rawPerm string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if _, ok := a.requirePermission(w, r, access.PermManageUsers); !ok {
		return
	}
	perm := access.Permission(rawPerm)
	a.access.RemoveCustomPermission(principal, perm)
	if err := a.auditor.PermissionChange(r.Context(), principal, perm, "revoke"); err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit failure")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) validatePrincipalPermissions(w http.ResponseWriter, r *http.Request, principal string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.allowRead(w, r, principal, access.PermManageUsers) {
		return
	}
	var req validatePermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perms := make([]access.Permission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		perms = append(perms, access.Permission(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"principal": principal,
		"valid":     a.access.ValidatePermissions(principal, perms),
	})
}

// allowRead lets a principal read their own access state; anyone else
// needs the manage permission.
func (a *API) allowRead(w http.ResponseWriter, r *http.Request, principal string, perm access.Permission) bool {
	actor, ok := a.requireActor(w, r)
	if !ok {
		return false
	}
	if actor == principal {
		return true
	}
	if !a.access.HasPermission(actor, perm) {
		_ = a.auditor.AccessViolation(r.Context(), actor, r.URL.Path, map[string]any{
			"permission": string(perm),
			"method":     r.Method,
		})
		writeError(w, r, http.StatusForbidden, "permission denied")
		return false
	}
	return true
}

package rbac

import (
	"context"
	"errors"
	"fmt"
)

// RoleSource provides role definitions.
type RoleSource interface {
	Load(ctx context.Context) (map[string]Role, error)
}

// Authorizer answers permission checks against a fixed role table. The
// effective permissions of each role are flattened at construction, so
// checks never walk the inheritance graph. Safe for concurrent use.
type Authorizer struct {
	permissions map[string][]string
}

// NewAuthorizer loads roles from source and validates inheritance.
func NewAuthorizer(ctx context.Context, source RoleSource) (*Authorizer, error) {
	roles, err := source.Load(ctx)
	if err != nil {
		return nil, err
	}

	a := &Authorizer{permissions: make(map[string][]string, len(roles))}
	for name := range roles {
		perms, err := flatten(name, roles, nil)
		if err != nil {
			return nil, err
		}
		a.permissions[name] = normalize(perms)
	}
	return a, nil
}

// flatten collects the permissions of name and its ancestors. chain is the
// inheritance path that led to name.
func flatten(name string, roles map[string]Role, chain []string) ([]string, error) {
	for _, seen := range chain {
		if seen == name {
			return nil, errors.Join(ErrCircularInheritance, fmt.Errorf("%v -> %s", chain, name))
		}
	}
	if len(chain) > MaxInheritanceDepth {
		return nil, errors.Join(ErrCircularInheritance, fmt.Errorf("inheritance deeper than %d", MaxInheritanceDepth))
	}

	role, ok := roles[name]
	if !ok {
		return nil, errors.Join(ErrInvalidRoleDefinition, fmt.Errorf("unknown role %q", name))
	}

	perms := append([]string(nil), role.Permissions...)
	for _, parent := range role.Inherits {
		inherited, err := flatten(parent, roles, append(chain, name))
		if err != nil {
			return nil, err
		}
		perms = append(perms, inherited...)
	}
	return perms, nil
}

// Can returns nil when role holds permission.
func (a *Authorizer) Can(role, permission string) error {
	perms, ok := a.permissions[role]
	if !ok {
		return ErrInvalidRole
	}
	if !granted(perms, permission) {
		return ErrInsufficientPermissions
	}
	return nil
}

// CanAny returns nil when role holds at least one of permissions.
func (a *Authorizer) CanAny(role string, permissions ...string) error {
	perms, ok := a.permissions[role]
	if !ok {
		return ErrInvalidRole
	}
	if len(permissions) == 0 {
		return nil
	}
	for _, p := range permissions {
		if granted(perms, p) {
			return nil
		}
	}
	return ErrInsufficientPermissions
}

// Permissions returns the flattened permissions of role.
func (a *Authorizer) Permissions(role string) []string {
	return a.permissions[role]
}

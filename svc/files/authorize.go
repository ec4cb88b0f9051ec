package files

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/teamfiles/pkg/rbac"
)

// Capability is an operation class checked against a translated path.
type Capability string

const (
	CapRead         Capability = "read"
	CapUpload       Capability = "upload"
	CapCreateFolder Capability = "createFolder"
	CapDelete       Capability = "delete"
)

// Permission is the rbac permission backing the capability.
func (c Capability) Permission() string { return "files." + string(c) }

// Roles known to DefaultRoles.
const (
	RoleGuest   = "guest"
	RoleMember  = "member"
	RoleManager = "manager"
	RoleOwner   = "owner"
)

// Authorizer is the capability oracle. It returns nil or an error wrapping
// ErrUnauthorized.
type Authorizer interface {
	Authorize(ctx context.Context, userID int64, c Capability, p *TranslatedPath) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, userID int64, c Capability, p *TranslatedPath) error

func (f AuthorizerFunc) Authorize(ctx context.Context, userID int64, c Capability, p *TranslatedPath) error {
	return f(ctx, userID, c, p)
}

func denyAll(context.Context, int64, Capability, *TranslatedPath) error { return ErrUnauthorized }

// DefaultRoles returns the built-in file roles.
func DefaultRoles() map[string]rbac.Role {
	return map[string]rbac.Role{
		RoleGuest:   {Permissions: []string{CapRead.Permission()}},
		RoleMember:  {Permissions: []string{CapUpload.Permission(), CapCreateFolder.Permission()}, Inherits: []string{RoleGuest}},
		RoleManager: {Permissions: []string{CapDelete.Permission()}, Inherits: []string{RoleMember}},
		RoleOwner:   {Permissions: []string{"files.*"}},
	}
}

// RBACAuthorizer grants capabilities from the user's channel role, falling
// back to the team role, for channel paths and from the team role for team
// paths.
type RBACAuthorizer struct {
	members MembershipSource
	roles   *rbac.Authorizer
}

// NewRBACAuthorizer loads roles from source, or DefaultRoles when nil.
func NewRBACAuthorizer(ctx context.Context, members MembershipSource, source rbac.RoleSource) (*RBACAuthorizer, error) {
	if source == nil {
		source = rbac.NewMemorySource(DefaultRoles())
	}
	roles, err := rbac.NewAuthorizer(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("files: load roles: %w", err)
	}
	return &RBACAuthorizer{members: members, roles: roles}, nil
}

func (a *RBACAuthorizer) Authorize(ctx context.Context, userID int64, c Capability, p *TranslatedPath) error {
	role, err := a.role(ctx, userID, p)
	if err != nil {
		return err
	}
	if role == "" {
		return fmt.Errorf("%w: user %d has no role on %s", ErrUnauthorized, userID, p.DisplayPath)
	}
	if err := a.roles.Can(role, c.Permission()); err != nil {
		if errors.Is(err, rbac.ErrInsufficientPermissions) || errors.Is(err, rbac.ErrInvalidRole) {
			return errors.Join(ErrUnauthorized, err)
		}
		return err
	}
	return nil
}

func (a *RBACAuthorizer) role(ctx context.Context, userID int64, p *TranslatedPath) (string, error) {
	if p.Channel != nil {
		role, err := a.members.ChannelRole(ctx, userID, p.Channel.ID)
		if err != nil {
			return "", fmt.Errorf("files: channel role: %w", err)
		}
		if role != "" {
			return role, nil
		}
	}
	role, err := a.members.TeamRole(ctx, userID, p.Team.ID)
	if err != nil {
		return "", fmt.Errorf("files: team role: %w", err)
	}
	return role, nil
}

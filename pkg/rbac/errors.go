package rbac

import "errors"

var (
	ErrInvalidRole             = errors.New("rbac: invalid role")
	ErrInsufficientPermissions = errors.New("rbac: insufficient permissions")
	ErrCircularInheritance     = errors.New("rbac: circular role inheritance")
	ErrInvalidRoleDefinition   = errors.New("rbac: invalid role definition")
)

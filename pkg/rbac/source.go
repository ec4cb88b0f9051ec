package rbac

import (
	"context"
	"errors"
	"io"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

type memorySource map[string]Role

// NewMemorySource serves a copy of roles.
func NewMemorySource(roles map[string]Role) RoleSource {
	src := make(memorySource, len(roles))
	for name, r := range roles {
		src[name] = Role{
			Permissions: slices.Clone(r.Permissions),
			Inherits:    slices.Clone(r.Inherits),
		}
	}
	return src
}

func (s memorySource) Load(context.Context) (map[string]Role, error) {
	return maps.Clone(map[string]Role(s)), nil
}

// ParseYAML decodes a role table of the form
//
//	member:
//	  permissions: [files.read, files.upload]
//	manager:
//	  inherits: [member]
//	  permissions: [files.delete]
func ParseYAML(r io.Reader) (RoleSource, error) {
	var roles map[string]Role
	if err := yaml.NewDecoder(r).Decode(&roles); err != nil {
		return nil, errors.Join(ErrInvalidRoleDefinition, err)
	}
	return NewMemorySource(roles), nil
}

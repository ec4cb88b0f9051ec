// Package rbac maps roles onto dot-separated permissions with wildcard
// support and single-parent or multi-parent inheritance.
//
//	src := rbac.NewMemorySource(map[string]rbac.Role{
//		"guest":   {Permissions: []string{"files.read"}},
//		"member":  {Inherits: []string{"guest"}, Permissions: []string{"files.upload"}},
//		"owner":   {Permissions: []string{"files.*"}},
//	})
//	auth, err := rbac.NewAuthorizer(ctx, src)
//	if err := auth.Can("member", "files.upload"); err != nil {
//		// ErrInsufficientPermissions or ErrInvalidRole
//	}
//
// Role tables can also be read from YAML with ParseYAML.
package rbac

package rbac

// MaxInheritanceDepth bounds role inheritance chains.
const MaxInheritanceDepth = 10

// Role is a set of permissions plus the roles it inherits from.
// Permissions are dot-separated ("files.upload") and may end in a
// wildcard ("files.*", "*").
type Role struct {
	Permissions []string `yaml:"permissions"`
	Inherits    []string `yaml:"inherits"`
}

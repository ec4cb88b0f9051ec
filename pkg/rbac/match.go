package rbac

import (
	"slices"
	"strings"
)

const (
	wildcard  = "*"
	delimiter = "."
)

// Matches reports whether permission is granted by pattern. "*" grants
// everything; "files.*" grants every permission under "files.".
func Matches(permission, pattern string) bool {
	if permission == pattern || pattern == wildcard {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, delimiter+wildcard); ok {
		return strings.HasPrefix(permission, prefix+delimiter)
	}
	return false
}

func granted(patterns []string, permission string) bool {
	return slices.ContainsFunc(patterns, func(p string) bool {
		return Matches(permission, p)
	})
}

func normalize(perms []string) []string {
	out := slices.Clone(perms)
	slices.Sort(out)
	return slices.Compact(out)
}

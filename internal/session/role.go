package session

import (
	"regexp"
	"strings"
)

var superAdminPattern = regexp.MustCompile(`(?i)super\s*admin`)

// IsSuperAdminRole classifies a backend role string as super-admin. The
// backend is inconsistent about casing, underscores, and spacing
// ("super_admin", "Super Admin", " SUPERADMIN "), so every call site must
// go through this one function.
func IsSuperAdminRole(role string) bool {
	folded := strings.TrimSpace(strings.ReplaceAll(role, "_", " "))
	return superAdminPattern.MatchString(folded)
}

// NormalizeRole returns the canonical role label used by the console:
// "superadmin", or the lowercased trimmed backend role otherwise.
func NormalizeRole(role string) string {
	if IsSuperAdminRole(role) {
		return "superadmin"
	}
	return strings.ToLower(strings.TrimSpace(role))
}

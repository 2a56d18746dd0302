package portal

// IsValid checks if the role is one of the predefined valid roles
func IsValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleArtist, RoleInactive:
		return true
	default:
		return false
	}
}

// CanModerate checks if this role can review, approve, and trash tracks
func CanModerate(r Role) bool {
	return r == RoleAdmin
}

// CanUpload checks if this role can submit new tracks
func CanUpload(r Role) bool {
	switch r {
	case RoleAdmin, RoleArtist:
		return true
	default:
		return false
	}
}

// CanSignIn checks if this role may hold an authenticated session
func CanSignIn(r Role) bool {
	return r != RoleInactive && IsValidRole(r)
}

// GetAllRoles returns all predefined roles in privilege order
func GetAllRoles() []Role {
	return []Role{
		RoleInactive,
		RoleArtist,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a Role type
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, IsValidRole(role)
}

// RoleForEmail applies the provisioning default: admin for the bootstrap
// address, artist for everyone else. Both the profile trigger and the
// client-side fallback profile use this rule.
func RoleForEmail(email, bootstrapAdminEmail string) Role {
	if email != "" && email == bootstrapAdminEmail {
		return RoleAdmin
	}
	return RoleArtist
}

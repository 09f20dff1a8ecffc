package auth

// Role claims carried in tokens. Every account is a fan; artist is added
// once the user owns an artist profile; ops comes from the configured
// allowlist.
const (
	RoleFan    = "fan"
	RoleArtist = "artist"
	RoleOps    = "ops"
)

// RolesFor derives the role claims to embed at token issue time.
func RolesFor(isArtist, isOps bool) []string {
	roles := []string{RoleFan}
	if isArtist {
		roles = append(roles, RoleArtist)
	}
	if isOps {
		roles = append(roles, RoleOps)
	}
	return roles
}

package state

// a bitmap representing a set of capabilities
type Permission uint64

const (
	PermCanRead     Permission = 1 << iota
	PermCanWrite               // 2
	PermCanModerate            // 4
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

var RolePerms = map[Role]Permission{
	RoleOwner:  PermCanRead | PermCanWrite | PermCanModerate,
	RoleAdmin:  PermCanRead | PermCanWrite | PermCanModerate,
	RoleMember: PermCanRead | PermCanWrite,
	RoleViewer: PermCanRead,
}

// PermissionsFor returns the capability bitmap of a workspace role. Unknown roles get read only.
func PermissionsFor(role Role) Permission {
	if p, ok := RolePerms[role]; ok {
		return p
	}
	return PermCanRead
}

func (p Permission) Has(flag Permission) bool {
	return p&flag == flag
}

package domain

// Role is the access level carried by admin bearer tokens.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleAdmin  Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleAdmin:  2,
}

// HasPermission reports whether r grants at least the access of min.
func (r Role) HasPermission(min Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[min]
}

package domain

// Well-known role names referenced by workflow transitions and guards.
const (
	RoleAgent   = "agent"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// Actor is the authenticated principal executing a transition.
type Actor struct {
	ID    string
	Name  string
	Roles []string
}

// HasRole reports whether the actor holds the named role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

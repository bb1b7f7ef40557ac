package domain

// Role gates which lifecycle operations an actor may perform.
type Role string

const (
	RoleCitizen Role = "citizen"
	RoleAdmin   Role = "admin"
)

func (r Role) IsValid() bool {
	return r == RoleCitizen || r == RoleAdmin
}

// Actor is the authenticated principal behind a request.
type Actor struct {
	ID   UserID
	Role Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin && !a.ID.IsNil() }

func (a Actor) IsCitizen() bool { return a.Role == RoleCitizen && !a.ID.IsNil() }

// IsZero reports whether no principal is attached.
func (a Actor) IsZero() bool { return a.ID.IsNil() }

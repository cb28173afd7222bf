package models

// Role names the capabilities an actor carries into a workflow transition.
type Role string

const (
	RoleAuthor   Role = "Author"
	RoleReviewer Role = "Reviewer"
	RoleApprover Role = "Approver"
	RoleAdmin    Role = "Admin"
)

// Actor is the identity performing an operation, as resolved by the external
// identity/RBAC collaborator.
type Actor struct {
	ID    string `json:"id"    validate:"required"`
	Name  string `json:"name,omitempty"`
	Roles []Role `json:"roles"`
}

// HasRole reports whether the actor carries the given role.
func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}

	return false
}

// IsAdmin reports whether the actor carries the Admin role. Admins pass every
// role guard.
func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}

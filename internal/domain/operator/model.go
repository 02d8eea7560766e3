package operator

import (
	"time"
)

// Role is a named capability set granted to an operator.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleLead   Role = "lead"
	RoleMember Role = "member"
)

// Operator is a human user of the console. The orchestration core does not
// own operator accounts; it references them by public ID and reads the role
// set to answer capability questions.
type Operator struct {
	ID          uint      `json:"-"`
	PublicID    string    `json:"id"`
	DisplayName string    `json:"display_name"`
	// Address is the operator's own external chat address. Inbound messages
	// from this address are checked for in-band admin commands.
	Address   string    `json:"address"`
	Roles     []Role    `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasRole reports whether the operator holds the given role.
func (o *Operator) HasRole(role Role) bool {
	for _, r := range o.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the operator holds at least one of the roles.
func (o *Operator) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if o.HasRole(role) {
			return true
		}
	}
	return false
}

// CanOwnHandoffs reports whether the operator may take exclusive control of
// a conversation. Only admins and leads qualify.
func (o *Operator) CanOwnHandoffs() bool {
	return o.HasAnyRole(RoleAdmin, RoleLead)
}

package modkit

import "fmt"

// Role is an account's position in the moderation hierarchy.
// Roles are totally ordered: Blocked < User < Moderator < Creator.
type Role string

const (
	RoleBlocked   Role = "blocked"
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleCreator   Role = "creator"
)

// Roles lists every role in ascending order.
var Roles = []Role{RoleBlocked, RoleUser, RoleModerator, RoleCreator}

func (r Role) rank() int {
	switch r {
	case RoleBlocked:
		return 0
	case RoleUser:
		return 1
	case RoleModerator:
		return 2
	case RoleCreator:
		return 3
	}
	return -1
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return r.rank() >= 0
}

// Compare returns -1, 0 or +1 depending on whether r ranks below, equal to or above o.
func (r Role) Compare(o Role) int {
	switch a, b := r.rank(), o.rank(); {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// AtLeast reports whether r ranks at or above o. Unknown roles rank below everything.
func (r Role) AtLeast(o Role) bool {
	return r.Valid() && r.rank() >= o.rank()
}

// AtMost reports whether r ranks at or below o.
func (r Role) AtMost(o Role) bool {
	return r.Valid() && r.rank() <= o.rank()
}

// String returns the stored representation of the role.
func (r Role) String() string {
	return string(r)
}

// ParseRole converts a stored role name back into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", NewError(ErrInvalidRole, fmt.Sprintf("unknown role %q", s))
	}
	return r, nil
}

// RolePolicy selects the role of an account when it is first registered.
type RolePolicy func(id int64) Role

// CreatorPolicy returns the default initial-role policy: the configured creator id
// becomes Creator, every other account starts as User. A nil creator disables the
// Creator assignment.
func CreatorPolicy(creator *int64) RolePolicy {
	if creator == nil {
		return func(int64) Role { return RoleUser }
	}
	id := *creator
	return func(candidate int64) Role {
		if candidate == id {
			return RoleCreator
		}
		return RoleUser
	}
}

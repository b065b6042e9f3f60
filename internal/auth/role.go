package auth

import (
	"errors"
	"fmt"
)

var ErrUnknownRole = errors.New("unknown role")

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

func (r Role) String() string {
	return string(r)
}

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// ParseRole accepts only the exact stored spelling of a role.
func ParseRole(s string) (Role, error) {
	role := Role(s)
	if !role.Valid() {
		return "", fmt.Errorf("%w: [%s]", ErrUnknownRole, s)
	}
	return role, nil
}

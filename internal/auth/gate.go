package auth

import "errors"

// ErrUnauthorized is returned both for a missing session and an insufficient role.
var ErrUnauthorized = errors.New("unauthorized")

type Policy []Role

var (
	AnyAdmin       = Policy{RoleAdmin, RoleSuperAdmin}
	SuperAdminOnly = Policy{RoleSuperAdmin}
)

func (p Policy) Check(user *SessionUser) error {
	return RequireRole(user, p...)
}

func RequireRole(user *SessionUser, allowed ...Role) error {
	if user == nil {
		return ErrUnauthorized
	}
	for _, role := range allowed {
		if user.Role == role {
			return nil
		}
	}
	return ErrUnauthorized
}

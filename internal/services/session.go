package services

import "github.com/tbourn/go-marketplace-backend/internal/domain"

// Session is the caller identity passed explicitly to every operation.
type Session struct {
	UserID string
	Role   domain.Role
}

// require checks that the session is authenticated and, when role is set,
// holds that role.
func (s Session) require(op string, role domain.Role) error {
	if s.UserID == "" {
		return newErr(KindUnauthorized, op, "authentication required", nil)
	}
	if role != domain.RoleNone && s.Role != role {
		return forbidden(op, "requires role "+string(role))
	}
	return nil
}

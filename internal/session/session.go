// Package session carries the resolved caller identity. Handlers receive it
// explicitly; nothing reads it back from a context or a global.
package session

import (
	"errors"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
)

var (
	ErrInvalidSession = errors.New("invalid_session")
	ErrRoleMismatch   = errors.New("role_mismatch")
)

type Session struct {
	TenantID snowflake.ID
	UserID   snowflake.ID
	Role     tenantdomain.Role
}

func (s Session) Validate() error {
	if s.TenantID == 0 || s.UserID == 0 || !s.Role.Valid() {
		return ErrInvalidSession
	}
	return nil
}

func (s Session) IsSuperAdmin() bool {
	return s.Role == tenantdomain.RoleSuperAdmin
}

// IsAdmin is true for tenant admins and superadmins.
func (s Session) IsAdmin() bool {
	return s.Role == tenantdomain.RoleAdmin || s.Role == tenantdomain.RoleSuperAdmin
}

// CanActFor reports whether the caller may read or write data owned by userID.
// Clients only ever act for themselves.
func (s Session) CanActFor(userID snowflake.ID) bool {
	if s.IsAdmin() {
		return true
	}
	return userID != 0 && userID == s.UserID
}

// FromUser builds a session for a stored user acting in tenantID. Only a
// superadmin may act in a tenant other than its own. A non-empty claimed role
// must match the stored one.
func FromUser(user tenantdomain.User, tenantID snowflake.ID, claimed tenantdomain.Role) (Session, error) {
	if user.ID == 0 {
		return Session{}, ErrInvalidSession
	}
	if tenantID == 0 {
		tenantID = user.TenantID
	}
	if claimed != "" && claimed != user.Role {
		return Session{}, ErrRoleMismatch
	}
	if user.TenantID != tenantID && user.Role != tenantdomain.RoleSuperAdmin {
		return Session{}, ErrInvalidSession
	}
	s := Session{TenantID: tenantID, UserID: user.ID, Role: user.Role}
	return s, s.Validate()
}

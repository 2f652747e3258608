package server

import (
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/meterbill/internal/observability/context"
	"github.com/smallbiznis/meterbill/internal/session"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
)

const (
	headerTenantID = "X-Tenant-ID"
	headerUserID   = "X-User-ID"
	headerRole     = "X-Role"

	sessionContextKey = "meterbill.session"
)

// SessionRequired resolves the caller from identity headers set by the
// authenticating proxy. The stored user is authoritative for the role.
func (s *Server) SessionRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := s.resolveSession(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(sessionContextKey, sess)
		ctx := obscontext.WithTenantID(c.Request.Context(), sess.TenantID.String())
		ctx = obscontext.WithActor(ctx, string(sess.Role), sess.UserID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) resolveSession(c *gin.Context) (session.Session, error) {
	userID, ok := optionalID(c.GetHeader(headerUserID))
	if !ok || userID == nil {
		return session.Session{}, ErrUnauthorized
	}
	tenantID, ok := optionalID(c.GetHeader(headerTenantID))
	if !ok {
		return session.Session{}, ErrUnauthorized
	}
	claimed := tenantdomain.Role(strings.ToLower(strings.TrimSpace(c.GetHeader(headerRole))))

	user, err := s.tenantSvc.GetUser(c.Request.Context(), *userID)
	if err != nil {
		if errors.Is(err, tenantdomain.ErrUserNotFound) {
			return session.Session{}, ErrUnauthorized
		}
		return session.Session{}, err
	}

	var target snowflake.ID
	if tenantID != nil {
		target = *tenantID
	}
	sess, err := session.FromUser(user, target, claimed)
	if err != nil {
		return session.Session{}, err
	}
	if sess.TenantID != user.TenantID {
		if _, err := s.tenantSvc.GetTenant(c.Request.Context(), sess.TenantID); err != nil {
			return session.Session{}, err
		}
	}
	return sess, nil
}

func currentSession(c *gin.Context) (session.Session, bool) {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return session.Session{}, false
	}
	sess, ok := value.(session.Session)
	return sess, ok
}

// authorize gates a route on the casbin policy for the caller's role.
func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := currentSession(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), sess, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// targetUser picks the user a request acts for. Clients default to
// themselves and may not name anyone else.
func targetUser(sess session.Session, value string) (snowflake.ID, error) {
	id, ok := optionalID(value)
	if !ok {
		return 0, newValidationError("user_id", "invalid_user_id", "invalid id")
	}
	if id == nil {
		if sess.IsAdmin() {
			return 0, newValidationError("user_id", "required", "user_id is required")
		}
		return sess.UserID, nil
	}
	if !sess.CanActFor(*id) {
		return 0, ErrForbidden
	}
	return *id, nil
}

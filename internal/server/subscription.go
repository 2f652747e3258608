package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/meterbill/internal/session"
	subscriptiondomain "github.com/smallbiznis/meterbill/internal/subscription/domain"
)

type subscribeRequest struct {
	UserID string `json:"user_id"`
	PlanID string `json:"plan_id"`
}

func (r subscribeRequest) toRequest(sess session.Session) (subscriptiondomain.SubscribeRequest, error) {
	userID, err := parseID("user_id", r.UserID)
	if err != nil {
		return subscriptiondomain.SubscribeRequest{}, err
	}
	planID, err := parseID("plan_id", r.PlanID)
	if err != nil {
		return subscriptiondomain.SubscribeRequest{}, err
	}
	return subscriptiondomain.SubscribeRequest{TenantID: sess.TenantID, UserID: userID, PlanID: planID}, nil
}

func (s *Server) Subscribe(c *gin.Context) {
	sess, _ := currentSession(c)

	var body subscribeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req, err := body.toRequest(sess)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	// Plans of other tenants read as missing.
	if _, err := s.tenantPlan(c.Request.Context(), sess, req.PlanID); err != nil {
		AbortWithError(c, err)
		return
	}

	sub, err := s.subscriptionSvc.Subscribe(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": sub})
}

// GetSubscription returns the caller's active subscription, or the named
// user's for admins.
func (s *Server) GetSubscription(c *gin.Context) {
	sess, userID, ok := s.subscriptionTarget(c)
	if !ok {
		return
	}
	sub, err := s.subscriptionSvc.ActiveSubscription(c.Request.Context(), sess.TenantID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	sess, userID, ok := s.subscriptionTarget(c)
	if !ok {
		return
	}
	if err := s.subscriptionSvc.Cancel(c.Request.Context(), sess.TenantID, userID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ListSubscriptionHistory(c *gin.Context) {
	sess, userID, ok := s.subscriptionTarget(c)
	if !ok {
		return
	}
	audits, err := s.subscriptionSvc.ListAudits(c.Request.Context(), sess.TenantID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": audits})
}

func (s *Server) subscriptionTarget(c *gin.Context) (session.Session, snowflake.ID, bool) {
	sess, _ := currentSession(c)
	userID, err := targetUser(sess, c.Param("user_id"))
	if err != nil {
		AbortWithError(c, err)
		return session.Session{}, 0, false
	}
	return sess, userID, true
}

package server

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	plandomain "github.com/smallbiznis/meterbill/internal/plan/domain"
	"github.com/smallbiznis/meterbill/internal/session"
)

type createPlanRequest struct {
	Name       string `json:"name"`
	MonthlyFee string `json:"monthly_fee"`
}

type setPlanLimitRequest struct {
	Metric        string  `json:"metric"`
	IncludedUnits float64 `json:"included_units"`
	OverageRate   string  `json:"overage_rate"`
}

func (s *Server) ListPlans(c *gin.Context) {
	sess, _ := currentSession(c)

	plans, err := s.planSvc.ListPlans(c.Request.Context(), sess.TenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": plans})
}

func (s *Server) CreatePlan(c *gin.Context) {
	sess, _ := currentSession(c)

	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	fee, err := parseAmount("monthly_fee", req.MonthlyFee)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	plan, err := s.planSvc.CreatePlan(c.Request.Context(), plandomain.CreatePlanRequest{
		TenantID:   sess.TenantID,
		Name:       req.Name,
		MonthlyFee: fee,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": plan})
}

func (s *Server) SetPlanLimit(c *gin.Context) {
	sess, _ := currentSession(c)

	planID, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if _, err := s.tenantPlan(c.Request.Context(), sess, planID); err != nil {
		AbortWithError(c, err)
		return
	}

	var req setPlanLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	rate, err := parseAmount("overage_rate", req.OverageRate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit, err := s.planSvc.SetMetricLimit(c.Request.Context(), plandomain.SetMetricLimitRequest{
		PlanID:        planID,
		Metric:        req.Metric,
		IncludedUnits: req.IncludedUnits,
		OverageRate:   rate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": limit})
}

func (s *Server) GetPlanLimits(c *gin.Context) {
	sess, _ := currentSession(c)

	planID, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if _, err := s.tenantPlan(c.Request.Context(), sess, planID); err != nil {
		AbortWithError(c, err)
		return
	}

	limits, err := s.planSvc.ResolveLimits(c.Request.Context(), planID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": limits})
}

// tenantPlan hides plans owned by other tenants behind not found.
func (s *Server) tenantPlan(ctx context.Context, sess session.Session, planID snowflake.ID) (plandomain.Plan, error) {
	plan, err := s.planSvc.GetPlan(ctx, planID)
	if err != nil {
		return plandomain.Plan{}, err
	}
	if plan.TenantID != sess.TenantID {
		return plandomain.Plan{}, plandomain.ErrPlanNotFound
	}
	return plan, nil
}

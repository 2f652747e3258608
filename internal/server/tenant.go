package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
)

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Server) CreateTenant(c *gin.Context) {
	var req tenantdomain.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenant, err := s.tenantSvc.CreateTenant(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": tenant})
}

func (s *Server) ListUsers(c *gin.Context) {
	sess, _ := currentSession(c)

	users, err := s.tenantSvc.ListUsers(c.Request.Context(), sess.TenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": users})
}

// CreateUser adds a user to the caller's tenant. Only a superadmin may mint
// another superadmin.
func (s *Server) CreateUser(c *gin.Context) {
	sess, _ := currentSession(c)

	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	role := tenantdomain.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if role == tenantdomain.RoleSuperAdmin && !sess.IsSuperAdmin() {
		AbortWithError(c, ErrForbidden)
		return
	}

	user, err := s.tenantSvc.CreateUser(c.Request.Context(), tenantdomain.CreateUserRequest{
		TenantID: sess.TenantID,
		Name:     req.Name,
		Email:    req.Email,
		Role:     role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": user})
}

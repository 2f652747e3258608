package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
)

const maxImportBytes = 32 << 20

type recordUsageRequest struct {
	UserID         string         `json:"user_id"`
	Metric         string         `json:"metric"`
	Quantity       float64        `json:"quantity"`
	UsageDate      string         `json:"usage_date"`
	IdempotencyKey string         `json:"idempotency_key"`
	Metadata       map[string]any `json:"metadata"`
}

func (s *Server) RecordUsage(c *gin.Context) {
	sess, _ := currentSession(c)

	var req recordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID, err := targetUser(sess, req.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	in := usagedomain.RecordUsageRequest{
		TenantID:       sess.TenantID,
		UserID:         userID,
		Metric:         req.Metric,
		Quantity:       req.Quantity,
		Source:         usagedomain.SourceAPI,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	}
	if strings.TrimSpace(req.UsageDate) != "" {
		date, err := parseDate("usage_date", req.UsageDate)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		in.OccurredOn = date
	}
	c.Set("metric_name", strings.TrimSpace(req.Metric))

	event, err := s.usageSvc.RecordUsage(c.Request.Context(), in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": event})
}

func (s *Server) ImportUsage(c *gin.Context) {
	sess, _ := currentSession(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	file, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "required", "multipart field file is required"))
		return
	}
	f, err := file.Open()
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	defer f.Close()

	report, err := s.importer.Import(c.Request.Context(), sess.TenantID, f)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) GetUsageAggregate(c *gin.Context) {
	sess, _ := currentSession(c)

	userID, err := targetUser(sess, c.Query("user_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	agg, err := s.usageSvc.GetAggregate(c.Request.Context(), sess.TenantID, userID, c.Query("metric"), c.Query("period"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": agg})
}

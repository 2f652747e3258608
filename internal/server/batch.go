package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/meterbill/internal/observability/logger"
	"go.uber.org/zap"
)

type runBatchRequest struct {
	Period string `json:"period"`
}

// RunBatchInvoicing finalizes every active subscription for the open period.
// Per-user failures come back in the result; they do not fail the request.
func (s *Server) RunBatchInvoicing(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var req runBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	period := strings.TrimSpace(req.Period)
	if _, _, err := parseMonth("period", period); err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	result, err := s.scheduler.RunBatchInvoicing(ctx, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	logger.FromContext(ctx).Info("batch.invoicing.triggered",
		zap.String("period", period),
		zap.Int("generated", len(result.Generated)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failed)),
	)

	c.JSON(http.StatusOK, gin.H{"data": result})
}

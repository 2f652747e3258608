package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	reportdomain "github.com/smallbiznis/meterbill/internal/report/domain"
)

func (s *Server) GetBillingReport(c *gin.Context) {
	req, err := reportRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.reportSvc.TenantBillingSummary(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) GetMonthlyRevenue(c *gin.Context) {
	req, err := reportRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	series, err := s.reportSvc.MonthlyRevenue(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": series})
}

func reportRequest(c *gin.Context) (reportdomain.SummaryRequest, error) {
	sess, _ := currentSession(c)

	from, err := parseDate("from", c.Query("from"))
	if err != nil {
		return reportdomain.SummaryRequest{}, err
	}
	to, err := parseDate("to", c.Query("to"))
	if err != nil {
		return reportdomain.SummaryRequest{}, err
	}
	return reportdomain.SummaryRequest{TenantID: sess.TenantID, From: from, To: to}, nil
}

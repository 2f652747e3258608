package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/meterbill/internal/audit/domain"
	"github.com/smallbiznis/meterbill/pkg/db/pagination"
)

// auditLogQuery accepts either a generic target_type/target_id pair or one
// of the invoice_id and payment_id shortcuts, and either a YYYY-MM period or
// an explicit start_at/end_at range.
type auditLogQuery struct {
	pagination.Pagination
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	TargetID   string `form:"target_id"`
	InvoiceID  string `form:"invoice_id"`
	PaymentID  string `form:"payment_id"`
	Period     string `form:"period"`
	StartAt    string `form:"start_at"`
	EndAt      string `form:"end_at"`
}

func (q auditLogQuery) toRequest() (auditdomain.ListAuditLogRequest, error) {
	req := auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: strings.TrimSpace(q.PageToken), PageSize: q.PageSize},
		Action:     strings.TrimSpace(q.Action),
		TargetType: strings.TrimSpace(q.TargetType),
		TargetID:   strings.TrimSpace(q.TargetID),
	}

	for _, shortcut := range []struct{ field, target, value string }{
		{"invoice_id", auditdomain.TargetInvoice, q.InvoiceID},
		{"payment_id", auditdomain.TargetPayment, q.PaymentID},
	} {
		if strings.TrimSpace(shortcut.value) == "" {
			continue
		}
		id, err := parseID(shortcut.field, shortcut.value)
		if err != nil {
			return req, err
		}
		if req.TargetType != "" && req.TargetType != shortcut.target {
			return req, newValidationError(shortcut.field, "conflicting_target", "conflicts with target_type")
		}
		req.TargetType, req.TargetID = shortcut.target, id.String()
	}

	if period := strings.TrimSpace(q.Period); period != "" {
		if q.StartAt != "" || q.EndAt != "" {
			return req, newValidationError("period", "conflicting_range", "use period or start_at/end_at, not both")
		}
		start, end, err := parseMonth("period", period)
		if err != nil {
			return req, err
		}
		req.StartAt, req.EndAt = &start, &end
		return req, nil
	}

	var err error
	if req.StartAt, err = parseBound("start_at", q.StartAt, false); err != nil {
		return req, err
	}
	req.EndAt, err = parseBound("end_at", q.EndAt, true)
	return req, err
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	sess, _ := currentSession(c)

	var query auditLogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req, err := query.toRequest()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.TenantID = sess.TenantID

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.AuditLogs, "page_info": resp.PageInfo})
}

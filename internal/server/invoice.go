package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/meterbill/internal/invoice/domain"
	"github.com/smallbiznis/meterbill/internal/session"
)

type finalizeInvoiceRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) ListInvoices(c *gin.Context) {
	sess, _ := currentSession(c)

	// Admins list the whole tenant unless they name a user.
	var userID snowflake.ID
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" || !sess.IsAdmin() {
		id, err := targetUser(sess, raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		userID = id
	}

	invoices, err := s.invoiceSvc.ListInvoices(c.Request.Context(), sess.TenantID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoices})
}

func (s *Server) EstimateInvoice(c *gin.Context) {
	sess, _ := currentSession(c)

	userID, err := targetUser(sess, c.Query("user_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	estimate, err := s.invoiceSvc.EstimateInvoice(c.Request.Context(), sess.TenantID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": estimate})
}

func (s *Server) FinalizeInvoice(c *gin.Context) {
	sess, _ := currentSession(c)

	var req finalizeInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := targetUser(sess, req.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	invoiceID, err := s.invoiceSvc.FinalizeInvoice(ctx, sess.TenantID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	summary, err := s.invoiceSvc.GetSummary(ctx, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": summary})
}

func (s *Server) GetInvoice(c *gin.Context) {
	sess, _ := currentSession(c)

	summary, err := s.visibleInvoice(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) GetInvoicePDF(c *gin.Context) {
	sess, _ := currentSession(c)
	ctx := c.Request.Context()

	summary, err := s.visibleInvoice(ctx, sess, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	doc, err := s.invoiceSvc.RenderPDF(ctx, summary.Invoice.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", summary.Invoice.InvoiceNumber+".pdf"))
	c.Data(http.StatusOK, "application/pdf", doc)
}

func (s *Server) GetInvoiceHTML(c *gin.Context) {
	sess, _ := currentSession(c)
	ctx := c.Request.Context()

	summary, err := s.visibleInvoice(ctx, sess, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	html, err := s.invoiceSvc.RenderHTML(ctx, summary.Invoice.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

// visibleInvoice loads an invoice the caller may see. Anything else reads as
// not found so ids from other tenants or users leak nothing.
func (s *Server) visibleInvoice(ctx context.Context, sess session.Session, rawID string) (invoicedomain.Summary, error) {
	invoiceID, err := parseID("id", rawID)
	if err != nil {
		return invoicedomain.Summary{}, err
	}
	summary, err := s.invoiceSvc.GetSummary(ctx, invoiceID)
	if err != nil {
		return invoicedomain.Summary{}, err
	}
	if summary.Invoice.TenantID != sess.TenantID || !sess.CanActFor(summary.Invoice.UserID) {
		return invoicedomain.Summary{}, invoicedomain.ErrInvoiceNotFound
	}
	return summary, nil
}

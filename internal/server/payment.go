package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
)

type paymentRequest struct {
	InvoiceID   string `json:"invoice_id"`
	Amount      string `json:"amount"`
	Method      string `json:"method"`
	ReceiptRef  string `json:"receipt_ref"`
	Notes       string `json:"notes"`
	PaymentDate string `json:"payment_date"`
}

func (r paymentRequest) date() (time.Time, error) {
	if strings.TrimSpace(r.PaymentDate) == "" {
		return time.Time{}, nil
	}
	return parseDate("payment_date", r.PaymentDate)
}

func (s *Server) RecordPayment(c *gin.Context) {
	sess, _ := currentSession(c)

	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	invoiceID, err := parseID("invoice_id", req.InvoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	paidOn, err := req.date()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	settlement, err := s.paymentSvc.RecordPayment(c.Request.Context(), paymentdomain.RecordPaymentRequest{
		TenantID:    sess.TenantID,
		InvoiceID:   invoiceID,
		Amount:      amount,
		Method:      paymentdomain.Method(strings.ToLower(strings.TrimSpace(req.Method))),
		Notes:       req.Notes,
		ReceiptRef:  req.ReceiptRef,
		PaymentDate: paidOn,
		ActorID:     sess.UserID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": settlement})
}

func (s *Server) SubmitReceipt(c *gin.Context) {
	sess, _ := currentSession(c)

	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	invoiceID, err := parseID("invoice_id", req.InvoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	paidOn, err := req.date()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payment, err := s.paymentSvc.SubmitReceipt(c.Request.Context(), paymentdomain.SubmitReceiptRequest{
		TenantID:    sess.TenantID,
		InvoiceID:   invoiceID,
		UserID:      sess.UserID,
		Amount:      amount,
		Method:      paymentdomain.Method(strings.ToLower(strings.TrimSpace(req.Method))),
		ReceiptRef:  req.ReceiptRef,
		Notes:       req.Notes,
		PaymentDate: paidOn,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": payment})
}

func (s *Server) VerifyPayment(c *gin.Context) {
	sess, _ := currentSession(c)

	paymentID, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	settlement, err := s.paymentSvc.VerifyPayment(c.Request.Context(), sess.TenantID, paymentID, sess.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": settlement})
}

func (s *Server) ListPendingPayments(c *gin.Context) {
	sess, _ := currentSession(c)

	payments, err := s.paymentSvc.ListPending(c.Request.Context(), sess.TenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payments})
}

func (s *Server) ListInvoicePayments(c *gin.Context) {
	sess, _ := currentSession(c)

	invoiceID, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payments, err := s.paymentSvc.ListForInvoice(c.Request.Context(), sess.TenantID, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payments})
}

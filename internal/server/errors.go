package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/meterbill/internal/audit/domain"
	"github.com/smallbiznis/meterbill/internal/authorization"
	invoicedomain "github.com/smallbiznis/meterbill/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	plandomain "github.com/smallbiznis/meterbill/internal/plan/domain"
	reportdomain "github.com/smallbiznis/meterbill/internal/report/domain"
	"github.com/smallbiznis/meterbill/internal/scheduler"
	"github.com/smallbiznis/meterbill/internal/session"
	subscriptiondomain "github.com/smallbiznis/meterbill/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	"github.com/smallbiznis/meterbill/internal/usage/importer"
	"github.com/smallbiznis/meterbill/pkg/db"
	"github.com/smallbiznis/meterbill/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// Domain sentinels that mean the caller sent a bad value. The sentinel text
// is the response code; the field is derived from it unless listed here.
var validationErrors = []error{
	ErrInvalidRequest,
	usagedomain.ErrInvalidTenant,
	usagedomain.ErrInvalidUser,
	usagedomain.ErrInvalidMetric,
	usagedomain.ErrUnknownMetric,
	usagedomain.ErrInvalidQuantity,
	usagedomain.ErrInvalidDate,
	usagedomain.ErrInvalidPeriod,
	usagedomain.ErrInvalidRange,
	usagedomain.ErrInvalidSource,
	importer.ErrEmptyFile,
	importer.ErrMissingColumns,
	importer.ErrTooManyRows,
	plandomain.ErrInvalidTenant,
	plandomain.ErrInvalidName,
	plandomain.ErrInvalidFee,
	plandomain.ErrInvalidMetric,
	plandomain.ErrInvalidIncludedUnits,
	plandomain.ErrInvalidOverageRate,
	tenantdomain.ErrInvalidTenant,
	tenantdomain.ErrInvalidName,
	tenantdomain.ErrInvalidEmail,
	tenantdomain.ErrInvalidRole,
	subscriptiondomain.ErrInvalidTenant,
	subscriptiondomain.ErrInvalidUser,
	subscriptiondomain.ErrInvalidPlan,
	subscriptiondomain.ErrPlanInactive,
	invoicedomain.ErrInvalidTenant,
	invoicedomain.ErrInvalidUser,
	invoicedomain.ErrInvalidInvoice,
	invoicedomain.ErrInvalidPeriod,
	paymentdomain.ErrInvalidTenant,
	paymentdomain.ErrInvalidInvoice,
	paymentdomain.ErrInvalidUser,
	paymentdomain.ErrInvalidAmount,
	paymentdomain.ErrInvalidMethod,
	paymentdomain.ErrInvalidReceipt,
	paymentdomain.ErrInvalidPayment,
	paymentdomain.ErrInvalidVerifier,
	reportdomain.ErrInvalidTenant,
	reportdomain.ErrInvalidRange,
	auditdomain.ErrInvalidTenant,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
	scheduler.ErrInvalidPeriod,
	pagination.ErrInvalidPageToken,
}

var validationDetail = map[string]ValidationError{
	"invalid_request":    {Field: "request", Message: "invalid request"},
	"missing_columns":    {Field: "file", Message: "csv header must name user_id, metric, quantity and usage_date"},
	"empty_file":         {Field: "file", Message: "file is empty"},
	"too_many_rows":      {Field: "file", Message: "file has too many rows"},
	"plan_inactive":      {Field: "plan", Message: "plan is not active"},
	"unknown_metric":     {Field: "metric", Message: "metric is not priced by any plan of the tenant"},
	"invalid_page_token": {Field: "page_token", Message: "page token is malformed"},
	"invalid_time_range": {Field: "start_at", Message: "start_at is after end_at"},
}

type problem struct {
	status  int
	kind    string
	message string
}

var (
	problemUnauthorized = problem{http.StatusUnauthorized, "unauthorized", "unauthorized"}
	problemForbidden    = problem{http.StatusForbidden, "forbidden", "forbidden"}
	problemNotFound     = problem{http.StatusNotFound, "not_found", "not found"}
	problemInternal     = problem{http.StatusInternalServerError, "internal_error", "internal server error"}
	problemBusy         = problem{http.StatusServiceUnavailable, "busy", "database busy, retry the request"}
)

// Checked in order; the first rule with a matching sentinel wins.
var problemRules = []struct {
	problem
	errs []error
}{
	{problemUnauthorized, []error{ErrUnauthorized, session.ErrInvalidSession, session.ErrRoleMismatch, authorization.ErrInvalidActor}},
	{problemForbidden, []error{ErrForbidden, authorization.ErrForbidden}},
	{problemNotFound, []error{
		ErrNotFound,
		plandomain.ErrPlanNotFound,
		tenantdomain.ErrTenantNotFound,
		tenantdomain.ErrUserNotFound,
		subscriptiondomain.ErrNoActiveSubscription,
		invoicedomain.ErrInvoiceNotFound,
		paymentdomain.ErrInvoiceNotFound,
		paymentdomain.ErrPaymentNotFound,
		reportdomain.ErrTenantNotFound,
		gorm.ErrRecordNotFound,
	}},
	{problem{http.StatusConflict, "conflict", "invoice already exists for this period"}, []error{invoicedomain.ErrAlreadyInvoiced}},
	{problem{http.StatusConflict, "conflict", "payment already verified"}, []error{paymentdomain.ErrAlreadyVerified}},
	{problem{http.StatusConflict, "conflict", "batch already running for this period"}, []error{scheduler.ErrBatchInProgress}},
	{problem{http.StatusConflict, "conflict", "period is not open for invoicing"}, []error{scheduler.ErrPeriodNotOpen}},
	{problem{http.StatusConflict, "conflict", "already exists"}, []error{gorm.ErrDuplicatedKey}},
	{problem{http.StatusConflict, "conflict", "conflict"}, []error{ErrConflict}},
	{problem{http.StatusUnprocessableEntity, "no_billable_items", "nothing to bill for this period"}, []error{invoicedomain.ErrNoBillableItems}},
	{problem{http.StatusTooManyRequests, "rate_limited", "too many requests"}, []error{ErrRateLimited}},
	{problem{http.StatusServiceUnavailable, "service_unavailable", "service unavailable"}, []error{ErrServiceUnavailable}},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		last := c.Errors.Last()
		if last == nil {
			return
		}

		status, payload := mapError(last.Err)
		if status == problemBusy.status && payload.Type == problemBusy.kind {
			c.Header("Retry-After", "1")
		}
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return problemInternal.payload()
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "validation error", Errors: vErr.Errors}
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest, errorPayload{
				Type:    "validation_error",
				Message: "validation error",
				Errors:  []ValidationError{describeValidation(target.Error())},
			}
		}
	}
	for _, rule := range problemRules {
		for _, target := range rule.errs {
			if errors.Is(err, target) {
				return rule.payload()
			}
		}
	}

	switch db.Classify(err) {
	case db.KindDuplicateKey:
		return problem{http.StatusConflict, "conflict", "already exists"}.payload()
	case db.KindLockTimeout, db.KindSerialization, db.KindDeadlock:
		return problemBusy.payload()
	}
	return problemInternal.payload()
}

func (p problem) payload() (int, errorPayload) {
	return p.status, errorPayload{Type: p.kind, Message: p.message}
}

func describeValidation(code string) ValidationError {
	detail, ok := validationDetail[code]
	if !ok {
		detail = ValidationError{Field: strings.TrimPrefix(code, "invalid_"), Message: "invalid value"}
	}
	detail.Code = code
	return detail
}

// classifyErrorForLog reports the response type and code for the request log.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError && payload.Type != problemBusy.kind:
		return "internal", payload.Type
	case len(payload.Errors) > 0:
		return payload.Type, payload.Errors[0].Code
	case err != nil:
		return payload.Type, err.Error()
	}
	return payload.Type, ""
}

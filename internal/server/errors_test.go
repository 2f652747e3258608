package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	invoicedomain "github.com/smallbiznis/meterbill/internal/invoice/domain"
	plandomain "github.com/smallbiznis/meterbill/internal/plan/domain"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	"github.com/smallbiznis/meterbill/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"wrapped not found", fmt.Errorf("load plan: %w", plandomain.ErrPlanNotFound), http.StatusNotFound, "not_found"},
		{"already invoiced", invoicedomain.ErrAlreadyInvoiced, http.StatusConflict, "conflict"},
		{"nothing to bill", invoicedomain.ErrNoBillableItems, http.StatusUnprocessableEntity, "no_billable_items"},
		{"postgres unique", &pgconn.PgError{Code: "23505"}, http.StatusConflict, "conflict"},
		{"postgres lock", &pgconn.PgError{Code: "55P03"}, http.StatusServiceUnavailable, "busy"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.kind, payload.Type)
		})
	}
}

func TestMapErrorDescribesSentinels(t *testing.T) {
	_, payload := mapError(usagedomain.ErrInvalidQuantity)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, ValidationError{Field: "quantity", Code: "invalid_quantity", Message: "invalid value"}, payload.Errors[0])

	status, payload := mapError(usagedomain.ErrUnknownMetric)
	assert.Equal(t, http.StatusBadRequest, status)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "metric", payload.Errors[0].Field)

	_, payload = mapError(pagination.ErrInvalidPageToken)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "page_token", payload.Errors[0].Field)
}

func TestErrorHandlingMiddlewareSetsRetryAfterWhenBusy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	r.GET("/busy", func(c *gin.Context) { AbortWithError(c, &pgconn.PgError{Code: "40001"}) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/busy", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"type":"busy"`)
}

func TestClassifyErrorForLog(t *testing.T) {
	kind, code := classifyErrorForLog(newValidationError("from", "required", "from is required"))
	assert.Equal(t, "validation_error", kind)
	assert.Equal(t, "required", code)

	kind, _ = classifyErrorForLog(errors.New("boom"))
	assert.Equal(t, "internal", kind)
}

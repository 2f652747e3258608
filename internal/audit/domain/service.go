package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/pkg/db/pagination"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	TenantID   snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

// Entry is one billing action to record. Empty actor fields fall back to the
// actor carried on ctx, then to "system".
type Entry struct {
	TenantID   snowflake.ID
	ActorType  string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

const (
	TargetInvoice      = "invoice"
	TargetPayment      = "payment"
	TargetSubscription = "subscription"
	TargetPlan         = "plan"
)

type Service interface {
	Record(ctx context.Context, entry Entry) error
	// List filters by exact action, or by prefix when Action ends in ".*"
	// (for example "payment.*").
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Observation identifies the usage series a new event belongs to.
type Observation struct {
	TenantID  snowflake.ID
	UserID    snowflake.ID
	Metric    string
	UsageDate time.Time
}

type Detector interface {
	// DetectAnomaly returns nil when there is not enough data or no spike.
	DetectAnomaly(ctx context.Context, tenantID, userID snowflake.ID, metric string) (*Anomaly, error)
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidUser   = errors.New("invalid_user")
	ErrInvalidMetric = errors.New("invalid_metric")
)

package seed

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/meterbill/internal/config"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	"github.com/smallbiznis/meterbill/internal/testutil/billingstack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureOperatorRunsOnce(t *testing.T) {
	st := billingstack.New(t, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC))
	cfg := config.SeedConfig{Enabled: true, TenantName: "Operator", AdminName: "Root", AdminEmail: "root@example.test"}
	ctx := context.Background()

	admin, created, err := EnsureOperator(ctx, st.DB, st.Tenants, cfg)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, tenantdomain.RoleSuperAdmin, admin.Role)

	again, created, err := EnsureOperator(ctx, st.DB, st.Tenants, cfg)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, admin.ID, again.ID)

	var tenants int64
	require.NoError(t, st.DB.Model(&tenantdomain.Tenant{}).Count(&tenants).Error)
	assert.EqualValues(t, 1, tenants)
}

func TestEnsureOperatorRejectsBadEmail(t *testing.T) {
	st := billingstack.New(t, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC))

	_, _, err := EnsureOperator(context.Background(), st.DB, st.Tenants, config.SeedConfig{TenantName: "Operator", AdminName: "Root", AdminEmail: "nope"})
	assert.ErrorIs(t, err, tenantdomain.ErrInvalidEmail)
}

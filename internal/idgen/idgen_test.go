package idgen

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestModuleFallsBackPerBinary(t *testing.T) {
	var node *snowflake.Node
	app := fxtest.New(t,
		fx.Supply(config.Config{NodeID: -1}, zap.NewNop()),
		Module(2),
		fx.Populate(&node),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.EqualValues(t, 2, node.Generate().Node())
}

func TestModuleHonoursConfiguredNode(t *testing.T) {
	var node *snowflake.Node
	app := fxtest.New(t,
		fx.Supply(config.Config{NodeID: 7}, zap.NewNop()),
		Module(1),
		fx.Populate(&node),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.EqualValues(t, 7, node.Generate().Node())
}

func TestNewNodeRejectsOutOfRange(t *testing.T) {
	_, err := NewNode(1 << 12)
	require.Error(t, err)
}

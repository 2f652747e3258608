// Package idgen provides the snowflake node every table id comes from.
package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides *snowflake.Node. Binaries that run side by side pass
// different fallbacks so their ids never collide when SNOWFLAKE_NODE_ID is
// unset.
func Module(fallback int64) fx.Option {
	return fx.Module("idgen",
		fx.Provide(func(cfg config.Config, log *zap.Logger) (*snowflake.Node, error) {
			id := int64(cfg.NodeID)
			if id < 0 {
				id = fallback
			}
			node, err := NewNode(id)
			if err != nil {
				return nil, err
			}
			log.Info("idgen.node.ready", zap.Int64("node_id", id))
			return node, nil
		}),
	)
}

func NewNode(id int64) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(id)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", id, err)
	}
	return node, nil
}

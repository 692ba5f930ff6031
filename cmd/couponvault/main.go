package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/perkforge/couponvault/internal/clock"
	"github.com/perkforge/couponvault/internal/config"
	"github.com/perkforge/couponvault/internal/locks"
	"github.com/perkforge/couponvault/internal/logger"
	"github.com/perkforge/couponvault/internal/migration"
	"github.com/perkforge/couponvault/internal/observability"
	"github.com/perkforge/couponvault/internal/server"
	"github.com/perkforge/couponvault/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		locks.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

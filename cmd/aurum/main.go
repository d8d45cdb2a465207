package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/aurum/internal/clock"
	"github.com/smallbiznis/aurum/internal/config"
	"github.com/smallbiznis/aurum/internal/migration"
	"github.com/smallbiznis/aurum/internal/observability"
	"github.com/smallbiznis/aurum/internal/scheduler"
	"github.com/smallbiznis/aurum/internal/server"
	"github.com/smallbiznis/aurum/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Schema and default catalog before serving
		migration.Module,

		// Domains and HTTP
		server.Module,

		// Background ledger reconciliation
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

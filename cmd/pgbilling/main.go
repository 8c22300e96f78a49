package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/comfortstays/pgbilling/internal/charge"
	"github.com/comfortstays/pgbilling/internal/clock"
	"github.com/comfortstays/pgbilling/internal/config"
	"github.com/comfortstays/pgbilling/internal/migration"
	"github.com/comfortstays/pgbilling/internal/observability"
	"github.com/comfortstays/pgbilling/internal/occupancy"
	"github.com/comfortstays/pgbilling/internal/providers/pdf"
	"github.com/comfortstays/pgbilling/internal/reading"
	"github.com/comfortstays/pgbilling/internal/room"
	"github.com/comfortstays/pgbilling/internal/scheduler"
	"github.com/comfortstays/pgbilling/internal/server"
	"github.com/comfortstays/pgbilling/internal/transaction"
	"github.com/comfortstays/pgbilling/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Functional Domains
		room.Module,
		occupancy.Module,
		reading.Module,
		charge.Module,
		transaction.Module,
		scheduler.Module,
		pdf.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

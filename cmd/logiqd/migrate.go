package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/bredsky212/Logiq212/internal/migrate"
	"github.com/bredsky212/Logiq212/internal/store/pg"
)

var migrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "manage the Postgres schema",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "dsn",
			Usage:   "PostgreSQL DSN (defaults to LOGIQ_PG_DSN)",
			EnvVars: []string{"LOGIQ_PG_DSN"},
		},
	},
	Subcommands: []*cli.Command{
		{Name: "up", Usage: "apply pending migrations", Action: withManager(func(ctx context.Context, m *migrate.Manager) error {
			return m.Up(ctx)
		})},
		{Name: "down", Usage: "roll back the latest migration", Action: withManager(func(ctx context.Context, m *migrate.Manager) error {
			return m.Down(ctx)
		})},
		{Name: "status", Usage: "list applied migrations", Action: withManager(func(ctx context.Context, m *migrate.Manager) error {
			history, err := m.Status(ctx)
			for _, item := range history {
				fmt.Println(item)
			}
			return err
		})},
		{Name: "pending", Usage: "list migrations not yet applied", Action: withManager(func(ctx context.Context, m *migrate.Manager) error {
			pending, err := m.Pending(ctx)
			for _, item := range pending {
				fmt.Println(item)
			}
			return err
		})},
	},
}

func withManager(fn func(context.Context, *migrate.Manager) error) cli.ActionFunc {
	return func(cctx *cli.Context) error {
		dsn := cctx.String("dsn")
		if dsn == "" {
			cfg, err := loadConfig(cctx)
			if err == nil {
				dsn = cfg.PostgresDSN
			}
		}
		if dsn == "" {
			return errors.New("missing DSN: provide via --dsn or LOGIQ_PG_DSN")
		}

		ctx, cancel := context.WithTimeout(cctx.Context, 30*time.Second)
		defer cancel()

		s, err := pg.Open(dsn)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer s.Close()

		m := migrate.NewManager(s.DB(), pg.Migrations, pg.MigrationsDir)
		if err := fn(ctx, m); err != nil {
			return fmt.Errorf("migrate %s: %w", cctx.Command.Name, err)
		}
		return nil
	}
}

// Command workflow-agent serves the workflow execution engine over HTTP.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/cubeassist/workflow-agent/internal/config"
	"github.com/cubeassist/workflow-agent/internal/telemetry"
	"github.com/cubeassist/workflow-agent/runtime/a2a"
	catalogpg "github.com/cubeassist/workflow-agent/features/catalogue/postgres"
	journalpg "github.com/cubeassist/workflow-agent/features/journal/postgres"
	"github.com/cubeassist/workflow-agent/runtime/workflow/catalogue"
	"github.com/cubeassist/workflow-agent/runtime/workflow/handlers"
	"github.com/cubeassist/workflow-agent/runtime/workflow/journal"
	"github.com/cubeassist/workflow-agent/runtime/workflow/manager"
	"github.com/cubeassist/workflow-agent/runtime/workflow/template"
	"github.com/cubeassist/workflow-agent/runtime/workflow/toolclient"
)

// migrationsDir is resolved relative to the process's working directory,
// which is expected to be the repository root in every deployment target
// this ships to (container image, local dev).
const migrationsDir = "features/db/migrations"

func main() {
	root := &cobra.Command{
		Use:   "workflow-agent",
		Short: "Workflow execution engine",
	}
	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := telemetry.New()

	dsn := fmt.Sprintf("postgres://%s:%s/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err := runMigrations(dsn); err != nil {
		return fmt.Errorf("main: run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("main: connect to database: %w", err)
	}
	defer pool.Close()

	catStore := catalogpg.New(pool)
	cat, err := catalogue.New(catStore)
	if err != nil {
		return fmt.Errorf("main: build catalogue: %w", err)
	}

	j := journal.New(journalpg.New(pool))

	tools := toolclient.New(cfg.ToolServer, log)
	deps := handlers.Deps{Eval: template.New(), Tools: tools}

	mgr := manager.New(manager.NewToolIdentityResolver(tools), cat, j, deps)
	server := a2a.NewServer(mgr, log)

	log.Info(ctx, "listening", "addr", cfg.ListenAddr)
	return http.ListenAndServe(cfg.ListenAddr, server)
}

func runMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, migrationsDir)
}

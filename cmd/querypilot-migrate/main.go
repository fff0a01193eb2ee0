package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	catalogpostgres "github.com/querypilot/querypilot/internal/catalog/postgres"
	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/migrations"
	"github.com/querypilot/querypilot/internal/sqlpool"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up|down|status")
	steps := flag.Int("steps", 0, "number of migration steps; 0 means all for up, 1 for down")
	bootstrapAdmin := flag.Bool("bootstrap-admin", false, "create QUERYPILOT_BOOTSTRAP_ADMIN_USERNAME as admin after migrating up")
	flag.Parse()

	cfg, err := config.LoadFromEnv("querypilot-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Store.DSN == "" || cfg.Store.DSN == config.StoreDSNMemory {
		fmt.Fprintln(os.Stderr, "QUERYPILOT_STORE_DSN must point at a Postgres database")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := sqlpool.Open(ctx, sqlpool.Config{
		Name:        "store",
		Driver:      sqlpool.DriverPgx,
		DSN:         cfg.Store.DSN,
		PingTimeout: 30 * time.Second,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	runner := migrations.NewRunner()
	switch *direction {
	case "up":
		applied, err := runner.Up(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d migration(s)\n", applied)
	case "down":
		applied, err := runner.Down(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("rolled back %d migration(s)\n", applied)
	case "status":
		versions, err := runner.Applied(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration status failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied versions: %v\n", versions)
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}

	if *bootstrapAdmin {
		if *direction != "up" {
			fmt.Fprintln(os.Stderr, "-bootstrap-admin requires -direction up")
			os.Exit(1)
		}
		created, err := migrations.EnsureAdmin(ctx, catalogpostgres.NewRepository(db), migrations.AdminSeed{
			Username: cfg.Auth.BootstrapAdminUsername,
			Password: cfg.Auth.BootstrapAdminPassword,
			Schema:   cfg.Auth.BootstrapAdminSchema,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "bootstrap admin failed: %v\n", err)
			os.Exit(1)
		}
		if created {
			fmt.Printf("created admin %q\n", cfg.Auth.BootstrapAdminUsername)
		} else {
			fmt.Printf("admin %q already exists\n", cfg.Auth.BootstrapAdminUsername)
		}
	}
}

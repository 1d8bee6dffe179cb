package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/shopperapp/shopper-backend/pkg/config"
	"github.com/shopperapp/shopper-backend/pkg/db"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	"github.com/shopperapp/shopper-backend/pkg/logger"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|status|reset")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
	})
	logg.Info(ctx, "migrate ready")

	switch *cmd {
	case "up":
		if err := dbClient.Migrate(ctx, logg); err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("schema up to date")

	case "status":
		migrator := dbClient.DB().WithContext(ctx).Migrator()
		for _, model := range models.All() {
			fmt.Printf("%T: has_table=%v\n", model, migrator.HasTable(model))
		}

	case "reset":
		// Destructive: drops and recreates every table.
		migrator := dbClient.DB().WithContext(ctx).Migrator()
		for _, model := range models.All() {
			if migrator.HasTable(model) {
				if err := migrator.DropTable(model); err != nil {
					fmt.Fprintf(os.Stderr, "drop failed: %v\n", err)
					os.Exit(1)
				}
			}
		}
		if err := dbClient.Migrate(ctx, logg); err != nil {
			fmt.Fprintf(os.Stderr, "recreate failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("schema reset")

	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

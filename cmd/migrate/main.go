package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/samirrijal/shiftfence/internal/adapters/postgres"
	"github.com/samirrijal/shiftfence/internal/pkg/config"
	"github.com/samirrijal/shiftfence/internal/pkg/logging"
	"github.com/samirrijal/shiftfence/migrations"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}

	cfg, err := config.Load("shiftfence-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, "text")

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN(), 2)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		applied, err := db.Migrate(ctx, migrations.FS)
		if err != nil {
			log.Fatalf("migrate: %v", err)
		}
		for _, name := range applied {
			fmt.Printf("OK  %s\n", name)
		}
		slog.Info("all migrations applied", "count", len(applied))
	case "down":
		log.Println("down migrations are not supported; restore from backup")
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

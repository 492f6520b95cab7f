package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/shiftfence/internal/adapters/nats"
	"github.com/samirrijal/shiftfence/internal/adapters/postgres"
	"github.com/samirrijal/shiftfence/internal/pkg/config"
	"github.com/samirrijal/shiftfence/internal/pkg/logging"
	"github.com/samirrijal/shiftfence/internal/workflows"
)

// escalator runs the Temporal worker that follows up on AUTO_CLOCK_OUT alerts.
func main() {
	cfg, err := config.Load("shiftfence-escalator")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN(), 4)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer pub.Close()

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.AutoClockOutReminderWorkflow)
	w.RegisterActivity(&workflows.ReminderActivities{
		Shifts:    postgres.NewShiftRepo(db),
		Publisher: pub,
	})

	slog.Info("escalator worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

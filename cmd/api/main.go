package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/shiftfence/internal/adapters/http"
	"github.com/samirrijal/shiftfence/internal/adapters/memory"
	natsadapter "github.com/samirrijal/shiftfence/internal/adapters/nats"
	"github.com/samirrijal/shiftfence/internal/adapters/postgres"
	"github.com/samirrijal/shiftfence/internal/adapters/temporal"
	"github.com/samirrijal/shiftfence/internal/adapters/valkey"
	"github.com/samirrijal/shiftfence/internal/core/ports"
	"github.com/samirrijal/shiftfence/internal/core/usecases"
	"github.com/samirrijal/shiftfence/internal/pkg/config"
	"github.com/samirrijal/shiftfence/internal/pkg/logging"
	"github.com/samirrijal/shiftfence/internal/pkg/metrics"
	"github.com/samirrijal/shiftfence/internal/pkg/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.Load("shiftfence-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go reportPoolStats(ctx, db)

	// Cache and last known locations. Both are optional.
	var (
		cache       ports.CacheService
		locations   ports.LocationStore
		cachePinger http.Pinger
	)
	if cfg.Valkey.Addr != "" {
		vc, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable, running without cache", "error", err)
		} else {
			defer vc.Close()
			cache, cachePinger = vc, vc
			locations = vc.Locations(cfg.Valkey.LocationTTL())
		}
	}

	// Realtime fan-out: NATS when reachable, otherwise in-process.
	var (
		publisher ports.EventPublisher
		events    ports.EventSubscriber
		deps      = &http.Dependencies{DB: db, Cache: cachePinger, Version: version}
	)
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable, realtime events stay in-process", "error", err)
		hub := memory.NewHub(memory.DefaultSubscriberBuffer)
		publisher, events = hub, hub
	} else {
		defer pub.Close()
		publisher, events = pub, natsadapter.NewSubscriber(pub.Conn())
		deps.NATS = pub.Conn()
	}

	// Auto clock-out reminders
	var reminders ports.ReminderScheduler
	if cfg.Temporal.HostPort != "" {
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			slog.Warn("temporal unavailable, auto clock-out reminders disabled", "error", err)
		} else {
			defer tc.Close()
			reminders = temporal.NewScheduler(tc, cfg.Temporal.TaskQueue, cfg.Geofence.ReminderGrace())
		}
	}

	// Repos
	shiftRepo := postgres.NewShiftRepo(db)
	orgRepo := postgres.NewOrganizationRepo(db)

	// Use cases
	notifier := usecases.NewNotifier(publisher)
	perimeters := usecases.NewPerimeterService(orgRepo, cache, cfg.Geofence.PerimeterCacheTTL)
	trackerOpts := []usecases.TrackerOption{
		usecases.WithStaleTolerance(cfg.Geofence.StaleTolerance()),
		usecases.WithIdleTTL(cfg.Geofence.TrackIdle()),
	}
	if locations != nil {
		trackerOpts = append(trackerOpts, usecases.WithLocationStore(locations))
	}
	if reminders != nil {
		trackerOpts = append(trackerOpts, usecases.WithReminderScheduler(reminders))
	}

	deps.Shifts = usecases.NewShiftService(shiftRepo, orgRepo, perimeters, notifier)
	deps.Perimeters = perimeters
	deps.Tracker = usecases.NewGeofenceTracker(orgRepo, perimeters, shiftRepo, notifier, trackerOpts...)
	deps.Events = events

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    64 * 1024,
		AppName:      "Shiftfence API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, " +
			http.HeaderUserID + ", " + http.HeaderOrganizationID + ", " + http.HeaderUserRole,
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "version", version)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Stat())
		case <-ctx.Done():
			return
		}
	}
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/shiftfence/internal/agent"
	"github.com/samirrijal/shiftfence/internal/core/domain"
	"github.com/samirrijal/shiftfence/internal/pkg/config"
	"github.com/samirrijal/shiftfence/internal/pkg/logging"
)

// reading is one line of device input on stdin.
type reading struct {
	Lat       float64    `json:"lat"`
	Lon       float64    `json:"lon"`
	Timestamp *time.Time `json:"timestamp"`
	Accuracy  *float64   `json:"accuracy"`
}

// agent buffers location readings from stdin and syncs them to the API,
// surviving connectivity gaps up to the buffer capacity.
func main() {
	cfg, err := config.Load("shiftfence-agent")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, "text")

	if cfg.Agent.UserID == "" || cfg.Agent.OrganizationID == "" {
		log.Fatal("agent.user_id and agent.organization_id are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	buffer := agent.NewBuffer(cfg.Agent.BufferSize)
	client := agent.NewClient(cfg.Agent.APIURL, agent.Credentials{
		UserID:         cfg.Agent.UserID,
		OrganizationID: cfg.Agent.OrganizationID,
		Role:           domain.Role(cfg.Agent.Role),
	}, time.Duration(cfg.Agent.TimeoutSeconds)*time.Second)
	syncer := agent.NewSyncer(buffer, client, cfg.Agent.SyncInterval())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		if err := syncer.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return readSamples(gctx, os.Stdin, cfg.Agent.UserID, buffer, syncer)
	})

	if err := g.Wait(); err != nil {
		slog.Error("agent stopped", "error", err)
	}

	// Last attempt before exit; whatever is left is reported.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer flushCancel()
	sent, err := syncer.Flush(flushCtx)
	slog.Info("agent exiting", "sent", sent, "unsynced", len(buffer.Unsynced()),
		"evicted", buffer.Evicted(), "error", err)
}

func readSamples(ctx context.Context, r io.Reader, workerID string, buffer *agent.Buffer, syncer *agent.Syncer) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		var in reading
		if err := json.Unmarshal(scanner.Bytes(), &in); err != nil {
			slog.Warn("skipping unreadable line", "error", err)
			continue
		}
		sample := domain.LocationSample{
			WorkerID:       workerID,
			Location:       domain.Coordinate{Lat: in.Lat, Lon: in.Lon},
			Timestamp:      time.Now().UTC(),
			AccuracyMeters: in.Accuracy,
		}
		if in.Timestamp != nil {
			sample.Timestamp = *in.Timestamp
		}
		entry, err := buffer.Append(sample)
		if err != nil {
			slog.Warn("skipping invalid reading", "error", err)
			continue
		}
		slog.Debug("reading buffered", "seq", entry.Seq)
		syncer.Notify()
	}
	return scanner.Err()
}

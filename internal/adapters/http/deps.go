package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/shiftfence/internal/core/ports"
	"github.com/samirrijal/shiftfence/internal/core/usecases"
)

// Pinger is a backing service the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Shifts     *usecases.ShiftService
	Perimeters *usecases.PerimeterService
	Tracker    *usecases.GeofenceTracker
	Events     ports.EventSubscriber
	NATS       *nats.Conn
	DB         Pinger
	Cache      Pinger
	Version    string
}

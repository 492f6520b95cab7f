package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/shiftfence/internal/pkg/metrics"
)

// RequestTimeout bounds every /v1 request after authentication.
const RequestTimeout = 15 * time.Second

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version. Shift and location data is never cacheable.
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Cache-Control", "no-store")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// Health & readiness, registered before the authenticated group
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	SetupDocs(app)

	with := func(h fiber.Handler) fiber.Handler {
		return timeout.NewWithContext(h, RequestTimeout)
	}

	v1 := app.Group("/v1", PrincipalMiddleware())
	v1.Post("/shifts/clock-in", with(ClockInHandler(deps)))
	v1.Post("/shifts/clock-out", with(ClockOutHandler(deps)))
	v1.Get("/shifts/active", with(ActiveShiftHandler(deps)))
	v1.Get("/shifts", with(ListShiftsHandler(deps)))
	v1.Get("/organizations/:id/perimeter", with(GetPerimeterHandler(deps)))
	v1.Put("/organizations/:id/perimeter", with(UpdatePerimeterHandler(deps)))
	v1.Get("/organizations/:id/on-shift", with(OnShiftHandler(deps)))
	v1.Post("/locations", with(IngestLocationHandler(deps)))
	v1.Get("/workers/:id/location", with(WorkerLocationHandler(deps)))

	app.Post("/graphql", PrincipalMiddleware(), GraphQLHandler(deps))

	if deps.Events != nil {
		app.Use("/ws", PrincipalMiddleware(), func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws", websocket.New(WebSocketHandler(deps.Events)))
	}
}

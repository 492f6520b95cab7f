package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/shiftfence/internal/core/domain"
	"github.com/samirrijal/shiftfence/internal/core/ports"
	"github.com/samirrijal/shiftfence/internal/pkg/metrics"
)

const wsPingInterval = 30 * time.Second

// wsMessage is sent from client to subscribe/unsubscribe to channels.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Channel string `json:"channel"` // shift_updated | staff_status_changed | geofence_event
}

// WebSocketHandler relays the realtime events the connected principal may see.
// Every permitted channel is subscribed on connect. Clients send
// {"action":"unsubscribe","channel":"geofence_event"} to narrow the feed and
// "subscribe" to restore a channel.
func WebSocketHandler(events ports.EventSubscriber) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		principal, ok := c.Locals(principalLocal).(domain.Principal)
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		log := slog.Default().With("user_id", principal.UserID, "organization_id", principal.OrganizationID,
			"remote_addr", c.RemoteAddr().String())
		log.Info("ws client connected")
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		subs := make(map[domain.EventKind]func())
		subscribe := func(kind domain.EventKind) error {
			unsubscribe, err := events.Subscribe(ctx, principal, []domain.EventKind{kind}, func(_ context.Context, ev *domain.Event) {
				_ = writeJSON(ev)
			})
			if err != nil {
				return err
			}
			subs[kind] = unsubscribe
			return nil
		}
		defer func() {
			for _, unsubscribe := range subs {
				unsubscribe()
			}
		}()

		for _, kind := range domain.KindsFor(principal) {
			if err := subscribe(kind); err != nil {
				log.Error("ws subscribe failed", "channel", kind, "error", err)
				return
			}
		}

		go func() {
			ticker := time.NewTicker(wsPingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			kind := domain.EventKind(m.Channel)
			if len(domain.AllowedKinds(principal, []domain.EventKind{kind})) == 0 {
				_ = writeJSON(map[string]string{"error": "channel not permitted: " + m.Channel})
				continue
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[kind]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "channel": m.Channel})
					continue
				}
				if err := subscribe(kind); err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				_ = writeJSON(map[string]string{"status": "subscribed", "channel": m.Channel})

			case "unsubscribe":
				unsubscribe, exists := subs[kind]
				if !exists {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + m.Channel})
					continue
				}
				unsubscribe()
				delete(subs, kind)
				_ = writeJSON(map[string]string{"status": "unsubscribed", "channel": m.Channel})

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		log.Info("ws client disconnected")
	}
}

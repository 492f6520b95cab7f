package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/shiftfence/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber with core NATS subscriptions.
// Subscriptions are ephemeral, so delivery is at-most-once and only to
// currently connected subscribers.
type Subscriber struct {
	conn *nats.Conn
}

// NewSubscriber creates a subscriber on an existing connection.
func NewSubscriber(conn *nats.Conn) *Subscriber {
	return &Subscriber{conn: conn}
}

// Subscribe listens on the principal's organization subjects for the kinds it
// may receive.
func (s *Subscriber) Subscribe(ctx context.Context, principal domain.Principal, kinds []domain.EventKind, handler func(ctx context.Context, event *domain.Event)) (func(), error) {
	if principal.OrganizationID == "" {
		return nil, fmt.Errorf("subscribe: %w", domain.ErrForbidden)
	}

	var subs []*nats.Subscription
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			for _, sub := range subs {
				_ = sub.Unsubscribe()
			}
		})
	}

	for _, kind := range domain.AllowedKinds(principal, kinds) {
		sub, err := s.conn.Subscribe(Subject(principal.OrganizationID, kind), func(msg *nats.Msg) {
			var ev domain.Event
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				slog.WarnContext(ctx, "undecodable realtime event", "subject", msg.Subject, "error", err)
				return
			}
			if !domain.CanReceive(principal, &ev) {
				return
			}
			handler(ctx, &ev)
		})
		if err != nil {
			unsubscribe()
			return nil, fmt.Errorf("subscribe %s: %w", kind, err)
		}
		subs = append(subs, sub)
	}

	stop := context.AfterFunc(ctx, unsubscribe)
	return func() {
		stop()
		unsubscribe()
	}, nil
}

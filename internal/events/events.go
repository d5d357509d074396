// Package events publishes work item lifecycle events and guards against
// duplicate inbound messages.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Event types.
const (
	TypeWorkItemCreated       = "work_item.created"
	TypeWorkItemStatusChanged = "work_item.status_changed"
	TypeWorkItemAssigned      = "work_item.assigned"
	TypeRiskAssessed          = "work_item.risk_assessed"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "uwb:events"

// Event is a lifecycle notification for downstream consumers.
type Event struct {
	Type       string         `json:"type"`
	WorkItemID string         `json:"work_item_id"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher emits events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// RedisPublisher publishes JSON events on a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher on channel, or DefaultChannel when
// empty.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "events: marshal")
	}
	n, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return eris.Wrapf(err, "events: publish %s", ev.Type)
	}
	zap.L().Debug("events: published",
		zap.String("type", ev.Type),
		zap.String("work_item_id", ev.WorkItemID),
		zap.Int64("receivers", n),
	)
	return nil
}

// Subscribe returns a subscription to the publisher's channel. Callers
// close it when done.
func (p *RedisPublisher) Subscribe(ctx context.Context) *redis.PubSub {
	return p.client.Subscribe(ctx, p.channel)
}

// Decode parses a pub/sub payload back into an Event.
func Decode(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, eris.Wrap(err, "events: decode")
	}
	return ev, nil
}

// NewRedis connects to addr and verifies the connection with a ping.
func NewRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrapf(err, "events: ping redis %s", addr)
	}
	return client, nil
}

package notifier

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/its333/NoStressPlanner-sub000/internal/logger"
)

// Notifier pushes realtime updates about an event to whoever is subscribed
// to its channel. Delivery is fire-and-forget: a dead broker degrades the
// live experience, never the mutation that triggered the message.
type Notifier interface {
	Notify(ctx context.Context, eventToken, topic string, payload interface{})
}

// message is the wire envelope published on an event channel.
type message struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

func channelFor(eventToken string) string {
	return "event." + eventToken
}

type redisNotifier struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisNotifier creates a notifier publishing on Redis pub/sub.
func NewRedisNotifier(client *redis.Client, log *logger.Logger) Notifier {
	return &redisNotifier{client: client, log: log}
}

func (n *redisNotifier) Notify(ctx context.Context, eventToken, topic string, payload interface{}) {
	raw, err := json.Marshal(message{Topic: topic, Payload: payload})
	if err != nil {
		n.log.WithEvent(eventToken).WithError(err).Warn("failed to encode notification")
		return
	}

	if err := n.client.Publish(ctx, channelFor(eventToken), raw).Err(); err != nil {
		n.log.WithEvent(eventToken).WithError(err).Warn("failed to publish notification")
	}
}

type nopNotifier struct{}

// NewNopNotifier creates a notifier that drops everything. Used when no
// broker is configured.
func NewNopNotifier() Notifier {
	return nopNotifier{}
}

func (nopNotifier) Notify(context.Context, string, string, interface{}) {}

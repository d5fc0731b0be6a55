package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/dkoroteev/genbot-backend/pkg/enums"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
	"github.com/dkoroteev/genbot-backend/pkg/outbox"
	"github.com/dkoroteev/genbot-backend/pkg/redis"
)

const (
	consumerScope  = "notify"
	consumerDedupe = 24 * time.Hour
)

// Consumer drains the notification subscription and delivers each event via
// the notifier. Delivery upstream is at-least-once; the redis mark on the
// envelope event id absorbs duplicates.
type Consumer struct {
	notifier     Service
	subscription *pubsub.Subscriber
	store        redis.IdempotencyStore
	logg         *logger.Logger
}

// NewConsumer builds the notification consumer.
func NewConsumer(notifier Service, subscription *pubsub.Subscriber, store redis.IdempotencyStore, logg *logger.Logger) (*Consumer, error) {
	if notifier == nil {
		return nil, fmt.Errorf("notifier service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if store == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		notifier:     notifier,
		subscription: subscription,
		store:        store,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["eventType"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	switch enums.OutboxEventType(eventType) {
	case enums.OutboxEventUserNotification, enums.OutboxEventOperatorNotification:
	default:
		c.logg.Info(logCtx, "skipping non-notification event")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	if envelope.EventID == "" {
		c.logg.Warn(logCtx, "envelope missing event id")
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", envelope.EventID)

	key := c.store.IdempotencyKey(consumerScope, envelope.EventID)
	fresh, err := c.store.SetNX(ctx, key, "1", consumerDedupe)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if !fresh {
		c.logg.Info(logCtx, "event already delivered")
		return processResult{ack: true}
	}

	var payload outbox.NotificationPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		_ = c.store.Del(ctx, key)
		return processResult{nack: true}
	}

	if err := c.deliver(ctx, payload); err != nil {
		c.logg.Error(logCtx, "notification delivery failed", err)
		_ = c.store.Del(ctx, key)
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

func (c *Consumer) deliver(ctx context.Context, payload outbox.NotificationPayload) error {
	if len(payload.DeleteMessageIDs) > 0 && payload.ChatID != 0 {
		// placeholder cleanup is best-effort; DeleteMessages only logs
		if err := c.notifier.DeleteMessages(ctx, payload.ChatID, payload.DeleteMessageIDs); err != nil {
			return err
		}
	}
	if payload.Operator {
		return c.notifier.NotifyOperators(ctx, payload.Text)
	}
	if payload.ChatID == 0 {
		return fmt.Errorf("notification payload has no chat id")
	}
	return c.notifier.NotifyUser(ctx, payload.ChatID, payload.Text)
}

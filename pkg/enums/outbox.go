package enums

import "fmt"

// OutboxEventType names the domain events emitted through the outbox.
type OutboxEventType string

const (
	OutboxEventUserNotification     OutboxEventType = "user.notification"
	OutboxEventOperatorNotification OutboxEventType = "operator.notification"
	OutboxEventBonusGranted         OutboxEventType = "bonus.granted"
)

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	OutboxAggregateUser         OutboxAggregateType = "user"
	OutboxAggregateSubscription OutboxAggregateType = "subscription"
	OutboxAggregatePack         OutboxAggregateType = "pack"
	OutboxAggregateRequest      OutboxAggregateType = "request"
)

// ParseOutboxAggregateType validates a wire value against the known set.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	switch t := OutboxAggregateType(value); t {
	case OutboxAggregateUser, OutboxAggregateSubscription, OutboxAggregatePack, OutboxAggregateRequest:
		return t, nil
	default:
		return "", fmt.Errorf("unknown outbox aggregate type %q", value)
	}
}

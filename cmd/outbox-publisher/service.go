package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/dkoroteev/genbot-backend/pkg/db/models"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type outboxRepository interface {
	FetchUnpublished(limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(id uuid.UUID) error
	MarkFailed(id uuid.UUID, err error) error
}

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// ServiceParams configures the outbox drain loop.
type ServiceParams struct {
	Logger       *logger.Logger
	Repository   outboxRepository
	Publisher    publisher
	BatchSize    int
	MaxAttempts  int
	PollInterval time.Duration
}

// Service drains unpublished outbox rows to the notification topic. Delivery
// is at-least-once; consumers de-duplicate on the envelope event id.
type Service struct {
	logg         *logger.Logger
	repo         outboxRepository
	publisher    publisher
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	pollInterval := params.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollMs * time.Millisecond
	}
	return &Service{
		logg:         params.Logger,
		repo:         params.Repository,
		publisher:    params.Publisher,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
		pollInterval: pollInterval,
	}, nil
}

// Run polls until the context is canceled. Publish failures back off
// exponentially so a flapping broker is not hammered.
func (s *Service) Run(ctx context.Context) error {
	backoff := s.pollInterval
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		published, err := s.drainOnce(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox drain cycle failed", err)
			backoff = nextBackoff(backoff)
		} else {
			backoff = s.pollInterval
		}

		if published > 0 && err == nil {
			// more rows may be waiting; skip the sleep
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff + jitter()):
		}
	}
}

func (s *Service) drainOnce(ctx context.Context) (int, error) {
	events, err := s.repo.FetchUnpublished(s.batchSize, s.maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("fetch unpublished: %w", err)
	}

	published := 0
	for i := range events {
		if err := s.publishOne(ctx, &events[i]); err != nil {
			eventCtx := s.logg.WithField(ctx, "outbox_event_id", events[i].ID.String())
			s.logg.Error(eventCtx, "publishing outbox event", err)
			if markErr := s.repo.MarkFailed(events[i].ID, err); markErr != nil {
				return published, fmt.Errorf("mark failed: %w", markErr)
			}
			continue
		}
		if err := s.repo.MarkPublished(events[i].ID); err != nil {
			// the event will be re-published; the consumer's event-id
			// dedupe absorbs the duplicate
			return published, fmt.Errorf("mark published: %w", err)
		}
		published++
	}
	return published, nil
}

func (s *Service) publishOne(ctx context.Context, event *models.OutboxEvent) error {
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	result := s.publisher.Publish(publishCtx, &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"eventType":     string(event.EventType),
			"aggregateType": string(event.AggregateType),
			"aggregateId":   event.AggregateID.String(),
		},
	})
	_, err := result.Get(publishCtx)
	return err
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func jitter() time.Duration {
	return time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}

package main

import (
	"context"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/dkoroteev/genbot-backend/pkg/db/models"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
)

type fakeOutboxRepo struct {
	pending   []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeOutboxRepo) FetchUnpublished(limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	out := f.pending
	f.pending = nil
	return out, nil
}

func (f *fakeOutboxRepo) MarkPublished(id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeOutboxRepo) MarkFailed(id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeResult struct {
	err error
}

func (f fakeResult) Get(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "msg-1", nil
}

type fakePublisher struct {
	messages []*gcppubsub.Message
	failFor  map[string]error
}

func (f *fakePublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if err := f.failFor[msg.Attributes["aggregateId"]]; err != nil {
		return fakeResult{err: err}
	}
	return fakeResult{}
}

func notificationEvent() models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.OutboxEventUserNotification,
		AggregateType: enums.OutboxAggregateUser,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1,"eventId":"e-1","data":{"text":"hi"}}`),
	}
}

func newPublisherService(t *testing.T, repo *fakeOutboxRepo, pub *fakePublisher) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
		Publisher:  pub,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service
}

func TestDrainOncePublishesAndMarks(t *testing.T) {
	first := notificationEvent()
	second := notificationEvent()
	repo := &fakeOutboxRepo{pending: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{}

	published, err := newPublisherService(t, repo, pub).drainOnce(context.Background())
	if err != nil {
		t.Fatalf("drainOnce: %v", err)
	}
	if published != 2 {
		t.Fatalf("expected 2 published, got %d", published)
	}
	if len(pub.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(pub.messages))
	}
	if got := pub.messages[0].Attributes["eventType"]; got != string(enums.OutboxEventUserNotification) {
		t.Fatalf("unexpected eventType attribute %q", got)
	}
	if len(repo.published) != 2 {
		t.Fatalf("expected 2 marks, got %d", len(repo.published))
	}
}

func TestDrainOnceIsolatesPublishFailure(t *testing.T) {
	failing := notificationEvent()
	healthy := notificationEvent()
	repo := &fakeOutboxRepo{pending: []models.OutboxEvent{failing, healthy}}
	pub := &fakePublisher{failFor: map[string]error{
		failing.AggregateID.String(): errors.New("broker unavailable"),
	}}

	published, err := newPublisherService(t, repo, pub).drainOnce(context.Background())
	if err != nil {
		t.Fatalf("drainOnce: %v", err)
	}
	if published != 1 {
		t.Fatalf("expected 1 published, got %d", published)
	}
	if len(repo.failed) != 1 || repo.failed[0] != failing.ID {
		t.Fatalf("expected the failing event marked, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != healthy.ID {
		t.Fatalf("expected the healthy event published, got %v", repo.published)
	}
}

func TestNextBackoffCapped(t *testing.T) {
	if got := nextBackoff(maxBackoff); got != maxBackoff {
		t.Fatalf("expected cap at %s, got %s", maxBackoff, got)
	}
	if got := nextBackoff(time.Second); got != 2*time.Second {
		t.Fatalf("expected doubling, got %s", got)
	}
}

package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dkoroteev/genbot-backend/pkg/db/models"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
	"github.com/dkoroteev/genbot-backend/pkg/yookassa"
)

type fakeRenewalBillingRepo struct {
	due []models.Subscription
	err error
}

func (f *fakeRenewalBillingRepo) ListDueForRenewal(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	return f.due, f.err
}

type fakeRenewalLifecycle struct {
	expired []uuid.UUID
	err     error
}

func (f *fakeRenewalLifecycle) ExpireToFree(ctx context.Context, subscriptionID uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.expired = append(f.expired, subscriptionID)
	return nil
}

type fakeMandateCharger struct {
	charges []yookassa.ChargeParams
	err     error
}

func (f *fakeMandateCharger) Charge(ctx context.Context, params yookassa.ChargeParams) (*yookassa.ChargeResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.charges = append(f.charges, params)
	return &yookassa.ChargeResult{ID: "charge-" + params.MandateID, Status: "pending"}, nil
}

func newRenewalJob(t *testing.T, repo *fakeRenewalBillingRepo, lifecycle *fakeRenewalLifecycle, charger *fakeMandateCharger, now time.Time) Job {
	t.Helper()
	job, err := NewRenewalJob(RenewalJobParams{
		Logger:        logger.New(logger.Options{ServiceName: "test"}),
		BillingRepo:   repo,
		Subscriptions: lifecycle,
		Charger:       charger,
		Now:           func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewRenewalJob: %v", err)
	}
	return job
}

func dueSubscription(endDate time.Time) models.Subscription {
	mandate := "mandate-1"
	return models.Subscription{
		ID:                   uuid.New(),
		UserID:               uuid.New(),
		Tier:                 enums.SubscriptionTierStandard,
		Period:               enums.SubscriptionPeriodMonth1,
		Status:               enums.SubscriptionStatusActive,
		PaymentMethod:        enums.PaymentMethodYooKassa,
		ProviderAutoChargeID: &mandate,
		AutoRenewEnabled:     true,
		EndDate:              endDate,
	}
}

func TestRenewalJobChargesDueMandate(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	sub := dueSubscription(now.Add(-time.Hour))
	repo := &fakeRenewalBillingRepo{due: []models.Subscription{sub}}
	lifecycle := &fakeRenewalLifecycle{}
	charger := &fakeMandateCharger{}

	if err := newRenewalJob(t, repo, lifecycle, charger, now).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(charger.charges) != 1 {
		t.Fatalf("expected 1 charge, got %d", len(charger.charges))
	}
	charge := charger.charges[0]
	if charge.MandateID != *sub.ProviderAutoChargeID {
		t.Fatalf("expected mandate %s, got %s", *sub.ProviderAutoChargeID, charge.MandateID)
	}
	if !charge.Amount.Equal(decimal.NewFromInt(299)) {
		t.Fatalf("expected standard monthly price, got %s", charge.Amount)
	}
	if charge.IdempotenceKey == "" {
		t.Fatal("expected a stable idempotence key")
	}
	if len(lifecycle.expired) != 0 {
		t.Fatalf("expected no expiries, got %d", len(lifecycle.expired))
	}
}

func TestRenewalJobExpiresWhenAutoRenewOff(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	sub := dueSubscription(now.Add(-time.Hour))
	sub.AutoRenewEnabled = false
	repo := &fakeRenewalBillingRepo{due: []models.Subscription{sub}}
	lifecycle := &fakeRenewalLifecycle{}
	charger := &fakeMandateCharger{}

	if err := newRenewalJob(t, repo, lifecycle, charger, now).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(charger.charges) != 0 {
		t.Fatalf("expected no charges, got %d", len(charger.charges))
	}
	if len(lifecycle.expired) != 1 || lifecycle.expired[0] != sub.ID {
		t.Fatalf("expected subscription %s expired, got %v", sub.ID, lifecycle.expired)
	}
}

func TestRenewalJobExpiresAfterGrace(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	sub := dueSubscription(now.Add(-renewalGrace - time.Hour))
	repo := &fakeRenewalBillingRepo{due: []models.Subscription{sub}}
	lifecycle := &fakeRenewalLifecycle{}
	charger := &fakeMandateCharger{}

	if err := newRenewalJob(t, repo, lifecycle, charger, now).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(charger.charges) != 0 {
		t.Fatalf("expected no charges past grace, got %d", len(charger.charges))
	}
	if len(lifecycle.expired) != 1 {
		t.Fatalf("expected 1 expiry, got %d", len(lifecycle.expired))
	}
}

func TestRenewalJobTrialRenewsAtMonthlyPrice(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	sub := dueSubscription(now.Add(-time.Hour))
	sub.Period = enums.SubscriptionPeriodTrial
	sub.Status = enums.SubscriptionStatusTrial
	repo := &fakeRenewalBillingRepo{due: []models.Subscription{sub}}
	charger := &fakeMandateCharger{}

	if err := newRenewalJob(t, repo, &fakeRenewalLifecycle{}, charger, now).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(charger.charges) != 1 {
		t.Fatalf("expected 1 charge, got %d", len(charger.charges))
	}
	if !charger.charges[0].Amount.Equal(decimal.NewFromInt(299)) {
		t.Fatalf("expected trial to renew at monthly price, got %s", charger.charges[0].Amount)
	}
}

func TestRenewalJobContinuesPastChargeFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	failing := dueSubscription(now.Add(-time.Hour))
	expiring := dueSubscription(now.Add(-time.Hour))
	expiring.AutoRenewEnabled = false
	repo := &fakeRenewalBillingRepo{due: []models.Subscription{failing, expiring}}
	lifecycle := &fakeRenewalLifecycle{}
	charger := &fakeMandateCharger{err: errors.New("gateway down")}

	err := newRenewalJob(t, repo, lifecycle, charger, now).Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if len(lifecycle.expired) != 1 || lifecycle.expired[0] != expiring.ID {
		t.Fatalf("expected the second subscription expired despite the charge failure, got %v", lifecycle.expired)
	}
}

package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/dkoroteev/genbot-backend/pkg/catalog"
	"github.com/dkoroteev/genbot-backend/pkg/db/models"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
	"github.com/dkoroteev/genbot-backend/pkg/yookassa"
)

const (
	defaultRenewalLimit = 100
	// renewalGrace is how long past end date a subscription may wait for its
	// renewal webhook before the sweep expires it to the free tier.
	renewalGrace = 72 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type renewalBillingRepo interface {
	ListDueForRenewal(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
}

type renewalLifecycle interface {
	ExpireToFree(ctx context.Context, subscriptionID uuid.UUID) error
}

type mandateCharger interface {
	Charge(ctx context.Context, params yookassa.ChargeParams) (*yookassa.ChargeResult, error)
}

// RenewalJobParams configures the subscription renewal sweep.
type RenewalJobParams struct {
	Logger        *logger.Logger
	BillingRepo   renewalBillingRepo
	Subscriptions renewalLifecycle
	Charger       mandateCharger
	Limit         int
	Now           func() time.Time
}

// NewRenewalJob builds the sweep that drives subscription renewals: due
// subscriptions with a stored mandate get an auto-charge submitted (the
// payment webhook finishes the renewal), the rest expire to the free tier.
func NewRenewalJob(params RenewalJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscriptions service required")
	}
	if params.Charger == nil {
		return nil, fmt.Errorf("mandate charger required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultRenewalLimit
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &renewalJob{
		logg:          params.Logger,
		billingRepo:   params.BillingRepo,
		subscriptions: params.Subscriptions,
		charger:       params.Charger,
		limit:         limit,
		now:           now,
	}, nil
}

type renewalJob struct {
	logg          *logger.Logger
	billingRepo   renewalBillingRepo
	subscriptions renewalLifecycle
	charger       mandateCharger
	limit         int
	now           func() time.Time
}

func (j *renewalJob) Name() string { return "subscription-renewal" }

func (j *renewalJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	due, err := j.billingRepo.ListDueForRenewal(ctx, now, j.limit)
	if err != nil {
		return fmt.Errorf("list due subscriptions: %w", err)
	}

	var errs error
	var charged, expired int
	for i := range due {
		sub := &due[i]
		subCtx := j.logg.WithField(ctx, "subscription_id", sub.ID.String())

		if j.chargeable(sub) && now.Before(sub.EndDate.Add(renewalGrace)) {
			if err := j.submitCharge(subCtx, sub); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("charging subscription %s: %w", sub.ID, err))
				continue
			}
			charged++
			continue
		}

		if err := j.subscriptions.ExpireToFree(subCtx, sub.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expiring subscription %s: %w", sub.ID, err))
			continue
		}
		expired++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due":     len(due),
		"charged": charged,
		"expired": expired,
	})
	j.logg.Info(logCtx, "subscription renewal sweep complete")
	return errs
}

// chargeable reports whether the sweep may submit an auto-charge: the user
// kept auto-renew on and the gateway holds a mandate for the subscription.
func (j *renewalJob) chargeable(sub *models.Subscription) bool {
	if !sub.AutoRenewEnabled || sub.Status == enums.SubscriptionStatusCanceled {
		return false
	}
	if sub.PaymentMethod != enums.PaymentMethodYooKassa {
		return false
	}
	return sub.ProviderAutoChargeID != nil && *sub.ProviderAutoChargeID != ""
}

func (j *renewalJob) submitCharge(ctx context.Context, sub *models.Subscription) error {
	tier, err := catalog.TierByID(sub.Tier)
	if err != nil {
		return err
	}

	// trials renew into a regular monthly period
	period := sub.Period
	if period == enums.SubscriptionPeriodTrial {
		period = enums.SubscriptionPeriodMonth1
	}
	amount := tier.MonthlyPrice.Mul(decimal.NewFromInt(int64(period.Months())))

	result, err := j.charger.Charge(ctx, yookassa.ChargeParams{
		MandateID:   *sub.ProviderAutoChargeID,
		Amount:      amount,
		Currency:    tier.Currency,
		Description: fmt.Sprintf("Subscription renewal: %s / %s", sub.Tier, period),
		// stable per subscription and day, so a retried sweep cannot double
		// charge inside the gateway's idempotence window
		IdempotenceKey: fmt.Sprintf("renewal:%s:%s", sub.ID, j.now().UTC().Format("2006-01-02")),
		Metadata: map[string]string{
			"subscription_id": sub.ID.String(),
		},
	})
	if err != nil {
		return err
	}
	chargeCtx := j.logg.WithChargeID(ctx, result.ID)
	j.logg.Info(chargeCtx, "renewal charge submitted")
	return nil
}

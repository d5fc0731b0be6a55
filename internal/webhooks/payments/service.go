package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/dkoroteev/genbot-backend/internal/billing"
	"github.com/dkoroteev/genbot-backend/internal/cart"
	"github.com/dkoroteev/genbot-backend/internal/packs"
	"github.com/dkoroteev/genbot-backend/internal/subscriptions"
	"github.com/dkoroteev/genbot-backend/pkg/config"
	"github.com/dkoroteev/genbot-backend/pkg/db/models"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
	pkgerrors "github.com/dkoroteev/genbot-backend/pkg/errors"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
	"github.com/dkoroteev/genbot-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service reconciles provider charge webhooks against pending purchases. A
// charge id may reference a subscription, a renewal mandate, or one or more
// packs from a cart checkout; each sub-flow is isolated so one failure does
// not lose the rest.
type Service struct {
	billingRepo   billing.Repository
	cartRepo      cart.Repository
	subscriptions subscriptions.Service
	packs         packs.Service
	guard         *IdempotencyGuard
	outbox        *outbox.Service
	txRunner      txRunner
	paymentsCfg   config.PaymentsConfig
	logger        *logger.Logger
}

// ServiceParams groups dependencies for the reconciler.
type ServiceParams struct {
	BillingRepo       billing.Repository
	CartRepo          cart.Repository
	Subscriptions     subscriptions.Service
	Packs             packs.Service
	Guard             *IdempotencyGuard
	Outbox            *outbox.Service
	TransactionRunner txRunner
	PaymentsConfig    config.PaymentsConfig
	Logger            *logger.Logger
}

// NewService builds the payment webhook reconciler.
func NewService(params ServiceParams) (*Service, error) {
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.CartRepo == nil {
		return nil, fmt.Errorf("cart repo required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscriptions service required")
	}
	if params.Packs == nil {
		return nil, fmt.Errorf("packs service required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		billingRepo:   params.BillingRepo,
		cartRepo:      params.CartRepo,
		subscriptions: params.Subscriptions,
		packs:         params.Packs,
		guard:         params.Guard,
		outbox:        params.Outbox,
		txRunner:      params.TransactionRunner,
		paymentsCfg:   params.PaymentsConfig,
		logger:        params.Logger,
	}, nil
}

// HandleCharge runs the decision table for one normalized charge event.
func (s *Service) HandleCharge(ctx context.Context, event ChargeEvent) error {
	if event.ChargeID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge id is required")
	}
	ctx = s.logger.WithChargeID(s.logger.WithProvider(ctx, event.Provider.String()), event.ChargeID)

	// pending and unknown deliveries are acked without marking the charge
	// processed, so the provider's final event is not seen as a duplicate
	switch event.Outcome {
	case enums.ChargeOutcomePending:
		// a well-known intermediate state; the final event follows
		return nil
	case enums.ChargeOutcomeUnknown:
		s.logger.Warn(ctx, "unrecognized charge status")
		return s.notifyOperators(ctx, fmt.Sprintf(
			"Unrecognized %s payment status for charge %s, manual review needed.",
			event.Provider, event.ChargeID))
	}

	guardKey := fmt.Sprintf("%s:%s", event.Provider, event.ChargeID)
	duplicate, err := s.guard.CheckAndMark(ctx, guardKey)
	if err != nil {
		// redis being down must not drop payments; the document status
		// guards below still make processing idempotent
		s.logger.Error(ctx, "idempotency guard unavailable", err)
	} else if duplicate {
		return pkgerrors.New(pkgerrors.CodeIdempotency, "charge already processed")
	}

	if err := s.reconcile(ctx, event); err != nil {
		if delErr := s.guard.Delete(ctx, guardKey); delErr != nil {
			s.logger.Error(ctx, "releasing idempotency mark", delErr)
		}
		return err
	}
	return nil
}

// reconcile runs the subscription/renewal branch and the pack branch for
// one charge. The branches are not exclusive: a single checkout can mix a
// subscription and packs under one charge id, and a failure in either
// branch must not suppress the other.
func (s *Service) reconcile(ctx context.Context, event ChargeEvent) error {
	net := EstimateNet(event, s.paymentsCfg)

	var errs error
	var matchedAny bool

	sub, err := s.billingRepo.FindSubscriptionByChargeID(ctx, event.ChargeID)
	switch {
	case err != nil:
		errs = multierr.Append(errs, fmt.Errorf("matching subscription: %w", err))
	case sub != nil:
		matchedAny = true
		if err := s.reconcileSubscription(ctx, event, sub, net); err != nil {
			errs = multierr.Append(errs, err)
		}
	case event.MandateID != "":
		prev, err := s.billingRepo.FindSubscriptionByMandateID(ctx, event.MandateID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("matching mandate: %w", err))
			break
		}
		if prev != nil {
			matchedAny = true
			if err := s.reconcileRenewal(ctx, event, prev, net); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}

	matched, err := s.billingRepo.ListPacksByChargeID(ctx, event.ChargeID)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("matching packs: %w", err))
	} else if len(matched) > 0 {
		matchedAny = true
		if err := s.reconcilePacks(ctx, event, matched, net); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if errs != nil {
		return errs
	}
	if !matchedAny {
		// nothing claims this charge: loud operator audit, 200 to the provider
		s.logger.Warn(ctx, "charge matches no pending purchase")
		return s.notifyOperators(ctx, fmt.Sprintf(
			"Unmatched %s charge %s for %s %s, manual review needed.",
			event.Provider, event.ChargeID, event.Amount.StringFixed(2), event.Currency))
	}
	return nil
}

func (s *Service) reconcileSubscription(ctx context.Context, event ChargeEvent, sub *models.Subscription, net decimal.Decimal) error {
	switch event.Outcome {
	case enums.ChargeOutcomeSucceeded:
		input := subscriptions.ActivateInput{
			SubscriptionID: sub.ID,
			ChargeID:       event.ChargeID,
			IncomeAmount:   net,
		}
		if event.MandateID != "" {
			input.MandateID = &event.MandateID
		}
		if _, err := s.subscriptions.Activate(ctx, input); err != nil {
			return fmt.Errorf("activating subscription %s: %w", sub.ID, err)
		}
		return s.notifyOperators(ctx, fmt.Sprintf(
			"Settled %s charge %s: subscription %s (%s) activated.",
			event.Provider, event.ChargeID, sub.ID, sub.Tier))
	default:
		if err := s.subscriptions.MarkDeclined(ctx, sub.ID); err != nil {
			return fmt.Errorf("declining subscription %s: %w", sub.ID, err)
		}
		return s.notifyOperators(ctx, fmt.Sprintf(
			"Declined %s charge %s for subscription %s (%s).",
			event.Provider, event.ChargeID, sub.ID, sub.Tier))
	}
}

// reconcileRenewal handles a mandate auto-charge: the next period gets its
// own subscription row, activated with the fresh charge id.
func (s *Service) reconcileRenewal(ctx context.Context, event ChargeEvent, prev *models.Subscription, net decimal.Decimal) error {
	if event.Outcome != enums.ChargeOutcomeSucceeded {
		if err := s.subscriptions.ExpireToFree(ctx, prev.ID); err != nil {
			return fmt.Errorf("expiring subscription %s after failed renewal: %w", prev.ID, err)
		}
		return s.notifyOperators(ctx, fmt.Sprintf(
			"Renewal charge %s declined; subscription %s expired to free.", event.ChargeID, prev.ID))
	}

	// trials renew into a regular monthly period
	period := prev.Period
	if period == enums.SubscriptionPeriodTrial {
		period = enums.SubscriptionPeriodMonth1
	}

	now := time.Now().UTC()
	next := &models.Subscription{
		ID:                   uuid.New(),
		UserID:               prev.UserID,
		Tier:                 prev.Tier,
		Period:               period,
		Status:               enums.SubscriptionStatusWaiting,
		Currency:             event.Currency,
		Amount:               event.Amount,
		PaymentMethod:        event.Provider,
		ProviderAutoChargeID: prev.ProviderAutoChargeID,
		StartDate:            now,
		EndDate:              now,
	}
	if err := s.billingRepo.CreateSubscription(ctx, next); err != nil {
		return fmt.Errorf("creating renewal subscription: %w", err)
	}

	input := subscriptions.ActivateInput{
		SubscriptionID: next.ID,
		ChargeID:       event.ChargeID,
		MandateID:      prev.ProviderAutoChargeID,
		IncomeAmount:   net,
	}
	if _, err := s.subscriptions.Activate(ctx, input); err != nil {
		return fmt.Errorf("activating renewal subscription %s: %w", next.ID, err)
	}
	return s.notifyOperators(ctx, fmt.Sprintf(
		"Settled renewal charge %s: subscription %s rolled into %s.",
		event.ChargeID, prev.ID, next.ID))
}

// reconcilePacks settles every pack bought under one charge. Failures are
// isolated per pack; the cart is cleared only when everything succeeded.
func (s *Service) reconcilePacks(ctx context.Context, event ChargeEvent, matched []models.Pack, net decimal.Decimal) error {
	var errs error

	if event.Outcome != enums.ChargeOutcomeSucceeded {
		for i := range matched {
			if err := s.packs.MarkDeclined(ctx, matched[i].ID); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("declining pack %s: %w", matched[i].ID, err))
			}
		}
		if errs != nil {
			return errs
		}
		return s.notifyOperators(ctx, fmt.Sprintf(
			"Declined %s charge %s covering %d pack(s).", event.Provider, event.ChargeID, len(matched)))
	}

	// split the net income evenly across the packs of the charge
	share := net
	if len(matched) > 1 {
		share = net.Div(decimal.NewFromInt(int64(len(matched)))).Round(2)
	}

	for i := range matched {
		if _, err := s.packs.Activate(ctx, packs.ActivateInput{
			PackID:       matched[i].ID,
			ChargeID:     event.ChargeID,
			IncomeAmount: share,
		}); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("activating pack %s: %w", matched[i].ID, err))
		}
	}
	if errs != nil {
		return errs
	}

	if err := s.cartRepo.ClearByUser(ctx, matched[0].UserID); err != nil {
		// the purchase itself is settled; a stale cart is only noise
		s.logger.Error(ctx, "clearing cart after checkout", err)
	}
	return s.notifyOperators(ctx, fmt.Sprintf(
		"Settled %s charge %s covering %d pack(s).", event.Provider, event.ChargeID, len(matched)))
}

func (s *Service) notifyOperators(ctx context.Context, text string) error {
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventOperatorNotification,
			AggregateType: enums.OutboxAggregateUser,
			AggregateID:   uuid.Nil,
			Data:          outbox.NotificationPayload{Operator: true, Text: text},
		})
	})
}

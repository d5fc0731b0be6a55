package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dkoroteev/genbot-backend/internal/billing"
	"github.com/dkoroteev/genbot-backend/internal/users"
	"github.com/dkoroteev/genbot-backend/pkg/catalog"
	"github.com/dkoroteev/genbot-backend/pkg/db/models"
	dbtypes "github.com/dkoroteev/genbot-backend/pkg/db/types"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
	pkgerrors "github.com/dkoroteev/genbot-backend/pkg/errors"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
	"github.com/dkoroteev/genbot-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// MandateRevoker disables a saved auto-charge mandate provider-side.
type MandateRevoker interface {
	RevokeMandate(ctx context.Context, mandateID string) error
}

// Service drives the subscription lifecycle. Activation is the only path that
// grants recurring limits; everything else moves the status machine.
type Service interface {
	Activate(ctx context.Context, input ActivateInput) (*models.Subscription, error)
	MarkDeclined(ctx context.Context, subscriptionID uuid.UUID) error
	Unsubscribe(ctx context.Context, userID uuid.UUID) error
	Resubscribe(ctx context.Context, userID uuid.UUID) error
	ExpireToFree(ctx context.Context, subscriptionID uuid.UUID) error
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	BillingRepo       billing.Repository
	UsersRepo         users.Repository
	Outbox            *outbox.Service
	MandateRevoker    MandateRevoker
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// ActivateInput carries what the payment reconciler learned from the charge.
type ActivateInput struct {
	SubscriptionID uuid.UUID
	ChargeID       string
	MandateID      *string
	IncomeAmount   decimal.Decimal
}

type service struct {
	billingRepo billing.Repository
	usersRepo   users.Repository
	outbox      *outbox.Service
	revoker     MandateRevoker
	txRunner    txRunner
	logger      *logger.Logger
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.UsersRepo == nil {
		return nil, fmt.Errorf("users repo required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.MandateRevoker == nil {
		return nil, fmt.Errorf("mandate revoker required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		billingRepo: params.BillingRepo,
		usersRepo:   params.UsersRepo,
		outbox:      params.Outbox,
		revoker:     params.MandateRevoker,
		txRunner:    params.TransactionRunner,
		logger:      params.Logger,
	}, nil
}

// Activate turns a paid-for subscription on: it finishes any other current
// subscription the user holds, resets the recurring daily limits wholesale
// from the tier table and stamps the payment identifiers. Re-delivery of the
// same charge is a no-op.
func (s *service) Activate(ctx context.Context, input ActivateInput) (*models.Subscription, error) {
	if input.SubscriptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	if input.ChargeID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge id is required")
	}

	var (
		activated       *models.Subscription
		revokeMandates  []string
		notifyChatID    int64
		notifyTierLabel string
	)

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		billingRepo := s.billingRepo.WithTx(tx)
		usersRepo := s.usersRepo.WithTx(tx)

		sub, err := billingRepo.FindSubscriptionByID(ctx, input.SubscriptionID)
		if err != nil {
			return fmt.Errorf("loading subscription: %w", err)
		}

		if sub.Status.IsCurrent() && sub.ProviderChargeID != nil && *sub.ProviderChargeID == input.ChargeID {
			activated = sub
			return nil
		}
		if sub.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("subscription %s is already %s", sub.ID, sub.Status))
		}

		tier, err := catalog.TierByID(sub.Tier)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown tier")
		}

		current, err := billingRepo.ListCurrentByUser(ctx, sub.UserID)
		if err != nil {
			return fmt.Errorf("listing current subscriptions: %w", err)
		}
		for i := range current {
			other := &current[i]
			if other.ID == sub.ID {
				continue
			}
			other.Status = enums.SubscriptionStatusFinished
			other.AutoRenewEnabled = false
			if other.ProviderAutoChargeID != nil && *other.ProviderAutoChargeID != "" {
				revokeMandates = append(revokeMandates, *other.ProviderAutoChargeID)
			}
			if err := billingRepo.UpdateSubscription(ctx, other); err != nil {
				return fmt.Errorf("finishing superseded subscription %s: %w", other.ID, err)
			}
		}

		now := time.Now().UTC()
		sub.Status = enums.SubscriptionStatusActive
		if sub.Period == enums.SubscriptionPeriodTrial {
			sub.Status = enums.SubscriptionStatusTrial
		}
		sub.StartDate = now
		sub.EndDate = now.AddDate(0, sub.Period.Months(), 0)
		sub.ProviderChargeID = &input.ChargeID
		if input.MandateID != nil && *input.MandateID != "" {
			sub.ProviderAutoChargeID = input.MandateID
		}
		sub.AutoRenewEnabled = true
		sub.IncomeAmount = input.IncomeAmount
		if err := billingRepo.UpdateSubscription(ctx, sub); err != nil {
			return fmt.Errorf("activating subscription: %w", err)
		}

		user, err := usersRepo.FindByID(ctx, sub.UserID)
		if err != nil {
			return fmt.Errorf("loading user: %w", err)
		}
		user.SubscriptionID = &sub.ID
		user.DailyLimits = tier.DailyLimits.Clone()
		user.LastLimitUpdate = &now
		if user.AdditionalQuota == nil {
			user.AdditionalQuota = dbtypes.QuotaGrants{}
		}
		for _, flag := range tier.GrantedFlags {
			user.AdditionalQuota.SetEnabled(flag, true)
		}
		if err := usersRepo.Save(ctx, user); err != nil {
			return fmt.Errorf("saving user: %w", err)
		}

		notifyChatID = user.TelegramChatID
		notifyTierLabel = sub.Tier.String()

		activated = sub
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventUserNotification,
			AggregateType: enums.OutboxAggregateSubscription,
			AggregateID:   sub.ID,
			Data: outbox.NotificationPayload{
				ChatID: notifyChatID,
				Text:   fmt.Sprintf("Your %s subscription is now active. Enjoy!", notifyTierLabel),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	// Provider calls stay outside the transaction. A failed revoke is logged
	// and retried by the renewal sweep when the stale mandate fires.
	for _, mandateID := range revokeMandates {
		if err := s.revoker.RevokeMandate(ctx, mandateID); err != nil {
			s.logger.Error(s.logger.WithField(ctx, "mandate_id", mandateID),
				"revoking superseded mandate", err)
		}
	}

	return activated, nil
}

// MarkDeclined records a failed charge for a pending subscription.
func (s *service) MarkDeclined(ctx context.Context, subscriptionID uuid.UUID) error {
	if subscriptionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}

	sub, err := s.billingRepo.FindSubscriptionByID(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("loading subscription: %w", err)
	}
	if sub.Status == enums.SubscriptionStatusDeclined {
		return nil
	}
	if sub.Status != enums.SubscriptionStatusWaiting {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot decline subscription in status %s", sub.Status))
	}

	sub.Status = enums.SubscriptionStatusDeclined
	sub.AutoRenewEnabled = false
	return s.billingRepo.UpdateSubscription(ctx, sub)
}

// Unsubscribe turns auto-renew off. The subscription stays usable until its
// end date, except trials, which end immediately.
func (s *service) Unsubscribe(ctx context.Context, userID uuid.UUID) error {
	sub, err := s.findCurrent(ctx, userID)
	if err != nil {
		return err
	}

	var revokeMandate string
	if err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		billingRepo := s.billingRepo.WithTx(tx)

		sub.Status = enums.SubscriptionStatusCanceled
		sub.AutoRenewEnabled = false
		if sub.Period == enums.SubscriptionPeriodTrial {
			sub.EndDate = time.Now().UTC()
		}
		if sub.ProviderAutoChargeID != nil && *sub.ProviderAutoChargeID != "" {
			revokeMandate = *sub.ProviderAutoChargeID
		}
		return billingRepo.UpdateSubscription(ctx, sub)
	}); err != nil {
		return err
	}

	if revokeMandate != "" {
		if err := s.revoker.RevokeMandate(ctx, revokeMandate); err != nil {
			s.logger.Error(s.logger.WithField(ctx, "mandate_id", revokeMandate),
				"revoking mandate on unsubscribe", err)
		}
	}
	return nil
}

// Resubscribe re-enables auto-renew on a canceled-but-still-running
// subscription.
func (s *service) Resubscribe(ctx context.Context, userID uuid.UUID) error {
	sub, err := s.findCurrent(ctx, userID)
	if err != nil {
		return err
	}
	if sub.Status != enums.SubscriptionStatusCanceled {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("subscription is %s, not canceled", sub.Status))
	}
	if sub.EndDate.Before(time.Now().UTC()) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription period already over")
	}

	sub.Status = enums.SubscriptionStatusActive
	sub.AutoRenewEnabled = true
	return s.billingRepo.UpdateSubscription(ctx, sub)
}

// ExpireToFree finishes a lapsed subscription and drops the user back to the
// free-tier limit table. Flags granted by the tier are cleared unless a live
// flag pack still covers them.
func (s *service) ExpireToFree(ctx context.Context, subscriptionID uuid.UUID) error {
	if subscriptionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		billingRepo := s.billingRepo.WithTx(tx)
		usersRepo := s.usersRepo.WithTx(tx)

		sub, err := billingRepo.FindSubscriptionByID(ctx, subscriptionID)
		if err != nil {
			return fmt.Errorf("loading subscription: %w", err)
		}
		if sub.Status == enums.SubscriptionStatusFinished {
			return nil
		}

		sub.Status = enums.SubscriptionStatusFinished
		sub.AutoRenewEnabled = false
		if err := billingRepo.UpdateSubscription(ctx, sub); err != nil {
			return fmt.Errorf("finishing subscription: %w", err)
		}

		user, err := usersRepo.FindByID(ctx, sub.UserID)
		if err != nil {
			return fmt.Errorf("loading user: %w", err)
		}

		now := time.Now().UTC()
		free := catalog.FreeTier()
		user.SubscriptionID = nil
		user.DailyLimits = free.DailyLimits.Clone()
		user.LastLimitUpdate = &now

		tier, tierErr := catalog.TierByID(sub.Tier)
		if tierErr == nil {
			for _, flag := range tier.GrantedFlags {
				covered, err := billingRepo.HasLiveFlagPack(ctx, user.ID, flagProductIDs(flag), now)
				if err != nil {
					return fmt.Errorf("checking flag coverage: %w", err)
				}
				if covered {
					continue
				}
				user.AdditionalQuota.SetEnabled(flag, false)
				switch flag {
				case enums.QuotaVoiceMessages:
					user.VoiceReplies = false
				case enums.QuotaRoleCatalog:
					user.CurrentRole = catalog.DefaultRole
				}
			}
		}

		if err := usersRepo.Save(ctx, user); err != nil {
			return fmt.Errorf("saving user: %w", err)
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventUserNotification,
			AggregateType: enums.OutboxAggregateSubscription,
			AggregateID:   sub.ID,
			Data: outbox.NotificationPayload{
				ChatID: user.TelegramChatID,
				Text:   "Your subscription has ended. You are back on the free plan.",
			},
		})
	})
}

func (s *service) findCurrent(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	current, err := s.billingRepo.ListCurrentByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing current subscriptions: %w", err)
	}
	if len(current) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no current subscription")
	}
	return &current[0], nil
}

// flagProductIDs maps an entitlement flag to the pack products that grant it.
func flagProductIDs(flag enums.Quota) []string {
	var ids []string
	for _, product := range catalog.FlagProducts() {
		if product.Quota == flag {
			ids = append(ids, product.ID)
		}
	}
	return ids
}

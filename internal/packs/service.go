package packs

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

// Service applies add-on pack purchases to a user's additional-usage pool.
type Service interface {
	Activate(ctx context.Context, input ActivateInput) (*models.Pack, error)
	MarkDeclined(ctx context.Context, packID uuid.UUID) error
}

// ServiceParams groups dependencies for the pack service.
type ServiceParams struct {
	BillingRepo       billing.Repository
	UsersRepo         users.Repository
	Outbox            *outbox.Service
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// ActivateInput carries what the payment reconciler learned from the charge.
type ActivateInput struct {
	PackID       uuid.UUID
	ChargeID     string
	IncomeAmount decimal.Decimal
}

type service struct {
	billingRepo billing.Repository
	usersRepo   users.Repository
	outbox      *outbox.Service
	txRunner    txRunner
	logger      *logger.Logger
}

// NewService builds a pack service with the required dependencies.
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
		txRunner:    params.TransactionRunner,
		logger:      params.Logger,
	}, nil
}

// Activate marks the pack paid and grants what it sells: recurring-flag
// products switch the entitlement flag on for Quantity months, counter
// products add Quantity*Units credits to the additional-usage pool.
// Re-delivery of the same charge is a no-op.
func (s *service) Activate(ctx context.Context, input ActivateInput) (*models.Pack, error) {
	if input.PackID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pack id is required")
	}
	if input.ChargeID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge id is required")
	}

	var activated *models.Pack
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		billingRepo := s.billingRepo.WithTx(tx)
		usersRepo := s.usersRepo.WithTx(tx)

		pack, err := billingRepo.FindPackByID(ctx, input.PackID)
		if err != nil {
			return fmt.Errorf("loading pack: %w", err)
		}

		if pack.Status == enums.PackStatusSuccess &&
			pack.ProviderChargeID != nil && *pack.ProviderChargeID == input.ChargeID {
			activated = pack
			return nil
		}
		if pack.Status != enums.PackStatusWaiting {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("pack %s is already %s", pack.ID, pack.Status))
		}

		product, err := catalog.ProductByID(pack.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown product")
		}

		user, err := usersRepo.FindByID(ctx, pack.UserID)
		if err != nil {
			return fmt.Errorf("loading user: %w", err)
		}
		if user.AdditionalQuota == nil {
			user.AdditionalQuota = dbtypes.QuotaGrants{}
		}

		now := time.Now().UTC()
		if product.Recurring {
			user.AdditionalQuota.SetEnabled(product.Quota, true)
			until := now.AddDate(0, int(pack.Quantity), 0)
			pack.UntilAt = &until
			if product.Quota == enums.QuotaVoiceMessages {
				user.VoiceReplies = true
			}
		} else {
			user.AdditionalQuota.AddCount(product.Quota, pack.Quantity*product.Units)
		}

		pack.Status = enums.PackStatusSuccess
		pack.ProviderChargeID = &input.ChargeID
		pack.IncomeAmount = input.IncomeAmount
		if err := billingRepo.UpdatePack(ctx, pack); err != nil {
			return fmt.Errorf("activating pack: %w", err)
		}
		if err := usersRepo.Save(ctx, user); err != nil {
			return fmt.Errorf("saving user: %w", err)
		}

		activated = pack
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventUserNotification,
			AggregateType: enums.OutboxAggregatePack,
			AggregateID:   pack.ID,
			Data: outbox.NotificationPayload{
				ChatID: user.TelegramChatID,
				Text:   fmt.Sprintf("Your %s purchase is active.", pack.ProductID),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return activated, nil
}

// MarkDeclined records a failed charge for a pending pack.
func (s *service) MarkDeclined(ctx context.Context, packID uuid.UUID) error {
	if packID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "pack id is required")
	}

	pack, err := s.billingRepo.FindPackByID(ctx, packID)
	if err != nil {
		return fmt.Errorf("loading pack: %w", err)
	}
	if pack.Status == enums.PackStatusDeclined {
		return nil
	}
	if pack.Status != enums.PackStatusWaiting {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot decline pack in status %s", pack.Status))
	}

	pack.Status = enums.PackStatusDeclined
	return s.billingRepo.UpdatePack(ctx, pack)
}

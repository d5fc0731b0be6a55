package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/dkoroteev/genbot-backend/internal/users"
	"github.com/dkoroteev/genbot-backend/pkg/catalog"
	"github.com/dkoroteev/genbot-backend/pkg/db/models"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
)

type grantExpiryBillingRepo interface {
	ListLapsedFlagPacks(ctx context.Context, productIDs []string, now time.Time) ([]models.Pack, error)
	HasLiveFlagPack(ctx context.Context, userID uuid.UUID, productIDs []string, now time.Time) (bool, error)
	ListCurrentByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
}

// GrantExpiryJobParams configures the entitlement-flag expiry sweep.
type GrantExpiryJobParams struct {
	Logger      *logger.Logger
	BillingRepo grantExpiryBillingRepo
	UsersRepo   users.Repository
	DB          txRunner
	Now         func() time.Time
}

// NewGrantExpiryJob builds the sweep that turns off entitlement flags whose
// packs have all lapsed and whose holder has no subscription tier granting
// the same flag.
func NewGrantExpiryJob(params GrantExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.UsersRepo == nil {
		return nil, fmt.Errorf("users repo required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &grantExpiryJob{
		logg:        params.Logger,
		billingRepo: params.BillingRepo,
		usersRepo:   params.UsersRepo,
		db:          params.DB,
		now:         now,
	}, nil
}

type grantExpiryJob struct {
	logg        *logger.Logger
	billingRepo grantExpiryBillingRepo
	usersRepo   users.Repository
	db          txRunner
	now         func() time.Time
}

func (j *grantExpiryJob) Name() string { return "grant-expiry" }

func (j *grantExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()

	// one product per flag today, but the sweep tolerates several
	productsByFlag := map[enums.Quota][]string{}
	for _, product := range catalog.FlagProducts() {
		productsByFlag[product.Quota] = append(productsByFlag[product.Quota], product.ID)
	}

	var errs error
	var cleared int
	for flag, productIDs := range productsByFlag {
		lapsed, err := j.billingRepo.ListLapsedFlagPacks(ctx, productIDs, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("listing lapsed %s packs: %w", flag, err))
			continue
		}

		seen := map[uuid.UUID]bool{}
		for i := range lapsed {
			userID := lapsed[i].UserID
			if seen[userID] {
				continue
			}
			seen[userID] = true

			done, err := j.expireForUser(ctx, userID, flag, productIDs, now)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("expiring %s for user %s: %w", flag, userID, err))
				continue
			}
			if done {
				cleared++
			}
		}
	}

	logCtx := j.logg.WithField(ctx, "flags_cleared", cleared)
	j.logg.Info(logCtx, "grant expiry sweep complete")
	return errs
}

// expireForUser clears the flag unless a live pack or a current subscription
// tier still covers it. Returns true when the flag was actually turned off.
func (j *grantExpiryJob) expireForUser(ctx context.Context, userID uuid.UUID, flag enums.Quota, productIDs []string, now time.Time) (bool, error) {
	covered, err := j.billingRepo.HasLiveFlagPack(ctx, userID, productIDs, now)
	if err != nil {
		return false, fmt.Errorf("checking live packs: %w", err)
	}
	if covered {
		return false, nil
	}

	current, err := j.billingRepo.ListCurrentByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("listing subscriptions: %w", err)
	}
	for i := range current {
		if !current[i].EndDate.After(now) {
			continue
		}
		tier, err := catalog.TierByID(current[i].Tier)
		if err != nil {
			return false, err
		}
		if tier.GrantsFlag(flag) {
			return false, nil
		}
	}

	var cleared bool
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.usersRepo.WithTx(tx)
		user, err := repo.FindByID(ctx, userID)
		if err != nil {
			return err
		}
		if !user.AdditionalQuota.Enabled(flag) {
			return nil
		}
		user.AdditionalQuota.SetEnabled(flag, false)
		switch flag {
		case enums.QuotaVoiceMessages:
			user.VoiceReplies = false
		case enums.QuotaRoleCatalog:
			user.CurrentRole = catalog.DefaultRole
		}
		cleared = true
		return repo.Save(ctx, user)
	})
	if err != nil {
		return false, err
	}
	return cleared, nil
}

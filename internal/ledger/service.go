package ledger

import (
	"context"
	"fmt"

	"github.com/dkoroteev/genbot-backend/internal/users"
	"github.com/dkoroteev/genbot-backend/pkg/db/models"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service is the single write path for entitlement balances. A deduction
// consumes the recurring daily pool first (decrementing every model in the
// quota's equivalence class), then falls back to the additional-usage pool
// (decrementing only the requested key), and stops silently when both are
// exhausted.
type Service interface {
	Deduct(ctx context.Context, userID uuid.UUID, quota enums.Quota, qty int) error
	DeductTx(ctx context.Context, tx *gorm.DB, user *models.User, quota enums.Quota, qty int) error
	Available(user *models.User, quota enums.Quota) int64
}

type service struct {
	users  users.Repository
	logger *logger.Logger
}

// ServiceParams wires ledger service dependencies.
type ServiceParams struct {
	Users  users.Repository
	Logger *logger.Logger
}

// NewService wires a ledger service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{users: params.Users, logger: params.Logger}, nil
}

// Deduct loads the user, applies the deduction and saves the result. The
// read-modify-write is not transactional with any other document.
func (s *service) Deduct(ctx context.Context, userID uuid.UUID, quota enums.Quota, qty int) error {
	if qty <= 0 {
		return nil
	}
	if err := validateCounterQuota(quota); err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading user %s: %w", userID, err)
	}

	applyDeduction(user, quota, qty)

	if err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("saving user %s: %w", userID, err)
	}
	return nil
}

// DeductTx applies the deduction to an already-loaded user and saves it on the
// caller's transaction, so billing commits atomically with whatever state
// change triggered it.
func (s *service) DeductTx(ctx context.Context, tx *gorm.DB, user *models.User, quota enums.Quota, qty int) error {
	if qty <= 0 {
		return nil
	}
	if user == nil {
		return fmt.Errorf("user required")
	}
	if err := validateCounterQuota(quota); err != nil {
		return err
	}

	applyDeduction(user, quota, qty)

	if err := s.users.WithTx(tx).Save(ctx, user); err != nil {
		return fmt.Errorf("saving user %s: %w", user.ID, err)
	}
	return nil
}

// Available reports how many more units of the quota the user could consume
// right now: the recurring balance for the key plus the additional balance.
func (s *service) Available(user *models.User, quota enums.Quota) int64 {
	if user == nil || quota.Kind() != enums.QuotaKindCount {
		return 0
	}
	total := user.DailyLimits.Get(quota)
	if total < 0 {
		total = 0
	}
	return total + user.AdditionalQuota.Count(quota)
}

func validateCounterQuota(quota enums.Quota) error {
	if !quota.IsValid() {
		return fmt.Errorf("invalid quota %q", quota)
	}
	if quota.Kind() != enums.QuotaKindCount {
		return fmt.Errorf("quota %q is a flag, not a counter", quota)
	}
	return nil
}

// applyDeduction mutates the user's quota maps in place, one unit at a time.
// Units beyond the combined balance are dropped, never driven negative.
func applyDeduction(user *models.User, quota enums.Quota, qty int) {
	for i := 0; i < qty; i++ {
		switch {
		case user.DailyLimits.Get(quota) > 0:
			// recurring pool: the whole equivalence class moves together
			for _, sibling := range quota.Siblings() {
				if user.DailyLimits.Get(sibling) > 0 {
					user.DailyLimits[sibling]--
				}
			}
		case user.AdditionalQuota.Count(quota) > 0:
			user.AdditionalQuota.AddCount(quota, -1)
		default:
			return
		}
	}
}

package billing

import (
	"context"
	"time"

	"github.com/dkoroteev/genbot-backend/pkg/db/models"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository handles subscription and pack persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateSubscription(ctx context.Context, subscription *models.Subscription) error
	UpdateSubscription(ctx context.Context, subscription *models.Subscription) error
	FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindSubscriptionByChargeID(ctx context.Context, chargeID string) (*models.Subscription, error)
	FindSubscriptionByMandateID(ctx context.Context, mandateID string) (*models.Subscription, error)
	ListCurrentByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
	ListDueForRenewal(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	CreatePack(ctx context.Context, pack *models.Pack) error
	UpdatePack(ctx context.Context, pack *models.Pack) error
	FindPackByID(ctx context.Context, id uuid.UUID) (*models.Pack, error)
	ListPacksByChargeID(ctx context.Context, chargeID string) ([]models.Pack, error)
	ListLapsedFlagPacks(ctx context.Context, productIDs []string, now time.Time) ([]models.Pack, error)
	HasLiveFlagPack(ctx context.Context, userID uuid.UUID, productIDs []string, now time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).First(&sub, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindSubscriptionByChargeID(ctx context.Context, chargeID string) (*models.Subscription, error) {
	if chargeID == "" {
		return nil, nil
	}
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("provider_payment_charge_id = ?", chargeID).
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindSubscriptionByMandateID(ctx context.Context, mandateID string) (*models.Subscription, error) {
	if mandateID == "" {
		return nil, nil
	}
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("provider_auto_payment_charge_id = ?", mandateID).
		Order("end_date DESC").
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// ListCurrentByUser returns the user's current (active, trial or canceled but
// not yet lapsed) subscriptions. There should be at most one; activation
// repairs any excess it finds.
func (r *repository) ListCurrentByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	statuses := []enums.SubscriptionStatus{
		enums.SubscriptionStatusActive,
		enums.SubscriptionStatusTrial,
		enums.SubscriptionStatusCanceled,
	}
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN (?)", userID, statuses).
		Order("created_at DESC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) ListDueForRenewal(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	statuses := []enums.SubscriptionStatus{
		enums.SubscriptionStatusActive,
		enums.SubscriptionStatusTrial,
		enums.SubscriptionStatusCanceled,
	}
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("status IN (?) AND end_date <= ?", statuses, now).
		Order("end_date ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) CreatePack(ctx context.Context, pack *models.Pack) error {
	return r.db.WithContext(ctx).Create(pack).Error
}

func (r *repository) UpdatePack(ctx context.Context, pack *models.Pack) error {
	return r.db.WithContext(ctx).Save(pack).Error
}

func (r *repository) FindPackByID(ctx context.Context, id uuid.UUID) (*models.Pack, error) {
	var pack models.Pack
	if err := r.db.WithContext(ctx).First(&pack, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &pack, nil
}

func (r *repository) ListPacksByChargeID(ctx context.Context, chargeID string) ([]models.Pack, error) {
	if chargeID == "" {
		return nil, nil
	}
	var packs []models.Pack
	if err := r.db.WithContext(ctx).
		Where("provider_payment_charge_id = ?", chargeID).
		Order("created_at ASC").
		Find(&packs).Error; err != nil {
		return nil, err
	}
	return packs, nil
}

// ListLapsedFlagPacks returns successful flag-product packs whose validity
// window has already closed. The grant-expiry sweep decides per user whether
// any other grant still covers the flag.
func (r *repository) ListLapsedFlagPacks(ctx context.Context, productIDs []string, now time.Time) ([]models.Pack, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var packs []models.Pack
	if err := r.db.WithContext(ctx).
		Where("product_id IN (?) AND status = ? AND until_at IS NOT NULL AND until_at <= ?",
			productIDs, enums.PackStatusSuccess, now).
		Order("until_at ASC").
		Find(&packs).Error; err != nil {
		return nil, err
	}
	return packs, nil
}

// HasLiveFlagPack reports whether the user holds a successful pack for any of
// the given products with a validity window still open.
func (r *repository) HasLiveFlagPack(ctx context.Context, userID uuid.UUID, productIDs []string, now time.Time) (bool, error) {
	if len(productIDs) == 0 {
		return false, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Pack{}).
		Where("user_id = ? AND product_id IN (?) AND status = ? AND until_at IS NOT NULL AND until_at > ?",
			userID, productIDs, enums.PackStatusSuccess, now).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

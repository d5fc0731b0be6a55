package requests

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dkoroteev/genbot-backend/pkg/db/models"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
)

// Repository persists requests and their fan-out generations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateRequest(ctx context.Context, request *models.Request) error
	UpdateRequest(ctx context.Context, request *models.Request) error
	FindRequestByID(ctx context.Context, id uuid.UUID) (*models.Request, error)
	FindOpenRequest(ctx context.Context, userID uuid.UUID, productID enums.Quota) (*models.Request, error)
	CreateGeneration(ctx context.Context, generation *models.Generation) error
	UpdateGeneration(ctx context.Context, generation *models.Generation) error
	FindGenerationByProviderID(ctx context.Context, providerID string) (*models.Generation, error)
	ListGenerationsByRequest(ctx context.Context, requestID uuid.UUID) ([]models.Generation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a requests repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateRequest(ctx context.Context, request *models.Request) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) UpdateRequest(ctx context.Context, request *models.Request) error {
	return r.db.WithContext(ctx).Save(request).Error
}

func (r *repository) FindRequestByID(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	var request models.Request
	if err := r.db.WithContext(ctx).First(&request, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

// FindOpenRequest returns the user's unfinished request for the product, or
// nil when there is none.
func (r *repository) FindOpenRequest(ctx context.Context, userID uuid.UUID, productID enums.Quota) (*models.Request, error) {
	var request models.Request
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ? AND status <> ?",
			userID, productID, enums.RequestStatusFinished).
		Order("created_at DESC").
		First(&request).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

func (r *repository) CreateGeneration(ctx context.Context, generation *models.Generation) error {
	return r.db.WithContext(ctx).Create(generation).Error
}

func (r *repository) UpdateGeneration(ctx context.Context, generation *models.Generation) error {
	return r.db.WithContext(ctx).Save(generation).Error
}

func (r *repository) FindGenerationByProviderID(ctx context.Context, providerID string) (*models.Generation, error) {
	var generation models.Generation
	if err := r.db.WithContext(ctx).
		Where("provider_generation_id = ?", providerID).
		First(&generation).Error; err != nil {
		return nil, err
	}
	return &generation, nil
}

func (r *repository) ListGenerationsByRequest(ctx context.Context, requestID uuid.UUID) ([]models.Generation, error) {
	var generations []models.Generation
	if err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&generations).Error; err != nil {
		return nil, err
	}
	return generations, nil
}

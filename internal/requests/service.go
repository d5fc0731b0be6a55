package requests

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dkoroteev/genbot-backend/internal/ledger"
	"github.com/dkoroteev/genbot-backend/internal/users"
	"github.com/dkoroteev/genbot-backend/pkg/db/models"
	dbtypes "github.com/dkoroteev/genbot-backend/pkg/db/types"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
	pkgerrors "github.com/dkoroteev/genbot-backend/pkg/errors"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
	"github.com/dkoroteev/genbot-backend/pkg/outbox"
	"github.com/dkoroteev/genbot-backend/pkg/redis"
)

// fanoutTTL bounds how long an arrival counter may outlive its request.
const fanoutTTL = 2 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service tracks in-flight generation requests. A request fans out into one
// or more provider generations; completion of the last one settles billing
// for the successful subset and notifies the user.
type Service interface {
	Admit(ctx context.Context, userID uuid.UUID, productID enums.Quota) error
	Create(ctx context.Context, input CreateInput) (*models.Request, error)
	CompleteGeneration(ctx context.Context, input CompleteInput) error
}

// ServiceParams groups dependencies for the request tracker.
type ServiceParams struct {
	Repo              Repository
	UsersRepo         users.Repository
	Ledger            ledger.Service
	Fanout            redis.FanoutCounter
	Outbox            *outbox.Service
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// CreateInput opens a request and registers its expected generations.
type CreateInput struct {
	UserID               uuid.UUID
	ProductID            enums.Quota
	ProviderIDs          []string
	ProcessingMessageIDs []int64
}

// CompleteInput is one provider callback for a single generation.
type CompleteInput struct {
	ProviderID string
	Result     string
	HasError   bool
	Details    []byte
}

type service struct {
	repo      Repository
	usersRepo users.Repository
	ledger    ledger.Service
	fanout    redis.FanoutCounter
	outbox    *outbox.Service
	txRunner  txRunner
	logger    *logger.Logger
}

// NewService builds a request tracker with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("requests repo required")
	}
	if params.UsersRepo == nil {
		return nil, fmt.Errorf("users repo required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Fanout == nil {
		return nil, fmt.Errorf("fanout counter required")
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
		repo:      params.Repo,
		usersRepo: params.UsersRepo,
		ledger:    params.Ledger,
		fanout:    params.Fanout,
		outbox:    params.Outbox,
		txRunner:  params.TransactionRunner,
		logger:    params.Logger,
	}, nil
}

// Admit rejects a new request while the user still has one in flight for the
// same product. The check is read-then-write; the partial unique index on
// open requests backstops the race.
func (s *service) Admit(ctx context.Context, userID uuid.UUID, productID enums.Quota) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if productID.Kind() != enums.QuotaKindCount {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("product %q is not a generation product", productID))
	}

	user, err := s.usersRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}
	if user.IsBlocked {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "user is blocked")
	}

	open, err := s.repo.FindOpenRequest(ctx, userID, productID)
	if err != nil {
		return fmt.Errorf("checking open requests: %w", err)
	}
	if open != nil {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("a %s request is already in progress", productID))
	}
	return nil
}

// Create opens the request and one started generation per provider id.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Request, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if len(input.ProviderIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one provider id is required")
	}
	for _, id := range input.ProviderIDs {
		if strings.TrimSpace(id) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider id must not be empty")
		}
	}

	request := &models.Request{
		ID:                   uuid.New(),
		UserID:               input.UserID,
		ProductID:            input.ProductID,
		ProcessingMessageIDs: dbtypes.Int64Array(input.ProcessingMessageIDs),
		Requested:            len(input.ProviderIDs),
		Status:               enums.RequestStatusStarted,
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateRequest(ctx, request); err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		for _, providerID := range input.ProviderIDs {
			generation := &models.Generation{
				ID:         uuid.New(),
				RequestID:  request.ID,
				ProviderID: providerID,
				ProductID:  input.ProductID,
				Status:     enums.GenerationStatusStarted,
			}
			if err := repo.CreateGeneration(ctx, generation); err != nil {
				return fmt.Errorf("creating generation %s: %w", providerID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// CompleteGeneration records one provider callback. Re-delivery for an
// already-finished generation is a no-op. When the arrival counter shows the
// whole fan-out is in, the request is settled: successful generations are
// billed through the ledger in the same transaction that finishes the
// request, and the user is notified once.
func (s *service) CompleteGeneration(ctx context.Context, input CompleteInput) error {
	if strings.TrimSpace(input.ProviderID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider id is required")
	}

	generation, err := s.repo.FindGenerationByProviderID(ctx, input.ProviderID)
	if err != nil {
		return fmt.Errorf("loading generation %s: %w", input.ProviderID, err)
	}
	if generation.Status == enums.GenerationStatusFinished {
		// redelivery: the generation itself is settled, but a failed
		// settlement attempt may have left the request open, so re-check
		// instead of dropping the callback
		return s.resettle(ctx, generation.RequestID)
	}

	generation.Status = enums.GenerationStatusFinished
	generation.HasError = input.HasError
	generation.Result = input.Result
	if len(input.Details) > 0 {
		generation.Details = input.Details
	}
	if err := s.repo.UpdateGeneration(ctx, generation); err != nil {
		return fmt.Errorf("finishing generation %s: %w", generation.ID, err)
	}

	request, err := s.repo.FindRequestByID(ctx, generation.RequestID)
	if err != nil {
		return fmt.Errorf("loading request %s: %w", generation.RequestID, err)
	}
	if request.Status == enums.RequestStatusFinished {
		return nil
	}

	fanoutKey := s.fanout.FanoutKey(request.ID.String())
	arrived, err := s.fanout.IncrWithTTL(ctx, fanoutKey, fanoutTTL)
	if err != nil {
		return fmt.Errorf("counting arrival: %w", err)
	}
	if arrived != int64(request.Requested) {
		return nil
	}

	if err := s.settle(ctx, request); err != nil {
		return err
	}
	s.clearFanout(ctx, request.ID)
	return nil
}

// resettle finishes a request whose generations are all in but whose
// settlement failed on a previous delivery.
func (s *service) resettle(ctx context.Context, requestID uuid.UUID) error {
	request, err := s.repo.FindRequestByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("loading request %s: %w", requestID, err)
	}
	if request.Status == enums.RequestStatusFinished {
		return nil
	}

	generations, err := s.repo.ListGenerationsByRequest(ctx, request.ID)
	if err != nil {
		return fmt.Errorf("listing generations: %w", err)
	}
	for _, generation := range generations {
		if generation.Status != enums.GenerationStatusFinished {
			return nil
		}
	}

	if err := s.settle(ctx, request); err != nil {
		return err
	}
	s.clearFanout(ctx, request.ID)
	return nil
}

func (s *service) clearFanout(ctx context.Context, requestID uuid.UUID) {
	if err := s.fanout.Del(ctx, s.fanout.FanoutKey(requestID.String())); err != nil {
		s.logger.Error(s.logger.WithField(ctx, "request_id", requestID.String()),
			"deleting fanout counter", err)
	}
}

func (s *service) settle(ctx context.Context, request *models.Request) error {
	generations, err := s.repo.ListGenerationsByRequest(ctx, request.ID)
	if err != nil {
		return fmt.Errorf("listing generations: %w", err)
	}

	var succeeded int
	var results []string
	for _, generation := range generations {
		if generation.Status == enums.GenerationStatusFinished && !generation.HasError {
			succeeded++
			if generation.Result != "" {
				results = append(results, generation.Result)
			}
		}
	}

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		usersRepo := s.usersRepo.WithTx(tx)

		user, err := usersRepo.FindByID(ctx, request.UserID)
		if err != nil {
			return fmt.Errorf("loading user: %w", err)
		}

		// only successful generations consume quota
		if err := s.ledger.DeductTx(ctx, tx, user, request.ProductID, succeeded); err != nil {
			return fmt.Errorf("billing request %s: %w", request.ID, err)
		}

		request.Status = enums.RequestStatusFinished
		if err := repo.UpdateRequest(ctx, request); err != nil {
			return fmt.Errorf("finishing request: %w", err)
		}

		text := resultText(request, succeeded, results)
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventUserNotification,
			AggregateType: enums.OutboxAggregateRequest,
			AggregateID:   request.ID,
			Data: outbox.NotificationPayload{
				ChatID:           user.TelegramChatID,
				Text:             text,
				DeleteMessageIDs: request.ProcessingMessageIDs,
			},
		})
	})
}

func resultText(request *models.Request, succeeded int, results []string) string {
	switch {
	case succeeded == 0:
		return "Generation failed. You have not been charged, please try again."
	case succeeded < request.Requested:
		return fmt.Sprintf("%d of %d generations finished; the rest failed and were not charged.\n%s",
			succeeded, request.Requested, strings.Join(results, "\n"))
	default:
		return strings.Join(results, "\n")
	}
}

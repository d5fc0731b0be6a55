package packs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dkoroteev/genbot-backend/internal/billing"
	"github.com/dkoroteev/genbot-backend/internal/users"
	"github.com/dkoroteev/genbot-backend/pkg/db/models"
	dbtypes "github.com/dkoroteev/genbot-backend/pkg/db/types"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
	"github.com/dkoroteev/genbot-backend/pkg/outbox"
)

func setupPacksTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	stmts := []string{`
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  telegram_id INTEGER NOT NULL,
  telegram_chat_id INTEGER NOT NULL,
  current_model TEXT NOT NULL DEFAULT 'gpt4_omni_mini',
  current_role_name TEXT NOT NULL DEFAULT 'assistant',
  subscription_id TEXT,
  daily_limits TEXT NOT NULL DEFAULT '{}',
  additional_usage_quota TEXT NOT NULL DEFAULT '{}',
  discount INTEGER NOT NULL DEFAULT 0,
  balance NUMERIC NOT NULL DEFAULT 0,
  voice_replies INTEGER NOT NULL DEFAULT 0,
  is_blocked INTEGER NOT NULL DEFAULT 0,
  last_subscription_limit_update DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS packs (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'waiting',
  quantity INTEGER NOT NULL DEFAULT 1,
  until_at DATETIME,
  currency TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  income_amount NUMERIC NOT NULL DEFAULT 0,
  payment_method TEXT NOT NULL,
  provider_payment_charge_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  published_at DATETIME,
  created_at DATETIME
);`}
	for _, stmt := range stmts {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type packsTestEnv struct {
	db      *gorm.DB
	svc     Service
	billing billing.Repository
	users   users.Repository
}

func newPacksTestEnv(t *testing.T) *packsTestEnv {
	t.Helper()

	db := setupPacksTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "packs-test"})
	billingRepo := billing.NewRepository(db)
	usersRepo := users.NewRepository(db)

	svc, err := NewService(ServiceParams{
		BillingRepo:       billingRepo,
		UsersRepo:         usersRepo,
		Outbox:            outbox.NewService(outbox.NewRepository(db), logg),
		TransactionRunner: &gormTxRunner{db: db},
		Logger:            logg,
	})
	require.NoError(t, err)

	return &packsTestEnv{db: db, svc: svc, billing: billingRepo, users: usersRepo}
}

func (e *packsTestEnv) createUser(t *testing.T) *models.User {
	t.Helper()
	user := &models.User{
		ID:              uuid.New(),
		TelegramID:      time.Now().UnixNano(),
		TelegramChatID:  777,
		CurrentModel:    enums.QuotaGPT4OmniMini,
		DailyLimits:     dbtypes.QuotaCounts{},
		AdditionalQuota: dbtypes.QuotaGrants{},
	}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}

func (e *packsTestEnv) createWaitingPack(t *testing.T, userID uuid.UUID, productID string, quantity int64) *models.Pack {
	t.Helper()
	pack := &models.Pack{
		ID:            uuid.New(),
		UserID:        userID,
		ProductID:     productID,
		Status:        enums.PackStatusWaiting,
		Quantity:      quantity,
		Currency:      enums.CurrencyRUB,
		Amount:        decimal.NewFromInt(99),
		PaymentMethod: enums.PaymentMethodYooKassa,
	}
	require.NoError(t, e.billing.CreatePack(context.Background(), pack))
	return pack
}

func TestActivate_CounterPackAddsCredits(t *testing.T) {
	env := newPacksTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	pack := env.createWaitingPack(t, user.ID, "pack_dalle_10", 2)

	activated, err := env.svc.Activate(ctx, ActivateInput{
		PackID:       pack.ID,
		ChargeID:     "charge-p1",
		IncomeAmount: decimal.NewFromInt(90),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PackStatusSuccess, activated.Status)
	assert.Nil(t, activated.UntilAt, "counter packs carry no expiry")

	got, err := env.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.AdditionalQuota.Count(enums.QuotaDalle))
}

func TestActivate_FlagPackEnablesAndExpires(t *testing.T) {
	env := newPacksTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	pack := env.createWaitingPack(t, user.ID, "pack_voice_messages", 3)

	activated, err := env.svc.Activate(ctx, ActivateInput{PackID: pack.ID, ChargeID: "charge-p2"})
	require.NoError(t, err)
	require.NotNil(t, activated.UntilAt)
	assert.True(t, activated.UntilAt.After(time.Now().UTC().AddDate(0, 2, 0)))

	got, err := env.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.AdditionalQuota.Enabled(enums.QuotaVoiceMessages))
	assert.True(t, got.VoiceReplies)
}

func TestActivate_IsIdempotentPerCharge(t *testing.T) {
	env := newPacksTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	pack := env.createWaitingPack(t, user.ID, "pack_suno_5", 1)

	input := ActivateInput{PackID: pack.ID, ChargeID: "charge-dup"}
	_, err := env.svc.Activate(ctx, input)
	require.NoError(t, err)
	_, err = env.svc.Activate(ctx, input)
	require.NoError(t, err)

	got, err := env.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.AdditionalQuota.Count(enums.QuotaSuno), "credits granted once")
}

func TestMarkDeclined(t *testing.T) {
	env := newPacksTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	pack := env.createWaitingPack(t, user.ID, "pack_flux_10", 1)

	require.NoError(t, env.svc.MarkDeclined(ctx, pack.ID))
	got, err := env.billing.FindPackByID(ctx, pack.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PackStatusDeclined, got.Status)

	require.NoError(t, env.svc.MarkDeclined(ctx, pack.ID))

	user2, err := env.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, user2.AdditionalQuota.Count(enums.QuotaFlux))
}

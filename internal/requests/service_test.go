package requests

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dkoroteev/genbot-backend/internal/ledger"
	"github.com/dkoroteev/genbot-backend/internal/users"
	"github.com/dkoroteev/genbot-backend/pkg/db/models"
	dbtypes "github.com/dkoroteev/genbot-backend/pkg/db/types"
	"github.com/dkoroteev/genbot-backend/pkg/enums"
	"github.com/dkoroteev/genbot-backend/pkg/logger"
	"github.com/dkoroteev/genbot-backend/pkg/outbox"
)

func setupRequestsTestDB(t *testing.T) *gorm.DB {
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
CREATE TABLE IF NOT EXISTS requests (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  processing_message_ids TEXT NOT NULL DEFAULT '[]',
  requested INTEGER NOT NULL DEFAULT 1,
  status TEXT NOT NULL DEFAULT 'started',
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS generations (
  id TEXT PRIMARY KEY,
  request_id TEXT NOT NULL,
  provider_generation_id TEXT,
  product_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'started',
  has_error INTEGER NOT NULL DEFAULT 0,
  result TEXT NOT NULL DEFAULT '',
  details TEXT,
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

// fakeFanout mimics the redis arrival counter in memory.
type fakeFanout struct {
	mu       sync.Mutex
	counters map[string]int64
	deleted  []string
}

func newFakeFanout() *fakeFanout {
	return &fakeFanout{counters: map[string]int64{}}
}

func (f *fakeFanout) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key]++
	return f.counters[key], nil
}

func (f *fakeFanout) FanoutKey(requestID string) string {
	return fmt.Sprintf("gb:fanout:%s", requestID)
}

func (f *fakeFanout) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.counters, key)
		f.deleted = append(f.deleted, key)
	}
	return nil
}

type requestsTestEnv struct {
	db     *gorm.DB
	svc    Service
	repo   Repository
	users  users.Repository
	fanout *fakeFanout
}

func newRequestsTestEnv(t *testing.T) *requestsTestEnv {
	t.Helper()

	db := setupRequestsTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "requests-test"})
	repo := NewRepository(db)
	usersRepo := users.NewRepository(db)
	fanout := newFakeFanout()

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Users: usersRepo, Logger: logg})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:              repo,
		UsersRepo:         usersRepo,
		Ledger:            ledgerSvc,
		Fanout:            fanout,
		Outbox:            outbox.NewService(outbox.NewRepository(db), logg),
		TransactionRunner: &gormTxRunner{db: db},
		Logger:            logg,
	})
	require.NoError(t, err)

	return &requestsTestEnv{db: db, svc: svc, repo: repo, users: usersRepo, fanout: fanout}
}

func (e *requestsTestEnv) createUser(t *testing.T, limits dbtypes.QuotaCounts) *models.User {
	t.Helper()
	user := &models.User{
		ID:              uuid.New(),
		TelegramID:      time.Now().UnixNano(),
		TelegramChatID:  555,
		CurrentModel:    enums.QuotaGPT4OmniMini,
		DailyLimits:     limits,
		AdditionalQuota: dbtypes.QuotaGrants{},
	}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}

func TestAdmit_RejectsOpenDuplicate(t *testing.T) {
	env := newRequestsTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, dbtypes.QuotaCounts{enums.QuotaDalle: 5})

	require.NoError(t, env.svc.Admit(ctx, user.ID, enums.QuotaDalle))

	request, err := env.svc.Create(ctx, CreateInput{
		UserID:      user.ID,
		ProductID:   enums.QuotaDalle,
		ProviderIDs: []string{"prov-1"},
	})
	require.NoError(t, err)

	err = env.svc.Admit(ctx, user.ID, enums.QuotaDalle)
	require.Error(t, err)

	// another product is unaffected
	require.NoError(t, env.svc.Admit(ctx, user.ID, enums.QuotaSuno))

	// once finished, new requests are admitted again
	require.NoError(t, env.svc.CompleteGeneration(ctx, CompleteInput{ProviderID: "prov-1", Result: "url"}))
	require.NoError(t, env.svc.Admit(ctx, user.ID, enums.QuotaDalle))

	got, err := env.repo.FindRequestByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusFinished, got.Status)
}

func TestCreate_RegistersFanout(t *testing.T) {
	env := newRequestsTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, dbtypes.QuotaCounts{enums.QuotaMidjourney: 5})

	request, err := env.svc.Create(ctx, CreateInput{
		UserID:               user.ID,
		ProductID:            enums.QuotaMidjourney,
		ProviderIDs:          []string{"a", "b", "c"},
		ProcessingMessageIDs: []int64{10, 11},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, request.Requested)

	generations, err := env.repo.ListGenerationsByRequest(ctx, request.ID)
	require.NoError(t, err)
	assert.Len(t, generations, 3)
	for _, generation := range generations {
		assert.Equal(t, enums.GenerationStatusStarted, generation.Status)
	}
}

func TestCompleteGeneration_BillsOnlySuccesses(t *testing.T) {
	env := newRequestsTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, dbtypes.QuotaCounts{
		enums.QuotaDalle:           4,
		enums.QuotaMidjourney:      4,
		enums.QuotaStableDiffusion: 4,
		enums.QuotaFlux:            4,
	})

	request, err := env.svc.Create(ctx, CreateInput{
		UserID:      user.ID,
		ProductID:   enums.QuotaDalle,
		ProviderIDs: []string{"ok-1", "bad-1"},
	})
	require.NoError(t, err)

	require.NoError(t, env.svc.CompleteGeneration(ctx, CompleteInput{ProviderID: "ok-1", Result: "https://img"}))
	require.NoError(t, env.svc.CompleteGeneration(ctx, CompleteInput{ProviderID: "bad-1", HasError: true}))

	got, err := env.repo.FindRequestByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusFinished, got.Status)

	// one success billed: the whole image class moved from 4 to 3
	billed, err := env.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), billed.DailyLimits.Get(enums.QuotaDalle))
	assert.Equal(t, int64(3), billed.DailyLimits.Get(enums.QuotaMidjourney))

	var outboxCount int64
	require.NoError(t, env.db.Model(&models.OutboxEvent{}).Count(&outboxCount).Error)
	assert.Equal(t, int64(1), outboxCount)

	assert.NotEmpty(t, env.fanout.deleted, "arrival counter cleaned up")
}

func TestCompleteGeneration_RedeliveryIsNoop(t *testing.T) {
	env := newRequestsTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, dbtypes.QuotaCounts{enums.QuotaSuno: 4})

	_, err := env.svc.Create(ctx, CreateInput{
		UserID:      user.ID,
		ProductID:   enums.QuotaSuno,
		ProviderIDs: []string{"song-1"},
	})
	require.NoError(t, err)

	require.NoError(t, env.svc.CompleteGeneration(ctx, CompleteInput{ProviderID: "song-1", Result: "url"}))
	require.NoError(t, env.svc.CompleteGeneration(ctx, CompleteInput{ProviderID: "song-1", Result: "url"}))

	billed, err := env.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), billed.DailyLimits.Get(enums.QuotaSuno), "billed exactly once")

	var outboxCount int64
	require.NoError(t, env.db.Model(&models.OutboxEvent{}).Count(&outboxCount).Error)
	assert.Equal(t, int64(1), outboxCount)
}

func TestCompleteGeneration_AllFailedChargesNothing(t *testing.T) {
	env := newRequestsTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, dbtypes.QuotaCounts{enums.QuotaKling: 2, enums.QuotaRunway: 2, enums.QuotaLuma: 2})

	_, err := env.svc.Create(ctx, CreateInput{
		UserID:      user.ID,
		ProductID:   enums.QuotaKling,
		ProviderIDs: []string{"v-1", "v-2"},
	})
	require.NoError(t, err)

	require.NoError(t, env.svc.CompleteGeneration(ctx, CompleteInput{ProviderID: "v-1", HasError: true}))
	require.NoError(t, env.svc.CompleteGeneration(ctx, CompleteInput{ProviderID: "v-2", HasError: true}))

	billed, err := env.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), billed.DailyLimits.Get(enums.QuotaKling), "nothing charged")
}

func TestAdmit_BlockedUser(t *testing.T) {
	env := newRequestsTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, dbtypes.QuotaCounts{enums.QuotaDalle: 5})
	user.IsBlocked = true
	require.NoError(t, env.users.Save(ctx, user))

	require.Error(t, env.svc.Admit(ctx, user.ID, enums.QuotaDalle))
}

func TestCompleteGeneration_RedeliveryRetriesFailedSettlement(t *testing.T) {
	env := newRequestsTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, dbtypes.QuotaCounts{
		enums.QuotaDalle:           4,
		enums.QuotaMidjourney:      4,
		enums.QuotaStableDiffusion: 4,
		enums.QuotaFlux:            4,
	})

	request, err := env.svc.Create(ctx, CreateInput{
		UserID:      user.ID,
		ProductID:   enums.QuotaDalle,
		ProviderIDs: []string{"img-1"},
	})
	require.NoError(t, err)

	// settlement fails transiently while the user row is unavailable
	require.NoError(t, env.db.Exec("DELETE FROM users WHERE id = ?", user.ID).Error)
	require.Error(t, env.svc.CompleteGeneration(ctx, CompleteInput{ProviderID: "img-1", Result: "url"}))

	got, err := env.repo.FindRequestByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusStarted, got.Status, "request still open after failed settlement")

	// the provider retries the callback once the store recovers
	require.NoError(t, env.users.Create(ctx, user))
	require.NoError(t, env.svc.CompleteGeneration(ctx, CompleteInput{ProviderID: "img-1", Result: "url"}))

	got, err = env.repo.FindRequestByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusFinished, got.Status)

	billed, err := env.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), billed.DailyLimits.Get(enums.QuotaDalle), "billed exactly once on retry")
}

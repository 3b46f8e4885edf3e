package engagements

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

	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/enums"
	"github.com/servigo-app/servigo-backend/pkg/pagination"
)

func setupEngagementsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	engagements := `
CREATE TABLE IF NOT EXISTS engagements (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  provider_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'scheduled',
  payment_status TEXT NOT NULL DEFAULT 'not_applicable',
  last_actor_id TEXT,
  last_actor_role TEXT,
  currency TEXT NOT NULL DEFAULT 'USD',
  pricing_mode TEXT NOT NULL DEFAULT 'fixed',
  hourly_rate TEXT,
  duration_hours TEXT,
  amount TEXT NOT NULL,
  service_items TEXT,
  appointment_at DATETIME,
  location TEXT,
  started_at DATETIME,
  customer_rating TEXT,
  provider_rating TEXT,
  rating_enabled INTEGER NOT NULL DEFAULT 0,
  mutual_rating_completed INTEGER NOT NULL DEFAULT 0,
  customer_confirmed_at DATETIME,
  rating_window_expires_at DATETIME,
  warranty_expires_at DATETIME,
  gross_amount TEXT,
  processor_fee TEXT,
  platform_commission TEXT,
  loyalty_fund_contribution TEXT,
  provider_gross TEXT,
  final_released_amount TEXT,
  released_at DATETIME,
  active_dispute_id TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  finalized_at DATETIME
);`
	cancellations := `
CREATE TABLE IF NOT EXISTS cancellation_records (
  id TEXT PRIMARY KEY,
  engagement_id TEXT NOT NULL,
  actor_id TEXT NOT NULL,
  actor_role TEXT NOT NULL,
  penalty_amount TEXT NOT NULL,
  penalty_pct TEXT NOT NULL,
  platform_share TEXT NOT NULL,
  provider_share TEXT NOT NULL,
  customer_refund TEXT NOT NULL,
  retracted_at DATETIME,
  created_at DATETIME
);`

	require.NoError(t, db.Exec(engagements).Error)
	require.NoError(t, db.Exec(cancellations).Error)
	return db
}

func seedEngagement(t *testing.T, repo Repository, mutate func(*models.Engagement)) *models.Engagement {
	t.Helper()
	e := &models.Engagement{
		ID:            uuid.New(),
		CustomerID:    uuid.New(),
		ProviderID:    uuid.New(),
		Status:        enums.EngagementStatusScheduled,
		PaymentStatus: enums.PaymentStatusNotApplicable,
		Currency:      enums.CurrencyUSD,
		PricingMode:   enums.PricingModeFixed,
		Amount:        decimal.RequireFromString("250"),
	}
	if mutate != nil {
		mutate(e)
	}
	require.NoError(t, repo.Create(context.Background(), e))
	return e
}

func TestRepositoryCreateAndFind(t *testing.T) {
	repo := NewRepository(setupEngagementsTestDB(t))
	e := seedEngagement(t, repo, nil)

	got, err := repo.FindByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.CustomerID, got.CustomerID)
	assert.Equal(t, enums.EngagementStatusScheduled, got.Status)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("250")))

	_, err = repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositorySaveRoundTripsBreakdown(t *testing.T) {
	repo := NewRepository(setupEngagementsTestDB(t))
	e := seedEngagement(t, repo, nil)

	released := decimal.RequireFromString("904")
	now := time.Now().UTC()
	e.Status = enums.EngagementStatusClosedWithRating
	e.PaymentStatus = enums.PaymentStatusReleasedToProvider
	e.FinalReleasedAmount = &released
	e.ReleasedAt = &now
	require.NoError(t, repo.Save(context.Background(), e))

	got, err := repo.FindByID(context.Background(), e.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FinalReleasedAmount)
	assert.True(t, got.FinalReleasedAmount.Equal(released))
	assert.True(t, got.Released())
}

func TestRepositoryCountProviderSlotConflicts(t *testing.T) {
	repo := NewRepository(setupEngagementsTestDB(t))
	providerID := uuid.New()
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	seedEngagement(t, repo, func(e *models.Engagement) {
		e.ProviderID = providerID
		e.Status = enums.EngagementStatusConfirmed
		e.AppointmentAt = &at
	})
	// Scheduled rows don't occupy the calendar.
	seedEngagement(t, repo, func(e *models.Engagement) {
		e.ProviderID = providerID
		e.Status = enums.EngagementStatusScheduled
		e.AppointmentAt = &at
	})

	count, err := repo.CountProviderSlotConflicts(context.Background(), providerID, at.Add(-time.Hour), at.Add(time.Hour), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	outside := at.Add(2 * time.Hour)
	count, err = repo.CountProviderSlotConflicts(context.Background(), providerID, outside.Add(-time.Hour), outside.Add(time.Hour), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestRepositoryFindAutoReleasable(t *testing.T) {
	repo := NewRepository(setupEngagementsTestDB(t))
	cutoff := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	stale := cutoff.Add(-time.Hour)
	fresh := cutoff.Add(time.Hour)

	due := seedEngagement(t, repo, func(e *models.Engagement) {
		e.Status = enums.EngagementStatusCompletedByCustomer
		e.PaymentStatus = enums.PaymentStatusHeldForRelease
		e.CustomerConfirmedAt = &stale
	})
	seedEngagement(t, repo, func(e *models.Engagement) {
		e.Status = enums.EngagementStatusCompletedByCustomer
		e.PaymentStatus = enums.PaymentStatusHeldForRelease
		e.CustomerConfirmedAt = &fresh
	})
	seedEngagement(t, repo, func(e *models.Engagement) {
		e.Status = enums.EngagementStatusInDispute
		e.PaymentStatus = enums.PaymentStatusFrozenByDispute
		e.CustomerConfirmedAt = &stale
	})

	items, err := repo.FindAutoReleasable(context.Background(), cutoff, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, due.ID, items[0].ID)
}

func TestRepositoryFindFallbackReleasable(t *testing.T) {
	repo := NewRepository(setupEngagementsTestDB(t))

	stuck := seedEngagement(t, repo, func(e *models.Engagement) {
		e.Status = enums.EngagementStatusClosedWithRating
		e.PaymentStatus = enums.PaymentStatusHeldForRelease
	})
	seedEngagement(t, repo, func(e *models.Engagement) {
		e.Status = enums.EngagementStatusClosedWithRating
		e.PaymentStatus = enums.PaymentStatusReleasedToProvider
	})

	items, err := repo.FindFallbackReleasable(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, stuck.ID, items[0].ID)
}

func TestRepositoryListForUserPaginates(t *testing.T) {
	repo := NewRepository(setupEngagementsTestDB(t))
	userID := uuid.New()

	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		created := base.Add(time.Duration(i) * time.Hour)
		seedEngagement(t, repo, func(e *models.Engagement) {
			e.CustomerID = userID
			e.CreatedAt = created
		})
	}
	seedEngagement(t, repo, func(e *models.Engagement) {
		e.ProviderID = userID
		e.CreatedAt = base.Add(4 * time.Hour)
	})
	seedEngagement(t, repo, nil) // unrelated user

	page, err := repo.ListForUser(context.Background(), userID, pagination.Params{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	require.NotEmpty(t, page.NextCursor)
	// Most recent first; the provider-side row leads.
	assert.Equal(t, userID, page.Items[0].ProviderID)

	rest, err := repo.ListForUser(context.Background(), userID, pagination.Params{Limit: 3, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Empty(t, rest.NextCursor)
}

func TestRepositoryCreateCancellationRecord(t *testing.T) {
	repo := NewRepository(setupEngagementsTestDB(t))
	e := seedEngagement(t, repo, nil)

	record := &models.CancellationRecord{
		ID:             uuid.New(),
		EngagementID:   e.ID,
		ActorID:        e.CustomerID,
		ActorRole:      enums.ActorRoleCustomer,
		PenaltyAmount:  decimal.RequireFromString("100"),
		PenaltyPct:     decimal.RequireFromString("0.10"),
		PlatformShare:  decimal.RequireFromString("100"),
		ProviderShare:  decimal.Zero,
		CustomerRefund: decimal.RequireFromString("900"),
	}
	require.NoError(t, repo.CreateCancellationRecord(context.Background(), record))

	var count int64
	require.NoError(t, repo.(*repository).db.Model(&models.CancellationRecord{}).
		Where("engagement_id = ?", e.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

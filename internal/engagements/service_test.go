package engagements

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/servigo-app/servigo-backend/internal/ledger"
	"github.com/servigo-app/servigo-backend/internal/policy"
	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/enums"
	pkgerrors "github.com/servigo-app/servigo-backend/pkg/errors"
	"github.com/servigo-app/servigo-backend/pkg/logger"
	"github.com/servigo-app/servigo-backend/pkg/outbox"
	"github.com/servigo-app/servigo-backend/pkg/pagination"
	"github.com/servigo-app/servigo-backend/pkg/types"
)

type stubEngagementsRepo struct {
	engagement    *models.Engagement
	saved         *models.Engagement
	cancellation  *models.CancellationRecord
	slotConflicts int64
	created       *models.Engagement
}

func (s *stubEngagementsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubEngagementsRepo) Create(ctx context.Context, engagement *models.Engagement) error {
	if engagement.ID == uuid.Nil {
		engagement.ID = uuid.New()
	}
	s.created = engagement
	return nil
}

func (s *stubEngagementsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Engagement, error) {
	if s.engagement == nil || s.engagement.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.engagement, nil
}

func (s *stubEngagementsRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Engagement, error) {
	return s.FindByID(ctx, id)
}

func (s *stubEngagementsRepo) Save(ctx context.Context, engagement *models.Engagement) error {
	s.saved = engagement
	return nil
}

func (s *stubEngagementsRepo) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*EngagementList, error) {
	return &EngagementList{}, nil
}

func (s *stubEngagementsRepo) CountProviderSlotConflicts(ctx context.Context, providerID uuid.UUID, from, to time.Time, excludeID *uuid.UUID) (int64, error) {
	return s.slotConflicts, nil
}

func (s *stubEngagementsRepo) FindAutoReleasable(ctx context.Context, confirmedBefore time.Time, limit int) ([]models.Engagement, error) {
	panic("not implemented")
}

func (s *stubEngagementsRepo) FindFallbackReleasable(ctx context.Context, limit int) ([]models.Engagement, error) {
	panic("not implemented")
}

func (s *stubEngagementsRepo) FindFrozenBefore(ctx context.Context, frozenBefore time.Time) ([]models.Engagement, error) {
	panic("not implemented")
}

func (s *stubEngagementsRepo) CreateCancellationRecord(ctx context.Context, record *models.CancellationRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	s.cancellation = record
	return nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubOutboxPublisher struct {
	events []outbox.DomainEvent
	err    error
}

func (s *stubOutboxPublisher) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubOutboxPublisher) has(eventType enums.OutboxEventType) bool {
	for _, e := range s.events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

type stubDisputeWriter struct {
	claims map[uuid.UUID]*models.DisputeClaim
}

func (s *stubDisputeWriter) CreateClaim(ctx context.Context, tx *gorm.DB, claim *models.DisputeClaim) error {
	if claim.ID == uuid.Nil {
		claim.ID = uuid.New()
	}
	if s.claims == nil {
		s.claims = map[uuid.UUID]*models.DisputeClaim{}
	}
	s.claims[claim.ID] = claim
	return nil
}

func (s *stubDisputeWriter) FindClaimByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.DisputeClaim, error) {
	claim, ok := s.claims[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return claim, nil
}

func (s *stubDisputeWriter) SaveClaim(ctx context.Context, tx *gorm.DB, claim *models.DisputeClaim) error {
	s.claims[claim.ID] = claim
	return nil
}

type stubMembershipReader struct {
	plan *models.Membership
}

func (s *stubMembershipReader) CurrentPlan(ctx context.Context, tx *gorm.DB, userID uuid.UUID, at time.Time) (*models.Membership, error) {
	return s.plan, nil
}

type stubReferralReader struct {
	ambassadorID *uuid.UUID
}

func (s *stubReferralReader) AmbassadorFor(ctx context.Context, tx *gorm.DB, providerID uuid.UUID) (*uuid.UUID, error) {
	return s.ambassadorID, nil
}

type stubCharger struct {
	ok  bool
	err error
}

func (s *stubCharger) Charge(ctx context.Context, engagement *models.Engagement) (bool, string, error) {
	return s.ok, "sim-ref-001", s.err
}

type fixture struct {
	svc      Service
	repo     *stubEngagementsRepo
	outbox   *stubOutboxPublisher
	disputes *stubDisputeWriter
	charger  *stubCharger
	now      time.Time
}

func newFixture(t *testing.T, mutate func(*Deps, *fixture)) *fixture {
	t.Helper()

	calc, err := ledger.NewCalculator(policy.Default())
	require.NoError(t, err)

	f := &fixture{
		repo:     &stubEngagementsRepo{},
		outbox:   &stubOutboxPublisher{},
		disputes: &stubDisputeWriter{},
		charger:  &stubCharger{ok: true},
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	deps := Deps{
		Repo:        f.repo,
		Tx:          stubTxRunner{},
		Outbox:      f.outbox,
		Disputes:    f.disputes,
		Memberships: &stubMembershipReader{},
		Referrals:   &stubReferralReader{},
		Charger:     f.charger,
		Calculator:  calc,
		Policy:      policy.Default(),
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	}
	if mutate != nil {
		mutate(&deps, f)
	}

	svc, err := NewService(deps)
	require.NoError(t, err)
	svc.(*service).now = func() time.Time { return f.now }
	f.svc = svc
	return f
}

func baseEngagement(f *fixture, status enums.EngagementStatus, payment enums.PaymentStatus) *models.Engagement {
	appointment := f.now.Add(3 * time.Hour)
	e := &models.Engagement{
		ID:            uuid.New(),
		CustomerID:    uuid.New(),
		ProviderID:    uuid.New(),
		Status:        status,
		PaymentStatus: payment,
		Currency:      enums.CurrencyUSD,
		PricingMode:   enums.PricingModeFixed,
		Amount:        decimal.RequireFromString("1000"),
		AppointmentAt: &appointment,
	}
	f.repo.engagement = e
	return e
}

func customer(e *models.Engagement) Actor {
	return Actor{UserID: e.CustomerID, Role: enums.ActorRoleCustomer}
}

func provider(e *models.Engagement) Actor {
	return Actor{UserID: e.ProviderID, Role: enums.ActorRoleProvider}
}

func admin() Actor {
	return Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
}

func TestCreateRejectsMissingActor(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Create(context.Background(), CreateInput{
		ProviderID: uuid.New(),
		Currency:   enums.CurrencyUSD,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthenticated))
}

func TestCreateRejectsSelfBooking(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	_, err := f.svc.Create(context.Background(), CreateInput{
		Actor:       Actor{UserID: id, Role: enums.ActorRoleCustomer},
		ProviderID:  id,
		Currency:    enums.CurrencyUSD,
		PricingMode: enums.PricingModeFixed,
		Amount:      decimal.NewFromInt(100),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidArgument))
}

func TestCreateSlotConflict(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.slotConflicts = 1
	at := f.now.Add(24 * time.Hour)
	_, err := f.svc.Create(context.Background(), CreateInput{
		Actor:         Actor{UserID: uuid.New(), Role: enums.ActorRoleCustomer},
		ProviderID:    uuid.New(),
		Currency:      enums.CurrencyUSD,
		PricingMode:   enums.PricingModeFixed,
		Amount:        decimal.NewFromInt(100),
		AppointmentAt: &at,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyExists))
}

func TestCreateHourlyDerivesAmount(t *testing.T) {
	f := newFixture(t, nil)
	rate := decimal.RequireFromString("45.50")
	hours := decimal.RequireFromString("3.5")
	e, err := f.svc.Create(context.Background(), CreateInput{
		Actor:         Actor{UserID: uuid.New(), Role: enums.ActorRoleCustomer},
		ProviderID:    uuid.New(),
		Currency:      enums.CurrencyUSD,
		PricingMode:   enums.PricingModeHourly,
		HourlyRate:    &rate,
		DurationHours: &hours,
		RequestNow:    true,
	})
	require.NoError(t, err)
	assert.True(t, e.Amount.Equal(decimal.RequireFromString("159.25")))
	assert.Equal(t, enums.EngagementStatusPendingProvider, e.Status)
	assert.True(t, f.outbox.has(enums.EventEngagementCreated))
}

func TestRequestOnlyFromScheduled(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusConfirmed, enums.PaymentStatusPendingCharge)

	err := f.svc.Request(context.Background(), customer(e), e.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeFailedPrecondition))

	var typed *pkgerrors.Error
	require.ErrorAs(t, err, &typed)
	assert.Contains(t, typed.Message(), string(enums.EngagementStatusConfirmed))
}

func TestProviderDecisionAccept(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusPendingProvider, enums.PaymentStatusNotApplicable)

	err := f.svc.ProviderDecision(context.Background(), ProviderDecisionInput{
		Actor:        provider(e),
		EngagementID: e.ID,
		Decision:     ProviderDecisionAccept,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.EngagementStatusConfirmed, e.Status)
	assert.Equal(t, enums.PaymentStatusPendingCharge, e.PaymentStatus)
	assert.True(t, f.outbox.has(enums.EventEngagementConfirmed))
}

func TestProviderDecisionRejectIsTerminal(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusPendingProvider, enums.PaymentStatusNotApplicable)

	err := f.svc.ProviderDecision(context.Background(), ProviderDecisionInput{
		Actor:        provider(e),
		EngagementID: e.ID,
		Decision:     ProviderDecisionReject,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.EngagementStatusRejectedByProvider, e.Status)
	assert.NotNil(t, e.FinalizedAt)
}

func TestProviderDecisionWrongParty(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusPendingProvider, enums.PaymentStatusNotApplicable)

	err := f.svc.ProviderDecision(context.Background(), ProviderDecisionInput{
		Actor:        customer(e),
		EngagementID: e.ID,
		Decision:     ProviderDecisionAccept,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePermissionDenied))
}

func TestChargeSuccess(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusConfirmed, enums.PaymentStatusPendingCharge)

	charged, err := f.svc.Charge(context.Background(), Actor{Role: enums.ActorRoleSystem}, e.ID)
	require.NoError(t, err)
	assert.True(t, charged)
	assert.Equal(t, enums.EngagementStatusPaid, e.Status)
	assert.Equal(t, enums.PaymentStatusChargedSuccessfully, e.PaymentStatus)
	assert.True(t, f.outbox.has(enums.EventEngagementCharged))
}

func TestChargeFailureKeepsStatusConfirmed(t *testing.T) {
	f := newFixture(t, nil)
	f.charger.ok = false
	e := baseEngagement(f, enums.EngagementStatusConfirmed, enums.PaymentStatusPendingCharge)

	charged, err := f.svc.Charge(context.Background(), Actor{Role: enums.ActorRoleSystem}, e.ID)
	require.NoError(t, err)
	assert.False(t, charged)
	assert.Equal(t, enums.EngagementStatusConfirmed, e.Status)
	assert.Equal(t, enums.PaymentStatusFailed, e.PaymentStatus)
	assert.True(t, f.outbox.has(enums.EventEngagementChargeFailed))
}

func TestChargeRetryAfterFailure(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusConfirmed, enums.PaymentStatusFailed)

	charged, err := f.svc.Charge(context.Background(), Actor{Role: enums.ActorRoleSystem}, e.ID)
	require.NoError(t, err)
	assert.True(t, charged)
}

func TestChargeRequiresSystemRole(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusConfirmed, enums.PaymentStatusPendingCharge)

	_, err := f.svc.Charge(context.Background(), customer(e), e.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePermissionDenied))
}

func TestProviderFlowEnRouteStartComplete(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusPaid, enums.PaymentStatusChargedSuccessfully)
	ctx := context.Background()

	require.NoError(t, f.svc.MarkEnRoute(ctx, provider(e), e.ID))
	assert.Equal(t, enums.EngagementStatusProviderEnRoute, e.Status)

	require.NoError(t, f.svc.Start(ctx, provider(e), e.ID))
	assert.Equal(t, enums.EngagementStatusInProgress, e.Status)
	assert.NotNil(t, e.StartedAt)

	require.NoError(t, f.svc.CompleteByProvider(ctx, provider(e), e.ID))
	assert.Equal(t, enums.EngagementStatusCompletedByProvider, e.Status)
}

func TestStartSkippingEnRouteIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusPaid, enums.PaymentStatusChargedSuccessfully)

	err := f.svc.Start(context.Background(), provider(e), e.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeFailedPrecondition))
}

func TestConfirmCompletionSetsWindowsAndHold(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusCompletedByProvider, enums.PaymentStatusChargedSuccessfully)

	require.NoError(t, f.svc.ConfirmCompletion(context.Background(), customer(e), e.ID))

	assert.Equal(t, enums.EngagementStatusCompletedByCustomer, e.Status)
	assert.Equal(t, enums.PaymentStatusHeldForRelease, e.PaymentStatus)
	assert.True(t, e.RatingEnabled)
	require.NotNil(t, e.RatingWindowExpiresAt)
	assert.Equal(t, f.now.Add(72*time.Hour), *e.RatingWindowExpiresAt)
	require.NotNil(t, e.WarrantyExpiresAt)
	assert.Equal(t, f.now.Add(72*time.Hour), *e.WarrantyExpiresAt)
}

func TestConfirmCompletionPremiumWarranty(t *testing.T) {
	f := newFixture(t, func(deps *Deps, fx *fixture) {
		end := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
		deps.Memberships = &stubMembershipReader{plan: &models.Membership{
			Plan:             models.PlanPremium,
			Active:           true,
			CurrentPeriodEnd: &end,
		}}
	})
	e := baseEngagement(f, enums.EngagementStatusCompletedByProvider, enums.PaymentStatusChargedSuccessfully)

	require.NoError(t, f.svc.ConfirmCompletion(context.Background(), customer(e), e.ID))
	require.NotNil(t, e.WarrantyExpiresAt)
	assert.Equal(t, f.now.Add(168*time.Hour), *e.WarrantyExpiresAt)
}

func ratedEngagement(f *fixture) *models.Engagement {
	e := baseEngagement(f, enums.EngagementStatusCompletedByCustomer, enums.PaymentStatusHeldForRelease)
	window := f.now.Add(48 * time.Hour)
	confirmed := f.now.Add(-time.Hour)
	e.RatingEnabled = true
	e.RatingWindowExpiresAt = &window
	e.CustomerConfirmedAt = &confirmed
	return e
}

func TestRateDuplicateIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	e := ratedEngagement(f)
	e.CustomerRating = &types.Rating{Stars: 5}

	err := f.svc.Rate(context.Background(), RateInput{
		Actor:        customer(e),
		EngagementID: e.ID,
		Stars:        4,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyExists))
}

func TestRateAfterWindowIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	e := ratedEngagement(f)
	expired := f.now.Add(-time.Minute)
	e.RatingWindowExpiresAt = &expired

	err := f.svc.Rate(context.Background(), RateInput{
		Actor:        customer(e),
		EngagementID: e.ID,
		Stars:        5,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeFailedPrecondition))
}

func TestMutualRatingClosesAndReleases(t *testing.T) {
	f := newFixture(t, nil)
	e := ratedEngagement(f)
	ctx := context.Background()

	require.NoError(t, f.svc.Rate(ctx, RateInput{Actor: provider(e), EngagementID: e.ID, Stars: 5}))
	assert.Equal(t, enums.EngagementStatusCompletedByCustomer, e.Status)
	assert.False(t, e.MutualRatingCompleted)
	assert.Nil(t, e.FinalReleasedAmount)

	require.NoError(t, f.svc.Rate(ctx, RateInput{Actor: customer(e), EngagementID: e.ID, Stars: 4}))
	assert.True(t, e.MutualRatingCompleted)
	assert.Equal(t, enums.EngagementStatusClosedWithRating, e.Status)
	assert.Equal(t, enums.PaymentStatusReleasedToProvider, e.PaymentStatus)
	require.NotNil(t, e.FinalReleasedAmount)
	assert.True(t, e.FinalReleasedAmount.Equal(decimal.RequireFromString("904")))
	assert.NotNil(t, e.FinalizedAt)
	assert.True(t, f.outbox.has(enums.EventFundsReleased))
}

func TestRateWhileInDisputeDoesNotRelease(t *testing.T) {
	f := newFixture(t, nil)
	e := ratedEngagement(f)
	e.Status = enums.EngagementStatusInDispute
	e.PaymentStatus = enums.PaymentStatusFrozenByDispute
	e.ProviderRating = &types.Rating{Stars: 5}
	ctx := context.Background()

	require.NoError(t, f.svc.Rate(ctx, RateInput{Actor: customer(e), EngagementID: e.ID, Stars: 4}))
	assert.True(t, e.MutualRatingCompleted)
	assert.Equal(t, enums.EngagementStatusInDispute, e.Status)
	assert.Nil(t, e.FinalReleasedAmount)
	assert.False(t, f.outbox.has(enums.EventFundsReleased))
}

func TestReportProblemFreezesEscrow(t *testing.T) {
	f := newFixture(t, nil)
	e := ratedEngagement(f)

	claim, err := f.svc.ReportProblem(context.Background(), ReportProblemInput{
		Actor:        customer(e),
		EngagementID: e.ID,
		Description:  "work left unfinished",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.EngagementStatusInDispute, e.Status)
	assert.Equal(t, enums.PaymentStatusFrozenByDispute, e.PaymentStatus)
	require.NotNil(t, e.ActiveDisputeID)
	assert.Equal(t, claim.ID, *e.ActiveDisputeID)
	assert.Equal(t, enums.DisputeCategoryServiceProblem, claim.Category)
	assert.Equal(t, e.ProviderID, claim.ReportedID)
	assert.True(t, f.outbox.has(enums.EventDisputeOpened))
}

func TestReportProblemDuplicateClaim(t *testing.T) {
	f := newFixture(t, nil)
	e := ratedEngagement(f)
	existing := uuid.New()
	e.ActiveDisputeID = &existing

	_, err := f.svc.ReportProblem(context.Background(), ReportProblemInput{
		Actor:        customer(e),
		EngagementID: e.ID,
		Description:  "again",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyExists))
}

func TestResolveDisputeCompensation(t *testing.T) {
	f := newFixture(t, nil)
	e := ratedEngagement(f)
	claim, err := f.svc.ReportProblem(context.Background(), ReportProblemInput{
		Actor:        customer(e),
		EngagementID: e.ID,
		Description:  "problem",
	})
	require.NoError(t, err)

	err = f.svc.ResolveDispute(context.Background(), ResolveDisputeInput{
		Actor:        admin(),
		EngagementID: e.ID,
		ClaimID:      claim.ID,
		Outcome:      enums.DisputeStateApprovedCompensation,
		Resolution:   "refund approved",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.EngagementStatusClosedDisputeResolved, e.Status)
	assert.Equal(t, enums.PaymentStatusPartiallyRefunded, e.PaymentStatus)
	assert.Nil(t, e.ActiveDisputeID)
	assert.Nil(t, e.FinalReleasedAmount)
	assert.Equal(t, enums.DisputeStateApprovedCompensation, claim.State)
	assert.NotNil(t, claim.ResolvedAt)
}

func TestResolveDisputeRejectedReleasesToProvider(t *testing.T) {
	f := newFixture(t, nil)
	e := ratedEngagement(f)
	claim, err := f.svc.ReportProblem(context.Background(), ReportProblemInput{
		Actor:        customer(e),
		EngagementID: e.ID,
		Description:  "problem",
	})
	require.NoError(t, err)

	err = f.svc.ResolveDispute(context.Background(), ResolveDisputeInput{
		Actor:        admin(),
		EngagementID: e.ID,
		ClaimID:      claim.ID,
		Outcome:      enums.DisputeStateRejected,
		Resolution:   "no grounds",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusReleasedToProvider, e.PaymentStatus)
	require.NotNil(t, e.FinalReleasedAmount)
	assert.True(t, f.outbox.has(enums.EventFundsReleased))
}

func TestResolveDisputeRequiresAdmin(t *testing.T) {
	f := newFixture(t, nil)
	e := ratedEngagement(f)

	err := f.svc.ResolveDispute(context.Background(), ResolveDisputeInput{
		Actor:        customer(e),
		EngagementID: e.ID,
		ClaimID:      uuid.New(),
		Outcome:      enums.DisputeStateRejected,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePermissionDenied))
}

func TestCancelEarlyTier(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusPaid, enums.PaymentStatusChargedSuccessfully)
	// Appointment is 3h away: early tier.

	err := f.svc.Cancel(context.Background(), CancelInput{Actor: customer(e), EngagementID: e.ID})
	require.NoError(t, err)
	assert.Equal(t, enums.EngagementStatusCancelledByCustomer, e.Status)
	assert.Equal(t, enums.PaymentStatusPartiallyRefunded, e.PaymentStatus)
	require.NotNil(t, f.repo.cancellation)
	assert.True(t, f.repo.cancellation.PenaltyAmount.Equal(decimal.RequireFromString("100")))
	assert.True(t, f.repo.cancellation.PlatformShare.Equal(decimal.RequireFromString("100")))
	assert.True(t, f.repo.cancellation.ProviderShare.IsZero())
	assert.True(t, f.repo.cancellation.CustomerRefund.Equal(decimal.RequireFromString("900")))
}

func TestCancelLateTier(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusPaid, enums.PaymentStatusChargedSuccessfully)
	at := f.now.Add(time.Hour)
	e.AppointmentAt = &at

	err := f.svc.Cancel(context.Background(), CancelInput{Actor: customer(e), EngagementID: e.ID})
	require.NoError(t, err)
	require.NotNil(t, f.repo.cancellation)
	assert.True(t, f.repo.cancellation.PenaltyAmount.Equal(decimal.RequireFromString("250")))
	assert.True(t, f.repo.cancellation.PlatformShare.Equal(decimal.RequireFromString("100")))
	assert.True(t, f.repo.cancellation.ProviderShare.Equal(decimal.RequireFromString("150")))
	assert.True(t, f.repo.cancellation.CustomerRefund.Equal(decimal.RequireFromString("750")))
}

func TestCancelByProviderRefundsInFull(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusPaid, enums.PaymentStatusChargedSuccessfully)

	err := f.svc.Cancel(context.Background(), CancelInput{Actor: provider(e), EngagementID: e.ID})
	require.NoError(t, err)
	assert.Equal(t, enums.EngagementStatusCancelledByProvider, e.Status)
	assert.Equal(t, enums.PaymentStatusFullyRefunded, e.PaymentStatus)
	require.NotNil(t, f.repo.cancellation)
	assert.True(t, f.repo.cancellation.PenaltyAmount.IsZero())
}

func TestCancelInProgressIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusInProgress, enums.PaymentStatusChargedSuccessfully)

	err := f.svc.Cancel(context.Background(), CancelInput{Actor: customer(e), EngagementID: e.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeFailedPrecondition))
}

func TestCancelByAdminAnyNonTerminal(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusInProgress, enums.PaymentStatusChargedSuccessfully)

	err := f.svc.CancelByAdmin(context.Background(), CancelInput{Actor: admin(), EngagementID: e.ID})
	require.NoError(t, err)
	assert.Equal(t, enums.EngagementStatusCancelledByAdmin, e.Status)
	assert.Equal(t, enums.PaymentStatusFullyRefunded, e.PaymentStatus)
}

func TestCancelByAdminTerminalIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusClosedWithRating, enums.PaymentStatusReleasedToProvider)

	err := f.svc.CancelByAdmin(context.Background(), CancelInput{Actor: admin(), EngagementID: e.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeFailedPrecondition))
}

func closedEngagement(f *fixture) *models.Engagement {
	e := baseEngagement(f, enums.EngagementStatusClosedWithRating, enums.PaymentStatusReleasedToProvider)
	warranty := f.now.Add(24 * time.Hour)
	e.WarrantyExpiresAt = &warranty
	released := decimal.RequireFromString("904")
	e.FinalReleasedAmount = &released
	return e
}

func TestRequestWarrantyOnClosedEngagement(t *testing.T) {
	f := newFixture(t, nil)
	e := closedEngagement(f)

	claim, err := f.svc.RequestWarranty(context.Background(), WarrantyRequestInput{
		Actor:        customer(e),
		EngagementID: e.ID,
		Description:  "leak came back",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.DisputeCategoryWarranty, claim.Category)
	// Funds were already released; the payment status must not change.
	assert.Equal(t, enums.PaymentStatusReleasedToProvider, e.PaymentStatus)
	require.NotNil(t, e.ActiveDisputeID)
	assert.True(t, f.outbox.has(enums.EventWarrantyRequested))
}

func TestRequestWarrantyAfterExpiry(t *testing.T) {
	f := newFixture(t, nil)
	e := closedEngagement(f)
	expired := f.now.Add(-time.Minute)
	e.WarrantyExpiresAt = &expired

	_, err := f.svc.RequestWarranty(context.Background(), WarrantyRequestInput{
		Actor:        customer(e),
		EngagementID: e.ID,
		Description:  "late",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeFailedPrecondition))
}

func TestResolveWarranty(t *testing.T) {
	f := newFixture(t, nil)
	e := closedEngagement(f)
	claim, err := f.svc.RequestWarranty(context.Background(), WarrantyRequestInput{
		Actor:        customer(e),
		EngagementID: e.ID,
		Description:  "leak came back",
	})
	require.NoError(t, err)

	err = f.svc.ResolveWarranty(context.Background(), ResolveWarrantyInput{
		Actor:        admin(),
		EngagementID: e.ID,
		ClaimID:      claim.ID,
		Outcome:      enums.DisputeStateApprovedReservice,
		Resolution:   "provider will redo the work",
	})
	require.NoError(t, err)
	assert.Nil(t, e.ActiveDisputeID)
	assert.Equal(t, enums.DisputeStateApprovedReservice, claim.State)
	assert.True(t, f.outbox.has(enums.EventWarrantyResolved))
}

func TestAutoCloseReleasesAndCloses(t *testing.T) {
	f := newFixture(t, nil)
	e := ratedEngagement(f)

	acted, err := f.svc.AutoClose(context.Background(), e.ID)
	require.NoError(t, err)
	assert.True(t, acted)
	assert.Equal(t, enums.EngagementStatusClosedAutomatically, e.Status)
	assert.Equal(t, enums.PaymentStatusReleasedToProvider, e.PaymentStatus)
	assert.False(t, e.RatingEnabled)
	require.NotNil(t, e.FinalReleasedAmount)
	assert.True(t, f.outbox.has(enums.EventEngagementClosed))
	assert.True(t, f.outbox.has(enums.EventFundsReleased))
}

func TestAutoCloseSkipsFrozenEscrow(t *testing.T) {
	f := newFixture(t, nil)
	e := ratedEngagement(f)
	e.Status = enums.EngagementStatusInDispute
	e.PaymentStatus = enums.PaymentStatusFrozenByDispute

	acted, err := f.svc.AutoClose(context.Background(), e.ID)
	require.NoError(t, err)
	assert.False(t, acted)
	assert.Equal(t, enums.EngagementStatusInDispute, e.Status)
	assert.Nil(t, e.FinalReleasedAmount)
}

func TestAutoCloseIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	e := ratedEngagement(f)

	acted, err := f.svc.AutoClose(context.Background(), e.ID)
	require.NoError(t, err)
	require.True(t, acted)
	first := *e.FinalReleasedAmount

	acted, err = f.svc.AutoClose(context.Background(), e.ID)
	require.NoError(t, err)
	assert.False(t, acted)
	assert.True(t, e.FinalReleasedAmount.Equal(first))
}

func TestFallbackReleaseSettlesStuckEscrow(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusClosedWithRating, enums.PaymentStatusHeldForRelease)

	acted, err := f.svc.FallbackRelease(context.Background(), e.ID)
	require.NoError(t, err)
	assert.True(t, acted)
	assert.Equal(t, enums.PaymentStatusReleasedToProvider, e.PaymentStatus)
	require.NotNil(t, e.FinalReleasedAmount)
}

func TestFallbackReleaseNoopOnSettledRow(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusClosedWithRating, enums.PaymentStatusReleasedToProvider)

	acted, err := f.svc.FallbackRelease(context.Background(), e.ID)
	require.NoError(t, err)
	assert.False(t, acted)
}

func TestGetByIDRestrictedToParticipants(t *testing.T) {
	f := newFixture(t, nil)
	e := baseEngagement(f, enums.EngagementStatusPaid, enums.PaymentStatusChargedSuccessfully)

	_, err := f.svc.GetByID(context.Background(), Actor{UserID: uuid.New(), Role: enums.ActorRoleCustomer}, e.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePermissionDenied))

	got, err := f.svc.GetByID(context.Background(), admin(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
}

func TestReleaseWithAmbassadorEmitsCommission(t *testing.T) {
	ambassadorID := uuid.New()
	f := newFixture(t, func(deps *Deps, fx *fixture) {
		deps.Referrals = &stubReferralReader{ambassadorID: &ambassadorID}
	})
	e := baseEngagement(f, enums.EngagementStatusClosedWithRating, enums.PaymentStatusHeldForRelease)

	acted, err := f.svc.FallbackRelease(context.Background(), e.ID)
	require.NoError(t, err)
	require.True(t, acted)

	var payload FundsReleasedEvent
	found := false
	for _, ev := range f.outbox.events {
		if ev.EventType == enums.EventFundsReleased {
			payload = ev.Data.(FundsReleasedEvent)
			found = true
		}
	}
	require.True(t, found)
	require.NotNil(t, payload.AmbassadorID)
	assert.Equal(t, ambassadorID, *payload.AmbassadorID)
	assert.True(t, payload.AmbassadorCommission.Equal(decimal.RequireFromString("50")))
	// Additive: the provider still receives the full net.
	assert.True(t, payload.FinalReleasedAmount.Equal(decimal.RequireFromString("904")))
}

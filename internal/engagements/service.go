package engagements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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

// ReferralReader resolves the ambassador linked to a provider, if any.
type ReferralReader interface {
	AmbassadorFor(ctx context.Context, tx *gorm.DB, providerID uuid.UUID) (*uuid.UUID, error)
}

// Service is the engagement state machine. Every mutation runs as one
// transaction: guard, conditional write, outbox emit.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Engagement, error)
	Request(ctx context.Context, actor Actor, engagementID uuid.UUID) error
	ProviderDecision(ctx context.Context, input ProviderDecisionInput) error
	Charge(ctx context.Context, actor Actor, engagementID uuid.UUID) (bool, error)
	MarkEnRoute(ctx context.Context, actor Actor, engagementID uuid.UUID) error
	Start(ctx context.Context, actor Actor, engagementID uuid.UUID) error
	CompleteByProvider(ctx context.Context, actor Actor, engagementID uuid.UUID) error
	ConfirmCompletion(ctx context.Context, actor Actor, engagementID uuid.UUID) error
	Rate(ctx context.Context, input RateInput) error
	ReportProblem(ctx context.Context, input ReportProblemInput) (*models.DisputeClaim, error)
	ResolveDispute(ctx context.Context, input ResolveDisputeInput) error
	Cancel(ctx context.Context, input CancelInput) error
	CancelByAdmin(ctx context.Context, input CancelInput) error
	RequestWarranty(ctx context.Context, input WarrantyRequestInput) (*models.DisputeClaim, error)
	ResolveWarranty(ctx context.Context, input ResolveWarrantyInput) error
	GetByID(ctx context.Context, actor Actor, engagementID uuid.UUID) (*models.Engagement, error)
	ListForUser(ctx context.Context, actor Actor, userID uuid.UUID, params pagination.Params) (*EngagementList, error)

	// System entry points used by the reconciliation jobs.
	AutoClose(ctx context.Context, engagementID uuid.UUID) (bool, error)
	FallbackRelease(ctx context.Context, engagementID uuid.UUID) (bool, error)
}

type service struct {
	repo        Repository
	tx          txRunner
	outbox      outboxPublisher
	disputes    DisputeWriter
	memberships MembershipReader
	referrals   ReferralReader
	charger     Charger
	calc        *ledger.Calculator
	policy      policy.Policy
	logg        *logger.Logger

	// now is swappable so window math is testable.
	now func() time.Time
}

// Deps bundles the service dependencies.
type Deps struct {
	Repo        Repository
	Tx          txRunner
	Outbox      outboxPublisher
	Disputes    DisputeWriter
	Memberships MembershipReader
	Referrals   ReferralReader
	Charger     Charger
	Calculator  *ledger.Calculator
	Policy      policy.Policy
	Logger      *logger.Logger
}

// NewService wires the engagement state machine.
func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("engagements repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if deps.Disputes == nil {
		return nil, fmt.Errorf("dispute writer required")
	}
	if deps.Memberships == nil {
		return nil, fmt.Errorf("membership reader required")
	}
	if deps.Referrals == nil {
		return nil, fmt.Errorf("referral reader required")
	}
	if deps.Charger == nil {
		return nil, fmt.Errorf("charger required")
	}
	if deps.Calculator == nil {
		return nil, fmt.Errorf("ledger calculator required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := deps.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return &service{
		repo:        deps.Repo,
		tx:          deps.Tx,
		outbox:      deps.Outbox,
		disputes:    deps.Disputes,
		memberships: deps.Memberships,
		referrals:   deps.Referrals,
		charger:     deps.Charger,
		calc:        deps.Calculator,
		policy:      deps.Policy,
		logg:        deps.Logger,
		now:         time.Now,
	}, nil
}

// slotWindow is the exclusion range around a booked appointment.
const slotWindow = time.Hour

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Engagement, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	if input.Actor.Role != enums.ActorRoleCustomer {
		return nil, pkgerrors.New(pkgerrors.CodePermissionDenied, "only customers can create engagements")
	}
	if input.ProviderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "provider id required")
	}
	if input.ProviderID == input.Actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "customer and provider must differ")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "unsupported currency %q", input.Currency)
	}
	if input.AppointmentAt != nil && !input.AppointmentAt.After(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "appointment must be in the future")
	}

	amount, err := s.resolveAmount(input)
	if err != nil {
		return nil, err
	}

	engagement := &models.Engagement{
		CustomerID:    input.Actor.UserID,
		ProviderID:    input.ProviderID,
		Status:        enums.EngagementStatusScheduled,
		PaymentStatus: enums.PaymentStatusNotApplicable,
		Currency:      input.Currency,
		PricingMode:   input.PricingMode,
		HourlyRate:    input.HourlyRate,
		DurationHours: input.DurationHours,
		Amount:        amount,
		ServiceItems:  input.ServiceItems,
		AppointmentAt: input.AppointmentAt,
		Location:      input.Location,
	}
	if input.RequestNow {
		engagement.Status = enums.EngagementStatusPendingProvider
	}
	s.stampActor(engagement, input.Actor)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if input.AppointmentAt != nil {
			if err := s.checkSlotFree(ctx, repo, input.ProviderID, *input.AppointmentAt, nil); err != nil {
				return err
			}
		}
		if err := repo.Create(ctx, engagement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create engagement")
		}
		return s.emitLifecycle(ctx, tx, enums.EventEngagementCreated, engagement, input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return engagement, nil
}

func (s *service) resolveAmount(input CreateInput) (decimal.Decimal, error) {
	switch input.PricingMode {
	case enums.PricingModeFixed:
		if input.Amount.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeInvalidArgument, "amount must be positive")
		}
		return input.Amount.Round(2), nil
	case enums.PricingModeHourly:
		if input.HourlyRate == nil || input.DurationHours == nil {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeInvalidArgument, "hourly engagements require rate and duration")
		}
		gross, err := s.calc.HourlyGross(*input.HourlyRate, *input.DurationHours)
		if err != nil {
			return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "invalid hourly terms")
		}
		return gross, nil
	default:
		return decimal.Zero, pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "unsupported pricing mode %q", input.PricingMode)
	}
}

func (s *service) checkSlotFree(ctx context.Context, repo Repository, providerID uuid.UUID, at time.Time, excludeID *uuid.UUID) error {
	count, err := repo.CountProviderSlotConflicts(ctx, providerID, at.Add(-slotWindow), at.Add(slotWindow), excludeID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check provider availability")
	}
	if count > 0 {
		return pkgerrors.New(pkgerrors.CodeAlreadyExists, "provider already booked for that slot")
	}
	return nil
}

func (s *service) Request(ctx context.Context, actor Actor, engagementID uuid.UUID) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		engagement, err := s.loadForUpdate(ctx, repo, engagementID)
		if err != nil {
			return err
		}
		if engagement.CustomerID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodePermissionDenied, "only the customer can submit the request")
		}
		if engagement.Status != enums.EngagementStatusScheduled {
			return stateError(engagement, "request")
		}

		engagement.Status = enums.EngagementStatusPendingProvider
		s.stampActor(engagement, actor)
		if err := repo.Save(ctx, engagement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update engagement")
		}
		return s.emitLifecycle(ctx, tx, enums.EventEngagementRequested, engagement, actor)
	})
}

func (s *service) ProviderDecision(ctx context.Context, input ProviderDecisionInput) error {
	if err := requireActor(input.Actor); err != nil {
		return err
	}
	if input.Decision != ProviderDecisionAccept && input.Decision != ProviderDecisionReject {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "decision must be accept or reject")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		engagement, err := s.loadForUpdate(ctx, repo, input.EngagementID)
		if err != nil {
			return err
		}
		if engagement.ProviderID != input.Actor.UserID {
			return pkgerrors.New(pkgerrors.CodePermissionDenied, "only the provider can decide the request")
		}
		if engagement.Status != enums.EngagementStatusPendingProvider {
			return stateError(engagement, "provider decision")
		}

		eventType := enums.EventEngagementRejected
		if input.Decision == ProviderDecisionAccept {
			if engagement.AppointmentAt != nil {
				if err := s.checkSlotFree(ctx, repo, engagement.ProviderID, *engagement.AppointmentAt, &engagement.ID); err != nil {
					return err
				}
			}
			engagement.Status = enums.EngagementStatusConfirmed
			engagement.PaymentStatus = enums.PaymentStatusPendingCharge
			eventType = enums.EventEngagementConfirmed
		} else {
			s.setTerminal(engagement, enums.EngagementStatusRejectedByProvider)
		}
		s.stampActor(engagement, input.Actor)
		if err := repo.Save(ctx, engagement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update engagement")
		}
		return s.emitLifecycle(ctx, tx, eventType, engagement, input.Actor)
	})
}

// Charge captures the payment for a confirmed engagement. A declined capture
// is reported as (false, nil): the payment status moves to failed and the
// engagement stays confirmed so the capture can be retried.
func (s *service) Charge(ctx context.Context, actor Actor, engagementID uuid.UUID) (bool, error) {
	if err := requireActor(actor); err != nil {
		return false, err
	}
	if actor.Role != enums.ActorRoleSystem && actor.Role != enums.ActorRoleAdmin {
		return false, pkgerrors.New(pkgerrors.CodePermissionDenied, "charge is a system operation")
	}

	var charged bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		engagement, err := s.loadForUpdate(ctx, repo, engagementID)
		if err != nil {
			return err
		}
		if engagement.Status != enums.EngagementStatusConfirmed {
			return stateError(engagement, "charge")
		}
		if engagement.PaymentStatus != enums.PaymentStatusPendingCharge &&
			engagement.PaymentStatus != enums.PaymentStatusFailed {
			return stateError(engagement, "charge")
		}

		ok, reference, err := s.charger.Charge(ctx, engagement)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment capture")
		}

		eventType := enums.EventEngagementChargeFailed
		if ok {
			engagement.Status = enums.EngagementStatusPaid
			engagement.PaymentStatus = enums.PaymentStatusChargedSuccessfully
			eventType = enums.EventEngagementCharged
			charged = true
		} else {
			engagement.PaymentStatus = enums.PaymentStatusFailed
		}
		s.stampActor(engagement, actor)
		if err := repo.Save(ctx, engagement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update engagement")
		}

		return s.emit(ctx, tx, eventType, engagement, actor, ChargeEvent{
			LifecycleEvent: lifecyclePayload(engagement),
			Amount:         engagement.Amount,
			Currency:       engagement.Currency,
			Reference:      reference,
			Succeeded:      ok,
		})
	})
	return charged, err
}

func (s *service) MarkEnRoute(ctx context.Context, actor Actor, engagementID uuid.UUID) error {
	return s.providerTransition(ctx, actor, engagementID, "mark en route",
		enums.EngagementStatusPaid, enums.EngagementStatusProviderEnRoute,
		enums.EventEngagementEnRoute, nil)
}

func (s *service) Start(ctx context.Context, actor Actor, engagementID uuid.UUID) error {
	return s.providerTransition(ctx, actor, engagementID, "start",
		enums.EngagementStatusProviderEnRoute, enums.EngagementStatusInProgress,
		enums.EventEngagementStarted, func(e *models.Engagement) {
			started := s.now()
			e.StartedAt = &started
		})
}

func (s *service) CompleteByProvider(ctx context.Context, actor Actor, engagementID uuid.UUID) error {
	return s.providerTransition(ctx, actor, engagementID, "complete",
		enums.EngagementStatusInProgress, enums.EngagementStatusCompletedByProvider,
		enums.EventEngagementCompleted, nil)
}

func (s *service) providerTransition(ctx context.Context, actor Actor, engagementID uuid.UUID, op string, from, to enums.EngagementStatus, eventType enums.OutboxEventType, mutate func(*models.Engagement)) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		engagement, err := s.loadForUpdate(ctx, repo, engagementID)
		if err != nil {
			return err
		}
		if engagement.ProviderID != actor.UserID {
			return pkgerrors.Newf(pkgerrors.CodePermissionDenied, "only the provider can %s", op)
		}
		if engagement.Status != from {
			return stateError(engagement, op)
		}

		engagement.Status = to
		if mutate != nil {
			mutate(engagement)
		}
		s.stampActor(engagement, actor)
		if err := repo.Save(ctx, engagement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update engagement")
		}
		return s.emitLifecycle(ctx, tx, eventType, engagement, actor)
	})
}

func (s *service) ConfirmCompletion(ctx context.Context, actor Actor, engagementID uuid.UUID) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		engagement, err := s.loadForUpdate(ctx, repo, engagementID)
		if err != nil {
			return err
		}
		if engagement.CustomerID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodePermissionDenied, "only the customer can confirm completion")
		}
		if engagement.Status != enums.EngagementStatusCompletedByProvider {
			return stateError(engagement, "confirm completion")
		}
		if engagement.PaymentStatus != enums.PaymentStatusChargedSuccessfully {
			return stateError(engagement, "confirm completion")
		}

		now := s.now()
		ratingWindow := now.Add(s.policy.RatingWindow)
		warranty := now.Add(s.warrantyDuration(ctx, tx, engagement.CustomerID, now))

		engagement.Status = enums.EngagementStatusCompletedByCustomer
		engagement.PaymentStatus = enums.PaymentStatusHeldForRelease
		engagement.CustomerConfirmedAt = &now
		engagement.RatingWindowExpiresAt = &ratingWindow
		engagement.WarrantyExpiresAt = &warranty
		engagement.RatingEnabled = true
		s.stampActor(engagement, actor)
		if err := repo.Save(ctx, engagement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update engagement")
		}
		return s.emitLifecycle(ctx, tx, enums.EventEngagementConfirmedDone, engagement, actor)
	})
}

func (s *service) warrantyDuration(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, at time.Time) time.Duration {
	plan, err := s.memberships.CurrentPlan(ctx, tx, customerID, at)
	if err != nil {
		// Warranty falls back to the standard tier rather than blocking the
		// confirmation.
		s.logg.Error(ctx, "membership lookup failed, using standard warranty", err)
		return s.policy.StandardWarrantyDuration
	}
	if plan != nil && plan.IsPremium() {
		return s.policy.PremiumWarrantyDuration
	}
	return s.policy.StandardWarrantyDuration
}

func (s *service) Rate(ctx context.Context, input RateInput) error {
	if err := requireActor(input.Actor); err != nil {
		return err
	}
	if input.Stars < 1 || input.Stars > 5 {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "stars must be between 1 and 5")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		engagement, err := s.loadForUpdate(ctx, repo, input.EngagementID)
		if err != nil {
			return err
		}
		if !engagement.IsParticipant(input.Actor.UserID) {
			return pkgerrors.New(pkgerrors.CodePermissionDenied, "not a participant of this engagement")
		}
		now := s.now()
		if !engagement.RatingEnabled {
			return stateError(engagement, "rate")
		}
		if engagement.RatingWindowExpiresAt == nil || !now.Before(*engagement.RatingWindowExpiresAt) {
			return pkgerrors.New(pkgerrors.CodeFailedPrecondition, "rating window has expired")
		}

		isCustomer := engagement.CustomerID == input.Actor.UserID
		existing := engagement.ProviderRating
		if isCustomer {
			existing = engagement.CustomerRating
		}
		if existing.IsSet() {
			return pkgerrors.New(pkgerrors.CodeAlreadyExists, "rating already submitted")
		}

		rating := buildRating(input, now)
		if isCustomer {
			engagement.CustomerRating = rating
		} else {
			engagement.ProviderRating = rating
		}

		mutual := engagement.CustomerRating.IsSet() && engagement.ProviderRating.IsSet()
		engagement.MutualRatingCompleted = mutual

		var released *releaseResult
		if mutual && engagement.Status == enums.EngagementStatusCompletedByCustomer {
			s.setTerminal(engagement, enums.EngagementStatusClosedWithRating)
			engagement.RatingEnabled = false
			released, err = s.releaseFunds(ctx, tx, engagement, now)
			if err != nil {
				return err
			}
		}

		s.stampActor(engagement, input.Actor)
		if err := repo.Save(ctx, engagement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update engagement")
		}

		if err := s.emit(ctx, tx, enums.EventEngagementRated, engagement, input.Actor, RatedEvent{
			LifecycleEvent:        lifecyclePayload(engagement),
			RaterID:               input.Actor.UserID,
			RaterRole:             input.Actor.Role,
			Stars:                 input.Stars,
			MutualRatingCompleted: mutual,
		}); err != nil {
			return err
		}
		if released != nil {
			return s.emitRelease(ctx, tx, engagement, input.Actor, released, false)
		}
		return nil
	})
}

func (s *service) ReportProblem(ctx context.Context, input ReportProblemInput) (*models.DisputeClaim, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	if input.Description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "description required")
	}

	var claim *models.DisputeClaim
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		engagement, err := s.loadForUpdate(ctx, repo, input.EngagementID)
		if err != nil {
			return err
		}
		if !engagement.IsParticipant(input.Actor.UserID) {
			return pkgerrors.New(pkgerrors.CodePermissionDenied, "not a participant of this engagement")
		}
		if engagement.Status != enums.EngagementStatusCompletedByCustomer {
			return stateError(engagement, "report problem")
		}
		now := s.now()
		if engagement.RatingWindowExpiresAt == nil || !now.Before(*engagement.RatingWindowExpiresAt) {
			return pkgerrors.New(pkgerrors.CodeFailedPrecondition, "reporting window has expired")
		}
		if engagement.ActiveDisputeID != nil {
			return pkgerrors.New(pkgerrors.CodeAlreadyExists, "engagement already has an open claim")
		}

		claim = buildClaim(engagement, input.Actor, enums.DisputeCategoryServiceProblem, input.Description)
		if err := s.disputes.CreateClaim(ctx, tx, claim); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create dispute claim")
		}

		engagement.Status = enums.EngagementStatusInDispute
		engagement.PaymentStatus = enums.PaymentStatusFrozenByDispute
		engagement.ActiveDisputeID = &claim.ID
		s.stampActor(engagement, input.Actor)
		if err := repo.Save(ctx, engagement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update engagement")
		}

		return s.emitDispute(ctx, tx, enums.EventDisputeOpened, engagement, input.Actor, claim)
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

func (s *service) ResolveDispute(ctx context.Context, input ResolveDisputeInput) error {
	if err := requireAdmin(input.Actor); err != nil {
		return err
	}
	if !input.Outcome.IsTerminal() {
		return pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "outcome %q is not a terminal dispute state", input.Outcome)
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		engagement, err := s.loadForUpdate(ctx, repo, input.EngagementID)
		if err != nil {
			return err
		}
		if engagement.Status != enums.EngagementStatusInDispute {
			return stateError(engagement, "resolve dispute")
		}
		if engagement.ActiveDisputeID == nil || *engagement.ActiveDisputeID != input.ClaimID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "claim is not active on this engagement")
		}

		claim, err := s.resolveClaim(ctx, tx, input.ClaimID, input.Actor, input.Outcome, input.Resolution)
		if err != nil {
			return err
		}

		now := s.now()
		s.setTerminal(engagement, enums.EngagementStatusClosedDisputeResolved)
		engagement.RatingEnabled = false
		engagement.ActiveDisputeID = nil

		var released *releaseResult
		if input.Outcome == enums.DisputeStateApprovedCompensation {
			engagement.PaymentStatus = enums.PaymentStatusPartiallyRefunded
		} else {
			// Funds move to the provider: thaw the escrow, then settle.
			engagement.PaymentStatus = enums.PaymentStatusHeldForRelease
			released, err = s.releaseFunds(ctx, tx, engagement, now)
			if err != nil {
				return err
			}
		}

		s.stampActor(engagement, input.Actor)
		if err := repo.Save(ctx, engagement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update engagement")
		}

		if err := s.emitDispute(ctx, tx, enums.EventDisputeResolved, engagement, input.Actor, claim); err != nil {
			return err
		}
		if released != nil {
			return s.emitRelease(ctx, tx, engagement, input.Actor, released, false)
		}
		return nil
	})
}

// cancellableStatuses are the only states a party can back out of.
var cancellableStatuses = map[enums.EngagementStatus]bool{
	enums.EngagementStatusConfirmed: true,
	enums.EngagementStatusPaid:      true,
}

func (s *service) Cancel(ctx context.Context, input CancelInput) error {
	if err := requireActor(input.Actor); err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		engagement, err := s.loadForUpdate(ctx, repo, input.EngagementID)
		if err != nil {
			return err
		}
		if !engagement.IsParticipant(input.Actor.UserID) {
			return pkgerrors.New(pkgerrors.CodePermissionDenied, "not a participant of this engagement")
		}
		if !cancellableStatuses[engagement.Status] {
			return stateError(engagement, "cancel")
		}

		now := s.now()
		byCustomer := engagement.CustomerID == input.Actor.UserID
		target := enums.EngagementStatusCancelledByProvider
		if byCustomer {
			target = enums.EngagementStatusCancelledByCustomer
		}

		charged := engagement.PaymentStatus == enums.PaymentStatusChargedSuccessfully
		breakdown := zeroCancellation(engagement.Amount)
		if charged && byCustomer {
			// Customer cancels a captured payment: the two-tier penalty applies.
			breakdown, err = s.calc.CancellationSplit(engagement.Amount, s.untilAppointment(engagement, now))
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancellation split")
			}
		}

		s.setTerminal(engagement, target)
		if !charged {
			engagement.PaymentStatus = enums.PaymentStatusFullyRefunded
		} else if breakdown.Penalty.IsZero() {
			engagement.PaymentStatus = enums.PaymentStatusFullyRefunded
		} else {
			engagement.PaymentStatus = enums.PaymentStatusPartiallyRefunded
		}

		if charged {
			record := &models.CancellationRecord{
				EngagementID:   engagement.ID,
				ActorID:        input.Actor.UserID,
				ActorRole:      input.Actor.Role,
				PenaltyAmount:  breakdown.Penalty,
				PenaltyPct:     breakdown.PenaltyPct,
				PlatformShare:  breakdown.PlatformShare,
				ProviderShare:  breakdown.ProviderShare,
				CustomerRefund: breakdown.CustomerRefund,
			}
			if err := repo.CreateCancellationRecord(ctx, record); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record cancellation")
			}
		}

		s.stampActor(engagement, input.Actor)
		if err := repo.Save(ctx, engagement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update engagement")
		}

		return s.emit(ctx, tx, enums.EventEngagementCancelled, engagement, input.Actor, CancelledEvent{
			LifecycleEvent: lifecyclePayload(engagement),
			CancelledBy:    input.Actor.Role,
			PenaltyAmount:  breakdown.Penalty,
			PlatformShare:  breakdown.PlatformShare,
			ProviderShare:  breakdown.ProviderShare,
			CustomerRefund: breakdown.CustomerRefund,
		})
	})
}

func (s *service) CancelByAdmin(ctx context.Context, input CancelInput) error {
	if err := requireAdmin(input.Actor); err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		engagement, err := s.loadForUpdate(ctx, repo, input.EngagementID)
		if err != nil {
			return err
		}
		if engagement.Status.IsTerminal() {
			return stateError(engagement, "cancel")
		}

		charged := engagement.PaymentStatus == enums.PaymentStatusChargedSuccessfully ||
			engagement.PaymentStatus == enums.PaymentStatusHeldForRelease ||
			engagement.PaymentStatus == enums.PaymentStatusFrozenByDispute

		s.setTerminal(engagement, enums.EngagementStatusCancelledByAdmin)
		engagement.RatingEnabled = false
		if charged {
			engagement.PaymentStatus = enums.PaymentStatusFullyRefunded
		}

		s.stampActor(engagement, input.Actor)
		if err := repo.Save(ctx, engagement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update engagement")
		}

		return s.emit(ctx, tx, enums.EventEngagementCancelled, engagement, input.Actor, CancelledEvent{
			LifecycleEvent: lifecyclePayload(engagement),
			CancelledBy:    input.Actor.Role,
			PenaltyAmount:  decimal.Zero,
			PlatformShare:  decimal.Zero,
			ProviderShare:  decimal.Zero,
			CustomerRefund: refundIf(charged, engagement.Amount),
		})
	})
}

// warrantyStatuses are the closed states a warranty claim can start from.
var warrantyStatuses = map[enums.EngagementStatus]bool{
	enums.EngagementStatusClosedWithRating:      true,
	enums.EngagementStatusClosedAutomatically:   true,
	enums.EngagementStatusClosedDisputeResolved: true,
}

func (s *service) RequestWarranty(ctx context.Context, input WarrantyRequestInput) (*models.DisputeClaim, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	if input.Description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "description required")
	}

	var claim *models.DisputeClaim
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		engagement, err := s.loadForUpdate(ctx, repo, input.EngagementID)
		if err != nil {
			return err
		}
		if engagement.CustomerID != input.Actor.UserID {
			return pkgerrors.New(pkgerrors.CodePermissionDenied, "only the customer can request warranty")
		}
		if !warrantyStatuses[engagement.Status] {
			return stateError(engagement, "request warranty")
		}
		now := s.now()
		if engagement.WarrantyExpiresAt == nil || now.After(*engagement.WarrantyExpiresAt) {
			return pkgerrors.New(pkgerrors.CodeFailedPrecondition, "warranty window has expired")
		}
		if engagement.ActiveDisputeID != nil {
			return pkgerrors.New(pkgerrors.CodeAlreadyExists, "engagement already has an open claim")
		}

		claim = buildClaim(engagement, input.Actor, enums.DisputeCategoryWarranty, input.Description)
		if err := s.disputes.CreateClaim(ctx, tx, claim); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create warranty claim")
		}

		engagement.ActiveDisputeID = &claim.ID
		// The engagement is already settled in the common case; only still
		// escrowed funds are frozen.
		if engagement.PaymentStatus == enums.PaymentStatusHeldForRelease {
			engagement.PaymentStatus = enums.PaymentStatusFrozenByDispute
		}
		s.stampActor(engagement, input.Actor)
		if err := repo.Save(ctx, engagement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update engagement")
		}

		return s.emitDispute(ctx, tx, enums.EventWarrantyRequested, engagement, input.Actor, claim)
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

func (s *service) ResolveWarranty(ctx context.Context, input ResolveWarrantyInput) error {
	if err := requireAdmin(input.Actor); err != nil {
		return err
	}
	if !input.Outcome.IsTerminal() {
		return pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "outcome %q is not a terminal dispute state", input.Outcome)
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		engagement, err := s.loadForUpdate(ctx, repo, input.EngagementID)
		if err != nil {
			return err
		}
		if engagement.ActiveDisputeID == nil || *engagement.ActiveDisputeID != input.ClaimID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "claim is not active on this engagement")
		}

		claim, err := s.resolveClaim(ctx, tx, input.ClaimID, input.Actor, input.Outcome, input.Resolution)
		if err != nil {
			return err
		}
		if claim.Category != enums.DisputeCategoryWarranty {
			return pkgerrors.New(pkgerrors.CodeFailedPrecondition, "claim is not a warranty claim")
		}

		engagement.ActiveDisputeID = nil
		if engagement.PaymentStatus == enums.PaymentStatusFrozenByDispute {
			if input.Outcome == enums.DisputeStateApprovedCompensation {
				engagement.PaymentStatus = enums.PaymentStatusPartiallyRefunded
			} else {
				engagement.PaymentStatus = enums.PaymentStatusHeldForRelease
			}
		}
		s.stampActor(engagement, input.Actor)
		if err := repo.Save(ctx, engagement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update engagement")
		}

		return s.emitDispute(ctx, tx, enums.EventWarrantyResolved, engagement, input.Actor, claim)
	})
}

func (s *service) GetByID(ctx context.Context, actor Actor, engagementID uuid.UUID) (*models.Engagement, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	engagement, err := s.repo.FindByID(ctx, engagementID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "engagement not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load engagement")
	}
	if actor.Role != enums.ActorRoleAdmin && !engagement.IsParticipant(actor.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodePermissionDenied, "not a participant of this engagement")
	}
	return engagement, nil
}

func (s *service) ListForUser(ctx context.Context, actor Actor, userID uuid.UUID, params pagination.Params) (*EngagementList, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if actor.Role != enums.ActorRoleAdmin && actor.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodePermissionDenied, "cannot list another user's engagements")
	}
	list, err := s.repo.ListForUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list engagements")
	}
	return list, nil
}

// AutoClose settles an engagement whose confirmation window lapsed. Returns
// false when the row no longer qualifies, which the sweep treats as a skip.
func (s *service) AutoClose(ctx context.Context, engagementID uuid.UUID) (bool, error) {
	acted := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		engagement, err := s.loadForUpdate(ctx, repo, engagementID)
		if err != nil {
			return err
		}
		// Re-check under the row lock; the customer may have rated or opened
		// a dispute since the sweep query ran.
		if engagement.Status != enums.EngagementStatusCompletedByCustomer ||
			engagement.PaymentStatus != enums.PaymentStatusHeldForRelease {
			return nil
		}

		now := s.now()
		s.setTerminal(engagement, enums.EngagementStatusClosedAutomatically)
		engagement.RatingEnabled = false
		released, err := s.releaseFunds(ctx, tx, engagement, now)
		if err != nil {
			return err
		}

		actor := systemActor()
		s.stampActor(engagement, actor)
		if err := repo.Save(ctx, engagement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update engagement")
		}

		if err := s.emitLifecycle(ctx, tx, enums.EventEngagementClosed, engagement, actor); err != nil {
			return err
		}
		if released != nil {
			if err := s.emitRelease(ctx, tx, engagement, actor, released, true); err != nil {
				return err
			}
		}
		acted = true
		return nil
	})
	return acted, err
}

// FallbackRelease settles an engagement that closed with ratings but whose
// release never landed. A no-op when the breakdown is already applied.
func (s *service) FallbackRelease(ctx context.Context, engagementID uuid.UUID) (bool, error) {
	acted := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		engagement, err := s.loadForUpdate(ctx, repo, engagementID)
		if err != nil {
			return err
		}
		if engagement.Status != enums.EngagementStatusClosedWithRating ||
			engagement.PaymentStatus != enums.PaymentStatusHeldForRelease {
			return nil
		}

		released, err := s.releaseFunds(ctx, tx, engagement, s.now())
		if err != nil {
			return err
		}
		if released == nil {
			return nil
		}

		actor := systemActor()
		s.stampActor(engagement, actor)
		if err := repo.Save(ctx, engagement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update engagement")
		}
		if err := s.emitRelease(ctx, tx, engagement, actor, released, true); err != nil {
			return err
		}
		acted = true
		return nil
	})
	return acted, err
}

type releaseResult struct {
	breakdown    ledger.ReleaseBreakdown
	ambassadorID *uuid.UUID
}

// releaseFunds computes and applies the settlement under the caller's row
// lock. Returns nil when the breakdown was already applied.
func (s *service) releaseFunds(ctx context.Context, tx *gorm.DB, engagement *models.Engagement, now time.Time) (*releaseResult, error) {
	if engagement.Released() {
		return nil, nil
	}

	input := ledger.ReleaseInput{Gross: engagement.Amount}

	plan, err := s.memberships.CurrentPlan(ctx, tx, engagement.ProviderID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider membership")
	}
	if plan != nil && plan.CommissionDiscount != nil {
		input.CommissionDiscount = plan.CommissionDiscount
	}

	ambassadorID, err := s.referrals.AmbassadorFor(ctx, tx, engagement.ProviderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ambassador referral")
	}
	input.AmbassadorLinked = ambassadorID != nil

	breakdown, err := s.calc.ReleaseSplit(input)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release split")
	}

	applied, err := ledger.ApplyRelease(engagement, breakdown, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeFailedPrecondition, err, "apply release")
	}
	if !applied {
		return nil, nil
	}
	return &releaseResult{breakdown: breakdown, ambassadorID: ambassadorID}, nil
}

func (s *service) emitRelease(ctx context.Context, tx *gorm.DB, engagement *models.Engagement, actor Actor, result *releaseResult, auto bool) error {
	payload := FundsReleasedEvent{
		LifecycleEvent:          lifecyclePayload(engagement),
		GrossAmount:             result.breakdown.GrossAmount,
		ProcessorFee:            result.breakdown.ProcessorFee,
		PlatformCommission:      result.breakdown.PlatformCommission,
		LoyaltyFundContribution: result.breakdown.LoyaltyFundContribution,
		FinalReleasedAmount:     result.breakdown.ProviderNet,
		AmbassadorCommission:    result.breakdown.AmbassadorCommission,
		LoyaltyPoints:           result.breakdown.LoyaltyPoints,
		AutoReleased:            auto,
	}
	payload.AmbassadorID = result.ambassadorID
	return s.emit(ctx, tx, enums.EventFundsReleased, engagement, actor, payload)
}

func (s *service) resolveClaim(ctx context.Context, tx *gorm.DB, claimID uuid.UUID, actor Actor, outcome enums.DisputeState, resolution string) (*models.DisputeClaim, error) {
	claim, err := s.disputes.FindClaimByID(ctx, tx, claimID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "claim not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load claim")
	}
	if claim.State != enums.DisputeStatePendingReview {
		return nil, pkgerrors.Newf(pkgerrors.CodeFailedPrecondition, "claim already resolved as %q", claim.State)
	}

	now := s.now()
	claim.State = outcome
	claim.Resolution = &resolution
	claim.ResolvedByID = &actor.UserID
	claim.ResolvedAt = &now
	if err := s.disputes.SaveClaim(ctx, tx, claim); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save claim")
	}
	return claim, nil
}

func (s *service) untilAppointment(engagement *models.Engagement, now time.Time) time.Duration {
	if engagement.AppointmentAt == nil {
		// No slot booked: always the early tier.
		return s.policy.LateCancellationCutoff + time.Hour
	}
	return engagement.AppointmentAt.Sub(now)
}

func (s *service) setTerminal(engagement *models.Engagement, status enums.EngagementStatus) {
	engagement.Status = status
	if engagement.FinalizedAt == nil {
		now := s.now()
		engagement.FinalizedAt = &now
	}
}

func (s *service) stampActor(engagement *models.Engagement, actor Actor) {
	id := actor.UserID
	engagement.LastActorID = &id
	engagement.LastActorRole = actor.Role
}

func (s *service) loadForUpdate(ctx context.Context, repo Repository, id uuid.UUID) (*models.Engagement, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "engagement id required")
	}
	engagement, err := repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "engagement not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load engagement")
	}
	return engagement, nil
}

func (s *service) emitLifecycle(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, engagement *models.Engagement, actor Actor) error {
	return s.emit(ctx, tx, eventType, engagement, actor, lifecyclePayload(engagement))
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, engagement *models.Engagement, actor Actor, data interface{}) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateEngagement,
		AggregateID:   engagement.ID,
		Version:       1,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role},
		Data:          data,
	})
}

func (s *service) emitDispute(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, engagement *models.Engagement, actor Actor, claim *models.DisputeClaim) error {
	payload := DisputeEvent{
		LifecycleEvent: lifecyclePayload(engagement),
		ClaimID:        claim.ID,
		Category:       claim.Category,
		State:          claim.State,
		ReporterID:     claim.ReporterID,
		ReporterRole:   claim.ReporterRole,
	}
	if claim.Resolution != nil {
		payload.Resolution = *claim.Resolution
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateDisputeClaim,
		AggregateID:   claim.ID,
		Version:       1,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role},
		Data:          payload,
	})
}

func lifecyclePayload(engagement *models.Engagement) LifecycleEvent {
	return LifecycleEvent{
		EngagementID:  engagement.ID,
		CustomerID:    engagement.CustomerID,
		ProviderID:    engagement.ProviderID,
		Status:        engagement.Status,
		PaymentStatus: engagement.PaymentStatus,
		AppointmentAt: engagement.AppointmentAt,
		Categories:    engagement.ServiceItems.Categories(),
	}
}

func buildRating(input RateInput, now time.Time) *types.Rating {
	return &types.Rating{
		Stars:     input.Stars,
		Aspects:   input.Aspects,
		Comment:   input.Comment,
		RatedAt:   now,
		RaterID:   input.Actor.UserID.String(),
		RaterRole: string(input.Actor.Role),
	}
}

func buildClaim(engagement *models.Engagement, actor Actor, category enums.DisputeCategory, description string) *models.DisputeClaim {
	reportedID := engagement.ProviderID
	reportedRole := enums.ActorRoleProvider
	if actor.UserID == engagement.ProviderID {
		reportedID = engagement.CustomerID
		reportedRole = enums.ActorRoleCustomer
	}
	return &models.DisputeClaim{
		EngagementID: engagement.ID,
		ReporterID:   actor.UserID,
		ReporterRole: actor.Role,
		ReportedID:   reportedID,
		ReportedRole: reportedRole,
		Category:     category,
		Description:  description,
		State:        enums.DisputeStatePendingReview,
	}
}

func zeroCancellation(gross decimal.Decimal) ledger.CancellationBreakdown {
	return ledger.CancellationBreakdown{
		GrossAmount:    gross,
		PenaltyPct:     decimal.Zero,
		Penalty:        decimal.Zero,
		PlatformShare:  decimal.Zero,
		ProviderShare:  decimal.Zero,
		CustomerRefund: gross,
	}
}

func refundIf(charged bool, amount decimal.Decimal) decimal.Decimal {
	if charged {
		return amount
	}
	return decimal.Zero
}

func systemActor() Actor {
	return Actor{UserID: uuid.Nil, Role: enums.ActorRoleSystem}
}

func requireActor(actor Actor) error {
	if actor.UserID == uuid.Nil && actor.Role != enums.ActorRoleSystem {
		return pkgerrors.New(pkgerrors.CodeUnauthenticated, "actor identity missing")
	}
	if !actor.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeUnauthenticated, "actor role missing")
	}
	return nil
}

func requireAdmin(actor Actor) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if actor.Role != enums.ActorRoleAdmin {
		return pkgerrors.New(pkgerrors.CodePermissionDenied, "admin role required")
	}
	return nil
}

func stateError(engagement *models.Engagement, op string) error {
	return pkgerrors.Newf(pkgerrors.CodeFailedPrecondition,
		"cannot %s in status %q (payment %q)", op, engagement.Status, engagement.PaymentStatus)
}

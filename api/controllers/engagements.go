package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/servigo-app/servigo-backend/api/middleware"
	"github.com/servigo-app/servigo-backend/api/responses"
	"github.com/servigo-app/servigo-backend/api/validators"
	"github.com/servigo-app/servigo-backend/internal/engagements"
	"github.com/servigo-app/servigo-backend/pkg/enums"
	pkgerrors "github.com/servigo-app/servigo-backend/pkg/errors"
	"github.com/servigo-app/servigo-backend/pkg/logger"
	"github.com/servigo-app/servigo-backend/pkg/pagination"
	"github.com/servigo-app/servigo-backend/pkg/types"
)

type createEngagementRequest struct {
	ProviderID    string             `json:"providerId" validate:"required,uuid4"`
	Currency      string             `json:"currency" validate:"required,oneof=USD MXN"`
	PricingMode   string             `json:"pricingMode" validate:"required,oneof=fixed hourly"`
	Amount        decimal.Decimal    `json:"amount"`
	HourlyRate    *decimal.Decimal   `json:"hourlyRate,omitempty"`
	DurationHours *decimal.Decimal   `json:"durationHours,omitempty"`
	ServiceItems  types.ServiceItems `json:"serviceItems" validate:"required,min=1"`
	AppointmentAt *time.Time         `json:"appointmentAt,omitempty"`
	Location      *types.GeoPoint    `json:"location,omitempty"`
	RequestNow    bool               `json:"requestNow"`
}

// CreateEngagement books a provider on behalf of the authenticated customer.
func CreateEngagement(svc engagements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createEngagementRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		providerID, err := uuid.Parse(body.ProviderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "invalid provider id"))
			return
		}
		currency, err := enums.ParseCurrency(body.Currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "invalid currency"))
			return
		}
		mode, err := enums.ParsePricingMode(body.PricingMode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "invalid pricing mode"))
			return
		}

		engagement, err := svc.Create(r.Context(), engagements.CreateInput{
			Actor:         actor,
			ProviderID:    providerID,
			Currency:      currency,
			PricingMode:   mode,
			Amount:        body.Amount,
			HourlyRate:    body.HourlyRate,
			DurationHours: body.DurationHours,
			ServiceItems:  body.ServiceItems,
			AppointmentAt: body.AppointmentAt,
			Location:      body.Location,
			RequestNow:    body.RequestNow,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, engagement)
	}
}

// SubmitEngagement moves a draft to the provider's pending queue.
func SubmitEngagement(svc engagements.Service, logg *logger.Logger) http.HandlerFunc {
	return actorAction(logg, svc.Request)
}

type providerDecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=accept reject"`
}

// EngagementDecision records the provider accepting or rejecting a request.
func EngagementDecision(svc engagements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, engagementID, err := actorAndEngagement(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body providerDecisionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err = svc.ProviderDecision(r.Context(), engagements.ProviderDecisionInput{
			Actor:        actor,
			EngagementID: engagementID,
			Decision:     engagements.ProviderDecision(body.Decision),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

// ChargeEngagement captures the payment for a confirmed engagement.
func ChargeEngagement(svc engagements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, engagementID, err := actorAndEngagement(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		captured, err := svc.Charge(r.Context(), actor, engagementID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"captured": captured})
	}
}

// EngagementEnRoute marks the provider as on the way.
func EngagementEnRoute(svc engagements.Service, logg *logger.Logger) http.HandlerFunc {
	return actorAction(logg, svc.MarkEnRoute)
}

// StartEngagement marks the work as started.
func StartEngagement(svc engagements.Service, logg *logger.Logger) http.HandlerFunc {
	return actorAction(logg, svc.Start)
}

// CompleteEngagement is the provider declaring the work done.
func CompleteEngagement(svc engagements.Service, logg *logger.Logger) http.HandlerFunc {
	return actorAction(logg, svc.CompleteByProvider)
}

// ConfirmEngagementCompletion is the customer accepting the completed work.
func ConfirmEngagementCompletion(svc engagements.Service, logg *logger.Logger) http.HandlerFunc {
	return actorAction(logg, svc.ConfirmCompletion)
}

type rateEngagementRequest struct {
	Stars   int            `json:"stars" validate:"required,min=1,max=5"`
	Aspects map[string]int `json:"aspects,omitempty"`
	Comment string         `json:"comment,omitempty" validate:"max=2000"`
}

// RateEngagement records one party's rating of the other.
func RateEngagement(svc engagements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, engagementID, err := actorAndEngagement(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body rateEngagementRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err = svc.Rate(r.Context(), engagements.RateInput{
			Actor:        actor,
			EngagementID: engagementID,
			Stars:        body.Stars,
			Aspects:      body.Aspects,
			Comment:      body.Comment,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

type cancelEngagementRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=2000"`
}

// CancelEngagement backs a party out of a confirmed or paid engagement.
func CancelEngagement(svc engagements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, engagementID, err := actorAndEngagement(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body cancelEngagementRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err = svc.Cancel(r.Context(), engagements.CancelInput{
			Actor:        actor,
			EngagementID: engagementID,
			Reason:       body.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cancelled"})
	}
}

// GetEngagement returns one engagement visible to the caller.
func GetEngagement(svc engagements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, engagementID, err := actorAndEngagement(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		engagement, err := svc.GetByID(r.Context(), actor, engagementID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, engagement)
	}
}

// ListEngagements returns the caller's engagement page.
func ListEngagements(svc engagements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))

		list, err := svc.ListForUser(r.Context(), actor, actor.UserID, pagination.Params{
			Limit:  limit,
			Cursor: cursor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// actorAction adapts the single-argument lifecycle transitions to handlers.
func actorAction(logg *logger.Logger, fn func(ctx context.Context, actor engagements.Actor, engagementID uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, engagementID, err := actorAndEngagement(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := fn(r.Context(), actor, engagementID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

func actorFromRequest(r *http.Request) (engagements.Actor, error) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return engagements.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthenticated, "missing identity")
	}
	role := middleware.RoleFromContext(r.Context())
	if !role.IsValid() {
		return engagements.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthenticated, "missing role")
	}
	return engagements.Actor{UserID: userID, Role: role}, nil
}

func actorAndEngagement(r *http.Request) (engagements.Actor, uuid.UUID, error) {
	actor, err := actorFromRequest(r)
	if err != nil {
		return engagements.Actor{}, uuid.Nil, err
	}
	engagementID, err := parseEngagementID(r)
	if err != nil {
		return engagements.Actor{}, uuid.Nil, err
	}
	return actor, engagementID, nil
}

func parseEngagementID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "engagementId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "engagement id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "invalid engagement id")
	}
	return id, nil
}

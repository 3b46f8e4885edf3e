package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/servigo-app/servigo-backend/api/responses"
	"github.com/servigo-app/servigo-backend/api/validators"
	"github.com/servigo-app/servigo-backend/internal/engagements"
	"github.com/servigo-app/servigo-backend/pkg/enums"
	pkgerrors "github.com/servigo-app/servigo-backend/pkg/errors"
	"github.com/servigo-app/servigo-backend/pkg/logger"
)

type reportProblemRequest struct {
	Description string `json:"description" validate:"required,min=10,max=4000"`
}

// ReportProblem opens a dispute on a completed engagement and freezes its funds.
func ReportProblem(svc engagements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, engagementID, err := actorAndEngagement(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body reportProblemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		claim, err := svc.ReportProblem(r.Context(), engagements.ReportProblemInput{
			Actor:        actor,
			EngagementID: engagementID,
			Description:  body.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, claim)
	}
}

type requestWarrantyRequest struct {
	Description string `json:"description" validate:"required,min=10,max=4000"`
}

// RequestWarranty opens a warranty claim on a closed engagement.
func RequestWarranty(svc engagements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, engagementID, err := actorAndEngagement(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body requestWarrantyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		claim, err := svc.RequestWarranty(r.Context(), engagements.WarrantyRequestInput{
			Actor:        actor,
			EngagementID: engagementID,
			Description:  body.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, claim)
	}
}

type resolveClaimRequest struct {
	Outcome    string `json:"outcome" validate:"required"`
	Resolution string `json:"resolution" validate:"required,min=3,max=4000"`
}

// ResolveDispute is the admin ruling on an open dispute claim.
func ResolveDispute(svc engagements.Service, logg *logger.Logger) http.HandlerFunc {
	return resolveClaim(logg, func(r *http.Request, input resolveInput) error {
		return svc.ResolveDispute(r.Context(), engagements.ResolveDisputeInput{
			Actor:        input.actor,
			EngagementID: input.engagementID,
			ClaimID:      input.claimID,
			Outcome:      input.outcome,
			Resolution:   input.resolution,
		})
	})
}

// ResolveWarranty is the admin ruling on a warranty claim.
func ResolveWarranty(svc engagements.Service, logg *logger.Logger) http.HandlerFunc {
	return resolveClaim(logg, func(r *http.Request, input resolveInput) error {
		return svc.ResolveWarranty(r.Context(), engagements.ResolveWarrantyInput{
			Actor:        input.actor,
			EngagementID: input.engagementID,
			ClaimID:      input.claimID,
			Outcome:      input.outcome,
			Resolution:   input.resolution,
		})
	})
}

type adminCancelRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=2000"`
}

// AdminCancelEngagement cancels an engagement on behalf of the platform.
func AdminCancelEngagement(svc engagements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, engagementID, err := actorAndEngagement(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body adminCancelRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err = svc.CancelByAdmin(r.Context(), engagements.CancelInput{
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

type resolveInput struct {
	actor        engagements.Actor
	engagementID uuid.UUID
	claimID      uuid.UUID
	outcome      enums.DisputeState
	resolution   string
}

func resolveClaim(logg *logger.Logger, apply func(*http.Request, resolveInput) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, engagementID, err := actorAndEngagement(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		claimID, err := parseClaimID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body resolveClaimRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := enums.ParseDisputeState(body.Outcome)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "invalid outcome"))
			return
		}

		err = apply(r, resolveInput{
			actor:        actor,
			engagementID: engagementID,
			claimID:      claimID,
			outcome:      outcome,
			resolution:   body.Resolution,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "resolved"})
	}
}

func parseClaimID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "claimId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "claim id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "invalid claim id")
	}
	return id, nil
}

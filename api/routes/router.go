package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/servigo-app/servigo-backend/api/controllers"
	"github.com/servigo-app/servigo-backend/api/middleware"
	"github.com/servigo-app/servigo-backend/internal/engagements"
	"github.com/servigo-app/servigo-backend/internal/loyalty"
	"github.com/servigo-app/servigo-backend/pkg/config"
	"github.com/servigo-app/servigo-backend/pkg/db"
	"github.com/servigo-app/servigo-backend/pkg/enums"
	"github.com/servigo-app/servigo-backend/pkg/logger"
	"github.com/servigo-app/servigo-backend/pkg/redis"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            *gorm.DB
	DBPinger      db.Pinger
	Redis         *redis.Client
	Engagements   engagements.Service
	Notifications controllers.NotificationsService
	Loyalty       *loyalty.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DBPinger, deps.Redis))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if deps.Redis != nil {
			r.Use(middleware.Idempotency(deps.Redis, logg))
		}

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/engagements", func(r chi.Router) {
			r.Get("/", controllers.ListEngagements(deps.Engagements, logg))
			r.Post("/", controllers.CreateEngagement(deps.Engagements, logg))

			r.Route("/{engagementId}", func(r chi.Router) {
				r.Get("/", controllers.GetEngagement(deps.Engagements, logg))
				r.Post("/request", controllers.SubmitEngagement(deps.Engagements, logg))
				r.Post("/decision", controllers.EngagementDecision(deps.Engagements, logg))
				r.Post("/charge", controllers.ChargeEngagement(deps.Engagements, logg))
				r.Post("/en-route", controllers.EngagementEnRoute(deps.Engagements, logg))
				r.Post("/start", controllers.StartEngagement(deps.Engagements, logg))
				r.Post("/complete", controllers.CompleteEngagement(deps.Engagements, logg))
				r.Post("/confirm", controllers.ConfirmEngagementCompletion(deps.Engagements, logg))
				r.Post("/rate", controllers.RateEngagement(deps.Engagements, logg))
				r.Post("/cancel", controllers.CancelEngagement(deps.Engagements, logg))
				r.Post("/problems", controllers.ReportProblem(deps.Engagements, logg))
				r.Post("/warranty", controllers.RequestWarranty(deps.Engagements, logg))
			})
		})

		r.Route("/v1/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Get("/unread-count", controllers.UnreadNotificationCount(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})

		r.Route("/v1/loyalty", func(r chi.Router) {
			r.Get("/balance", controllers.LoyaltyBalance(deps.Loyalty, deps.DB, logg))
		})

		r.Route("/admin/v1/engagements/{engagementId}", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.ActorRoleAdmin, logg))
			r.Post("/cancel", controllers.AdminCancelEngagement(deps.Engagements, logg))
			r.Post("/disputes/{claimId}/resolve", controllers.ResolveDispute(deps.Engagements, logg))
			r.Post("/warranty/{claimId}/resolve", controllers.ResolveWarranty(deps.Engagements, logg))
		})
	})

	return r
}

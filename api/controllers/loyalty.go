package controllers

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/servigo-app/servigo-backend/api/middleware"
	"github.com/servigo-app/servigo-backend/api/responses"
	"github.com/servigo-app/servigo-backend/internal/loyalty"
	pkgerrors "github.com/servigo-app/servigo-backend/pkg/errors"
	"github.com/servigo-app/servigo-backend/pkg/logger"
)

// LoyaltyBalance returns the caller's current points balance.
func LoyaltyBalance(svc *loyalty.Service, db *gorm.DB, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthenticated, "missing identity"))
			return
		}

		balance, err := svc.Balance(r.Context(), db, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch balance"))
			return
		}
		responses.WriteSuccess(w, map[string]int64{"balance": balance})
	}
}

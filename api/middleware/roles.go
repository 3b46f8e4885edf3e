package middleware

import (
	"net/http"

	"github.com/servigo-app/servigo-backend/api/responses"
	"github.com/servigo-app/servigo-backend/pkg/enums"
	pkgerrors "github.com/servigo-app/servigo-backend/pkg/errors"
	"github.com/servigo-app/servigo-backend/pkg/logger"
)

func RequireRole(role enums.ActorRole, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if RoleFromContext(r.Context()) != role {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodePermissionDenied, "role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package controllers

import (
	"net/http"

	"github.com/servigo-app/servigo-backend/api/middleware"
	"github.com/servigo-app/servigo-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "private", "status": "ok"}
		if userID, ok := middleware.UserIDFromContext(r.Context()); ok {
			payload["user_id"] = userID.String()
		}
		responses.WriteSuccess(w, payload)
	}
}

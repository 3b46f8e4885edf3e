package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgauth "github.com/servigo-app/servigo-backend/pkg/auth"
	"github.com/servigo-app/servigo-backend/pkg/config"
	"github.com/servigo-app/servigo-backend/pkg/enums"
	"github.com/servigo-app/servigo-backend/pkg/logger"
)

func jwtTestConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "auth-middleware-secret",
		Issuer:            "servigo",
		ExpirationMinutes: 15,
	}
}

func authTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "auth-test", Output: io.Discard})
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	})
	handler := Auth(jwtTestConfig(), authTestLogger())(next)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsForgedToken(t *testing.T) {
	forged, err := pkgauth.MintAccessToken(config.JWTConfig{
		Secret:            "some-other-secret",
		Issuer:            "servigo",
		ExpirationMinutes: 15,
	}, time.Now(), pkgauth.AccessTokenPayload{UserID: uuid.New(), Role: enums.ActorRoleCustomer})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	})
	handler := Auth(jwtTestConfig(), authTestLogger())(next)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSeedsIdentity(t *testing.T) {
	cfg := jwtTestConfig()
	userID := uuid.New()
	token, err := pkgauth.MintAccessToken(cfg, time.Now(), pkgauth.AccessTokenPayload{
		UserID: userID,
		Role:   enums.ActorRoleProvider,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	var seenID uuid.UUID
	var seenRole enums.ActorRole
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID, _ = UserIDFromContext(r.Context())
		seenRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Auth(cfg, authTestLogger())(next)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if seenID != userID {
		t.Fatalf("user id lost: %s", seenID)
	}
	if seenRole != enums.ActorRoleProvider {
		t.Fatalf("role lost: %s", seenRole)
	}
}

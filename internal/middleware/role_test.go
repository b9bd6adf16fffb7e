package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/helphive/helphive/internal/auth"
	"github.com/helphive/helphive/internal/model"
)

func requestWithRole(t *testing.T, role string) *http.Request {
	t.Helper()

	tokens := auth.NewTokenService("test-secret", time.Hour)
	token, err := tokens.Issue(&model.User{ID: "u1", Email: "a@x.com", Role: role})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	claims, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/updateuser", nil)
	return req.WithContext(auth.ContextWithClaims(req.Context(), claims))
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name string
		role string
		want int
	}{
		{"admin passes", model.RoleAdmin, http.StatusOK},
		{"moderator forbidden", model.RoleModerator, http.StatusForbidden},
		{"user forbidden", model.RoleUser, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, requestWithRole(t, tt.role))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireAdmin_NoClaims(t *testing.T) {
	handler := RequireAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/updateuser", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 when claims are absent", rec.Code)
	}
}

func TestRequireRole_Moderator(t *testing.T) {
	handler := RequireRole(model.RoleModerator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithRole(t, model.RoleModerator))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	// Admin is not a superset: role checks are exact matches.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithRole(t, model.RoleAdmin))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 for non-matching role", rec.Code)
	}
}

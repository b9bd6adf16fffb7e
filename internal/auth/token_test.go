package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/helphive/helphive/internal/model"
)

func testUser() *model.User {
	return &model.User{
		ID:     "01HV5Y0000000000000000TEST",
		Email:  "a@x.com",
		Role:   model.RoleUser,
		Skills: []string{"go"},
	}
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	t.Parallel()

	svc := NewTokenService("test-secret", time.Hour)

	token, err := svc.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if token == "" {
		t.Fatal("Issue returned empty token")
	}

	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if claims.UserID != "01HV5Y0000000000000000TEST" {
		t.Errorf("UserID = %q, want user's ID", claims.UserID)
	}
	if claims.Role != model.RoleUser {
		t.Errorf("Role = %q, want %q", claims.Role, model.RoleUser)
	}
	if claims.Subject != "a@x.com" {
		t.Errorf("Subject = %q, want email", claims.Subject)
	}
}

func TestTokenService_RoleCapturedAtIssuance(t *testing.T) {
	t.Parallel()

	svc := NewTokenService("test-secret", time.Hour)

	user := testUser()
	token, err := svc.Issue(user)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// Promote the user after issuance: the outstanding token still
	// carries the role it was issued with.
	user.Role = model.RoleAdmin

	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Role != model.RoleUser {
		t.Errorf("Role = %q, want issuance-time role %q", claims.Role, model.RoleUser)
	}
}

func TestTokenService_Verify_Invalid(t *testing.T) {
	t.Parallel()

	svc := NewTokenService("test-secret", time.Hour)

	valid, err := svc.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// A non-positive ttl falls back to the default, so the shortest
	// configurable lifetime is used and allowed to lapse.
	expiredSvc := NewTokenService("test-secret", time.Nanosecond)
	expired, err := expiredSvc.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	otherKey, err := NewTokenService("other-secret", time.Hour).Issue(testUser())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"expired", expired},
		{"wrong key", otherKey},
		{"tampered", valid + "x"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Every failure mode collapses into the same error so
			// callers cannot build a validity oracle.
			_, err := svc.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify(%s) error = %v, want ErrInvalidToken", tt.name, err)
			}
		})
	}
}

func TestContextClaims_RoundTrip(t *testing.T) {
	t.Parallel()

	svc := NewTokenService("test-secret", time.Hour)
	token, err := svc.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	ctx := ContextWithClaims(context.Background(), claims)

	if got := ClaimsFromContext(ctx); got != claims {
		t.Error("ClaimsFromContext should return the stored claims")
	}
	if got := UserIDFromContext(ctx); got != claims.UserID {
		t.Errorf("UserIDFromContext = %q, want %q", got, claims.UserID)
	}
	if got := RoleFromContext(ctx); got != model.RoleUser {
		t.Errorf("RoleFromContext = %q, want %q", got, model.RoleUser)
	}

	if got := ClaimsFromContext(context.Background()); got != nil {
		t.Error("ClaimsFromContext on empty context should return nil")
	}
}

package auth

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// claimsContextKey is the context key for storing verified Claims.
const claimsContextKey contextKey = "auth_claims"

// ContextWithClaims adds verified token claims to the context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext retrieves verified claims from the context.
// Returns nil if not present.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// MustClaimsFromContext retrieves verified claims from the context.
// Panics if not present (use only when auth middleware has run).
func MustClaimsFromContext(ctx context.Context) *Claims {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		panic("auth claims not found - ensure auth middleware is applied")
	}
	return claims
}

// UserIDFromContext is a convenience function to get the user ID from context.
// Returns empty string if not authenticated.
func UserIDFromContext(ctx context.Context) string {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return ""
	}
	return claims.UserID
}

// RoleFromContext is a convenience function to get the role from context.
// Returns empty string if not authenticated.
func RoleFromContext(ctx context.Context) string {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return ""
	}
	return claims.Role
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/helphive/helphive/internal/auth"
	"github.com/helphive/helphive/internal/metrics"
	"github.com/helphive/helphive/internal/model"
	"github.com/helphive/helphive/internal/repository"
)

// UserStore is the persistence surface the handlers need.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUserRoleSkills(ctx context.Context, email, role string, skills []string) error
	ListUsers(ctx context.Context) ([]*model.User, error)
}

// EventPublisher hands the onboarding event off to the workflow consumer.
type EventPublisher interface {
	Publish(ctx context.Context, event model.OnboardingEvent) (string, error)
}

// AuthHandler handles signup, login, and logout.
type AuthHandler struct {
	logger     *slog.Logger
	repository UserStore
	tokens     *auth.TokenService
	events     EventPublisher
	metrics    metrics.Recorder
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(logger *slog.Logger, repo UserStore, tokens *auth.TokenService, events EventPublisher, recorder metrics.Recorder) *AuthHandler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AuthHandler{
		logger:     logger,
		repository: repo,
		tokens:     tokens,
		events:     events,
		metrics:    recorder,
	}
}

// Signup handles POST /api/auth/signup.
// Creates the account, issues a session token, and publishes the
// onboarding event. The event is published only after the user row is
// durably stored, and the response never waits for workflow execution.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "MISSING_FIELDS", "Email and password required")
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_EMAIL", "Invalid email address")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("failed to hash password", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Signup failed")
		return
	}

	// A body without skills decodes to a nil slice, which the skills
	// column (NOT NULL) rejects as SQL NULL.
	skills := req.Skills
	if skills == nil {
		skills = []string{}
	}

	user := &model.User{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		Skills:       skills,
		CreatedAt:    time.Now(),
	}

	// The unique constraint on email decides races between concurrent
	// signups; exactly one of them sees success here.
	if err := h.repository.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered")
			return
		}
		h.logger.Error("failed to create user", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Signup failed")
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.Error("failed to issue token",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Signup failed")
		return
	}

	// The account exists either way; a failed publish is logged and the
	// signup still succeeds.
	event := model.OnboardingEvent{Kind: model.EventKindUserOnboarded, Email: user.Email}
	if _, err := h.events.Publish(ctx, event); err != nil {
		h.logger.Error("failed to publish onboarding event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	h.metrics.IncSignup()
	h.logger.Info("user signed up",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	writeJSON(w, http.StatusCreated, model.AuthResponse{
		User:  user.ToResponse(),
		Token: token,
	})
}

// Login handles POST /api/auth/login.
//
// Unknown email returns 404 and a wrong password 401, mirroring the
// long-standing API contract. The split leaks whether an email is
// registered, which sits oddly next to the token service collapsing
// its failure modes; kept as observed behavior rather than silently
// unified.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "MISSING_FIELDS", "Email and password required")
		return
	}

	user, err := h.repository.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			h.metrics.IncLogin("not_found")
			writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
			return
		}
		h.logger.Error("failed to look up user", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Login failed")
		return
	}

	match, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		// Malformed stored hash is data corruption, not a bad credential.
		h.logger.Error("stored password hash unreadable",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Login failed")
		return
	}
	if !match {
		h.metrics.IncLogin("mismatch")
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.Error("failed to issue token",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Login failed")
		return
	}

	h.metrics.IncLogin("success")
	h.logger.Info("user logged in", slog.String("user_id", user.ID))

	writeJSON(w, http.StatusOK, model.AuthResponse{
		User:  user.ToResponse(),
		Token: token,
	})
}

// Logout handles POST /api/auth/logout.
// Tokens are self-contained and not stored server-side, so logout is a
// stateless acknowledgement; the client discards its token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// normalizeEmail lower-cases and trims an email address so lookups and
// the uniqueness constraint are case-insensitive.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

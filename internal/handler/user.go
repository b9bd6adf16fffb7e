package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/helphive/helphive/internal/auth"
	"github.com/helphive/helphive/internal/model"
	"github.com/helphive/helphive/internal/repository"
)

// UserHandler handles admin-only user management endpoints.
type UserHandler struct {
	logger     *slog.Logger
	repository UserStore
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(logger *slog.Logger, repo UserStore) *UserHandler {
	return &UserHandler{
		logger:     logger,
		repository: repo,
	}
}

// UpdateUser handles POST /api/auth/updateuser (admin only).
// Updates a user's role and skills. Skills are replaced only when a
// non-empty list is supplied; otherwise the existing skills stay.
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "MISSING_FIELDS", "Email required")
		return
	}
	if !model.IsValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "INVALID_ROLE",
			"Invalid role: "+req.Role+". Valid roles: user, moderator, admin")
		return
	}

	if err := h.repository.UpdateUserRoleSkills(ctx, email, req.Role, req.Skills); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
			return
		}
		h.logger.Error("failed to update user", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Update failed")
		return
	}

	h.logger.Info("user updated",
		slog.String("email", email),
		slog.String("role", req.Role),
		slog.String("updated_by", auth.UserIDFromContext(ctx)),
	)

	writeJSON(w, http.StatusOK, map[string]string{"message": "User updated"})
}

// ListUsers handles GET /api/auth/users (admin only).
// The password hash is excluded from the projection at the query level.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.repository.ListUsers(ctx)
	if err != nil {
		h.logger.Error("failed to list users", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Fetch failed")
		return
	}

	responses := make([]model.UserResponse, 0, len(users))
	for _, user := range users {
		responses = append(responses, user.ToResponse())
	}

	writeJSON(w, http.StatusOK, responses)
}

// Package model defines domain entities for the application.
package model

import (
	"slices"
	"time"
)

// Role constants for user authorization.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleUser, RoleModerator, RoleAdmin}

// IsValidRole reports whether role is one of the known roles.
func IsValidRole(role string) bool {
	return slices.Contains(ValidRoles, role)
}

// User represents a registered helpdesk account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never serialize
	Role         string    `json:"role"`
	Skills       []string  `json:"skills"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdmin returns true if the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserResponse is the API projection of a user. The password hash is
// excluded by construction, not just by tag.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Skills    []string  `json:"skills"`
	CreatedAt time.Time `json:"created_at"`
}

// ToResponse converts a User to UserResponse.
func (u *User) ToResponse() UserResponse {
	skills := u.Skills
	if skills == nil {
		skills = []string{}
	}
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		Skills:    skills,
		CreatedAt: u.CreatedAt,
	}
}

// SignupRequest represents a signup request body.
type SignupRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Skills   []string `json:"skills,omitempty"`
}

// LoginRequest represents a login request body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by signup and login: the user plus a session token.
type AuthResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token"`
}

// UpdateUserRequest represents an admin update to a user's role and skills.
// An empty skills list preserves the user's existing skills.
type UpdateUserRequest struct {
	Email  string   `json:"email"`
	Role   string   `json:"role"`
	Skills []string `json:"skills,omitempty"`
}

//go:build integration

package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/helphive/helphive/internal/model"
	"github.com/helphive/helphive/internal/testutil"
)

func newUserTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetUsersSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset users schema: %v", err)
	}

	return ctx, repo
}

func newTestUser(email string) *model.User {
	return &model.User{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA",
		Role:         model.RoleUser,
		Skills:       []string{"go"},
		CreatedAt:    time.Now(),
	}
}

func TestIntegrationUserRepository_CreateAndGet(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	user := newTestUser("a@x.com")
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	retrieved, err := repo.GetUserByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}

	if retrieved.ID != user.ID {
		t.Errorf("ID mismatch: got %q, want %q", retrieved.ID, user.ID)
	}
	if retrieved.PasswordHash != user.PasswordHash {
		t.Error("lookup by email must include the stored hash for verification")
	}
	if retrieved.Role != model.RoleUser {
		t.Errorf("Role = %q, want user", retrieved.Role)
	}
	if retrieved.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestIntegrationUserRepository_GetUnknown(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	_, err := repo.GetUserByEmail(ctx, "nobody@x.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got: %v", err)
	}
}

func TestIntegrationUserRepository_DuplicateEmail(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	if err := repo.CreateUser(ctx, newTestUser("dup@x.com")); err != nil {
		t.Fatalf("CreateUser (first) failed: %v", err)
	}

	err := repo.CreateUser(ctx, newTestUser("dup@x.com"))
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("Expected ErrEmailExists, got: %v", err)
	}
}

func TestIntegrationUserRepository_ConcurrentSignup(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	const workers = 8
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.CreateUser(ctx, newTestUser("race@x.com"))
		}(i)
	}
	wg.Wait()

	// Exactly one insert wins; the rest observe the conflict.
	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrEmailExists):
			conflicted++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d inserts succeeded, want exactly 1", succeeded)
	}
	if conflicted != workers-1 {
		t.Errorf("%d inserts conflicted, want %d", conflicted, workers-1)
	}
}

func TestIntegrationUserRepository_UpdateRoleSkills(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	user := newTestUser("update@x.com")
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if err := repo.UpdateUserRoleSkills(ctx, "update@x.com", model.RoleModerator, []string{"sql", "support"}); err != nil {
		t.Fatalf("UpdateUserRoleSkills failed: %v", err)
	}

	updated, err := repo.GetUserByEmail(ctx, "update@x.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if updated.Role != model.RoleModerator {
		t.Errorf("Role = %q, want moderator", updated.Role)
	}
	if len(updated.Skills) != 2 || updated.Skills[0] != "sql" {
		t.Errorf("Skills = %v, want replaced", updated.Skills)
	}

	// Empty skills leave the existing list untouched.
	if err := repo.UpdateUserRoleSkills(ctx, "update@x.com", model.RoleAdmin, nil); err != nil {
		t.Fatalf("UpdateUserRoleSkills (no skills) failed: %v", err)
	}
	updated, err = repo.GetUserByEmail(ctx, "update@x.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if updated.Role != model.RoleAdmin {
		t.Errorf("Role = %q, want admin", updated.Role)
	}
	if len(updated.Skills) != 2 {
		t.Errorf("Skills = %v, want unchanged", updated.Skills)
	}
}

func TestIntegrationUserRepository_UpdateUnknown(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	err := repo.UpdateUserRoleSkills(ctx, "nobody@x.com", model.RoleAdmin, nil)
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got: %v", err)
	}
}

func TestIntegrationUserRepository_ListUsers(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	for i := 0; i < 3; i++ {
		if err := repo.CreateUser(ctx, newTestUser(fmt.Sprintf("list%d@x.com", i))); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}

	users, err := repo.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("got %d users, want 3", len(users))
	}
	for _, u := range users {
		if u.PasswordHash != "" {
			t.Error("listing should not load password hashes")
		}
	}
}

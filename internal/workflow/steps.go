package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/helphive/helphive/internal/metrics"
	"github.com/helphive/helphive/internal/model"
	"github.com/helphive/helphive/internal/notify"
	"github.com/helphive/helphive/internal/repository"
)

// Step names for the onboarding pipeline.
const (
	StepResolveUser      = "resolve-user"
	StepSendWelcomeEmail = "send-welcome-email"
)

// UserResolver is the identity lookup the pipeline needs.
type UserResolver interface {
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// OnboardingSteps builds the pipeline executed for every
// user-onboarded event:
//
//  1. resolve-user: look up the newly created account. A missing
//     account is terminal; retrying cannot create the record.
//  2. send-welcome-email: deliver the welcome message. Transient
//     delivery failures (including timeout) are retried; a permanent
//     delivery failure is terminal.
func OnboardingSteps(users UserResolver, notifier notify.Notifier, notifyTimeout time.Duration, recorder metrics.Recorder) []Step {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return []Step{
		{Name: StepResolveUser, Run: resolveUser(users)},
		{Name: StepSendWelcomeEmail, Run: sendWelcomeEmail(notifier, notifyTimeout, recorder)},
	}
}

func resolveUser(users UserResolver) StepFunc {
	return func(ctx context.Context, rc *RunContext) (any, error) {
		user, err := users.GetUserByEmail(ctx, rc.Email)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, Terminal("user not found", err)
			}
			return nil, fmt.Errorf("resolve user: %w", err)
		}
		return user.ToResponse(), nil
	}
}

func sendWelcomeEmail(notifier notify.Notifier, timeout time.Duration, recorder metrics.Recorder) StepFunc {
	return func(ctx context.Context, rc *RunContext) (any, error) {
		var user model.UserResponse
		if err := rc.Result(StepResolveUser, &user); err != nil {
			return nil, err
		}

		subject := "Welcome to HelpHive"
		body := fmt.Sprintf(
			"Hello %s,\n\nwelcome to HelpHive! We're excited to have you on board.\n",
			user.Email,
		)

		sendCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		err := notifier.Send(sendCtx, user.Email, subject, body)
		recorder.ObserveNotifyDuration(time.Since(start))

		if err != nil {
			if notify.IsPermanent(err) {
				return nil, Terminal("welcome email rejected", err)
			}
			// Timeout and transport failures are retriable.
			return nil, fmt.Errorf("send welcome email: %w", err)
		}

		return map[string]bool{"delivered": true}, nil
	}
}

package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helphive/helphive/internal/metrics"
	"github.com/helphive/helphive/internal/model"
)

const (
	// StreamKey is the Redis stream for onboarding events.
	StreamKey = "stream:onboarding_events"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for a Redis publish.
	PublishTimeout = 1 * time.Second
)

// Publisher enqueues onboarding events to the Redis stream. The signup
// handler calls it only after the user row is durably stored, so a
// consumer can never observe an event before the identity it references.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new onboarding event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "workflow.publisher"),
		metrics: recorder,
	}
}

// Publish adds an event to the stream and returns the stream ID, which
// doubles as the run's idempotency key. The caller's request latency is
// bounded by PublishTimeout, not by workflow execution: the consumer
// picks the event up on its own schedule.
func (p *Publisher) Publish(ctx context.Context, event model.OnboardingEvent) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()

	streamID, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",  // Auto-generate ID
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()

	if err != nil {
		p.metrics.IncEventPublished("dropped")
		return "", fmt.Errorf("xadd: %w", err)
	}

	p.logger.Debug("onboarding event published",
		"email", event.Email,
		"stream_id", streamID,
	)
	p.metrics.IncEventPublished("success")
	return streamID, nil
}

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/helphive/helphive/internal/metrics"
	"github.com/helphive/helphive/internal/model"
)

const (
	// ConsumerGroup is the Redis consumer group name.
	ConsumerGroup = "onboarding_workers"

	// DefaultBatchSize is the max events or due runs per iteration.
	DefaultBatchSize = 50

	// DefaultBlockTimeout is how long to block waiting for new events.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMetricsInterval is how often to refresh queue depth metrics.
	DefaultMetricsInterval = 10 * time.Second
)

// Worker drives the onboarding workflow. Each iteration it consumes
// new events from the Redis stream, turning them into run records, and
// re-executes runs whose retry backoff has elapsed. Runs execute
// decoupled from the request that triggered them.
type Worker struct {
	redis           *redis.Client
	repo            *Repository
	engine          *Engine
	logger          *slog.Logger
	metrics         metrics.Recorder
	consumerID      string
	maxAttempts     int
	batchSize       int
	blockTimeout    time.Duration
	metricsInterval time.Duration
	lastMetrics     time.Time

	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewWorker creates an onboarding workflow worker.
func NewWorker(client *redis.Client, repo *Repository, engine *Engine, logger *slog.Logger, consumerID string, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		redis:           client,
		repo:            repo,
		engine:          engine,
		logger:          logger.With("component", "workflow.worker", "consumer_id", consumerID),
		metrics:         recorder,
		consumerID:      consumerID,
		maxAttempts:     DefaultMaxAttempts,
		batchSize:       DefaultBatchSize,
		blockTimeout:    DefaultBlockTimeout,
		metricsInterval: DefaultMetricsInterval,
	}
}

// Run starts the worker loop. Blocks until context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	// Ensure consumer group exists
	if err := w.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("workflow worker started")

	for {
		w.mu.Lock()
		draining := w.draining
		w.mu.Unlock()

		if draining {
			w.logger.Info("workflow worker draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("workflow worker stopping")
			return ctx.Err()
		default:
			if err := w.processOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Shutdown gracefully stops the worker, completing any in-flight run.
// It implements server.ShutdownFunc for integration with graceful shutdown.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.draining = true
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	w.logger.Info("workflow worker shutdown initiated")

	if cancel != nil {
		cancel()
	}

	if done != nil {
		select {
		case <-done:
			w.logger.Info("workflow worker shutdown complete")
			return nil
		case <-ctx.Done():
			w.logger.Warn("workflow worker shutdown timed out")
			return ctx.Err()
		}
	}
	return nil
}

// SetBatchSize overrides the default batch size.
func (w *Worker) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// SetBlockTimeout overrides the default blocking timeout.
func (w *Worker) SetBlockTimeout(timeout time.Duration) {
	if timeout > 0 {
		w.blockTimeout = timeout
	}
}

// SetMaxAttempts overrides the default per-run attempt budget.
func (w *Worker) SetMaxAttempts(attempts int) {
	if attempts > 0 {
		w.maxAttempts = attempts
	}
}

// ensureConsumerGroup creates the consumer group if it doesn't exist.
func (w *Worker) ensureConsumerGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isConsumerGroupExistsError(err) {
		return err
	}
	return nil
}

// processOnce handles due retries, then blocks briefly for new events.
func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	if err := w.executeDueRuns(ctx); err != nil {
		return err
	}

	messages, err := w.readBatch(ctx)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		if err := w.acceptEvent(ctx, msg); err != nil {
			w.logger.Warn("failed to accept event",
				"message_id", msg.ID,
				"error", err,
			)
			// Leave the message pending; it will be redelivered.
			continue
		}
		if err := w.ackMessage(ctx, msg.ID); err != nil {
			w.logger.Warn("failed to ack message", "message_id", msg.ID, "error", err)
		}
	}

	return nil
}

// readBatch reads new events from the stream using XREADGROUP.
func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()

	if err == redis.Nil || len(streams) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	return streams[0].Messages, nil
}

// acceptEvent turns a stream message into a run record and executes
// its first attempt. The stream ID keys the run, so a redelivered
// message finds the existing run instead of creating a duplicate.
func (w *Worker) acceptEvent(ctx context.Context, msg redis.XMessage) error {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		// Malformed message; drop it rather than block the group.
		w.logger.Warn("dropping malformed stream message", "message_id", msg.ID)
		return nil
	}

	var event model.OnboardingEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		w.logger.Warn("dropping undecodable stream message",
			"message_id", msg.ID,
			"error", err,
		)
		return nil
	}
	if event.Kind != model.EventKindUserOnboarded || event.Email == "" {
		w.logger.Warn("dropping unexpected event",
			"message_id", msg.ID,
			"kind", event.Kind,
		)
		return nil
	}

	now := time.Now()
	run := &model.WorkflowRun{
		ID:            ulid.Make().String(),
		EventID:       msg.ID,
		Email:         event.Email,
		Status:        model.RunStatusPending,
		AttemptCount:  0,
		MaxAttempts:   w.maxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := w.repo.CreateRun(ctx, run)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	if !created {
		// Redelivered event; the existing run owns it.
		w.logger.Debug("event already accepted", "event_id", msg.ID)
		return nil
	}

	w.logger.Info("run accepted",
		"run_id", run.ID,
		"event_id", run.EventID,
		"email", run.Email,
	)

	w.executeRun(ctx, run)
	return nil
}

// executeDueRuns re-attempts runs whose backoff interval has elapsed,
// plus running runs abandoned past their lease.
func (w *Worker) executeDueRuns(ctx context.Context) error {
	runs, err := w.repo.GetDueRuns(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get due runs: %w", err)
	}

	for _, run := range runs {
		w.executeRun(ctx, run)
	}

	return nil
}

// executeRun claims a run and performs one attempt.
func (w *Worker) executeRun(ctx context.Context, run *model.WorkflowRun) {
	claimed, err := w.repo.MarkRunning(ctx, run.ID)
	if err != nil {
		w.logger.Warn("failed to claim run", "run_id", run.ID, "error", err)
		return
	}
	if !claimed {
		return
	}

	w.metrics.IncRunStarted()
	w.engine.Execute(ctx, run)
}

// ackMessage acknowledges a processed stream message.
func (w *Worker) ackMessage(ctx context.Context, messageID string) error {
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, messageID).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// maybeUpdateQueueDepth periodically updates the queue depth metric.
func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if w.metricsInterval <= 0 {
		return
	}
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.metricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	depth, err := w.repo.GetQueueDepth(ctx)
	if err != nil {
		w.logger.Warn("failed to get queue depth", "error", err)
		return
	}
	w.metrics.SetRunQueueDepth(depth)
}

// isConsumerGroupExistsError checks if the error is "BUSYGROUP" (group exists).
func isConsumerGroupExistsError(err error) bool {
	return err != nil && (err.Error() == "BUSYGROUP Consumer Group name already exists" ||
		err.Error() == "BUSYGROUP")
}

// NewConsumerID creates a stable-ish consumer ID for the Redis consumer group.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
}

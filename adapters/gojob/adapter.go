package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const (
	// JobIDInstallCompleted marks the external app installation completed
	// signal on the queue.
	JobIDInstallCompleted = "consent.install.completed"

	paramAppID      = "app_id"
	paramObservedAt = "observed_at"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// InstallCompleted is the decoded install signal.
type InstallCompleted struct {
	AppID      string
	ObservedAt time.Time
}

// NewInstallCompletedMessage builds the queue message for an install signal.
// Signals for the same app collapse on the idempotency key.
func NewInstallCompletedMessage(appID string, observedAt time.Time) (*job.ExecutionMessage, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return nil, fmt.Errorf("gojob: app id is required")
	}
	if observedAt.IsZero() {
		observedAt = time.Now()
	}
	return &job.ExecutionMessage{
		JobID:      JobIDInstallCompleted,
		ScriptPath: JobIDInstallCompleted,
		Parameters: map[string]any{
			paramAppID:      appID,
			paramObservedAt: observedAt.UTC().Format(time.RFC3339Nano),
		},
		IdempotencyKey: JobIDInstallCompleted + ":" + appID,
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}, nil
}

// ParseInstallCompleted reports false for messages that are not install
// signals.
func ParseInstallCompleted(msg *job.ExecutionMessage) (InstallCompleted, bool) {
	if msg == nil || strings.TrimSpace(msg.JobID) != JobIDInstallCompleted {
		return InstallCompleted{}, false
	}
	out := InstallCompleted{}
	if appID, ok := msg.Parameters[paramAppID].(string); ok {
		out.AppID = strings.TrimSpace(appID)
	}
	if raw, ok := msg.Parameters[paramObservedAt].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			out.ObservedAt = parsed
		}
	}
	return out, true
}

// InstallPublisher puts install signals on the queue, typically from the
// process that observes the package installation.
type InstallPublisher struct {
	enqueuer queue.Enqueuer
	now      func() time.Time
}

func NewInstallPublisher(enqueuer queue.Enqueuer) *InstallPublisher {
	return &InstallPublisher{enqueuer: enqueuer, now: time.Now}
}

func (p *InstallPublisher) Publish(ctx context.Context, appID string) error {
	if p == nil || p.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	msg, err := NewInstallCompletedMessage(appID, p.now())
	if err != nil {
		return err
	}
	return p.enqueuer.Enqueue(ctx, msg)
}

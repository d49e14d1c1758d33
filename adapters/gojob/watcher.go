package gojob

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-consent/core"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const defaultPollBackoff = time.Second

// QueueInstallWatcher consumes install signals from a go-job queue. Matching
// deliveries are acked and fire the registered callback; everything else is
// nacked back to the queue.
type QueueInstallWatcher struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
	appID    string
	backoff  time.Duration
	hook     worker.Hook
	logger   glog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type WatcherOption func(*QueueInstallWatcher)

// WithAppID only accepts signals for appID. Signals without an app id are
// always accepted.
func WithAppID(appID string) WatcherOption {
	return func(w *QueueInstallWatcher) {
		w.appID = strings.TrimSpace(appID)
	}
}

func WithRetryPolicy(policy RetryPolicy) WatcherOption {
	return func(w *QueueInstallWatcher) {
		w.policy = policy
	}
}

func WithPollBackoff(backoff time.Duration) WatcherOption {
	return func(w *QueueInstallWatcher) {
		if backoff > 0 {
			w.backoff = backoff
		}
	}
}

func WithWorkerHook(hook worker.Hook) WatcherOption {
	return func(w *QueueInstallWatcher) {
		w.hook = hook
	}
}

func WithLogger(logger glog.Logger) WatcherOption {
	return func(w *QueueInstallWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func NewQueueInstallWatcher(dequeuer queue.Dequeuer, opts ...WatcherOption) *QueueInstallWatcher {
	w := &QueueInstallWatcher{
		dequeuer: dequeuer,
		backoff:  defaultPollBackoff,
		logger:   glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Watch starts consuming. A previous watch is replaced.
func (w *QueueInstallWatcher) Watch(onInstalled func()) error {
	if w == nil || w.dequeuer == nil {
		return core.NewNotInitializedError("gojob: dequeuer is not configured")
	}
	if onInstalled == nil {
		return core.NewInvalidArgumentError("gojob: install callback is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	w.mu.Lock()
	previous := w.cancel
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()
	if previous != nil {
		previous()
	}

	go w.run(ctx, done, onInstalled)
	return nil
}

// Unwatch stops consuming. It does not wait for the loop to exit, so it is
// safe to call from inside the install callback.
func (w *QueueInstallWatcher) Unwatch() {
	if w == nil {
		return
	}
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed when the current watch loop has exited.
func (w *QueueInstallWatcher) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

func (w *QueueInstallWatcher) run(ctx context.Context, done chan struct{}, onInstalled func()) {
	defer close(done)
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		delivery, err := w.dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			attempt++
			w.logger.Warn("install signal dequeue failed", "error", err, "attempt", attempt)
			if !sleepContext(ctx, w.backoff) {
				return
			}
			continue
		}
		attempt = 0
		if delivery == nil {
			continue
		}
		if w.handle(ctx, delivery) {
			onInstalled()
		}
	}
}

// handle reports whether delivery was an accepted install signal.
func (w *QueueInstallWatcher) handle(ctx context.Context, delivery queue.Delivery) bool {
	started := time.Now()
	msg := delivery.Message()
	event := worker.Event{Message: msg, Delivery: delivery, Attempt: 1, StartedAt: started}
	if w.hook != nil {
		w.hook.OnStart(ctx, event)
	}

	signal, ok := ParseInstallCompleted(msg)
	if !ok || (w.appID != "" && signal.AppID != "" && signal.AppID != w.appID) {
		opts := w.policy.NormalizeAttempt(queue.NackOptions{Requeue: true, Reason: "not an install signal for this watcher"}, event.Attempt)
		if err := delivery.Nack(ctx, opts); err != nil {
			w.logger.Warn("install signal nack failed", "error", err)
		}
		event.Duration = time.Since(started)
		if w.hook != nil {
			w.hook.OnRetry(ctx, event)
		}
		return false
	}

	if err := delivery.Ack(ctx); err != nil {
		w.logger.Warn("install signal ack failed", "error", err, "app_id", signal.AppID)
		event.Err = err
		event.Duration = time.Since(started)
		if w.hook != nil {
			w.hook.OnFailure(ctx, event)
		}
		return false
	}
	w.logger.Info("install signal received", "app_id", signal.AppID)
	event.Duration = time.Since(started)
	if w.hook != nil {
		w.hook.OnSuccess(ctx, event)
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// LoggingHook reports install signal handling through glog.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	if logger == nil {
		logger = glog.Nop()
	}
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.logger.Debug("install signal started", "job_id", jobID(event))
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.logger.Debug("install signal handled", "job_id", jobID(event), "duration", event.Duration)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.logger.Error("install signal failed", "job_id", jobID(event), "error", event.Err)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.logger.Debug("install signal returned to queue", "job_id", jobID(event), "attempt", event.Attempt)
}

func jobID(event worker.Event) string {
	if event.Message != nil {
		return event.Message.JobID
	}
	if event.Delivery != nil && event.Delivery.Message() != nil {
		return event.Delivery.Message().JobID
	}
	return ""
}

var (
	_ core.InstallWatcher = (*QueueInstallWatcher)(nil)
	_ worker.Hook         = (*LoggingHook)(nil)
)

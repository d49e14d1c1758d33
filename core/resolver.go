package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type ResolverKind string

const (
	ResolverDirect          ResolverKind = "direct"
	ResolverDeferredInstall ResolverKind = "deferred_install"
)

// Resolver drives one authorization attempt for the path chosen by the broker.
type Resolver interface {
	Kind() ResolverKind
	ResolveAuthFlow(ctx context.Context, broker *AuthorizationBroker, host Host, callback Callback[Session]) error
	ClientResolved(ctx context.Context, callback Callback[Session])
	Stop()
	OverrideSessionCreation(override bool)
}

// DirectResolver is used when the external app is installed.
type DirectResolver struct {
	override atomic.Bool
}

func NewDirectResolver() *DirectResolver {
	return &DirectResolver{}
}

func (r *DirectResolver) Kind() ResolverKind {
	return ResolverDirect
}

func (r *DirectResolver) OverrideSessionCreation(override bool) {
	r.override.Store(override)
}

// ResolveAuthFlow creates a session first unless overridden, in which case
// the authorization request is sent right away.
func (r *DirectResolver) ResolveAuthFlow(ctx context.Context, broker *AuthorizationBroker, host Host, callback Callback[Session]) error {
	if !r.override.Load() {
		if broker.creator == nil {
			return NewNotInitializedError("core: session creator is not configured")
		}
		return broker.creator.CreateSession(ctx, callback)
	}
	return broker.requestAuthorization(ctx, host, callback, r)
}

func (r *DirectResolver) ClientResolved(context.Context, Callback[Session]) {}

func (r *DirectResolver) Stop() {}

// DeferredInstallResolver waits for the external app to be installed and
// cancels the attempt when the timeout elapses first.
type DeferredInstallResolver struct {
	scheduler Scheduler
	watcher   InstallWatcher
	timeout   time.Duration
	override  atomic.Bool

	mu        sync.Mutex
	broker    *AuthorizationBroker
	stopTimer func() bool
	watching  bool
}

func NewDeferredInstallResolver(scheduler Scheduler, watcher InstallWatcher, timeout time.Duration) *DeferredInstallResolver {
	if scheduler == nil {
		scheduler = SystemScheduler()
	}
	if timeout <= 0 {
		timeout = defaultInstallTimeoutMinutes * time.Minute
	}
	return &DeferredInstallResolver{
		scheduler: scheduler,
		watcher:   watcher,
		timeout:   timeout,
	}
}

func (r *DeferredInstallResolver) Kind() ResolverKind {
	return ResolverDeferredInstall
}

func (r *DeferredInstallResolver) OverrideSessionCreation(override bool) {
	r.override.Store(override)
}

func (r *DeferredInstallResolver) ResolveAuthFlow(ctx context.Context, broker *AuthorizationBroker, host Host, callback Callback[Session]) error {
	r.mu.Lock()
	r.broker = broker
	r.mu.Unlock()

	started, err := broker.beginDeferred(ctx, host, callback, r)
	if err != nil || !started {
		return err
	}
	armed := broker.whileOwner(r, func() {
		watching := false
		if r.watcher != nil {
			if err := r.watcher.Watch(func() { broker.ProtocolResolved(context.Background()) }); err != nil {
				broker.logger.Warn("install watcher registration failed", "error", err)
			} else {
				watching = true
			}
		}
		stop := r.scheduler.AfterFunc(r.timeout, func() {
			broker.cancel(r)
		})
		r.mu.Lock()
		r.stopTimer = stop
		r.watching = watching
		r.mu.Unlock()
	})
	if !armed {
		broker.logger.Debug("deferred authorization ended before the install timer was armed")
	}
	return nil
}

// ClientResolved disarms the timeout and creates the session the attempt
// was waiting for.
func (r *DeferredInstallResolver) ClientResolved(ctx context.Context, callback Callback[Session]) {
	r.disarm()
	r.mu.Lock()
	broker := r.broker
	r.mu.Unlock()
	if broker == nil || broker.creator == nil {
		if callback != nil {
			callback.Failed(NewNotInitializedError("core: session creator is not configured"))
		}
		return
	}
	if err := broker.creator.CreateSession(ctx, callback); err != nil && callback != nil {
		callback.Failed(err)
	}
}

func (r *DeferredInstallResolver) Stop() {
	r.disarm()
}

// disarm is safe to call after the timer fired or was already stopped.
func (r *DeferredInstallResolver) disarm() {
	r.mu.Lock()
	stop := r.stopTimer
	watching := r.watching
	r.stopTimer = nil
	r.watching = false
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
	if watching && r.watcher != nil {
		r.watcher.Unwatch()
	}
}

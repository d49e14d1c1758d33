package core

import (
	"context"
	"sync"
	"sync/atomic"

	glog "github.com/goliatone/go-logger/glog"
)

type BrokerDependencies struct {
	ExternalApp    ExternalApp
	InstallWatcher InstallWatcher
	Scheduler      Scheduler
	Sessions       *SessionManager
	Creator        SessionCreator
	Hosts          *HostRegistry
	Logger         Logger
	Metrics        MetricsRecorder
}

type pendingAuthorization struct {
	host     HostHandle
	resolver Resolver
	callback Callback[Session]
}

// AuthorizationBroker starts, resolves and cancels authorization attempts.
// At most one attempt is active at a time.
type AuthorizationBroker struct {
	config    Config
	app       ExternalApp
	watcher   InstallWatcher
	scheduler Scheduler
	sessions  *SessionManager
	creator   SessionCreator
	hosts     *HostRegistry
	logger    Logger
	metrics   MetricsRecorder

	state   atomic.Int32
	mu      sync.Mutex
	pending pendingAuthorization
}

func NewAuthorizationBroker(cfg Config, deps BrokerDependencies) *AuthorizationBroker {
	if deps.Scheduler == nil {
		deps.Scheduler = SystemScheduler()
	}
	if deps.Hosts == nil {
		deps.Hosts = NewHostRegistry()
	}
	if deps.Sessions == nil {
		deps.Sessions = NewSessionManager(nil)
	}
	if deps.Metrics == nil {
		deps.Metrics = NopMetricsRecorder{}
	}
	return &AuthorizationBroker{
		config:    cfg,
		app:       deps.ExternalApp,
		watcher:   deps.InstallWatcher,
		scheduler: deps.Scheduler,
		sessions:  deps.Sessions,
		creator:   deps.Creator,
		hosts:     deps.Hosts,
		logger:    glog.Ensure(deps.Logger),
		metrics:   deps.Metrics,
	}
}

func (b *AuthorizationBroker) RequestCode() int {
	return b.config.Authorization.RequestCode
}

func (b *AuthorizationBroker) State() AuthorizationState {
	return AuthorizationState(b.state.Load())
}

func (b *AuthorizationBroker) InProgress() bool {
	return b.State() == AuthorizationInProgress
}

func (b *AuthorizationBroker) Deferred() bool {
	return b.State() == AuthorizationDeferred
}

// ExternalAppAvailable reports whether the trusted app can take the request.
func (b *AuthorizationBroker) ExternalAppAvailable(ctx context.Context, host Host) bool {
	if b.app == nil || host == nil {
		return false
	}
	return b.app.Available(ctx, host)
}

// BeginAuthorization selects a resolver for host and runs the flow with
// session creation first.
func (b *AuthorizationBroker) BeginAuthorization(ctx context.Context, host Host, callback Callback[Session]) error {
	return b.ResolveAuthorizationPath(ctx, host, callback, false)
}

// ResolveAuthorizationPath picks Direct when the external app is available
// and DeferredInstall otherwise. With overrideSessionCreation the Direct
// resolver sends the request instead of creating a session.
func (b *AuthorizationBroker) ResolveAuthorizationPath(ctx context.Context, host Host, callback Callback[Session], overrideSessionCreation bool) error {
	if err := validateAuthorizationInput(host, callback); err != nil {
		return err
	}
	resolver := b.SelectResolver(ctx, host)
	resolver.OverrideSessionCreation(overrideSessionCreation)
	b.logger.Debug("authorization path resolved", "resolver", resolver.Kind(), "override_session_creation", overrideSessionCreation)
	return resolver.ResolveAuthFlow(ctx, b, host, callback)
}

func (b *AuthorizationBroker) SelectResolver(ctx context.Context, host Host) Resolver {
	if b.ExternalAppAvailable(ctx, host) {
		return NewDirectResolver()
	}
	return NewDeferredInstallResolver(b.scheduler, b.watcher, b.config.InstallTimeout())
}

// RequestAuthorization sends the authorization request to the external app
// for the current session.
func (b *AuthorizationBroker) RequestAuthorization(ctx context.Context, host Host, callback Callback[Session]) error {
	return b.requestAuthorization(ctx, host, callback, NewDirectResolver())
}

// BeginDeferredAuthorization waits for the external app to be installed,
// cancelling after the install timeout.
func (b *AuthorizationBroker) BeginDeferredAuthorization(ctx context.Context, host Host, callback Callback[Session]) error {
	resolver := NewDeferredInstallResolver(b.scheduler, b.watcher, b.config.InstallTimeout())
	resolver.OverrideSessionCreation(true)
	return resolver.ResolveAuthFlow(ctx, b, host, callback)
}

func (b *AuthorizationBroker) requestAuthorization(ctx context.Context, host Host, callback Callback[Session], resolver Resolver) error {
	if err := validateAuthorizationInput(host, callback); err != nil {
		return err
	}
	session := b.sessions.Current()
	if session.Empty() {
		return NewSessionInvalidError("core: authorization request requires a session")
	}
	if !b.begin(AuthorizationInProgress, host, resolver, callback) {
		b.rejectInProgress(callback, session)
		return nil
	}

	request := NewAuthorizationRequest(b.config, session)
	var sendErr error
	if b.app == nil {
		sendErr = NewNotInitializedError("core: external app channel is not configured")
	} else {
		sendErr = b.app.Send(ctx, host, request)
	}
	if sendErr != nil {
		b.logger.Warn("authorization request could not be delivered", "error", sendErr)
		b.openStore(ctx, host)
		b.finish(nil, OutcomeAppUnavailable)
		callback.Failed(NewAuthorizationError(ReasonAppUnavailable, session))
		return nil
	}
	return nil
}

func (b *AuthorizationBroker) beginDeferred(ctx context.Context, host Host, callback Callback[Session], resolver Resolver) (bool, error) {
	if err := validateAuthorizationInput(host, callback); err != nil {
		return false, err
	}
	if !b.begin(AuthorizationDeferred, host, resolver, callback) {
		b.rejectInProgress(callback, nil)
		return false, nil
	}
	b.openStore(ctx, host)
	return true, nil
}

func (b *AuthorizationBroker) begin(target AuthorizationState, host Host, resolver Resolver, callback Callback[Session]) bool {
	b.mu.Lock()
	if !b.state.CompareAndSwap(int32(AuthorizationIdle), int32(target)) {
		b.mu.Unlock()
		return false
	}
	b.pending = pendingAuthorization{
		host:     b.hosts.Attach(host),
		resolver: resolver,
		callback: callback,
	}
	b.mu.Unlock()
	b.logger.Debug("authorization state transition", "from", AuthorizationIdle, "to", target)
	b.metrics.IncCounter(context.Background(), MetricAuthorizationStarted, 1, authorizationStartedTags(target, resolver))
	return true
}

// rejectInProgress reports the single-flight violation and resets the
// broker so a later attempt can start.
func (b *AuthorizationBroker) rejectInProgress(callback Callback[Session], session *Session) {
	b.metrics.IncCounter(context.Background(), MetricAuthorizationRejected, 1, map[string]string{"reason": string(ReasonInProgress)})
	callback.Failed(NewAuthorizationError(ReasonInProgress, session))
	b.CancelOngoingAuthorization()
}

// OnExternalResult completes the pending attempt with the trusted app
// outcome. The attempt is always cleared.
func (b *AuthorizationBroker) OnExternalResult(requestCode int, result ResultCode) {
	if requestCode != b.RequestCode() {
		pending := b.finish(nil, OutcomeWrongRequestCode)
		if pending.callback != nil {
			pending.callback.Failed(NewAuthorizationError(ReasonWrongRequestCode, nil))
		}
		return
	}
	session := b.sessions.Current()
	outcome := OutcomeGranted
	if result != ResultGranted {
		outcome = OutcomeDenied
	}
	pending := b.finish(nil, outcome)
	if pending.callback == nil {
		b.logger.Warn("external result received without a pending authorization", "result", int(result))
		return
	}
	if result != ResultGranted {
		pending.callback.Failed(NewAuthorizationError(ReasonAccessDenied, session))
		return
	}
	if session.Empty() {
		pending.callback.Failed(NewEmptySessionError())
		return
	}
	pending.callback.Succeeded(Response[Session]{Body: *session})
}

// ProtocolResolved signals that the external app is now reachable. A deferred
// attempt leaves the broker idle and hands over to session creation.
func (b *AuthorizationBroker) ProtocolResolved(ctx context.Context) {
	b.mu.Lock()
	state := AuthorizationState(b.state.Load())
	if state == AuthorizationIdle {
		b.mu.Unlock()
		return
	}
	pending := b.pending
	if state == AuthorizationDeferred {
		b.pending = pendingAuthorization{}
		b.state.Store(int32(AuthorizationIdle))
		b.logger.Debug("authorization state transition", "from", state, "to", AuthorizationIdle)
		if pending.resolver != nil {
			pending.resolver.Stop()
		}
	}
	b.mu.Unlock()
	if state == AuthorizationDeferred {
		b.metrics.IncCounter(ctx, MetricAuthorizationEnded, 1, authorizationEndedTags(state, OutcomeResolved))
	}

	if pending.resolver != nil {
		pending.resolver.ClientResolved(ctx, pending.callback)
	}
}

// CancelOngoingAuthorization clears the pending attempt. A deferred attempt
// reports a timeout to its callback. Calling it again is a no-op.
func (b *AuthorizationBroker) CancelOngoingAuthorization() {
	b.cancel(nil)
}

func (b *AuthorizationBroker) cancel(owner Resolver) {
	outcome := OutcomeCancelled
	if owner != nil {
		outcome = OutcomeTimedOut
	}
	state, pending, ok := b.clear(owner, outcome)
	if !ok {
		return
	}
	if state == AuthorizationDeferred && pending.callback != nil {
		pending.callback.Failed(NewAuthorizationError(ReasonTimedOut, nil))
	}
}

func (b *AuthorizationBroker) finish(owner Resolver, outcome string) pendingAuthorization {
	_, pending, ok := b.clear(owner, outcome)
	if !ok {
		return pendingAuthorization{}
	}
	return pending
}

// clear resets to idle and stops the cleared resolver before another attempt
// can begin. With a non-nil owner it only clears attempts started by that
// resolver.
func (b *AuthorizationBroker) clear(owner Resolver, outcome string) (AuthorizationState, pendingAuthorization, bool) {
	b.mu.Lock()
	if owner != nil && b.pending.resolver != owner {
		b.mu.Unlock()
		return AuthorizationIdle, pendingAuthorization{}, false
	}
	pending := b.pending
	b.pending = pendingAuthorization{}
	state := AuthorizationState(b.state.Swap(int32(AuthorizationIdle)))
	if pending.resolver != nil {
		pending.resolver.Stop()
	}
	b.mu.Unlock()

	if state != AuthorizationIdle {
		b.logger.Debug("authorization state transition", "from", state, "to", AuthorizationIdle, "outcome", outcome)
		b.metrics.IncCounter(context.Background(), MetricAuthorizationEnded, 1, authorizationEndedTags(state, outcome))
	}
	return state, pending, true
}

// whileOwner runs fn under the broker lock if resolver still owns the pending
// attempt. fn must not call back into the broker synchronously.
func (b *AuthorizationBroker) whileOwner(resolver Resolver, fn func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending.resolver != resolver || b.State() == AuthorizationIdle {
		return false
	}
	fn()
	return true
}

func (b *AuthorizationBroker) openStore(ctx context.Context, host Host) {
	if b.app == nil {
		return
	}
	var lastErr error
	for _, target := range StoreTargets(packageID(b.config)) {
		if lastErr = b.app.OpenStore(ctx, host, target); lastErr == nil {
			return
		}
	}
	b.logger.Warn("store listing could not be opened", "error", lastErr)
}

func validateAuthorizationInput(host Host, callback Callback[Session]) error {
	if !hostUsable(host) {
		return NewInvalidArgumentError("core: host is required and must not be finishing")
	}
	if callback == nil {
		return NewInvalidArgumentError("core: callback is required")
	}
	return nil
}

package core

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const defaultSessionKey = "default"

// Client is the composition root: it owns the session slot, the contract
// flow, the authorization broker, the observers and the per-session API
// clients.
type Client struct {
	config      Config
	logger      Logger
	provider    LoggerProvider
	metrics     MetricsRecorder
	errorMapper ErrorMapper
	now         func() time.Time

	sessions     *SessionManager
	sessionStore SessionStore
	flow         *ContractFlow
	broker       *AuthorizationBroker
	observers    *ObserverRegistry
	hosts        *HostRegistry
	executor     Executor
	apiFactory   APIClientFactory

	networkClients sync.Map
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	builder := defaultClientBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve(defaultClientName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.scheduler == nil {
		builder.scheduler = SystemScheduler()
	}
	if builder.executor == nil {
		builder.executor = GoroutineExecutor()
	}
	if builder.clock == nil {
		builder.clock = time.Now
	}
	if builder.hosts == nil {
		builder.hosts = NewHostRegistry()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if provider != nil {
		if named := provider.GetLogger(finalConfig.ClientName); named != nil {
			logger = glog.Ensure(named)
		}
	}

	flow, err := NewContractFlow(finalConfig.AppID, finalConfig.ContractIDs)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	client := &Client{
		config:       finalConfig,
		logger:       logger,
		provider:     provider,
		metrics:      builder.metricsRecorder,
		errorMapper:  builder.errorMapper,
		now:          builder.clock,
		sessions:     NewSessionManager(builder.clock),
		sessionStore: builder.sessionStore,
		flow:         flow,
		observers:    NewObserverRegistry(),
		hosts:        builder.hosts,
		executor:     builder.executor,
		apiFactory:   builder.apiFactory,
	}
	client.broker = NewAuthorizationBroker(finalConfig, BrokerDependencies{
		ExternalApp:    builder.externalApp,
		InstallWatcher: builder.installWatcher,
		Scheduler:      builder.scheduler,
		Sessions:       client.sessions,
		Creator:        client,
		Hosts:          client.hosts,
		Logger:         logger,
		Metrics:        builder.metricsRecorder,
	})

	if builder.sessionStore != nil {
		client.sessions.AddListener(PersistingSessionListener{Store: builder.sessionStore, Logger: logger})
	}
	for _, listener := range builder.sessionListeners {
		client.sessions.AddListener(listener)
	}
	if builder.activitySink != nil {
		client.observers.Add(&ActivityObserver{Sink: builder.activitySink, Logger: logger, Clock: builder.clock})
	}
	for _, observer := range builder.observers {
		client.observers.Add(observer)
	}
	return client, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

func (c *Client) mapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if c == nil || c.errorMapper == nil {
		return MapError(err)
	}
	return c.errorMapper(err)
}

func (c *Client) Config() Config {
	return c.config
}

func (c *Client) Logger() Logger {
	return c.logger
}

func (c *Client) Sessions() *SessionManager {
	return c.sessions
}

func (c *Client) Flow() *ContractFlow {
	return c.flow
}

func (c *Client) Broker() *AuthorizationBroker {
	return c.broker
}

func (c *Client) Hosts() *HostRegistry {
	return c.hosts
}

func (c *Client) AddObserver(observer Observer) {
	c.observers.Add(observer)
}

func (c *Client) RemoveObserver(observer Observer) {
	c.observers.Remove(observer)
}

func (c *Client) AddSessionListener(listener SessionListener) {
	c.sessions.AddListener(listener)
}

func (c *Client) RemoveSessionListener(listener SessionListener) {
	c.sessions.RemoveListener(listener)
}

// RestoreSession loads the last persisted session when a session store is
// configured.
func (c *Client) RestoreSession(ctx context.Context) (*Session, error) {
	if c.sessionStore == nil {
		return nil, nil
	}
	session, err := c.sessions.Restore(ctx, c.sessionStore)
	if err != nil {
		return nil, c.mapError(err)
	}
	if session != nil {
		c.provision(session)
	}
	return session, nil
}

// Authorize creates a session and chains straight into authorization. The
// callback only sees the authorization outcome, or the session failure.
func (c *Client) Authorize(ctx context.Context, host Host, callback Callback[Session]) (*AuthorizationBroker, error) {
	if err := validateAuthorizationInput(host, callback); err != nil {
		return c.broker, err
	}
	forwarder := c.newAutoSessionForward(ctx, host, callback, true)
	if err := c.broker.BeginAuthorization(ctx, host, forwarder); err != nil {
		return c.broker, c.mapError(err)
	}
	return c.broker, nil
}

// OnExternalResult hands the trusted app result to the broker.
func (c *Client) OnExternalResult(requestCode int, result ResultCode) {
	c.broker.OnExternalResult(requestCode, result)
}

func (c *Client) ProtocolResolved(ctx context.Context) {
	c.broker.ProtocolResolved(ctx)
}

func (c *Client) CancelOngoingAuthorization() {
	c.broker.CancelOngoingAuthorization()
}

// CreateSession creates a session for the next registered contract,
// wrapping around to the first once the flow is exhausted.
func (c *Client) CreateSession(ctx context.Context, callback Callback[Session]) error {
	if !c.flow.Initialized() {
		return NewNotInitializedError("core: no contracts registered")
	}
	if !c.flow.Next() {
		c.flow.Rewind().Next()
	}
	return c.CreateSessionForContract(ctx, c.flow.CurrentID(), callback)
}

// CreateSessionForContract uses the registered contract when contractID is
// part of the flow and an ad-hoc contract otherwise.
func (c *Client) CreateSessionForContract(ctx context.Context, contractID string, callback Callback[Session]) error {
	contractID = strings.TrimSpace(contractID)
	if contractID == "" {
		return NewInvalidArgumentError("core: contract id is required")
	}
	if c.flow.Initialized() && c.flow.StepTo(contractID) {
		if contract, ok := c.flow.Get(); ok {
			return c.StartSessionWithContract(ctx, contract, callback)
		}
	}
	if !ValidContractID(contractID) {
		return NewInvalidArgumentError("core: contract id has an invalid format")
	}
	contract, err := NewContract(contractID, c.config.AppID)
	if err != nil {
		return err
	}
	return c.StartSessionWithContract(ctx, contract, callback)
}

func (c *Client) StartSessionWithContract(ctx context.Context, contract Contract, callback Callback[Session]) error {
	contract, err := NewContract(contract.ContractID, contract.AppID)
	if err != nil {
		return err
	}
	api, err := c.DefaultAPI()
	if err != nil {
		return err
	}
	dispatch := c.sessionForwardFor(callback)
	startedAt := time.Now()
	c.executor.Go(func() {
		session, err := api.CreateSession(ctx, contract)
		c.observeOperation(ctx, startedAt, "session.create", err, map[string]any{
			"contract_id": contract.ContractID,
			"app_id":      contract.AppID,
		})
		if err != nil {
			dispatch.Failed(err)
			return
		}
		var body Session
		if session != nil {
			body = *session
			if body.ContractID == "" {
				body.ContractID = contract.ContractID
			}
			if body.AppID == "" {
				body.AppID = contract.AppID
			}
		}
		dispatch.Succeeded(Response[Session]{Body: body})
	})
	return nil
}

func (c *Client) GetFileList(ctx context.Context, callback Callback[FileList]) error {
	return c.GetFileListWithSession(ctx, c.sessions.Current(), callback)
}

func (c *Client) GetFileListWithSession(ctx context.Context, session *Session, callback Callback[FileList]) error {
	proxy := &ContentForward[FileList]{env: c, inner: callback, kind: ContentFileList}
	return dispatchContent(ctx, c, session, "content.file_list", "", proxy, func(api APIClient, key string) (FileList, error) {
		return api.FileList(ctx, key)
	})
}

func (c *Client) GetAccounts(ctx context.Context, callback Callback[Accounts]) error {
	return c.GetAccountsWithSession(ctx, c.sessions.Current(), callback)
}

func (c *Client) GetAccountsWithSession(ctx context.Context, session *Session, callback Callback[Accounts]) error {
	proxy := &ContentForward[Accounts]{env: c, inner: callback, kind: ContentAccounts}
	return dispatchContent(ctx, c, session, "content.accounts", "", proxy, func(api APIClient, key string) (Accounts, error) {
		return api.Accounts(ctx, key)
	})
}

func (c *Client) GetFileContent(ctx context.Context, fileID string, callback Callback[FileResponse]) error {
	return c.GetFileContentWithSession(ctx, fileID, c.sessions.Current(), callback)
}

func (c *Client) GetFileContentWithSession(ctx context.Context, fileID string, session *Session, callback Callback[FileResponse]) error {
	fileID = strings.TrimSpace(fileID)
	proxy := &ContentForward[FileResponse]{env: c, inner: callback, kind: ContentFile, fileID: fileID}
	return dispatchContent(ctx, c, session, "content.file", fileID, proxy, func(api APIClient, key string) (FileResponse, error) {
		response, err := api.FileContent(ctx, key, fileID)
		response.FileID = fileID
		return response, err
	})
}

func (c *Client) GetFileJSON(ctx context.Context, fileID string, callback Callback[json.RawMessage]) error {
	return c.GetFileJSONWithSession(ctx, fileID, c.sessions.Current(), callback)
}

func (c *Client) GetFileJSONWithSession(ctx context.Context, fileID string, session *Session, callback Callback[json.RawMessage]) error {
	fileID = strings.TrimSpace(fileID)
	proxy := &ContentForward[json.RawMessage]{env: c, inner: callback, kind: ContentFileJSON, fileID: fileID}
	return dispatchContent(ctx, c, session, "content.file_json", fileID, proxy, func(api APIClient, key string) (json.RawMessage, error) {
		return api.FileJSON(ctx, key, fileID)
	})
}

// dispatchContent validates the session before anything is sent. Session
// failures reach the callback and observers; a missing file id is returned.
func dispatchContent[T any](
	ctx context.Context,
	c *Client,
	session *Session,
	operation string,
	fileID string,
	proxy *ContentForward[T],
	fetch func(api APIClient, sessionKey string) (T, error),
) error {
	if err := ValidateSession(session, c.now()); err != nil {
		proxy.Failed(err)
		return nil
	}
	if (proxy.kind == ContentFile || proxy.kind == ContentFileJSON) && fileID == "" {
		return NewInvalidArgumentError("core: file id is required")
	}
	api, err := c.APIFor(session)
	if err != nil {
		return err
	}
	startedAt := time.Now()
	key := session.Key
	c.executor.Go(func() {
		value, err := fetch(api, key)
		c.observeOperation(ctx, startedAt, operation, err, map[string]any{
			"contract_id": session.ContractID,
			"file_id":     fileID,
		})
		proxy.complete(value, err)
	})
	return nil
}

// DefaultAPI returns the client used for session issuance.
func (c *Client) DefaultAPI() (APIClient, error) {
	return c.apiFor(defaultSessionKey, nil)
}

// APIFor returns the client bound to session, creating it on first use.
func (c *Client) APIFor(session *Session) (APIClient, error) {
	if session.Empty() {
		return nil, NewSessionInvalidError("core: session is missing")
	}
	return c.apiFor(session.Key, session)
}

// AddCustomClient replaces the client bound to session.
func (c *Client) AddCustomClient(session *Session, api APIClient) error {
	if session.Empty() {
		return NewSessionInvalidError("core: session is missing")
	}
	if api == nil {
		return NewInvalidArgumentError("core: api client is required")
	}
	c.networkClients.Store(session.Key, api)
	return nil
}

func (c *Client) apiFor(key string, session *Session) (APIClient, error) {
	if existing, ok := c.networkClients.Load(key); ok {
		return existing.(APIClient), nil
	}
	if c.apiFactory == nil {
		return nil, NewNotInitializedError("core: api client factory is not configured")
	}
	created, err := c.apiFactory(session)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, NewNotInitializedError("core: api client factory returned no client")
	}
	actual, _ := c.networkClients.LoadOrStore(key, created)
	return actual.(APIClient), nil
}

func (c *Client) provision(session *Session) {
	if _, err := c.APIFor(session); err != nil {
		c.logWithLevel(context.Background(), "warn", "api client provisioning failed", map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *Client) commitSession(session *Session) {
	c.sessions.SetCurrent(session)
	c.provision(session)
}

func (c *Client) broadcast(events ...ObserverEvent) {
	c.observers.Broadcast(events...)
}

// authorizeInitializedSession continues an auto session flow into the
// authorization request, waiting for an install when the app is missing.
func (c *Client) authorizeInitializedSession(ctx context.Context, host Host, callback Callback[Session]) {
	var forwarder Callback[Session]
	if existing, ok := callback.(*AuthorizationForward); ok {
		forwarder = existing
	} else {
		forwarder = &AuthorizationForward{env: c, inner: callback}
	}
	if !c.broker.ExternalAppAvailable(ctx, host) {
		forwarder = c.newAutoSessionForward(ctx, host, callback, true)
	}
	if err := c.broker.ResolveAuthorizationPath(ctx, host, forwarder, true); err != nil {
		forwarder.Failed(err)
	}
}

func (c *Client) newAutoSessionForward(ctx context.Context, host Host, callback Callback[Session], suppress bool) *AutoSessionForward {
	if ctx == nil {
		ctx = context.Background()
	}
	return &AutoSessionForward{
		SessionForward: SessionForward{env: c, inner: callback, suppress: suppress},
		ctx:            context.WithoutCancel(ctx),
		host:           c.hosts.Attach(host),
	}
}

func (c *Client) sessionForwardFor(callback Callback[Session]) Callback[Session] {
	switch forward := callback.(type) {
	case *AutoSessionForward:
		return forward
	case *SessionForward:
		return forward
	default:
		return &SessionForward{env: c, inner: callback}
	}
}

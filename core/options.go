package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type clientBuilder struct {
	runtimeConfig    Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorMapper      ErrorMapper
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	externalApp      ExternalApp
	installWatcher   InstallWatcher
	scheduler        Scheduler
	executor         Executor
	apiFactory       APIClientFactory
	clock            func() time.Time
	sessionStore     SessionStore
	activitySink     ActivitySink
	hosts            *HostRegistry
	observers        []Observer
	sessionListeners []SessionListener
}

type Option func(*clientBuilder)

func WithLogger(logger Logger) Option {
	return func(b *clientBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *clientBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *clientBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *clientBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *clientBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *clientBuilder) {
		b.optionsResolver = resolver
	}
}

func WithExternalApp(app ExternalApp) Option {
	return func(b *clientBuilder) {
		b.externalApp = app
	}
}

func WithInstallWatcher(watcher InstallWatcher) Option {
	return func(b *clientBuilder) {
		b.installWatcher = watcher
	}
}

func WithScheduler(scheduler Scheduler) Option {
	return func(b *clientBuilder) {
		b.scheduler = scheduler
	}
}

func WithExecutor(executor Executor) Option {
	return func(b *clientBuilder) {
		b.executor = executor
	}
}

func WithAPIClientFactory(factory APIClientFactory) Option {
	return func(b *clientBuilder) {
		b.apiFactory = factory
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *clientBuilder) {
		b.clock = clock
	}
}

// WithSessionStore persists committed sessions and enables Client.RestoreSession.
func WithSessionStore(store SessionStore) Option {
	return func(b *clientBuilder) {
		b.sessionStore = store
	}
}

// WithActivitySink records every observer event.
func WithActivitySink(sink ActivitySink) Option {
	return func(b *clientBuilder) {
		b.activitySink = sink
	}
}

func WithHostRegistry(registry *HostRegistry) Option {
	return func(b *clientBuilder) {
		b.hosts = registry
	}
}

func WithObserver(observer Observer) Option {
	return func(b *clientBuilder) {
		if observer != nil {
			b.observers = append(b.observers, observer)
		}
	}
}

func WithSessionListener(listener SessionListener) Option {
	return func(b *clientBuilder) {
		if listener != nil {
			b.sessionListeners = append(b.sessionListeners, listener)
		}
	}
}

func defaultClientBuilder(runtime Config) clientBuilder {
	loggerProvider, logger := glog.Resolve(defaultClientName, nil, nil)
	return clientBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		scheduler:       SystemScheduler(),
		executor:        GoroutineExecutor(),
		clock:           time.Now,
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticConfigLoader serves a fixed raw configuration map.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load builds a Config from the raw loader. Validation is deferred to the
// options resolver since runtime values may still fill required fields.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(target map[string]any, key string, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			target[key] = value
		}
	}
	setInt := func(target map[string]any, key string, value int64) {
		if includeZero || value != 0 {
			target[key] = value
		}
	}

	setString(layer, "client_name", cfg.ClientName)
	setString(layer, "app_id", cfg.AppID)
	setString(layer, "app_name", cfg.AppName)
	if includeZero || len(cfg.ContractIDs) > 0 {
		layer["contract_ids"] = append([]string(nil), cfg.ContractIDs...)
	}
	if includeZero || cfg.Debug {
		layer["debug"] = cfg.Debug
	}

	api := map[string]any{}
	setString(api, "base_url", cfg.API.BaseURL)
	setInt(api, "connect_timeout_seconds", int64(cfg.API.ConnectTimeoutSeconds))
	setInt(api, "read_write_timeout_seconds", int64(cfg.API.ReadWriteTimeoutSeconds))
	setInt(api, "max_response_body_bytes", cfg.API.MaxResponseBodyBytes)
	if len(api) > 0 {
		layer["api"] = api
	}

	authorization := map[string]any{}
	setInt(authorization, "request_code", int64(cfg.Authorization.RequestCode))
	setInt(authorization, "install_timeout_minutes", int64(cfg.Authorization.InstallTimeoutMinutes))
	setString(authorization, "package_id", cfg.Authorization.PackageID)
	if len(authorization) > 0 {
		layer["authorization"] = authorization
	}
	return layer
}

package consent

import (
	"context"
	"fmt"

	"github.com/goliatone/go-consent/core"
	"github.com/goliatone/go-consent/security"
	sqlstore "github.com/goliatone/go-consent/store/sql"
	"github.com/goliatone/go-consent/transport"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type Config = core.Config

type Option = core.Option

type Client = core.Client

type Session = core.Session

type Contract = core.Contract

type Host = core.Host

type ResultCode = core.ResultCode

type Callback[T any] = core.Callback[T]

type Response[T any] = core.Response[T]

type CallbackFuncs[T any] = core.CallbackFuncs[T]

type Observer = core.Observer

type SessionListener = core.SessionListener

const (
	ResultGranted = core.ResultGranted
	ResultDenied  = core.ResultDenied

	DefaultAuthorizationRequestCode = core.DefaultAuthorizationRequestCode
)

var (
	WithLogger           = core.WithLogger
	WithLoggerProvider   = core.WithLoggerProvider
	WithMetricsRecorder  = core.WithMetricsRecorder
	WithErrorMapper      = core.WithErrorMapper
	WithConfigProvider   = core.WithConfigProvider
	WithOptionsResolver  = core.WithOptionsResolver
	WithExternalApp      = core.WithExternalApp
	WithInstallWatcher   = core.WithInstallWatcher
	WithScheduler        = core.WithScheduler
	WithExecutor         = core.WithExecutor
	WithAPIClientFactory = core.WithAPIClientFactory
	WithClock            = core.WithClock
	WithSessionStore     = core.WithSessionStore
	WithActivitySink     = core.WithActivitySink
	WithHostRegistry     = core.WithHostRegistry
	WithObserver         = core.WithObserver
	WithSessionListener  = core.WithSessionListener
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewClient builds a client with exactly the given options. Use Setup for the
// default HTTP, decryption and persistence wiring.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	return core.NewClient(cfg, opts...)
}

type setupOptions struct {
	doer         transport.HTTPDoer
	decrypter    core.ContentDecrypter
	patterns     []string
	repositories *sqlstore.RepositoryFactory
	cache        repositorycache.CacheService
	cacheScope   string
	restore      bool
	clientOpts   []Option
}

type SetupOption func(*setupOptions)

// WithHTTPDoer replaces the HTTP client under the decryption stage.
func WithHTTPDoer(doer transport.HTTPDoer) SetupOption {
	return func(o *setupOptions) {
		o.doer = doer
	}
}

// WithContentDecrypter sets the primitive used to open encrypted file content,
// usually a *security.ContentKeyStore.
func WithContentDecrypter(decrypter core.ContentDecrypter) SetupOption {
	return func(o *setupOptions) {
		o.decrypter = decrypter
	}
}

// WithEncryptedPaths overrides transport.EncryptedContentPaths.
func WithEncryptedPaths(patterns ...string) SetupOption {
	return func(o *setupOptions) {
		o.patterns = append([]string(nil), patterns...)
	}
}

// WithRepositories persists sessions and records activity through the SQL
// stores. Migrations must already be applied.
func WithRepositories(factory *sqlstore.RepositoryFactory) SetupOption {
	return func(o *setupOptions) {
		o.repositories = factory
	}
}

// WithSessionCache puts a read-through cache in front of the session store.
func WithSessionCache(cache repositorycache.CacheService, scope string) SetupOption {
	return func(o *setupOptions) {
		o.cache = cache
		o.cacheScope = scope
	}
}

// WithRestore loads the latest persisted session once the client is built.
func WithRestore() SetupOption {
	return func(o *setupOptions) {
		o.restore = true
	}
}

func WithClientOptions(opts ...Option) SetupOption {
	return func(o *setupOptions) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

// Setup builds a client with the HTTP API wired through the content
// decryption stage. Without a decrypter an empty security.ContentKeyStore is
// used, which leaves encrypted content untouched.
func Setup(ctx context.Context, cfg Config, opts ...SetupOption) (*Client, error) {
	options := setupOptions{patterns: transport.EncryptedContentPaths}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, core.MapError(err)
	}

	doer := options.doer
	if doer == nil {
		doer = transport.NewHTTPClient(cfg)
	}
	decrypter := options.decrypter
	if decrypter == nil {
		decrypter = security.NewContentKeyStore()
	}
	matcher, err := transport.NewPathMatcher(cfg.API.BaseURL, options.patterns...)
	if err != nil {
		return nil, core.MapError(err)
	}

	decrypting := transport.NewDecryptingDoer(doer, decrypter, matcher, nil)
	clientOpts := []Option{core.WithAPIClientFactory(transport.NewAPIClientFactory(cfg, decrypting))}
	if options.repositories != nil {
		var sessions core.SessionStore = options.repositories.SessionStore()
		if options.cache != nil {
			cached, err := sqlstore.NewCachedSessionStore(sessions, options.cache, options.cacheScope)
			if err != nil {
				return nil, fmt.Errorf("consent: session cache: %w", err)
			}
			sessions = cached
		}
		clientOpts = append(clientOpts,
			core.WithSessionStore(sessions),
			core.WithActivitySink(options.repositories.ActivityStore()),
		)
	}
	clientOpts = append(clientOpts, options.clientOpts...)

	client, err := core.NewClient(cfg, clientOpts...)
	if err != nil {
		return nil, err
	}
	decrypting.Logger = client.Logger()

	if options.restore {
		if _, err := client.RestoreSession(ctx); err != nil {
			return nil, err
		}
	}
	return client, nil
}

package gocommand

import (
	"encoding/json"
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	consentcommand "github.com/goliatone/go-consent/command"
	"github.com/goliatone/go-consent/core"
	"github.com/goliatone/go-consent/query"
	sqlstore "github.com/goliatone/go-consent/store/sql"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// Service is the client surface the default commands and queries need.
// core.Client satisfies it.
type Service interface {
	consentcommand.ConsentService
	query.ContentService
}

// Subscriptions groups dispatcher subscriptions so they can be dropped
// together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, sub := range s {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

type defaultsConfig struct {
	activity   query.ActivityReader
	queue      *jobqueuecommand.Registry
	runnerOpts []runner.Option
}

type DefaultsOption func(*defaultsConfig)

// WithActivity wires the activity list query.
func WithActivity(reader query.ActivityReader) DefaultsOption {
	return func(cfg *defaultsConfig) { cfg.activity = reader }
}

// WithQueueRegistry mirrors the consent commands into a go-job queue registry
// when the adapter is initialized.
func WithQueueRegistry(registry *jobqueuecommand.Registry) DefaultsOption {
	return func(cfg *defaultsConfig) { cfg.queue = registry }
}

func WithRunnerOptions(opts ...runner.Option) DefaultsOption {
	return func(cfg *defaultsConfig) { cfg.runnerOpts = append(cfg.runnerOpts, opts...) }
}

// RegisterDefaults registers and subscribes every consent command and query.
// On error nothing stays subscribed.
func RegisterDefaults(adapter *RegistryAdapter, service Service, opts ...DefaultsOption) (Subscriptions, error) {
	if err := adapter.ready(); err != nil {
		return nil, err
	}
	if service == nil {
		return nil, fmt.Errorf("gocommand: consent service is required")
	}
	cfg := defaultsConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.queue != nil {
		if err := adapter.MirrorToQueue(cfg.queue); err != nil {
			return nil, err
		}
	}
	runnerOpts := cfg.runnerOpts
	activity := cfg.activity

	var subs Subscriptions
	add := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			return err
		}
		subs = append(subs, sub)
		return nil
	}

	steps := []func() error{
		func() error {
			return add(RegisterAndSubscribe[consentcommand.CreateSessionMessage](adapter, consentcommand.NewCreateSessionCommand(service), runnerOpts...))
		},
		func() error {
			return add(RegisterAndSubscribe[consentcommand.AuthorizeMessage](adapter, consentcommand.NewAuthorizeCommand(service), runnerOpts...))
		},
		func() error {
			return add(RegisterAndSubscribe[consentcommand.CancelAuthorizationMessage](adapter, consentcommand.NewCancelAuthorizationCommand(service), runnerOpts...))
		},
		func() error {
			return add(RegisterAndSubscribe[consentcommand.ExternalResultMessage](adapter, consentcommand.NewExternalResultCommand(service), runnerOpts...))
		},
		func() error {
			return add(RegisterAndSubscribe[consentcommand.ProtocolResolvedMessage](adapter, consentcommand.NewProtocolResolvedCommand(service), runnerOpts...))
		},
		func() error {
			return add(RegisterAndSubscribe[consentcommand.InvalidateSessionMessage](adapter, consentcommand.NewInvalidateSessionCommand(service), runnerOpts...))
		},
		func() error {
			return add(RegisterAndSubscribeQuery[query.FileListMessage, core.FileList](adapter, query.NewFileListQuery(service), runnerOpts...))
		},
		func() error {
			return add(RegisterAndSubscribeQuery[query.AccountsMessage, core.Accounts](adapter, query.NewAccountsQuery(service), runnerOpts...))
		},
		func() error {
			return add(RegisterAndSubscribeQuery[query.FileContentMessage, core.FileResponse](adapter, query.NewFileContentQuery(service), runnerOpts...))
		},
		func() error {
			return add(RegisterAndSubscribeQuery[query.FileJSONMessage, json.RawMessage](adapter, query.NewFileJSONQuery(service), runnerOpts...))
		},
		func() error {
			return add(RegisterAndSubscribeQuery[query.CurrentSessionMessage, core.Session](adapter, query.NewCurrentSessionQuery(service.Sessions()), runnerOpts...))
		},
	}
	if activity != nil {
		steps = append(steps, func() error {
			return add(RegisterAndSubscribeQuery[query.ListActivityMessage, sqlstore.ActivityPage](adapter, query.NewListActivityQuery(activity), runnerOpts...))
		})
	}

	for _, step := range steps {
		if err := step(); err != nil {
			subs.Unsubscribe()
			return nil, err
		}
	}
	return subs, nil
}

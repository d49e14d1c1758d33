package gocommand

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// Message type namespaces. Commands and queries are registered under their
// own prefix so a query message can never be dispatched as a command.
const (
	CommandNamespace = "consent.command."
	QueryNamespace   = "consent.query."

	// QueueResolverKey names the resolver that mirrors consent commands into a
	// go-job queue registry.
	QueueResolverKey = "consent.queue"
)

// RegistryAdapter registers consent handlers in a go-command registry and
// tracks which message types are taken.
type RegistryAdapter struct {
	registry *command.Registry

	mu    sync.Mutex
	types map[string]string
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry, types: map[string]string{}}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

// MessageTypes lists registered message types in order.
func (a *RegistryAdapter) MessageTypes() []string {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.types))
	for msgType := range a.types {
		out = append(out, msgType)
	}
	sort.Strings(out)
	return out
}

// MirrorToQueue makes Initialize copy every registered command into
// queueRegistry so queued jobs can run consent commands.
func (a *RegistryAdapter) MirrorToQueue(queueRegistry *jobqueuecommand.Registry) error {
	if err := a.ready(); err != nil {
		return err
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.registry.AddResolver(QueueResolverKey, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) Initialize() error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.Initialize()
}

func (a *RegistryAdapter) ready() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return nil
}

func (a *RegistryAdapter) claim(msgType string, kind string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.types == nil {
		a.types = map[string]string{}
	}
	if existing, ok := a.types[msgType]; ok {
		return fmt.Errorf("gocommand: %s %q is already registered as a %s", kind, msgType, existing)
	}
	a.types[msgType] = kind
	return nil
}

func (a *RegistryAdapter) release(msgType string) {
	a.mu.Lock()
	delete(a.types, msgType)
	a.mu.Unlock()
}

// messageType returns the Type() of T's zero value after checking it sits in
// namespace.
func messageType[T any](namespace string) (string, error) {
	var zero T
	return namespacedType(zero, namespace)
}

func namespacedType(msg any, namespace string) (string, error) {
	m, ok := msg.(command.Message)
	if !ok {
		return "", fmt.Errorf("gocommand: message %T must implement Type() string", msg)
	}
	msgType := strings.TrimSpace(m.Type())
	if msgType == "" {
		return "", fmt.Errorf("gocommand: message %T has no type", msg)
	}
	if !strings.HasPrefix(msgType, namespace) || len(msgType) == len(namespace) {
		return "", fmt.Errorf("gocommand: message type %q is outside %q", msgType, namespace)
	}
	return msgType, nil
}

// Dispatch runs a consent command through the global dispatcher.
func Dispatch[T any](ctx context.Context, msg T) error {
	if _, err := namespacedType(msg, CommandNamespace); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

// Query runs a consent query through the global dispatcher.
func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	if _, err := namespacedType(msg, QueryNamespace); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if err := adapter.ready(); err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	msgType, err := messageType[T](CommandNamespace)
	if err != nil {
		return nil, err
	}
	if err := adapter.claim(msgType, "command"); err != nil {
		return nil, err
	}
	if err := adapter.registry.RegisterCommand(cmd); err != nil {
		adapter.release(msgType)
		return nil, err
	}
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...), nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if err := adapter.ready(); err != nil {
		return nil, err
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	msgType, err := messageType[T](QueryNamespace)
	if err != nil {
		return nil, err
	}
	if err := adapter.claim(msgType, "query"); err != nil {
		return nil, err
	}
	if err := adapter.registry.RegisterCommand(qry); err != nil {
		adapter.release(msgType)
		return nil, err
	}
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...), nil
}

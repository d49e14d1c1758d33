package command

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-consent/core"
)

// ConsentService is the callback driven surface of core.Client used by the
// commands.
type ConsentService interface {
	Authorize(ctx context.Context, host core.Host, callback core.Callback[core.Session]) (*core.AuthorizationBroker, error)
	CreateSession(ctx context.Context, callback core.Callback[core.Session]) error
	CreateSessionForContract(ctx context.Context, contractID string, callback core.Callback[core.Session]) error
	OnExternalResult(requestCode int, result core.ResultCode)
	ProtocolResolved(ctx context.Context)
	CancelOngoingAuthorization()
	Sessions() *core.SessionManager
}

// CreateSessionCommand blocks until the session callback fires and stores the
// session in the context result collector.
type CreateSessionCommand struct {
	service ConsentService
}

func NewCreateSessionCommand(service ConsentService) *CreateSessionCommand {
	return &CreateSessionCommand{service: service}
}

func (c *CreateSessionCommand) Execute(ctx context.Context, msg CreateSessionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: consent service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := core.Await(ctx, func(callback core.Callback[core.Session]) error {
		if strings.TrimSpace(msg.ContractID) == "" {
			return c.service.CreateSession(ctx, callback)
		}
		return c.service.CreateSessionForContract(ctx, msg.ContractID, callback)
	})
	if err != nil {
		return err
	}
	storeResult(ctx, out.Body)
	return nil
}

// AuthorizeCommand runs the whole authorization handshake. A deferred install
// keeps it blocked until the install completes, times out, or ctx is done.
type AuthorizeCommand struct {
	service ConsentService
}

func NewAuthorizeCommand(service ConsentService) *AuthorizeCommand {
	return &AuthorizeCommand{service: service}
}

func (c *AuthorizeCommand) Execute(ctx context.Context, msg AuthorizeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: consent service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := core.Await(ctx, func(callback core.Callback[core.Session]) error {
		_, err := c.service.Authorize(ctx, msg.Host, callback)
		return err
	})
	if err != nil {
		return err
	}
	storeResult(ctx, out.Body)
	return nil
}

type CancelAuthorizationCommand struct {
	service ConsentService
}

func NewCancelAuthorizationCommand(service ConsentService) *CancelAuthorizationCommand {
	return &CancelAuthorizationCommand{service: service}
}

func (c *CancelAuthorizationCommand) Execute(_ context.Context, _ CancelAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: consent service is required")
	}
	c.service.CancelOngoingAuthorization()
	return nil
}

type ExternalResultCommand struct {
	service ConsentService
}

func NewExternalResultCommand(service ConsentService) *ExternalResultCommand {
	return &ExternalResultCommand{service: service}
}

func (c *ExternalResultCommand) Execute(_ context.Context, msg ExternalResultMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: consent service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	c.service.OnExternalResult(msg.RequestCode, msg.Result)
	return nil
}

type ProtocolResolvedCommand struct {
	service ConsentService
}

func NewProtocolResolvedCommand(service ConsentService) *ProtocolResolvedCommand {
	return &ProtocolResolvedCommand{service: service}
}

func (c *ProtocolResolvedCommand) Execute(ctx context.Context, _ ProtocolResolvedMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: consent service is required")
	}
	c.service.ProtocolResolved(ctx)
	return nil
}

type InvalidateSessionCommand struct {
	service ConsentService
}

func NewInvalidateSessionCommand(service ConsentService) *InvalidateSessionCommand {
	return &InvalidateSessionCommand{service: service}
}

func (c *InvalidateSessionCommand) Execute(_ context.Context, msg InvalidateSessionMessage) error {
	if c == nil || c.service == nil || c.service.Sessions() == nil {
		return commandDependencyError("command: consent service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	reason := msg.Reason
	if reason == "" {
		reason = core.SessionDestroyedInvalidated
	}
	c.service.Sessions().Invalidate(reason)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

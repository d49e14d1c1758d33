package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-consent/core"
)

var (
	_ gocmd.Commander[CreateSessionMessage]       = (*CreateSessionCommand)(nil)
	_ gocmd.Commander[AuthorizeMessage]           = (*AuthorizeCommand)(nil)
	_ gocmd.Commander[CancelAuthorizationMessage] = (*CancelAuthorizationCommand)(nil)
	_ gocmd.Commander[ExternalResultMessage]      = (*ExternalResultCommand)(nil)
	_ gocmd.Commander[ProtocolResolvedMessage]    = (*ProtocolResolvedCommand)(nil)
	_ gocmd.Commander[InvalidateSessionMessage]   = (*InvalidateSessionCommand)(nil)

	_ ConsentService = (*core.Client)(nil)
)

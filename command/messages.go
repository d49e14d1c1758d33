package command

import (
	"strings"

	"github.com/goliatone/go-consent/core"
)

const (
	TypeCreateSession       = "consent.command.session.create"
	TypeAuthorize           = "consent.command.authorize"
	TypeCancelAuthorization = "consent.command.authorize.cancel"
	TypeExternalResult      = "consent.command.authorize.result"
	TypeProtocolResolved    = "consent.command.authorize.protocol_resolved"
	TypeInvalidateSession   = "consent.command.session.invalidate"
)

// CreateSessionMessage creates a session for ContractID, or for the next
// registered contract when ContractID is blank.
type CreateSessionMessage struct {
	ContractID string
}

func (CreateSessionMessage) Type() string { return TypeCreateSession }

func (m CreateSessionMessage) Validate() error {
	contractID := strings.TrimSpace(m.ContractID)
	if contractID != "" && !core.ValidContractID(contractID) {
		return commandValidationError("contract_id", "contract id format is invalid")
	}
	return nil
}

type AuthorizeMessage struct {
	Host core.Host
}

func (AuthorizeMessage) Type() string { return TypeAuthorize }

func (m AuthorizeMessage) Validate() error {
	if m.Host == nil {
		return commandValidationError("host", "host is required")
	}
	return nil
}

type CancelAuthorizationMessage struct{}

func (CancelAuthorizationMessage) Type() string { return TypeCancelAuthorization }

type ExternalResultMessage struct {
	RequestCode int
	Result      core.ResultCode
}

func (ExternalResultMessage) Type() string { return TypeExternalResult }

func (m ExternalResultMessage) Validate() error {
	if m.RequestCode <= 0 {
		return commandValidationError("request_code", "request code must be positive")
	}
	return nil
}

type ProtocolResolvedMessage struct{}

func (ProtocolResolvedMessage) Type() string { return TypeProtocolResolved }

type InvalidateSessionMessage struct {
	Reason core.SessionDestroyedReason
}

func (InvalidateSessionMessage) Type() string { return TypeInvalidateSession }

func (m InvalidateSessionMessage) Validate() error {
	switch m.Reason {
	case "", core.SessionDestroyedInvalidated, core.SessionDestroyedTimeout:
		return nil
	default:
		return commandValidationError("reason", "unknown session destroyed reason")
	}
}

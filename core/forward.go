package core

import (
	"context"
	"encoding/json"
)

// ForwardPlan is what a forwarding layer decided for one result: the value
// handed to the inner callback, the session to commit and the observer
// events broadcast after delivery.
type ForwardPlan[T any] struct {
	Result  Result[T]
	Deliver bool
	Commit  *Session
	Events  []ObserverEvent
}

// PlanSessionForward rejects empty sessions and commits the rest.
func PlanSessionForward(result Result[Session], suppress bool) ForwardPlan[Session] {
	plan := ForwardPlan[Session]{Result: result, Deliver: true}
	if result.Err == nil && result.Value.Body.Empty() {
		plan.Result = Result[Session]{Err: NewEmptySessionError()}
	}
	if plan.Result.Err != nil {
		plan.Events = []ObserverEvent{{Kind: EventSessionCreateFailed, Err: plan.Result.Err}}
		return plan
	}
	session := plan.Result.Value.Body
	plan.Commit = &session
	plan.Deliver = !suppress
	plan.Events = []ObserverEvent{{Kind: EventSessionCreated, Session: &session}}
	return plan
}

// PlanAuthorizationForward routes failures by authorization reason. Wrong
// request code and in progress failures are only broadcast.
func PlanAuthorizationForward(result Result[Session]) ForwardPlan[Session] {
	plan := ForwardPlan[Session]{Result: result, Deliver: true}
	if result.Err == nil {
		session := result.Value.Body
		plan.Events = []ObserverEvent{{Kind: EventAuthorizeSucceeded, Session: &session}}
		return plan
	}
	reason, ok := AuthorizationReasonOf(result.Err)
	if !ok {
		return plan
	}
	switch reason {
	case ReasonAccessDenied:
		plan.Events = []ObserverEvent{{Kind: EventAuthorizeDenied, Err: result.Err}}
	case ReasonWrongRequestCode, ReasonInProgress:
		plan.Deliver = false
		plan.Events = []ObserverEvent{{Kind: EventAuthorizeWrongCode, Err: result.Err}}
	}
	return plan
}

// PlanContentForward dispatches successes on the payload type and failures
// on the requested kind.
func PlanContentForward[T any](result Result[T], kind ContentKind, fileID string) ForwardPlan[T] {
	plan := ForwardPlan[T]{Result: result, Deliver: true}
	if result.Err != nil {
		event := ObserverEvent{FileID: fileID, Err: result.Err}
		switch kind {
		case ContentFileList:
			event.Kind = EventFileListFailed
		case ContentAccounts:
			event.Kind = EventAccountsRetrieveFailed
		case ContentFile, ContentFileJSON:
			event.Kind = EventContentRetrieveFailed
		default:
			return plan
		}
		plan.Events = []ObserverEvent{event}
		return plan
	}
	event := ObserverEvent{FileID: fileID, Payload: any(result.Value.Body)}
	switch any(result.Value.Body).(type) {
	case FileList:
		event.Kind = EventFileListRetrieved
	case FileResponse:
		event.Kind = EventContentRetrieved
	case json.RawMessage:
		event.Kind = EventJSONRetrieved
	case Accounts:
		event.Kind = EventAccountsRetrieved
	default:
		return plan
	}
	plan.Events = []ObserverEvent{event}
	return plan
}

// forwardEnv is the side of the client a forwarding layer acts on.
type forwardEnv interface {
	commitSession(session *Session)
	broadcast(events ...ObserverEvent)
	authorizeInitializedSession(ctx context.Context, host Host, callback Callback[Session])
}

func execute[T any](env forwardEnv, plan ForwardPlan[T], inner Callback[T]) {
	if plan.Commit != nil {
		env.commitSession(plan.Commit)
	}
	if plan.Deliver {
		deliver(inner, plan.Result)
	}
	env.broadcast(plan.Events...)
}

// SessionForward commits created sessions before notifying inner.
type SessionForward struct {
	env      forwardEnv
	inner    Callback[Session]
	suppress bool
}

func (f *SessionForward) Succeeded(result Response[Session]) {
	f.apply(Result[Session]{Value: result})
}

func (f *SessionForward) Failed(err error) {
	f.apply(Result[Session]{Err: err})
}

func (f *SessionForward) apply(result Result[Session]) Result[Session] {
	plan := PlanSessionForward(result, f.suppress)
	execute(f.env, plan, f.inner)
	return plan.Result
}

// AutoSessionForward continues into authorization once the session is
// committed, as long as the originating host is alive.
type AutoSessionForward struct {
	SessionForward
	ctx  context.Context
	host HostHandle
}

func (f *AutoSessionForward) Succeeded(result Response[Session]) {
	outcome := f.apply(Result[Session]{Value: result})
	if outcome.Err != nil {
		return
	}
	host, ok := f.host.Get()
	if !ok {
		return
	}
	f.env.authorizeInitializedSession(f.ctx, host, f.inner)
}

func (f *AutoSessionForward) Failed(err error) {
	f.apply(Result[Session]{Err: err})
}

type AuthorizationForward struct {
	env   forwardEnv
	inner Callback[Session]
}

func (f *AuthorizationForward) Succeeded(result Response[Session]) {
	execute(f.env, PlanAuthorizationForward(Result[Session]{Value: result}), f.inner)
}

func (f *AuthorizationForward) Failed(err error) {
	execute(f.env, PlanAuthorizationForward(Result[Session]{Err: err}), f.inner)
}

type ContentForward[T any] struct {
	env    forwardEnv
	inner  Callback[T]
	kind   ContentKind
	fileID string
}

func (f *ContentForward[T]) Succeeded(result Response[T]) {
	execute(f.env, PlanContentForward(Result[T]{Value: result}, f.kind, f.fileID), f.inner)
}

func (f *ContentForward[T]) Failed(err error) {
	execute(f.env, PlanContentForward(Result[T]{Err: err}, f.kind, f.fileID), f.inner)
}

func (f *ContentForward[T]) complete(value T, err error) {
	if err != nil {
		f.Failed(err)
		return
	}
	f.Succeeded(Response[T]{Body: value})
}

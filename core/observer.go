package core

import (
	"encoding/json"
	"reflect"
	"sync"
)

// Observer receives application level notifications of client activity.
type Observer interface {
	SessionCreated(session *Session)
	SessionCreateFailed(err error)
	AuthorizeSucceeded(session *Session)
	AuthorizeDenied(err error)
	AuthorizeFailedWithWrongRequestCode()
	ClientRetrievedFileList(files FileList)
	ClientFailedOnFileList(err error)
	ContentRetrievedForFile(fileID string, content FileResponse)
	JSONRetrievedForFile(fileID string, content json.RawMessage)
	ContentRetrieveFailed(fileID string, err error)
	AccountsRetrieved(accounts Accounts)
	AccountsRetrieveFailed(err error)
}

// BaseObserver implements Observer with no-ops. Embed it to override a subset.
type BaseObserver struct{}

func (BaseObserver) SessionCreated(*Session)                      {}
func (BaseObserver) SessionCreateFailed(error)                    {}
func (BaseObserver) AuthorizeSucceeded(*Session)                  {}
func (BaseObserver) AuthorizeDenied(error)                        {}
func (BaseObserver) AuthorizeFailedWithWrongRequestCode()         {}
func (BaseObserver) ClientRetrievedFileList(FileList)             {}
func (BaseObserver) ClientFailedOnFileList(error)                 {}
func (BaseObserver) ContentRetrievedForFile(string, FileResponse) {}
func (BaseObserver) JSONRetrievedForFile(string, json.RawMessage) {}
func (BaseObserver) ContentRetrieveFailed(string, error)          {}
func (BaseObserver) AccountsRetrieved(Accounts)                   {}
func (BaseObserver) AccountsRetrieveFailed(error)                 {}

type EventKind string

const (
	EventSessionCreated         EventKind = "session_created"
	EventSessionCreateFailed    EventKind = "session_create_failed"
	EventAuthorizeSucceeded     EventKind = "authorize_succeeded"
	EventAuthorizeDenied        EventKind = "authorize_denied"
	EventAuthorizeWrongCode     EventKind = "authorize_failed_wrong_request_code"
	EventFileListRetrieved      EventKind = "file_list_retrieved"
	EventFileListFailed         EventKind = "file_list_failed"
	EventContentRetrieved       EventKind = "content_retrieved"
	EventJSONRetrieved          EventKind = "json_retrieved"
	EventContentRetrieveFailed  EventKind = "content_retrieve_failed"
	EventAccountsRetrieved      EventKind = "accounts_retrieved"
	EventAccountsRetrieveFailed EventKind = "accounts_retrieve_failed"
)

// ObserverEvent is a single broadcast produced by a forwarding layer.
type ObserverEvent struct {
	Kind    EventKind
	Session *Session
	FileID  string
	Payload any
	Err     error
}

func (e ObserverEvent) Dispatch(observer Observer) {
	if observer == nil {
		return
	}
	switch e.Kind {
	case EventSessionCreated:
		observer.SessionCreated(e.Session)
	case EventSessionCreateFailed:
		observer.SessionCreateFailed(e.Err)
	case EventAuthorizeSucceeded:
		observer.AuthorizeSucceeded(e.Session)
	case EventAuthorizeDenied:
		observer.AuthorizeDenied(e.Err)
	case EventAuthorizeWrongCode:
		observer.AuthorizeFailedWithWrongRequestCode()
	case EventFileListRetrieved:
		files, _ := e.Payload.(FileList)
		observer.ClientRetrievedFileList(files)
	case EventFileListFailed:
		observer.ClientFailedOnFileList(e.Err)
	case EventContentRetrieved:
		content, _ := e.Payload.(FileResponse)
		observer.ContentRetrievedForFile(e.FileID, content)
	case EventJSONRetrieved:
		raw, _ := e.Payload.(json.RawMessage)
		observer.JSONRetrievedForFile(e.FileID, raw)
	case EventContentRetrieveFailed:
		observer.ContentRetrieveFailed(e.FileID, e.Err)
	case EventAccountsRetrieved:
		accounts, _ := e.Payload.(Accounts)
		observer.AccountsRetrieved(accounts)
	case EventAccountsRetrieveFailed:
		observer.AccountsRetrieveFailed(e.Err)
	}
}

// ObserverRegistry keeps observers in registration order. Broadcasts iterate
// a snapshot, so observers may register or remove themselves while notified.
type ObserverRegistry struct {
	mu        sync.RWMutex
	observers []Observer
}

func NewObserverRegistry() *ObserverRegistry {
	return &ObserverRegistry{}
}

func (r *ObserverRegistry) Add(observer Observer) {
	if r == nil || observer == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.observers {
		if sameObserver(existing, observer) {
			return
		}
	}
	next := make([]Observer, 0, len(r.observers)+1)
	next = append(next, r.observers...)
	r.observers = append(next, observer)
}

func (r *ObserverRegistry) Remove(observer Observer) {
	if r == nil || observer == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]Observer, 0, len(r.observers))
	for _, existing := range r.observers {
		if !sameObserver(existing, observer) {
			next = append(next, existing)
		}
	}
	r.observers = next
}

func (r *ObserverRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers)
}

func (r *ObserverRegistry) Snapshot() []Observer {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Observer(nil), r.observers...)
}

// Broadcast delivers events in order, each to every observer in
// registration order.
func (r *ObserverRegistry) Broadcast(events ...ObserverEvent) {
	if r == nil || len(events) == 0 {
		return
	}
	observers := r.Snapshot()
	for _, event := range events {
		for _, observer := range observers {
			event.Dispatch(observer)
		}
	}
}

func sameObserver(a Observer, b Observer) bool {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

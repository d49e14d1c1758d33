package core

import (
	"context"
	"encoding/json"
	"time"
)

const (
	ActivityStatusSuccess = "success"
	ActivityStatusFailure = "failure"
)

// ActivityEntry is the persisted form of an observer event.
type ActivityEntry struct {
	ID         string
	Event      EventKind
	Status     string
	SessionKey string
	ContractID string
	AppID      string
	FileID     string
	Error      string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivityObserver writes every observer event to an ActivitySink.
type ActivityObserver struct {
	Sink    ActivitySink
	Logger  Logger
	Clock   func() time.Time
	Timeout time.Duration
}

func NewActivityObserver(sink ActivitySink, logger Logger) *ActivityObserver {
	return &ActivityObserver{Sink: sink, Logger: logger}
}

func (o *ActivityObserver) SessionCreated(session *Session) {
	o.record(ObserverEvent{Kind: EventSessionCreated, Session: session})
}

func (o *ActivityObserver) SessionCreateFailed(err error) {
	o.record(ObserverEvent{Kind: EventSessionCreateFailed, Err: err})
}

func (o *ActivityObserver) AuthorizeSucceeded(session *Session) {
	o.record(ObserverEvent{Kind: EventAuthorizeSucceeded, Session: session})
}

func (o *ActivityObserver) AuthorizeDenied(err error) {
	o.record(ObserverEvent{Kind: EventAuthorizeDenied, Err: err})
}

func (o *ActivityObserver) AuthorizeFailedWithWrongRequestCode() {
	o.record(ObserverEvent{Kind: EventAuthorizeWrongCode})
}

func (o *ActivityObserver) ClientRetrievedFileList(files FileList) {
	o.record(ObserverEvent{Kind: EventFileListRetrieved, Payload: files})
}

func (o *ActivityObserver) ClientFailedOnFileList(err error) {
	o.record(ObserverEvent{Kind: EventFileListFailed, Err: err})
}

func (o *ActivityObserver) ContentRetrievedForFile(fileID string, content FileResponse) {
	o.record(ObserverEvent{Kind: EventContentRetrieved, FileID: fileID, Payload: content})
}

func (o *ActivityObserver) JSONRetrievedForFile(fileID string, content json.RawMessage) {
	o.record(ObserverEvent{Kind: EventJSONRetrieved, FileID: fileID, Payload: content})
}

func (o *ActivityObserver) ContentRetrieveFailed(fileID string, err error) {
	o.record(ObserverEvent{Kind: EventContentRetrieveFailed, FileID: fileID, Err: err})
}

func (o *ActivityObserver) AccountsRetrieved(accounts Accounts) {
	o.record(ObserverEvent{Kind: EventAccountsRetrieved, Payload: accounts})
}

func (o *ActivityObserver) AccountsRetrieveFailed(err error) {
	o.record(ObserverEvent{Kind: EventAccountsRetrieveFailed, Err: err})
}

func (o *ActivityObserver) record(event ObserverEvent) {
	if o == nil || o.Sink == nil {
		return
	}
	entry := ActivityEntryFromEvent(event, o.now())
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.Sink.Record(ctx, entry); err != nil && o.Logger != nil {
		o.Logger.Warn("activity record failed", "event", string(event.Kind), "error", err)
	}
}

func (o *ActivityObserver) now() time.Time {
	if o.Clock != nil {
		return o.Clock().UTC()
	}
	return time.Now().UTC()
}

// ActivityEntryFromEvent summarizes event. Payloads are reduced to counts.
func ActivityEntryFromEvent(event ObserverEvent, at time.Time) ActivityEntry {
	entry := ActivityEntry{
		Event:      event.Kind,
		Status:     ActivityStatusSuccess,
		FileID:     event.FileID,
		Metadata:   map[string]any{},
		OccurredAt: at,
	}
	if event.Session != nil {
		entry.SessionKey = event.Session.Key
		entry.ContractID = event.Session.ContractID
		entry.AppID = event.Session.AppID
	}
	if event.Err != nil {
		entry.Status = ActivityStatusFailure
		entry.Error = event.Err.Error()
		if mapped := MapError(event.Err); mapped != nil {
			entry.Metadata["error_code"] = mapped.TextCode
		}
	}
	if event.Kind == EventAuthorizeWrongCode {
		entry.Status = ActivityStatusFailure
	}
	switch payload := event.Payload.(type) {
	case FileList:
		entry.Metadata["file_count"] = len(payload.FileList)
	case Accounts:
		entry.Metadata["account_count"] = len(payload.Accounts)
	case FileResponse:
		entry.Metadata["item_count"] = len(payload.FileContent)
	case json.RawMessage:
		entry.Metadata["bytes"] = len(payload)
	}
	return entry
}

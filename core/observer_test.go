package core

import (
	"fmt"
	"reflect"
	"testing"
)

type selfRemovingObserver struct {
	BaseObserver
	registry *ObserverRegistry
	log      *eventLog
}

func (o *selfRemovingObserver) SessionCreated(*Session) {
	o.log.add("remover:session_created")
	o.registry.Remove(o)
}

type funcObserver struct {
	BaseObserver
	onCreate func()
}

func (o funcObserver) SessionCreated(*Session) { o.onCreate() }

func TestObserverRegistry_DeduplicatesAndRemoves(t *testing.T) {
	registry := NewObserverRegistry()
	log := &eventLog{}
	observer := &recordingObserver{name: "o1", log: log}

	registry.Add(observer)
	registry.Add(observer)
	registry.Add(nil)
	if registry.Len() != 1 {
		t.Fatalf("expected one observer, got %d", registry.Len())
	}

	registry.Remove(observer)
	registry.Remove(observer)
	if registry.Len() != 0 {
		t.Fatalf("expected registry to be empty, got %d", registry.Len())
	}
}

func TestObserverRegistry_NonComparableObserversAreKept(t *testing.T) {
	registry := NewObserverRegistry()
	calls := 0
	observer := funcObserver{onCreate: func() { calls++ }}
	registry.Add(observer)
	registry.Add(observer)

	registry.Broadcast(ObserverEvent{Kind: EventSessionCreated})
	if calls != 2 {
		t.Fatalf("expected both registrations to be notified, got %d", calls)
	}
}

func TestObserverRegistry_BroadcastIteratesSnapshot(t *testing.T) {
	registry := NewObserverRegistry()
	log := &eventLog{}
	remover := &selfRemovingObserver{registry: registry, log: log}
	late := &recordingObserver{name: "late", log: log}

	registry.Add(remover)
	registry.Add(&recordingObserver{name: "o2", log: log})
	registry.Add(funcObserver{onCreate: func() { registry.Add(late) }})

	registry.Broadcast(ObserverEvent{Kind: EventSessionCreated})
	expected := []string{"remover:session_created", "o2:session_created"}
	if got := log.all(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("unexpected first broadcast %v", got)
	}

	registry.Broadcast(ObserverEvent{Kind: EventSessionCreateFailed, Err: fmt.Errorf("boom")})
	expected = append(expected, "o2:session_create_failed", "late:session_create_failed")
	if got := log.all(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("unexpected second broadcast %v", got)
	}
}

func TestObserverEvent_DispatchRoutesEveryKind(t *testing.T) {
	log := &eventLog{}
	observer := &recordingObserver{name: "o", log: log}
	events := []ObserverEvent{
		{Kind: EventSessionCreated},
		{Kind: EventSessionCreateFailed},
		{Kind: EventAuthorizeSucceeded},
		{Kind: EventAuthorizeDenied},
		{Kind: EventAuthorizeWrongCode},
		{Kind: EventFileListRetrieved, Payload: FileList{}},
		{Kind: EventFileListFailed},
		{Kind: EventContentRetrieved, FileID: "f"},
		{Kind: EventJSONRetrieved, FileID: "f"},
		{Kind: EventContentRetrieveFailed, FileID: "f"},
		{Kind: EventAccountsRetrieved},
		{Kind: EventAccountsRetrieveFailed},
		{Kind: EventKind("unknown")},
	}
	for _, event := range events {
		event.Dispatch(observer)
	}
	event := ObserverEvent{Kind: EventSessionCreated}
	event.Dispatch(nil)

	expected := []string{
		"o:session_created",
		"o:session_create_failed",
		"o:authorize_succeeded",
		"o:authorize_denied",
		"o:authorize_wrong_code",
		"o:file_list",
		"o:file_list_failed",
		"o:content:f",
		"o:json:f",
		"o:content_failed:f",
		"o:accounts",
		"o:accounts_failed",
	}
	if got := log.all(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("unexpected dispatch log %v", got)
	}
}

package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type testHost struct {
	id        string
	finishing atomic.Bool
}

func newTestHost(id string) *testHost {
	return &testHost{id: id}
}

func (h *testHost) ID() string { return h.id }

func (h *testHost) Finishing() bool { return h.finishing.Load() }

type stubExternalApp struct {
	mu        sync.Mutex
	available bool
	sendErr   error
	storeErrs map[string]error
	sent      []AuthorizationRequest
	opened    []string
	// onOpenStore runs after a store target was opened, outside the lock.
	onOpenStore func()
}

func (a *stubExternalApp) Available(context.Context, Host) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.available
}

func (a *stubExternalApp) setAvailable(available bool) {
	a.mu.Lock()
	a.available = available
	a.mu.Unlock()
}

func (a *stubExternalApp) Send(_ context.Context, _ Host, request AuthorizationRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, request)
	return a.sendErr
}

func (a *stubExternalApp) OpenStore(_ context.Context, _ Host, target string) error {
	a.mu.Lock()
	if err := a.storeErrs[target]; err != nil {
		a.mu.Unlock()
		return err
	}
	a.opened = append(a.opened, target)
	hook := a.onOpenStore
	a.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (a *stubExternalApp) sentRequests() []AuthorizationRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AuthorizationRequest(nil), a.sent...)
}

func (a *stubExternalApp) openedTargets() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.opened...)
}

type fakeTask struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTask
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) func() bool {
	task := &fakeTask{delay: d, fn: fn}
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if task.stopped || task.fired {
			return false
		}
		task.stopped = true
		return true
	}
}

// fireAll runs every armed task that was not stopped.
func (s *fakeScheduler) fireAll() int {
	s.mu.Lock()
	var due []*fakeTask
	for _, task := range s.tasks {
		if !task.stopped && !task.fired {
			task.fired = true
			due = append(due, task)
		}
	}
	s.mu.Unlock()
	for _, task := range due {
		task.fn()
	}
	return len(due)
}

func (s *fakeScheduler) armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, task := range s.tasks {
		if !task.stopped && !task.fired {
			count++
		}
	}
	return count
}

func (s *fakeScheduler) lastDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return 0
	}
	return s.tasks[len(s.tasks)-1].delay
}

type stubWatcher struct {
	mu       sync.Mutex
	handler  func()
	watches  int
	unwatchs int
}

func (w *stubWatcher) Watch(onInstalled func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = onInstalled
	w.watches++
	return nil
}

func (w *stubWatcher) Unwatch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = nil
	w.unwatchs++
}

func (w *stubWatcher) stats() (watches int, unwatches int, registered bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watches, w.unwatchs, w.handler != nil
}

func (w *stubWatcher) install() bool {
	w.mu.Lock()
	handler := w.handler
	w.mu.Unlock()
	if handler == nil {
		return false
	}
	handler()
	return true
}

// eventLog records callback and observer activity in order.
type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

type recordingCallback[T any] struct {
	name      string
	log       *eventLog
	mu        sync.Mutex
	successes []Response[T]
	failures  []error
}

func newRecordingCallback[T any](name string, log *eventLog) *recordingCallback[T] {
	return &recordingCallback[T]{name: name, log: log}
}

func (c *recordingCallback[T]) Succeeded(result Response[T]) {
	c.mu.Lock()
	c.successes = append(c.successes, result)
	c.mu.Unlock()
	if c.log != nil {
		c.log.add("%s:succeeded", c.name)
	}
}

func (c *recordingCallback[T]) Failed(err error) {
	c.mu.Lock()
	c.failures = append(c.failures, err)
	c.mu.Unlock()
	if c.log != nil {
		c.log.add("%s:failed", c.name)
	}
}

func (c *recordingCallback[T]) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.successes), len(c.failures)
}

func (c *recordingCallback[T]) lastFailure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.failures) == 0 {
		return nil
	}
	return c.failures[len(c.failures)-1]
}

type recordingObserver struct {
	BaseObserver
	name string
	log  *eventLog
}

func (o *recordingObserver) SessionCreated(*Session) { o.log.add("%s:session_created", o.name) }

func (o *recordingObserver) SessionCreateFailed(error) {
	o.log.add("%s:session_create_failed", o.name)
}

func (o *recordingObserver) AuthorizeSucceeded(*Session) {
	o.log.add("%s:authorize_succeeded", o.name)
}

func (o *recordingObserver) AuthorizeDenied(error) { o.log.add("%s:authorize_denied", o.name) }

func (o *recordingObserver) AuthorizeFailedWithWrongRequestCode() {
	o.log.add("%s:authorize_wrong_code", o.name)
}

func (o *recordingObserver) ClientRetrievedFileList(FileList) {
	o.log.add("%s:file_list", o.name)
}

func (o *recordingObserver) ClientFailedOnFileList(error) {
	o.log.add("%s:file_list_failed", o.name)
}

func (o *recordingObserver) ContentRetrievedForFile(fileID string, _ FileResponse) {
	o.log.add("%s:content:%s", o.name, fileID)
}

func (o *recordingObserver) JSONRetrievedForFile(fileID string, _ json.RawMessage) {
	o.log.add("%s:json:%s", o.name, fileID)
}

func (o *recordingObserver) ContentRetrieveFailed(fileID string, _ error) {
	o.log.add("%s:content_failed:%s", o.name, fileID)
}

func (o *recordingObserver) AccountsRetrieved(Accounts) { o.log.add("%s:accounts", o.name) }

func (o *recordingObserver) AccountsRetrieveFailed(error) {
	o.log.add("%s:accounts_failed", o.name)
}

type stubAPI struct {
	mu       sync.Mutex
	session  *Session
	err      error
	files    FileList
	accounts Accounts
	file     FileResponse
	raw      json.RawMessage
	calls    []string
}

func (a *stubAPI) record(call string) {
	a.mu.Lock()
	a.calls = append(a.calls, call)
	a.mu.Unlock()
}

func (a *stubAPI) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func (a *stubAPI) CreateSession(_ context.Context, contract Contract) (*Session, error) {
	a.record("session:" + contract.ContractID)
	if a.err != nil {
		return nil, a.err
	}
	return a.session, nil
}

func (a *stubAPI) FileList(_ context.Context, key string) (FileList, error) {
	a.record("files:" + key)
	return a.files, a.err
}

func (a *stubAPI) Accounts(_ context.Context, key string) (Accounts, error) {
	a.record("accounts:" + key)
	return a.accounts, a.err
}

func (a *stubAPI) FileContent(_ context.Context, key string, fileID string) (FileResponse, error) {
	a.record("file:" + key + ":" + fileID)
	return a.file, a.err
}

func (a *stubAPI) FileJSON(_ context.Context, key string, fileID string) (json.RawMessage, error) {
	a.record("json:" + key + ":" + fileID)
	return a.raw, a.err
}

func staticAPIFactory(api APIClient) APIClientFactory {
	return func(*Session) (APIClient, error) {
		return api, nil
	}
}

type stubCreator struct {
	mu    sync.Mutex
	calls []Callback[Session]
	err   error
}

func (c *stubCreator) CreateSession(_ context.Context, callback Callback[Session]) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, callback)
	return c.err
}

func (c *stubCreator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AppID = "app-1"
	cfg.ContractIDs = []string{"contract-a", "contract-b"}
	return cfg
}

func validSession(key string) *Session {
	return &Session{
		Key:        key,
		ExpiresAt:  time.Now().Add(time.Hour),
		ContractID: "contract-a",
		AppID:      "app-1",
	}
}

type brokerFixture struct {
	broker    *AuthorizationBroker
	app       *stubExternalApp
	scheduler *fakeScheduler
	watcher   *stubWatcher
	creator   *stubCreator
	sessions  *SessionManager
}

func newBrokerFixture(available bool) brokerFixture {
	fixture := brokerFixture{
		app:       &stubExternalApp{available: available},
		scheduler: &fakeScheduler{},
		watcher:   &stubWatcher{},
		creator:   &stubCreator{},
		sessions:  NewSessionManager(nil),
	}
	fixture.broker = NewAuthorizationBroker(testConfig(), BrokerDependencies{
		ExternalApp:    fixture.app,
		InstallWatcher: fixture.watcher,
		Scheduler:      fixture.scheduler,
		Sessions:       fixture.sessions,
		Creator:        fixture.creator,
	})
	return fixture
}

package core

import (
	"context"
	"sync"
	"testing"
)

func TestDeferredInstall_CancelDuringStoreRedirectReleasesWatcher(t *testing.T) {
	fixture := newBrokerFixture(false)
	fixture.app.onOpenStore = fixture.broker.CancelOngoingAuthorization
	callback := newRecordingCallback[Session]("cb", nil)

	if err := fixture.broker.BeginDeferredAuthorization(context.Background(), newTestHost("host-1"), callback); err != nil {
		t.Fatalf("begin deferred: %v", err)
	}
	if fixture.broker.State() != AuthorizationIdle {
		t.Fatalf("expected idle after cancellation, got %s", fixture.broker.State())
	}
	if armed := fixture.scheduler.armed(); armed != 0 {
		t.Fatalf("expected no timer for a cancelled attempt, got %d", armed)
	}
	watches, unwatches, registered := fixture.watcher.stats()
	if registered || watches != unwatches {
		t.Fatalf("expected install watcher released, watches=%d unwatches=%d registered=%v", watches, unwatches, registered)
	}
	if reason, _ := AuthorizationReasonOf(callback.lastFailure()); reason != ReasonTimedOut {
		t.Fatalf("expected timeout failure, got %v", callback.lastFailure())
	}

	fixture.scheduler.fireAll()
	if _, failures := callback.counts(); failures != 1 {
		t.Fatalf("expected a single failure, got %d", failures)
	}
}

func TestDeferredInstall_ResolutionDuringStoreRedirectCreatesSession(t *testing.T) {
	fixture := newBrokerFixture(false)
	fixture.app.onOpenStore = func() { fixture.broker.ProtocolResolved(context.Background()) }
	callback := newRecordingCallback[Session]("cb", nil)

	if err := fixture.broker.BeginDeferredAuthorization(context.Background(), newTestHost("host-1"), callback); err != nil {
		t.Fatalf("begin deferred: %v", err)
	}
	if fixture.creator.count() != 1 {
		t.Fatalf("expected session creation, got %d", fixture.creator.count())
	}
	if armed := fixture.scheduler.armed(); armed != 0 {
		t.Fatalf("expected no timer after resolution, got %d", armed)
	}
	if _, _, registered := fixture.watcher.stats(); registered {
		t.Fatalf("expected no install watcher after resolution")
	}
}

func TestBroker_ParallelDeferredAttemptsStaySingleFlight(t *testing.T) {
	const attempts = 50
	fixture := newBrokerFixture(false)
	host := newTestHost("host-1")
	callbacks := make([]*recordingCallback[Session], attempts)
	for i := range callbacks {
		callbacks[i] = newRecordingCallback[Session]("cb", nil)
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(callback *recordingCallback[Session]) {
			defer wg.Done()
			<-start
			if err := fixture.broker.BeginDeferredAuthorization(context.Background(), host, callback); err != nil {
				t.Errorf("begin deferred: %v", err)
			}
		}(callbacks[i])
	}
	close(start)
	wg.Wait()
	fixture.broker.CancelOngoingAuthorization()

	timedOut, rejected := 0, 0
	for _, callback := range callbacks {
		successes, failures := callback.counts()
		if successes != 0 || failures != 1 {
			t.Fatalf("expected exactly one failure per attempt, got successes=%d failures=%d", successes, failures)
		}
		switch reason, _ := AuthorizationReasonOf(callback.lastFailure()); reason {
		case ReasonTimedOut:
			timedOut++
		case ReasonInProgress:
			rejected++
		default:
			t.Fatalf("unexpected failure %v", callback.lastFailure())
		}
	}
	if timedOut == 0 || timedOut+rejected != attempts {
		t.Fatalf("expected every attempt accounted for, timed out=%d rejected=%d", timedOut, rejected)
	}
	if opened := len(fixture.app.openedTargets()); opened != timedOut {
		t.Fatalf("expected one store redirect per started attempt, got %d for %d", opened, timedOut)
	}
	if armed := fixture.scheduler.armed(); armed != 0 {
		t.Fatalf("expected every timer disarmed, got %d", armed)
	}
	watches, unwatches, registered := fixture.watcher.stats()
	if registered || watches != unwatches {
		t.Fatalf("expected every watch released, watches=%d unwatches=%d registered=%v", watches, unwatches, registered)
	}
	if fixture.broker.State() != AuthorizationIdle {
		t.Fatalf("expected idle, got %s", fixture.broker.State())
	}
}

func TestBroker_ParallelRequestsSendOnlyForStartedAttempts(t *testing.T) {
	const attempts = 50
	fixture := newBrokerFixture(true)
	fixture.sessions.SetCurrent(validSession("key-1"))
	host := newTestHost("host-1")
	callbacks := make([]*recordingCallback[Session], attempts)
	for i := range callbacks {
		callbacks[i] = newRecordingCallback[Session]("cb", nil)
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(callback *recordingCallback[Session]) {
			defer wg.Done()
			<-start
			if err := fixture.broker.RequestAuthorization(context.Background(), host, callback); err != nil {
				t.Errorf("request authorization: %v", err)
			}
		}(callbacks[i])
	}
	close(start)
	wg.Wait()

	rejected := 0
	for _, callback := range callbacks {
		if _, failures := callback.counts(); failures > 0 {
			if reason, _ := AuthorizationReasonOf(callback.lastFailure()); reason != ReasonInProgress {
				t.Fatalf("unexpected failure %v", callback.lastFailure())
			}
			rejected++
		}
	}
	sent := len(fixture.app.sentRequests())
	if sent == 0 || sent+rejected != attempts {
		t.Fatalf("expected each attempt to send or be rejected, sent=%d rejected=%d", sent, rejected)
	}

	inProgress := fixture.broker.InProgress()
	fixture.broker.OnExternalResult(DefaultAuthorizationRequestCode, ResultGranted)
	granted := 0
	for _, callback := range callbacks {
		successes, _ := callback.counts()
		granted += successes
	}
	if inProgress && granted != 1 {
		t.Fatalf("expected the running attempt to be granted once, got %d", granted)
	}
	if !inProgress && granted != 0 {
		t.Fatalf("expected no grant without a running attempt, got %d", granted)
	}
	if fixture.broker.State() != AuthorizationIdle {
		t.Fatalf("expected idle, got %s", fixture.broker.State())
	}
}

func TestDeferredInstall_TimerRacingResolutionEndsAttemptOnce(t *testing.T) {
	for i := 0; i < 100; i++ {
		fixture := newBrokerFixture(false)
		callback := newRecordingCallback[Session]("cb", nil)
		if err := fixture.broker.BeginDeferredAuthorization(context.Background(), newTestHost("host-1"), callback); err != nil {
			t.Fatalf("begin deferred: %v", err)
		}

		var wg sync.WaitGroup
		start := make(chan struct{})
		wg.Add(3)
		go func() {
			defer wg.Done()
			<-start
			fixture.scheduler.fireAll()
		}()
		go func() {
			defer wg.Done()
			<-start
			fixture.watcher.install()
		}()
		go func() {
			defer wg.Done()
			<-start
			fixture.broker.ProtocolResolved(context.Background())
		}()
		close(start)
		wg.Wait()

		_, failures := callback.counts()
		if created := fixture.creator.count(); failures+created != 1 {
			t.Fatalf("expected the attempt to end once, failures=%d sessions=%d", failures, created)
		}
		if armed := fixture.scheduler.armed(); armed != 0 {
			t.Fatalf("expected timer disarmed, got %d", armed)
		}
		if _, _, registered := fixture.watcher.stats(); registered {
			t.Fatalf("expected install watcher released")
		}
		if fixture.broker.State() != AuthorizationIdle {
			t.Fatalf("expected idle, got %s", fixture.broker.State())
		}
	}
}

package core

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Session is a server issued token scoping access to a user's data. Sessions
// are immutable once created.
type Session struct {
	Key        string    `json:"sessionKey"`
	ExpiresAt  time.Time `json:"expiry"`
	ContractID string    `json:"contractId"`
	AppID      string    `json:"appId"`
}

func (s *Session) Empty() bool {
	return s == nil || strings.TrimSpace(s.Key) == ""
}

// ValidAt reports whether the session is present and expires strictly after now.
func (s *Session) ValidAt(now time.Time) bool {
	if s.Empty() {
		return false
	}
	return s.ExpiresAt.After(now)
}

// ValidateSession is the gate applied before every authenticated call.
func ValidateSession(session *Session, now time.Time) error {
	if session == nil || session.Empty() {
		return NewSessionInvalidError("core: session is missing")
	}
	if !session.ValidAt(now) {
		return NewSessionInvalidError("core: session expired")
	}
	return nil
}

type SessionDestroyedReason string

const (
	SessionDestroyedTimeout     SessionDestroyedReason = "timeout"
	SessionDestroyedInvalidated SessionDestroyedReason = "invalidated"
)

type SessionListener interface {
	CurrentSessionChanged(old *Session, current *Session)
	SessionDestroyed(session *Session, reason SessionDestroyedReason)
}

// SessionStore persists sessions between process restarts.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Latest(ctx context.Context) (*Session, error)
	Invalidate(ctx context.Context, sessionKey string, reason SessionDestroyedReason) error
}

// SessionManager owns the single current-session slot.
type SessionManager struct {
	current atomic.Pointer[Session]
	now     func() time.Time

	mu        sync.RWMutex
	listeners []SessionListener
}

func NewSessionManager(clock func() time.Time) *SessionManager {
	if clock == nil {
		clock = time.Now
	}
	return &SessionManager{now: clock}
}

func (m *SessionManager) Current() *Session {
	if m == nil {
		return nil
	}
	return m.current.Load()
}

// SetCurrent swaps the current session and notifies listeners with the
// transition. A nil session clears the slot.
func (m *SessionManager) SetCurrent(session *Session) {
	if m == nil {
		return
	}
	var next *Session
	if session != nil {
		copied := *session
		next = &copied
	}
	m.swap(next, nil)
}

func (m *SessionManager) swap(next *Session, source SessionStore) {
	old := m.current.Swap(next)
	for _, listener := range m.snapshotListeners() {
		if persister, ok := listener.(storeBacked); ok && source != nil && persister.persistsTo(source) {
			continue
		}
		listener.CurrentSessionChanged(old, next)
	}
}

// storeBacked listeners write into a SessionStore and are not notified of
// sessions read back from that same store.
type storeBacked interface {
	persistsTo(store SessionStore) bool
}

// Validate fails with a session invalid error when the current session is
// absent or expired.
func (m *SessionManager) Validate() error {
	if m == nil {
		return NewSessionInvalidError("core: session manager is not configured")
	}
	return ValidateSession(m.Current(), m.now())
}

// Invalidate clears the current session and reports it destroyed.
func (m *SessionManager) Invalidate(reason SessionDestroyedReason) *Session {
	if m == nil {
		return nil
	}
	old := m.current.Swap(nil)
	if old == nil {
		return nil
	}
	listeners := m.snapshotListeners()
	for _, listener := range listeners {
		listener.SessionDestroyed(old, reason)
	}
	for _, listener := range listeners {
		listener.CurrentSessionChanged(old, nil)
	}
	return old
}

// Restore loads the latest persisted session into the slot when it is still
// valid. Expired sessions are invalidated in the store.
func (m *SessionManager) Restore(ctx context.Context, store SessionStore) (*Session, error) {
	if m == nil || store == nil {
		return nil, nil
	}
	latest, err := store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}
	if !latest.ValidAt(m.now()) {
		if err := store.Invalidate(ctx, latest.Key, SessionDestroyedTimeout); err != nil {
			return nil, err
		}
		return nil, nil
	}
	m.swap(latest, store)
	return m.Current(), nil
}

func (m *SessionManager) AddListener(listener SessionListener) {
	if m == nil || listener == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.listeners {
		if existing == listener {
			return
		}
	}
	next := make([]SessionListener, 0, len(m.listeners)+1)
	next = append(next, m.listeners...)
	m.listeners = append(next, listener)
}

func (m *SessionManager) RemoveListener(listener SessionListener) {
	if m == nil || listener == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make([]SessionListener, 0, len(m.listeners))
	for _, existing := range m.listeners {
		if existing != listener {
			next = append(next, existing)
		}
	}
	m.listeners = next
}

func (m *SessionManager) snapshotListeners() []SessionListener {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]SessionListener(nil), m.listeners...)
}

// PersistingSessionListener mirrors session transitions into a SessionStore.
type PersistingSessionListener struct {
	Store   SessionStore
	Logger  Logger
	Timeout time.Duration
}

func (l PersistingSessionListener) CurrentSessionChanged(_ *Session, current *Session) {
	if l.Store == nil || current == nil {
		return
	}
	ctx, cancel := l.context()
	defer cancel()
	if err := l.Store.Save(ctx, *current); err != nil && l.Logger != nil {
		l.Logger.Warn("session persist failed", "error", err)
	}
}

func (l PersistingSessionListener) SessionDestroyed(session *Session, reason SessionDestroyedReason) {
	if l.Store == nil || session == nil {
		return
	}
	ctx, cancel := l.context()
	defer cancel()
	if err := l.Store.Invalidate(ctx, session.Key, reason); err != nil && l.Logger != nil {
		l.Logger.Warn("session invalidate failed", "error", err)
	}
}

func (l PersistingSessionListener) persistsTo(store SessionStore) bool {
	return l.Store != nil && l.Store == store
}

func (l PersistingSessionListener) context() (context.Context, context.CancelFunc) {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

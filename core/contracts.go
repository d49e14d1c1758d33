package core

import (
	"context"
	"encoding/json"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// ContentDecrypter is the primitive used to open encrypted content fields.
type ContentDecrypter interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// ReadinessReporter is implemented by decrypters that can be unprovisioned.
type ReadinessReporter interface {
	Ready() bool
}

// APIClient is the consumed HTTP surface, bound to one session.
type APIClient interface {
	CreateSession(ctx context.Context, contract Contract) (*Session, error)
	FileList(ctx context.Context, sessionKey string) (FileList, error)
	Accounts(ctx context.Context, sessionKey string) (Accounts, error)
	FileContent(ctx context.Context, sessionKey string, fileID string) (FileResponse, error)
	FileJSON(ctx context.Context, sessionKey string, fileID string) (json.RawMessage, error)
}

// APIClientFactory builds the client used for a session. A nil session asks
// for the default client used for session issuance.
type APIClientFactory func(session *Session) (APIClient, error)

// Host is the party that initiates authorization and receives the external
// app result.
type Host interface {
	ID() string
	Finishing() bool
}

// ExternalApp is the cross-process channel to the trusted app.
type ExternalApp interface {
	Available(ctx context.Context, host Host) bool
	Send(ctx context.Context, host Host, request AuthorizationRequest) error
	OpenStore(ctx context.Context, host Host, target string) error
}

// InstallWatcher delivers the external app installation completed signal.
type InstallWatcher interface {
	Watch(onInstalled func()) error
	Unwatch()
}

// Scheduler runs fn after d. The returned stop func reports whether the call
// was prevented.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

type Executor interface {
	Go(fn func())
}

// ActivitySink records observer events.
type ActivitySink interface {
	Record(ctx context.Context, entry ActivityEntry) error
}

type SessionCreator interface {
	CreateSession(ctx context.Context, callback Callback[Session]) error
}

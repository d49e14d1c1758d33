package consent_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	consent "github.com/goliatone/go-consent"
	"github.com/goliatone/go-consent/core"
	consentmigrations "github.com/goliatone/go-consent/migrations"
	"github.com/goliatone/go-consent/security"
	sqlstore "github.com/goliatone/go-consent/store/sql"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

var (
	contentKeyOnce sync.Once
	contentKey     *rsa.PrivateKey
	contentKeyErr  error
)

func testContentKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	contentKeyOnce.Do(func() {
		contentKey, contentKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if contentKeyErr != nil {
		t.Fatalf("generate content key: %v", contentKeyErr)
	}
	return contentKey
}

func newContentServer(t *testing.T, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	sealed, err := security.SealContent(&key.PublicKey, []byte(`[{"id":1},{"id":2}]`))
	if err != nil {
		t.Fatalf("seal content: %v", err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/permission-access/session", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"sessionKey":"key-1","expiry":1893456000000}`))
	})
	mux.HandleFunc("/v1/permission-access/query/key-1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"fileList":["f1.json"]}`))
	})
	mux.HandleFunc("/v1/permission-access/query/key-1/f1.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fileContent":"` + string(sealed) + `"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testConfig(baseURL string) consent.Config {
	cfg := consent.DefaultConfig()
	cfg.AppID = "app-1"
	cfg.ContractIDs = []string{"contract-a"}
	cfg.API.BaseURL = baseURL
	return cfg
}

func TestSetup_DecryptsContentEndToEnd(t *testing.T) {
	key := testContentKey(t)
	server := newContentServer(t, key)
	keys := security.NewContentKeyStore()
	if err := keys.Add("primary", key); err != nil {
		t.Fatalf("add content key: %v", err)
	}

	ctx := context.Background()
	client, err := consent.Setup(ctx, testConfig(server.URL),
		consent.WithHTTPDoer(server.Client()),
		consent.WithContentDecrypter(keys),
		consent.WithClientOptions(consent.WithExecutor(core.InlineExecutor{})),
	)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	session, err := core.Await(ctx, func(cb consent.Callback[consent.Session]) error {
		return client.CreateSession(ctx, cb)
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Body.Key != "key-1" || session.Body.ContractID != "contract-a" {
		t.Fatalf("unexpected session %#v", session.Body)
	}

	files, err := core.Await(ctx, func(cb consent.Callback[core.FileList]) error {
		return client.GetFileList(ctx, cb)
	})
	if err != nil {
		t.Fatalf("file list: %v", err)
	}
	if len(files.Body.FileList) != 1 {
		t.Fatalf("unexpected file list %#v", files.Body)
	}

	content, err := core.Await(ctx, func(cb consent.Callback[core.FileResponse]) error {
		return client.GetFileContent(ctx, "f1.json", cb)
	})
	if err != nil {
		t.Fatalf("file content: %v", err)
	}
	if content.Body.FileID != "f1.json" || len(content.Body.FileContent) != 2 {
		t.Fatalf("unexpected decrypted content %#v", content.Body)
	}
}

func TestSetup_RejectsInvalidConfig(t *testing.T) {
	if _, err := consent.Setup(context.Background(), consent.DefaultConfig()); err == nil {
		t.Fatalf("expected missing app id to fail")
	}
	cfg := testConfig("http://example.test")
	if _, err := consent.Setup(context.Background(), cfg, consent.WithEncryptedPaths("%zz")); err == nil {
		t.Fatalf("expected malformed encrypted path pattern to fail")
	}
}

func TestSetup_PersistsAndRestoresSessions(t *testing.T) {
	server := newContentServer(t, testContentKey(t))
	factory, closeDB := newRepositoryFactory(t)
	defer closeDB()
	cache, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}

	ctx := context.Background()
	first, err := consent.Setup(ctx, testConfig(server.URL),
		consent.WithHTTPDoer(server.Client()),
		consent.WithRepositories(factory),
		consent.WithSessionCache(cache, "app-1"),
		consent.WithClientOptions(consent.WithExecutor(core.InlineExecutor{})),
	)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := core.Await(ctx, func(cb consent.Callback[consent.Session]) error {
		return first.CreateSession(ctx, cb)
	}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	second, err := consent.Setup(ctx, testConfig(server.URL),
		consent.WithHTTPDoer(server.Client()),
		consent.WithRepositories(factory),
		consent.WithSessionCache(cache, "app-1"),
		consent.WithRestore(),
	)
	if err != nil {
		t.Fatalf("setup with restore: %v", err)
	}
	restored := second.Sessions().Current()
	if restored == nil || restored.Key != "key-1" {
		t.Fatalf("expected restored session, got %#v", restored)
	}

	page, err := factory.ActivityStore().List(ctx, sqlstore.ActivityFilter{Event: core.EventSessionCreated})
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected one session_created activity entry, got %d", page.Total)
	}
}

func newRepositoryFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()
	client, err := sqlstore.Open(sqlstore.Config{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:consent-facade-%d?mode=memory&cache=shared", time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("open sqlite client: %v", err)
	}
	ctx := context.Background()
	if err := consentmigrations.Apply(ctx, client, consentmigrations.DialectSQLite); err != nil {
		_ = client.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	secrets, err := security.NewAppKeySecretProviderFromString("facade-test-key")
	if err != nil {
		_ = client.Close()
		t.Fatalf("new secret provider: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, secrets)
	if err != nil {
		_ = client.Close()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, func() { _ = client.Close() }
}

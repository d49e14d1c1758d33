package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubDecrypter struct {
	plaintext map[string]string
	ready     bool
	calls     int
}

func (d *stubDecrypter) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	d.calls++
	value, ok := d.plaintext[string(ciphertext)]
	if !ok {
		return nil, errors.New("cipher: message authentication failed")
	}
	return []byte(value), nil
}

func (d *stubDecrypter) Ready() bool { return d.ready }

type decryptFixture struct {
	server    *httptest.Server
	decrypter *stubDecrypter
	doer      *DecryptingDoer
}

func newDecryptFixture(t *testing.T, handler http.HandlerFunc) decryptFixture {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	decrypter := &stubDecrypter{ready: true, plaintext: map[string]string{
		"enc-items":    `[{"id":1},{"id":2}]`,
		"enc-accounts": `{"accounts":[{"id":"acc-1","service":{"name":"bank"}}]}`,
		"enc-text":     `not json`,
	}}
	matcher, err := NewPathMatcher(server.URL, EncryptedContentPaths...)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	doer := NewDecryptingDoer(server.Client(), decrypter, matcher, nil)
	return decryptFixture{server: server, decrypter: decrypter, doer: doer}
}

func (f decryptFixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.server.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := f.doer.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func writeJSON(w http.ResponseWriter, contentType string, body string) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func TestDecryptingDoer_ReplacesContentField(t *testing.T) {
	fixture := newDecryptFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, "application/json; charset=utf-8", `{"fileContent":"enc-items","fileId":"f1"}`)
	})

	resp, body := fixture.get(t, "/v1/permission-access/query/key-1/f1.json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var decoded struct {
		FileContent []map[string]int `json:"fileContent"`
		FileID      string           `json:"fileId"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decode body %s: %v", body, err)
	}
	if len(decoded.FileContent) != 2 || decoded.FileContent[1]["id"] != 2 || decoded.FileID != "f1" {
		t.Fatalf("unexpected body %s", body)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Fatalf("expected original content type, got %q", got)
	}
}

func TestDecryptingDoer_AccountsReplaceWholeBody(t *testing.T) {
	fixture := newDecryptFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, "", `{"fileContent":"enc-accounts"}`)
	})

	resp, body := fixture.get(t, "/v1/permission-access/query/key-1/accounts.json")
	if string(body) != `{"accounts":[{"id":"acc-1","service":{"name":"bank"}}]}` {
		t.Fatalf("expected decrypted accounts verbatim, got %s", body)
	}
	if got := resp.Header.Get("Content-Type"); got != DefaultContentType {
		t.Fatalf("expected default content type, got %q", got)
	}
}

func TestDecryptingDoer_DecryptFailureBecomes411(t *testing.T) {
	fixture := newDecryptFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, "application/json", `{"fileContent":"tampered"}`)
	})

	resp, body := fixture.get(t, "/v1/permission-access/query/key-1/f1.json")
	if resp.StatusCode != http.StatusLengthRequired {
		t.Fatalf("expected 411, got %d", resp.StatusCode)
	}
	var decoded map[string]map[string]string
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decode error body %s: %v", body, err)
	}
	expected := map[string]string{"code": "Decryption failure", "message": "Failed to decrypt content", "reference": ""}
	for key, value := range expected {
		got, ok := decoded["error"][key]
		if !ok || got != value {
			t.Fatalf("expected error.%s=%q, got %q (present=%v)", key, value, got, ok)
		}
	}
	if resp.Header.Get("Content-Type") != DefaultContentType {
		t.Fatalf("expected json content type on synthesized error")
	}
}

type cancellingDecrypter struct {
	cancel context.CancelFunc
}

func (d cancellingDecrypter) Decrypt(ctx context.Context, _ []byte) ([]byte, error) {
	d.cancel()
	return nil, ctx.Err()
}

func TestDecryptingDoer_CancelledContextIsNotADecryptionFailure(t *testing.T) {
	fixture := newDecryptFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, "application/json", `{"fileContent":"enc-items"}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fixture.doer.Decrypter = cancellingDecrypter{cancel: cancel}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fixture.server.URL+"/v1/permission-access/query/key-1/f1.json", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := fixture.doer.Do(req)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got resp=%v err=%v", resp, err)
	}
	if resp != nil {
		t.Fatalf("expected no synthesized response, got status %d", resp.StatusCode)
	}
}

func TestDecryptingDoer_PassThrough(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		status int
		body   string
	}{
		{name: "path not whitelisted", path: "/v1/permission-access/query/key-1", status: http.StatusOK, body: `{"fileContent":"enc-items"}`},
		{name: "content not textual", path: "/v1/permission-access/query/key-1/f1", status: http.StatusOK, body: `{"fileContent":[1,2]}`},
		{name: "content key absent", path: "/v1/permission-access/query/key-1/f1", status: http.StatusOK, body: `{"other":"enc-items"}`},
		{name: "body not an object", path: "/v1/permission-access/query/key-1/f1", status: http.StatusOK, body: `[1,2,3]`},
		{name: "server error", path: "/v1/permission-access/query/key-1/f1", status: http.StatusNotFound, body: `{"fileContent":"enc-items"}`},
		{name: "plaintext not json", path: "/v1/permission-access/query/key-1/f1", status: http.StatusOK, body: `{"fileContent":"enc-text"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fixture := newDecryptFixture(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			resp, body := fixture.get(t, tc.path)
			if resp.StatusCode != tc.status || string(body) != tc.body {
				t.Fatalf("expected untouched response, got %d %s", resp.StatusCode, body)
			}
		})
	}
}

func TestDecryptingDoer_UninitializedPassesThrough(t *testing.T) {
	fixture := newDecryptFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, "application/json", `{"fileContent":"enc-items"}`)
	})
	fixture.decrypter.ready = false

	_, body := fixture.get(t, "/v1/permission-access/query/key-1/f1.json")
	if string(body) != `{"fileContent":"enc-items"}` {
		t.Fatalf("expected encrypted body to pass through, got %s", body)
	}
	if fixture.decrypter.calls != 0 {
		t.Fatalf("expected no decrypt attempts, got %d", fixture.decrypter.calls)
	}
}

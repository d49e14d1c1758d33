package transport

import (
	"net/url"
	"testing"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return parsed
}

func TestPathMatcher_WildcardSegments(t *testing.T) {
	matcher, err := NewPathMatcher("https://api.example.com/", EncryptedContentPaths...)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	cases := []struct {
		url   string
		match bool
	}{
		{url: "https://api.example.com/v1/permission-access/query/key-1/file-1.json", match: true},
		{url: "https://api.example.com/v1/permission-access/query/key-1/accounts.json", match: true},
		{url: "https://api.example.com/v1/permission-access/query/key-1", match: false},
		{url: "https://api.example.com/v1/permission-access/query/key-1/file/extra", match: false},
		{url: "https://api.example.com/v1/permission-access/session", match: false},
		{url: "https://api.example.com/v2/permission-access/query/key-1/file-1.json", match: false},
		{url: "https://api.example.com/", match: false},
	}
	for _, tc := range cases {
		if got := matcher.Match(mustURL(t, tc.url)); got != tc.match {
			t.Fatalf("%s: expected match=%v, got %v", tc.url, tc.match, got)
		}
	}
}

func TestPathMatcher_BasePathIsPartOfTemplate(t *testing.T) {
	matcher, err := NewPathMatcher("https://gateway.example.com/consent", "v1/query/_any_")
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	if !matcher.Match(mustURL(t, "http://127.0.0.1:8080/consent/v1/query/abc")) {
		t.Fatalf("expected base path segments to match")
	}
	if matcher.Match(mustURL(t, "http://127.0.0.1:8080/v1/query/abc")) {
		t.Fatalf("expected missing base path to fail")
	}
}

func TestPathMatcher_FirstMatchingTemplateWins(t *testing.T) {
	matcher, err := NewPathMatcher("https://api.example.com", "a/_any_", "_any_/b", "")
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	if matcher.Len() != 2 {
		t.Fatalf("expected blank templates to be skipped, got %d", matcher.Len())
	}
	for _, raw := range []string{"https://x/a/z", "https://x/z/b"} {
		if !matcher.Match(mustURL(t, raw)) {
			t.Fatalf("expected %s to match", raw)
		}
	}
	var empty *PathMatcher
	if empty.Match(mustURL(t, "https://x/a/z")) {
		t.Fatalf("expected nil matcher to match nothing")
	}
}

func TestIsAccountsPath(t *testing.T) {
	if !IsAccountsPath(mustURL(t, "https://x/v1/permission-access/query/k/accounts.json")) {
		t.Fatalf("expected accounts path")
	}
	if IsAccountsPath(mustURL(t, "https://x/v1/permission-access/query/k/file.json")) {
		t.Fatalf("expected file path not to be an accounts path")
	}
	if IsAccountsPath(mustURL(t, "https://x/")) {
		t.Fatalf("expected root not to be an accounts path")
	}
}

package transport

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	AnySegment   = "_any_"
	AccountsFile = "accounts.json"
)

// EncryptedContentPaths lists the path templates whose responses carry
// encrypted file content.
var EncryptedContentPaths = []string{"v1/permission-access/query/_any_/_any_"}

// PathMatcher matches request paths against templates resolved under an API
// base URL. A template segment of AnySegment matches any single segment.
type PathMatcher struct {
	templates [][]string
}

func NewPathMatcher(baseURL string, patterns ...string) (*PathMatcher, error) {
	matcher := &PathMatcher{}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		joined := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/" + strings.TrimLeft(pattern, "/")
		parsed, err := url.Parse(joined)
		if err != nil {
			return nil, fmt.Errorf("transport: invalid path template %q: %w", pattern, err)
		}
		segments := pathSegments(parsed.Path)
		if len(segments) == 0 {
			return nil, fmt.Errorf("transport: path template %q has no segments", pattern)
		}
		matcher.templates = append(matcher.templates, segments)
	}
	return matcher, nil
}

// Match reports whether u has the segment count of some template and agrees
// with it on every non wildcard segment.
func (m *PathMatcher) Match(u *url.URL) bool {
	if m == nil || u == nil {
		return false
	}
	segments := pathSegments(u.Path)
	if len(segments) == 0 {
		return false
	}
	for _, template := range m.templates {
		if matchSegments(template, segments) {
			return true
		}
	}
	return false
}

func (m *PathMatcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.templates)
}

func matchSegments(template []string, segments []string) bool {
	if len(template) != len(segments) {
		return false
	}
	for i, expected := range template {
		if expected != AnySegment && expected != segments[i] {
			return false
		}
	}
	return true
}

// IsAccountsPath reports whether the last path segment names the accounts file.
func IsAccountsPath(u *url.URL) bool {
	if u == nil {
		return false
	}
	segments := pathSegments(u.Path)
	if len(segments) == 0 {
		return false
	}
	return strings.HasSuffix(segments[len(segments)-1], AccountsFile)
}

func pathSegments(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

package transport

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/yosida95/uritemplate/v3"
)

const (
	EndpointSession  = "session"
	EndpointFileList = "file_list"
	EndpointAccounts = "accounts"
	EndpointFile     = "file"
)

// Endpoint variables.
const (
	VarSessionKey = "sessionKey"
	VarFileID     = "fileId"
)

var defaultEndpointTemplates = map[string]string{
	EndpointSession:  "v1/permission-access/session",
	EndpointFileList: "v1/permission-access/query/{sessionKey}",
	EndpointAccounts: "v1/permission-access/query/{sessionKey}/" + AccountsFile,
	EndpointFile:     "v1/permission-access/query/{sessionKey}/{fileId}",
}

// EndpointRegistry holds the API path templates by name.
type EndpointRegistry struct {
	mu        sync.RWMutex
	templates map[string]*uritemplate.Template
}

func NewEndpointRegistry() *EndpointRegistry {
	return &EndpointRegistry{templates: map[string]*uritemplate.Template{}}
}

// NewDefaultEndpointRegistry registers the permission access endpoints.
func NewDefaultEndpointRegistry() *EndpointRegistry {
	registry := NewEndpointRegistry()
	for name, template := range defaultEndpointTemplates {
		_ = registry.Register(name, template)
	}
	return registry
}

func (r *EndpointRegistry) Register(name string, template string) error {
	if r == nil {
		return fmt.Errorf("transport: endpoint registry is nil")
	}
	name = normalizeName(name)
	if name == "" {
		return fmt.Errorf("transport: endpoint name is required")
	}
	parsed, err := uritemplate.New(strings.TrimLeft(strings.TrimSpace(template), "/"))
	if err != nil {
		return fmt.Errorf("transport: endpoint %q has an invalid template: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.templates[name]; exists {
		return fmt.Errorf("transport: endpoint %q already registered", name)
	}
	r.templates[name] = parsed
	return nil
}

// Expand fills the named template. Every variable must be supplied.
func (r *EndpointRegistry) Expand(name string, values map[string]string) (string, error) {
	if r == nil {
		return "", fmt.Errorf("transport: endpoint registry is nil")
	}
	name = normalizeName(name)
	r.mu.RLock()
	template, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("transport: endpoint %q not registered", name)
	}

	vars := uritemplate.Values{}
	for _, varname := range template.Varnames() {
		value := strings.TrimSpace(values[varname])
		if value == "" {
			return "", fmt.Errorf("transport: endpoint %q requires %s", name, varname)
		}
		vars.Set(varname, uritemplate.String(value))
	}
	return template.Expand(vars)
}

func (r *EndpointRegistry) Names() []string {
	if r == nil {
		return []string{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

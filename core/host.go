package core

import (
	"strings"
	"sync"
)

// HostRegistry tracks which hosts are still alive. Handles resolve through
// the registry so a detached host is observed as gone.
type HostRegistry struct {
	mu    sync.RWMutex
	hosts map[string]Host
}

func NewHostRegistry() *HostRegistry {
	return &HostRegistry{hosts: map[string]Host{}}
}

func (r *HostRegistry) Attach(host Host) HostHandle {
	if r == nil || host == nil {
		return HostHandle{}
	}
	id := strings.TrimSpace(host.ID())
	if id == "" {
		return HostHandle{}
	}
	r.mu.Lock()
	r.hosts[id] = host
	r.mu.Unlock()
	return HostHandle{id: id, registry: r}
}

func (r *HostRegistry) Detach(id string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.hosts, strings.TrimSpace(id))
	r.mu.Unlock()
}

func (r *HostRegistry) lookup(id string) (Host, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	host, ok := r.hosts[id]
	return host, ok
}

// HostHandle is a non-owning reference to a host.
type HostHandle struct {
	id       string
	registry *HostRegistry
}

func (h HostHandle) ID() string {
	return h.id
}

// Get returns the host while it is attached and not finishing.
func (h HostHandle) Get() (Host, bool) {
	if h.id == "" {
		return nil, false
	}
	host, ok := h.registry.lookup(h.id)
	if !ok || host == nil || host.Finishing() {
		return nil, false
	}
	return host, true
}

func (h HostHandle) Alive() bool {
	_, ok := h.Get()
	return ok
}

func hostUsable(host Host) bool {
	return host != nil && strings.TrimSpace(host.ID()) != "" && !host.Finishing()
}

package httpclient

import (
	"sort"
	"sync"
)

// CircuitBreakerStatus is a named circuit breaker summary for status
// reporting.
type CircuitBreakerStatus struct {
	Name  string              `json:"name"`
	Stats CircuitBreakerStats `json:"stats"`
}

// Registry holds named HTTP clients so their circuit breaker states can
// be observed from a status endpoint. The server registers one client
// per upstream concern ("playlist", "epg", "logos").
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates a new client registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
	}
}

// Register adds a named client to the registry.
// A client with the same name is replaced.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
}

// Unregister removes a client from the registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, name)
}

// Get returns a client by name, or nil if not found.
func (r *Registry) Get(name string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[name]
}

// Names returns the names of all registered clients, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Statuses returns the circuit breaker status of every registered
// client, sorted by name for stable output.
func (r *Registry) Statuses() []CircuitBreakerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]CircuitBreakerStatus, 0, len(r.clients))
	for name, client := range r.clients {
		statuses = append(statuses, CircuitBreakerStatus{
			Name:  name,
			Stats: client.Stats(),
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// DefaultRegistry is the global default registry for HTTP clients.
var DefaultRegistry = NewRegistry()

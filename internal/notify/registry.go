// Package notify routes server-initiated messages to connected clients.
package notify

import (
	"log"
	"sync"
)

// Sender delivers one payload to a single connected client.
type Sender interface {
	Send(payload any) error
}

// Registry tracks the active connection per client. Pushes to absent or
// failing clients are dropped; delivery is best effort.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Sender
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Sender)}
}

// Register binds clientID to sender, replacing any earlier connection.
func (r *Registry) Register(clientID string, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[clientID] = sender
}

// Unregister removes the binding, but only if sender still owns it. A
// reconnect that replaced the binding is left untouched.
func (r *Registry) Unregister(clientID string, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.clients[clientID]; ok && current == sender {
		delete(r.clients, clientID)
	}
}

// Push delivers payload to clientID if connected.
func (r *Registry) Push(clientID string, payload any) {
	r.mu.RLock()
	sender, ok := r.clients[clientID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if err := sender.Send(payload); err != nil {
		log.Printf("notify: push to %s failed: %v", clientID, err)
	}
}

// Connected reports whether clientID has an active connection.
func (r *Registry) Connected(clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[clientID]
	return ok
}

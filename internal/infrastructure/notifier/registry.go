// Package notifier pushes status events to the live connections of a record owner.
package notifier

import (
	"errors"
	"sync"
)

// ErrSlowConsumer is returned by Conn.Send when the connection cannot keep up.
var ErrSlowConsumer = errors.New("connection send buffer full")

// Conn is one live client connection.
type Conn interface {
	ID() string
	// Send queues an encoded event without blocking.
	Send(msg []byte) error
	Close()
}

// Registry maps owner ids to their open connections.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[string]Conn)}
}

func (r *Registry) Add(ownerID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[ownerID]
	if !ok {
		set = make(map[string]Conn)
		r.conns[ownerID] = set
	}
	set[conn.ID()] = conn
}

// Remove drops the connection and reports whether it was registered.
func (r *Registry) Remove(ownerID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[ownerID]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, ownerID)
	}
	return true
}

// Connections returns a snapshot of the owner's connections.
func (r *Registry) Connections(ownerID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.conns[ownerID]
	out := make([]Conn, 0, len(set))
	for _, conn := range set {
		out = append(out, conn)
	}
	return out
}

// Count returns the number of open connections across all owners.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, set := range r.conns {
		total += len(set)
	}
	return total
}

// drain removes and returns every connection.
func (r *Registry) drain() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Conn
	for _, set := range r.conns {
		for _, conn := range set {
			out = append(out, conn)
		}
	}
	r.conns = make(map[string]map[string]Conn)
	return out
}

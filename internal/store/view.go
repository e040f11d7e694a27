package store

import (
	"context"
	"sync"

	"github.com/enterprise/cvm-trust-verifier/internal/refvalue"
)

// View is the read side of the reference store consumed by the policy
// evaluator: a pure membership test over accepted digest values.
type View interface {
	// Contains reports whether value is accepted for the measurement key.
	Contains(key, value string) bool

	// Accepted returns the accepted values for key.
	Accepted(key string) []string
}

// MemoryStore holds accepted reference values in memory. Registration is
// idempotent: loading the same document twice leaves the accepted sets
// unchanged. It implements View for the evaluator and backs tests.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]map[string]struct{}
}

// NewMemoryStore creates an empty in-memory reference store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]map[string]struct{})}
}

// LoadDocument decodes a provenance document and merges its reference values
// into the accepted sets.
func (m *MemoryStore) LoadDocument(doc *refvalue.Document) error {
	ref, err := doc.Reference()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, accepted := range ref {
		set, ok := m.values[key]
		if !ok {
			set = make(map[string]struct{})
			m.values[key] = set
		}
		for _, v := range accepted {
			set[v] = struct{}{}
		}
	}
	return nil
}

// Register implements the registrar contract over the in-memory store,
// used when verification runs without a remote store.
func (m *MemoryStore) Register(_ context.Context, doc *refvalue.Document) error {
	return m.LoadDocument(doc)
}

// Add records a single accepted value for key.
func (m *MemoryStore) Add(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.values[key]
	if !ok {
		set = make(map[string]struct{})
		m.values[key] = set
	}
	set[value] = struct{}{}
}

// Remove drops a single accepted value for key.
func (m *MemoryStore) Remove(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.values[key]; ok {
		delete(set, value)
	}
}

// Contains implements View.
func (m *MemoryStore) Contains(key, value string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.values[key]
	if !ok {
		return false
	}
	_, ok = set[value]
	return ok
}

// Accepted implements View.
func (m *MemoryStore) Accepted(key string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.values[key]
	if !ok {
		return nil
	}
	accepted := make([]string, 0, len(set))
	for v := range set {
		accepted = append(accepted, v)
	}
	return accepted
}

// Len returns the number of measurement keys with at least one accepted
// value.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, set := range m.values {
		if len(set) > 0 {
			n++
		}
	}
	return n
}

package tabula

import (
	"sync"
)

// Releasable represents any resource holding Arrow memory.
//
// Tables, filter results and group results implement it. Always call
// Release() when done with a resource:
//
//	selected, rest, err := engine.Split(ctx, tbl, settings)
//	if err != nil {
//		return err
//	}
//	defer selected.Release()
//	defer rest.Release()
type Releasable interface {
	Release()
}

// MemoryManager releases many resources at once. It is useful when a job
// produces a variable number of tables whose lifetimes end together.
//
// The MemoryManager is safe for concurrent use from multiple goroutines.
type MemoryManager struct {
	mu        sync.Mutex
	resources []Releasable
}

// NewMemoryManager creates an empty memory manager.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{}
}

// Track registers a resource for release. nil resources are ignored.
func (m *MemoryManager) Track(resource Releasable) {
	if resource == nil {
		return
	}
	m.mu.Lock()
	m.resources = append(m.resources, resource)
	m.mu.Unlock()
}

// Count returns the number of tracked resources
func (m *MemoryManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resources)
}

// ReleaseAll releases tracked resources in reverse order of tracking and
// forgets them.
func (m *MemoryManager) ReleaseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.resources) - 1; i >= 0; i-- {
		m.resources[i].Release()
	}
	m.resources = m.resources[:0]
}

// WithMemoryManager runs fn with a fresh manager and releases everything it
// tracked when fn returns.
func WithMemoryManager(fn func(*MemoryManager) error) error {
	manager := NewMemoryManager()
	defer manager.ReleaseAll()
	return fn(manager)
}

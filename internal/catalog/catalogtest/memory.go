// Package catalogtest provides an in-memory catalog for tests.
package catalogtest

import (
	"context"
	"sync"

	"github.com/paintstock/paintstock/internal/catalog"
	"github.com/paintstock/paintstock/internal/shared"
)

// Memory is a catalog.Reader backed by maps.
type Memory struct {
	mu       sync.RWMutex
	products map[int64]catalog.Product
	branches map[int64]catalog.Branch
	calls    int
}

// New returns an empty Memory catalog.
func New() *Memory {
	return &Memory{products: map[int64]catalog.Product{}, branches: map[int64]catalog.Branch{}}
}

// AddProduct registers p.
func (m *Memory) AddProduct(p catalog.Product) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return m
}

// AddBranch registers b, defaulting to an active store.
func (m *Memory) AddBranch(b catalog.Branch) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.Status == "" {
		b.Status = catalog.BranchStatusActive
	}
	if b.Type == "" {
		b.Type = catalog.BranchTypeStore
	}
	m.branches[b.ID] = b
	return m
}

// Calls reports how many lookups reached the catalog.
func (m *Memory) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

func (m *Memory) GetProduct(ctx context.Context, id int64) (catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	p, ok := m.products[id]
	if !ok {
		return catalog.Product{}, shared.NotFound("catalog: product %d", id)
	}
	return p, nil
}

func (m *Memory) GetProducts(ctx context.Context, ids []int64) (map[int64]catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	out := make(map[int64]catalog.Product, len(ids))
	for _, id := range ids {
		p, ok := m.products[id]
		if !ok {
			return nil, shared.NotFound("catalog: product %d", id)
		}
		out[id] = p
	}
	return out, nil
}

func (m *Memory) GetBranch(ctx context.Context, id int64) (catalog.Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	b, ok := m.branches[id]
	if !ok {
		return catalog.Branch{}, shared.NotFound("catalog: branch %d", id)
	}
	return b, nil
}

func (m *Memory) DefaultWarehouse(ctx context.Context) (catalog.Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	var found *catalog.Branch
	for _, b := range m.branches {
		if b.Type != catalog.BranchTypeWarehouse || !b.Active() {
			continue
		}
		if found == nil || b.ID < found.ID {
			b := b
			found = &b
		}
	}
	if found == nil {
		return catalog.Branch{}, shared.NotFound("catalog: no active warehouse")
	}
	return *found, nil
}

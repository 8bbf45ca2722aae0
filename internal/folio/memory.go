package folio

import (
	"context"
	"sync"
)

type seqKey struct {
	branchID int64
	docType  DocType
}

// Memory is an in-process Sequencer used by tests and single-node tooling.
type Memory struct {
	mu     sync.Mutex
	values map[seqKey]int64
}

// NewMemory returns an empty Memory sequencer.
func NewMemory() *Memory {
	return &Memory{values: map[seqKey]int64{}}
}

func (m *Memory) Next(_ context.Context, branchID int64, docType DocType) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := seqKey{branchID, docType}
	m.values[k]++
	return m.values[k], nil
}

func (m *Memory) Current(_ context.Context, branchID int64, docType DocType) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[seqKey{branchID, docType}], nil
}

// Rewind undoes the last allocation, mirroring a rolled back transaction.
func (m *Memory) Rewind(branchID int64, docType DocType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := seqKey{branchID, docType}
	if m.values[k] > 0 {
		m.values[k]--
	}
}

// Package store provides in-memory ledger.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	books map[string][]ledger.RawRecord
}

func NewMemory() *Memory {
	return &Memory{books: make(map[string][]ledger.RawRecord)}
}

// Seed replaces a book's records. A nil slice registers an empty book.
func (m *Memory) Seed(book string, records []ledger.RawRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[book] = cloneRecords(records)
}

// Drop removes a book so that loading it fails.
func (m *Memory) Drop(book string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, book)
}

// Append adds records to a book, creating it if needed.
func (m *Memory) Append(_ context.Context, book string, records []ledger.RawRecord) error {
	for _, r := range records {
		if r == nil {
			return ledger.ErrInvalidRecord
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[book] = append(m.books[book], cloneRecords(records)...)
	return nil
}

// Load returns a copy of a book's records.
func (m *Memory) Load(_ context.Context, book string) ([]ledger.RawRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records, ok := m.books[book]
	if !ok {
		return nil, &ledger.SourceError{Book: book}
	}
	return cloneRecords(records), nil
}

// Books lists the known books in name order.
func (m *Memory) Books(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.books))
	for name := range m.books {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func cloneRecords(records []ledger.RawRecord) []ledger.RawRecord {
	out := make([]ledger.RawRecord, len(records))
	for i, r := range records {
		if r == nil {
			continue
		}
		c := make(ledger.RawRecord, len(r))
		for k, v := range r {
			c[k] = v
		}
		out[i] = c
	}
	return out
}

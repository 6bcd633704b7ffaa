// Package contactlog is the append-only record of advisor interactions,
// keyed by merchant tax id.
//
// Every backend honours the same ordering contract: ListByMerchant returns
// the most recently appended entry first, ExportAll returns the full log in
// append order (oldest first).
package contactlog

import (
	"sync"
)

// Store is the contact log contract shared by all backends.
type Store interface {
	// Append validates e and records it. A rejected entry leaves the log untouched.
	Append(e Entry) (Entry, error)
	// ListByMerchant returns the merchant's entries, most recent append first.
	// It returns an empty slice, not an error, when the merchant has none.
	ListByMerchant(taxID int64) ([]Entry, error)
	// ExportAll returns every entry in append order.
	ExportAll() ([]Entry, error)
	// Len returns the number of entries.
	Len() (int, error)
	Close() error
}

// MemoryStore keeps entries for the lifetime of the process only.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	closed  bool
}

// NewMemoryStore returns an empty volatile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(e Entry) (Entry, error) {
	e, err := Prepare(e)
	if err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Entry{}, ioError("append", "", ErrClosed)
	}
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *MemoryStore) ListByMerchant(taxID int64) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ioError("list", "", ErrClosed)
	}
	return newestFirst(s.entries, taxID), nil
}

func (s *MemoryStore) ExportAll() ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ioError("export", "", ErrClosed)
	}
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *MemoryStore) Len() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ioError("len", "", ErrClosed)
	}
	return len(s.entries), nil
}

// Close discards the entries.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

// newestFirst filters entries (in append order) by merchant and reverses them.
func newestFirst(entries []Entry, taxID int64) []Entry {
	out := []Entry{}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].MerchantTaxID == taxID {
			out = append(out, entries[i])
		}
	}
	return out
}

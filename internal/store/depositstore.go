package store

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/0xArcturus/gmx-synthetics/models"
)

// DepositStore is the durable keyed collection of pending deposits. All
// mutation goes through Insert and Remove under a single lock, so no two
// executors can both observe the same key as present: the first Remove wins
// and the second fails with ErrNotFound.
type DepositStore struct {
	mu       sync.RWMutex
	deposits map[string]*models.Deposit
	// keys preserves insertion order. Removed keys stay in the slice as
	// tombstones so GetKeys never reorders or compacts entries that were
	// already handed out.
	keys []string
}

// NewDepositStore creates an empty store.
func NewDepositStore() *DepositStore {
	return &DepositStore{
		deposits: make(map[string]*models.Deposit),
	}
}

// Insert assigns a fresh unique key to the deposit, appends it in insertion
// order and returns the key.
func (s *DepositStore) Insert(deposit *models.Deposit) string {
	key := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	deposit.Key = key
	s.deposits[key] = deposit
	s.keys = append(s.keys, key)
	return key
}

// Get returns the deposit stored under key. A key that never existed or was
// already removed fails with ErrNotFound.
func (s *DepositStore) Get(key string) (*models.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deposit, ok := s.deposits[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, key)
	}
	cp := *deposit
	return &cp, nil
}

// GetKeys returns up to count keys in insertion order starting at start.
// Keys of already-removed deposits are included as tombstoned positions so
// the sequence seen by earlier callers never shifts; use Pending to discover
// executable work.
func (s *DepositStore) GetKeys(start, count int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if start < 0 || start >= len(s.keys) || count <= 0 {
		return nil
	}
	end := start + count
	if end > len(s.keys) {
		end = len(s.keys)
	}
	out := make([]string, end-start)
	copy(out, s.keys[start:end])
	return out
}

// Pending returns up to limit keys of deposits still awaiting execution, in
// insertion order. A limit <= 0 returns all pending keys.
func (s *DepositStore) Pending(limit int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.deposits))
	for _, key := range s.keys {
		if _, ok := s.deposits[key]; !ok {
			continue
		}
		out = append(out, key)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Remove deletes the deposit stored under key and returns it. Removing a key
// that is absent fails with ErrNotFound, which makes a duplicate execution
// attempt detectable instead of a silent no-op.
func (s *DepositStore) Remove(key string) (*models.Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deposit, ok := s.deposits[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, key)
	}
	delete(s.deposits, key)
	return deposit, nil
}

// Count returns the number of deposits still pending.
func (s *DepositStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.deposits)
}

// TotalInserted returns how many deposits were ever inserted, including
// executed and cancelled ones.
func (s *DepositStore) TotalInserted() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

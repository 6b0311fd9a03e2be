package dedup

import (
	"context"
	"fmt"
	"sync"
)

// Store holds the last signature seen for each key. Swap must store value
// and return the previous one as a single atomic step.
type Store interface {
	Swap(ctx context.Context, key, value string) (prev string, found bool, err error)
}

// Filter suppresses a notification when it is identical to the one seen
// immediately before it under the same key. Only one signature per key is
// remembered.
type Filter struct {
	store Store
}

// NewFilter returns a Filter over store, or over a fresh MemoryStore when
// store is nil.
func NewFilter(store Store) *Filter {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Filter{store: store}
}

// Signature identifies an edit for repeat suppression.
func Signature(page, editor string) string {
	return page + ":" + editor
}

// IsRepeatAndRecord stores signature under key and reports whether the
// previously stored signature was the same. A key with no history is never
// a repeat.
func (f *Filter) IsRepeatAndRecord(ctx context.Context, key, signature string) (bool, error) {
	prev, found, err := f.store.Swap(ctx, key, signature)
	if err != nil {
		return false, fmt.Errorf("dedup: swap %q: %w", key, err)
	}
	return found && prev == signature, nil
}

// MemoryStore keeps signatures in process memory. State is lost on restart.
type MemoryStore struct {
	mu   sync.Mutex
	last map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{last: make(map[string]string)}
}

func (m *MemoryStore) Swap(_ context.Context, key, value string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, found := m.last[key]
	m.last[key] = value
	return prev, found, nil
}

// Len returns the number of keys with a recorded signature.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.last)
}

package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/cg-order-portal/internal/domain"
)

// MemoryLocker is a Locker for a single process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

// Acquire implements domain.Locker.
func (l *MemoryLocker) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrLocked)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

var (
	_ domain.Locker = (*MemoryLocker)(nil)
	_ domain.Locker = (*RedisLocker)(nil)
)

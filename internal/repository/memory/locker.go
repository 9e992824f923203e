package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kirinyoku/feisbook/internal/repository"
)

// Locker is an in-process repository.Locker. Locks expire after their TTL
// so a crashed holder cannot wedge a key.
type Locker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

var _ repository.Locker = (*Locker)(nil)

func NewLocker() *Locker {
	return &Locker{
		held:  make(map[string]time.Time),
		clock: time.Now,
	}
}

func (l *Locker) AcquireLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return false, nil
	}

	l.held[key] = now.Add(ttl)

	return true, nil
}

func (l *Locker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, key)

	return nil
}

package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/oxidesk/deskcore/domain/ports"
)

// Lock is an in-memory ports.DistributedLock fallback, used by tests and
// by the in-process profile — see infrastructure/lock for the Redis
// implementation. It keeps its holds in a map and does not use the
// distributed_locks table.
type Lock struct {
	mu    sync.Mutex
	held  map[string]held
}

type held struct {
	owner string
	until time.Time
}

func NewLock() *Lock {
	return &Lock{held: map[string]held{}}
}

func (l *Lock) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	h, exists := l.held[key]
	if exists && h.owner != owner && h.until.After(now) {
		return false, nil
	}
	l.held[key] = held{owner: owner, until: now.Add(ttl)}
	return true, nil
}

func (l *Lock) Release(ctx context.Context, key, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.held[key]; ok && h.owner == owner {
		delete(l.held, key)
	}
	return nil
}

var _ ports.DistributedLock = (*Lock)(nil)

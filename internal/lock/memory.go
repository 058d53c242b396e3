package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memLease struct {
	token   string
	expires time.Time
}

// MemoryLocker is the single-process fallback used when redis is not configured.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memLease
	now    func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: map[string]memLease{}, now: time.Now}
}

func (l *MemoryLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	_ = ctx
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expires) {
		return nil, false, nil
	}
	token := uuid.NewString()
	l.leases[key] = memLease{token: token, expires: now.Add(ttl)}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			if cur, ok := l.leases[key]; ok && cur.token == token {
				delete(l.leases, key)
			}
			l.mu.Unlock()
		})
	}
	return release, true, nil
}

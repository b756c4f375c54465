// Package inflight keeps at most one generation running per page.
package inflight

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

var ErrBusy = errors.New("generation already in flight for this page")

// Guard hands out per-page leases. A lease expires after its TTL so a hung
// call cannot block a page forever.
type Guard interface {
	Acquire(ctx context.Context, pageID string) (release func(), err error)
}

// Memory is a process-local Guard.
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	cache *gocache.Cache
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Memory{ttl: ttl, cache: gocache.New(ttl, 2*ttl)}
}

var _ Guard = (*Memory)(nil)

func (m *Memory) Acquire(_ context.Context, pageID string) (func(), error) {
	token := uuid.NewString()

	m.mu.Lock()
	err := m.cache.Add(pageID, token, m.ttl)
	m.mu.Unlock()
	if err != nil {
		return nil, ErrBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if v, ok := m.cache.Get(pageID); ok && v == token {
				m.cache.Delete(pageID)
			}
		})
	}, nil
}

// Busy reports whether pageID currently holds a lease.
func (m *Memory) Busy(pageID string) bool {
	_, ok := m.cache.Get(pageID)
	return ok
}

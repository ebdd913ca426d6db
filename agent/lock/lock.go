// Package lock serializes turns per application id. Turns for different ids
// never wait on each other.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// UnlockFunc releases a lock acquired from a Locker.
type UnlockFunc func(ctx context.Context) error

// Locker coordinates the same key across processes. Lock blocks until the
// key is held or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

type entry struct {
	sem  chan struct{}
	refs int
}

// Manager hands out one lock per key and forgets a key once nobody holds or
// waits for it.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry

	locker Locker
	ttl    time.Duration
}

type Option func(*Manager)

// WithLocker adds a distributed lock taken after the in-process one.
func WithLocker(locker Locker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		entries: make(map[string]*entry),
		ttl:     time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// TTL is the expiry handed to the distributed locker.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func (m *Manager) acquire(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(m.entries, key)
	}
}

// WithLock runs fn while holding key. Waiting is abandoned when ctx is done.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	e := m.acquire(key)
	defer m.release(key)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("wait for lock %s: %w", key, ctx.Err())
	}
	defer func() { <-e.sem }()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key, m.ttl)
		if err != nil {
			return fmt.Errorf("acquire distributed lock %s: %w", key, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Str("key", key).Err(err).Msg("release distributed lock failed, it will expire via ttl")
			}
		}()
	}

	return fn(ctx)
}

// Len reports how many keys are currently held or awaited.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

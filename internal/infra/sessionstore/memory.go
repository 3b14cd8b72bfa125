// Package sessionstore persists BFA sessions. Memory keeps them in process
// for single-instance and local runs; Redis shares them across replicas.
package sessionstore

import (
	"context"
	"time"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/infra/cache"
)

// Memory is a port.SessionStore over the in-memory TTL cache.
type Memory struct {
	items *cache.InMemory[domain.Session]
	ttl   time.Duration
}

// NewMemory creates an in-process store. Sessions expire after ttl unless
// their own ExpiresAt is sooner.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{items: cache.New[domain.Session](ttl), ttl: ttl}
}

func (m *Memory) Get(_ context.Context, id string) (*domain.Session, error) {
	sess, ok := m.items.Get(id)
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (m *Memory) Save(_ context.Context, sess *domain.Session) error {
	m.items.SetWithTTL(sess.ID, *sess, sessionTTL(sess, m.ttl))
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.items.Delete(id)
	return nil
}

// Close stops the background sweeper.
func (m *Memory) Close() error {
	m.items.Close()
	return nil
}

// sessionTTL is the time left until sess expires, capped at max.
func sessionTTL(sess *domain.Session, max time.Duration) time.Duration {
	if sess.ExpiresAt.IsZero() {
		return max
	}
	left := time.Until(sess.ExpiresAt)
	if left <= 0 {
		return time.Millisecond
	}
	if max > 0 && left > max {
		return max
	}
	return left
}

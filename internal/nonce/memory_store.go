package nonce

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore keeps issued nonces in a process-local map. Suitable for a
// single-instance deployment; use the redis store when running more than one.
type MemoryStore struct {
	mu     sync.Mutex
	nonces map[string]record
	now    func() time.Time
}

type record struct {
	issuedAt  time.Time
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nonces: make(map[string]record),
		now:    time.Now,
	}
}

func (s *MemoryStore) Save(ctx context.Context, value string, issuedAt time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[value] = record{issuedAt: issuedAt, expiresAt: issuedAt.Add(ttl)}
	return nil
}

func (s *MemoryStore) Consume(ctx context.Context, value string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.nonces[value]
	if !ok {
		return time.Time{}, false, nil
	}
	delete(s.nonces, value)

	if s.now().After(rec.expiresAt) {
		return time.Time{}, false, nil
	}
	return rec.issuedAt, true, nil
}

// Sweep drops nonces past their issue TTL and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for value, rec := range s.nonces {
		if now.After(rec.expiresAt) {
			delete(s.nonces, value)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps expired nonces on a ticker until ctx is cancelled.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration, log *zap.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					log.Debug("swept expired nonces", zap.Int("count", n))
				}
			}
		}
	}()
}

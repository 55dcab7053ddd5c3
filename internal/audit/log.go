// Package audit records authorized relay actions for later inspection. The
// log is passive: nothing here feeds back into authorization decisions.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/chainbid/relay/internal/models"
	"github.com/google/uuid"
)

// DefaultMaxEntries bounds the in-memory log; oldest entries are dropped
// first.
const DefaultMaxEntries = 2000

// Recorder is the append/list surface shared by the memory log and the
// postgres-backed trail.
type Recorder interface {
	Append(ctx context.Context, entry models.AuditEntry) error
	// List returns up to limit entries, newest first.
	List(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

// MemoryLog is a bounded in-memory recorder, newest entries at the front.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
	max     int
	now     func() time.Time
}

func NewMemoryLog(max int) *MemoryLog {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &MemoryLog{max: max, now: time.Now}
}

func (l *MemoryLog) Append(ctx context.Context, entry models.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now()
	}

	l.entries = append([]models.AuditEntry{entry}, l.entries...)
	if len(l.entries) > l.max {
		l.entries = l.entries[:l.max]
	}
	return nil
}

func (l *MemoryLog) List(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]models.AuditEntry, limit)
	copy(out, l.entries[:limit])
	return out, nil
}

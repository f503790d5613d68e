package service

import (
	"sync"
	"time"
)

// DefaultStateTTL - время жизни OAuth state
const DefaultStateTTL = 10 * time.Minute

type stateEntry struct {
	userID    int64
	expiresAt time.Time
}

// stateRegistry хранит выданные OAuth state до обмена кода.
// Каждый state погашается один раз.
type stateRegistry struct {
	ttl     time.Duration
	entries map[string]stateEntry
	mu      sync.Mutex
}

func newStateRegistry(ttl time.Duration) *stateRegistry {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &stateRegistry{ttl: ttl, entries: make(map[string]stateEntry)}
}

// Register запоминает state пользователя и чистит просроченные
func (r *stateRegistry) Register(userID int64, state string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, entry := range r.entries {
		if !now.Before(entry.expiresAt) {
			delete(r.entries, key)
		}
	}
	r.entries[state] = stateEntry{userID: userID, expiresAt: now.Add(r.ttl)}
}

// Consume погашает state пользователя. Чужой state не трогается.
func (r *stateRegistry) Consume(userID int64, state string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[state]
	if !ok || entry.userID != userID {
		return false
	}
	delete(r.entries, state)
	return now.Before(entry.expiresAt)
}

// Len возвращает количество ожидающих state
func (r *stateRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

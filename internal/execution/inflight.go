package execution

import (
	"sync"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
)

// InflightLock enforces at most one outstanding execution attempt per user
// when executionInflightLock is enabled. Subsequent attempts for a locked
// user are dropped with reason "inflight".
type InflightLock struct {
	mu      sync.Mutex
	enabled bool
	locked  map[chaintypes.Address]bool
}

// NewInflightLock constructs an InflightLock. If enabled is false,
// TryAcquire always succeeds and Release is a no-op.
func NewInflightLock(enabled bool) *InflightLock {
	return &InflightLock{enabled: enabled, locked: make(map[chaintypes.Address]bool)}
}

// TryAcquire attempts to lock user for an execution attempt, returning
// false if one is already outstanding.
func (l *InflightLock) TryAcquire(user chaintypes.Address) bool {
	if !l.enabled {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked[user] {
		return false
	}
	l.locked[user] = true
	return true
}

// Release clears user's inflight lock.
func (l *InflightLock) Release(user chaintypes.Address) {
	if !l.enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locked, user)
}

// Locked reports whether user currently holds the lock, for tests/metrics.
func (l *InflightLock) Locked(user chaintypes.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked[user]
}

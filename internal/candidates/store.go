// Package candidates implements the bounded candidate store, hot set,
// low-HF tracker, and watch set, following the core.Service lifecycle
// conventions for the owning component, and built on plain Go maps/slices
// for the bounded structures (see DESIGN.md for the rationale).
package candidates

import (
	"sort"
	"sync"
	"time"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
)

// Category is the HF-band classification assigned after resolution.
type Category int

const (
	CategoryCold Category = iota
	CategoryWarm
	CategoryHot
)

// Candidate is one tracked borrower along with its resolution state.
type Candidate struct {
	User          chaintypes.Address
	Category      Category
	LastHF        float64
	Dirty         bool
	LastUpdatedMs int64

	// consecutiveAboveThreshold counts resolutions in a row where HF exceeded
	// the hysteresis band, used to gate hot->warm/cold demotion.
	consecutiveAboveThreshold int
}

// Thresholds configures the HF bands and hysteresis that drive category
// transitions.
type Thresholds struct {
	HotlistMaxHF   float64
	WarmMaxHF      float64
	HysteresisBps  int
}

// Store is the bounded candidate set. On insert at capacity, it evicts the
// lowest-priority candidate: prefer cold over warm over hot; within a
// category, evict the highest HF; ties broken by oldest LastUpdatedMs.
type Store struct {
	mu         sync.Mutex
	capacity   int
	byUser     map[chaintypes.Address]*Candidate
	thresholds Thresholds
}

// NewStore constructs a Store with the given capacity and category
// thresholds.
func NewStore(capacity int, thresholds Thresholds) *Store {
	if capacity <= 0 {
		capacity = 5000
	}
	return &Store{
		capacity:   capacity,
		byUser:     make(map[chaintypes.Address]*Candidate),
		thresholds: thresholds,
	}
}

// Upsert adds or refreshes a candidate, marking it dirty. If inserting a
// new user would exceed capacity, the lowest-priority existing candidate is
// evicted first.
func (s *Store) Upsert(user chaintypes.Address, nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byUser[user]; ok {
		existing.Dirty = true
		existing.LastUpdatedMs = nowMs
		return
	}

	if len(s.byUser) >= s.capacity {
		s.evictLockedLocked()
	}

	s.byUser[user] = &Candidate{
		User:          user,
		Category:      CategoryCold,
		Dirty:         true,
		LastUpdatedMs: nowMs,
	}
}

// evictLockedLocked must be called with s.mu held.
func (s *Store) evictLockedLocked() {
	var victim *Candidate
	for _, c := range s.byUser {
		if victim == nil || lowerPriority(c, victim) {
			victim = c
		}
	}
	if victim != nil {
		delete(s.byUser, victim.User)
	}
}

// lowerPriority reports whether a is a weaker candidate to keep than b:
// cold < warm < hot, then higher HF evicted first, then older timestamp.
func lowerPriority(a, b *Candidate) bool {
	if a.Category != b.Category {
		return a.Category < b.Category
	}
	if a.LastHF != b.LastHF {
		return a.LastHF > b.LastHF
	}
	return a.LastUpdatedMs < b.LastUpdatedMs
}

// ApplyResolution records a fresh HF reading and recomputes the candidate's
// category, applying hysteresis on hot->non-hot demotion.
func (s *Store) ApplyResolution(user chaintypes.Address, hf float64, nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byUser[user]
	if !ok {
		return
	}
	c.LastHF = hf
	c.Dirty = false
	c.LastUpdatedMs = nowMs

	hysteresisBand := s.thresholds.HotlistMaxHF * (1 + float64(s.thresholds.HysteresisBps)/10000)

	switch {
	case hf <= s.thresholds.HotlistMaxHF:
		c.Category = CategoryHot
		c.consecutiveAboveThreshold = 0
	case c.Category == CategoryHot:
		if hf > hysteresisBand {
			c.consecutiveAboveThreshold++
			if c.consecutiveAboveThreshold >= 2 {
				c.Category = demotedCategory(hf, s.thresholds)
				c.consecutiveAboveThreshold = 0
			}
		} else {
			c.consecutiveAboveThreshold = 0
		}
	default:
		c.Category = demotedCategory(hf, s.thresholds)
	}
}

func demotedCategory(hf float64, t Thresholds) Category {
	if hf <= t.WarmMaxHF {
		return CategoryWarm
	}
	return CategoryCold
}

// Get returns a copy of the tracked candidate, if present.
func (s *Store) Get(user chaintypes.Address) (Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byUser[user]
	if !ok {
		return Candidate{}, false
	}
	return *c, true
}

// Len reports the number of tracked candidates.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byUser)
}

// DirtyFirst returns all tracked users with dirty-marked candidates sorted
// first, used by the HF resolver's "dirty-first" paging order.
func (s *Store) DirtyFirst() []chaintypes.Address {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]chaintypes.Address, 0, len(s.byUser))
	for u := range s.byUser {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		ci, cj := s.byUser[users[i]], s.byUser[users[j]]
		if ci.Dirty != cj.Dirty {
			return ci.Dirty
		}
		return users[i].Hex() < users[j].Hex()
	})
	return users
}

// HotSet returns all candidates currently categorized hot.
func (s *Store) HotSet() []chaintypes.Address {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hot []chaintypes.Address
	for u, c := range s.byUser {
		if c.Category == CategoryHot {
			hot = append(hot, u)
		}
	}
	return hot
}

// unixMs returns the current time in milliseconds, the timestamp unit used
// throughout this package's LastUpdatedMs fields.
func unixMs() int64 { return time.Now().UnixMilli() }

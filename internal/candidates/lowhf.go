package candidates

import (
	"container/list"
	"sync"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
)

// LowHFRecordMode selects how the low-HF tracker records repeated
// observations of the same user.
type LowHFRecordMode string

const (
	RecordAll LowHFRecordMode = "all"
	RecordMin LowHFRecordMode = "min"
)

// LowHFEntry is one tracked low-HF observation.
type LowHFEntry struct {
	User   chaintypes.Address
	LastHF float64
}

// LowHFTracker records users observed with HF <= threshold, one slot per
// user in both modes. Mode "all" keeps only each user's latest sample: a
// repeat observation replaces the earlier HF and moves the user to the back
// of the FIFO order, and the front user is evicted once more than capacity
// users are tracked; earlier samples of a user are not retained. Mode "min"
// keeps the minimum HF ever observed per user (sticky-minimum) and evicts
// nothing, so capacity does not bound it.
type LowHFTracker struct {
	mu        sync.Mutex
	mode      LowHFRecordMode
	threshold float64
	capacity  int

	entries map[chaintypes.Address]*list.Element // list.Element.Value is *LowHFEntry
	order   *list.List                            // FIFO order, mode "all" only
}

// NewLowHFTracker constructs a tracker for HF <= threshold observations.
func NewLowHFTracker(threshold float64, capacity int, mode LowHFRecordMode) *LowHFTracker {
	if capacity <= 0 {
		capacity = 20000
	}
	return &LowHFTracker{
		mode:      mode,
		threshold: threshold,
		capacity:  capacity,
		entries:   make(map[chaintypes.Address]*list.Element),
		order:     list.New(),
	}
}

// Observe records hf for user if hf <= threshold. Returns false if the
// observation was ignored (hf above threshold).
func (t *LowHFTracker) Observe(user chaintypes.Address, hf float64) bool {
	if hf > t.threshold {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, ok := t.entries[user]; ok {
		entry := elem.Value.(*LowHFEntry)
		if t.mode == RecordMin {
			if hf < entry.LastHF {
				entry.LastHF = hf
			}
			return true
		}
		entry.LastHF = hf
		t.order.MoveToBack(elem)
		return true
	}

	entry := &LowHFEntry{User: user, LastHF: hf}
	elem := t.order.PushBack(entry)
	t.entries[user] = elem

	if t.mode == RecordAll && len(t.entries) > t.capacity {
		oldest := t.order.Front()
		if oldest != nil {
			t.order.Remove(oldest)
			delete(t.entries, oldest.Value.(*LowHFEntry).User)
		}
	}
	return true
}

// Get returns the tracked entry for a user, if any.
func (t *LowHFTracker) Get(user chaintypes.Address) (LowHFEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	elem, ok := t.entries[user]
	if !ok {
		return LowHFEntry{}, false
	}
	return *elem.Value.(*LowHFEntry), true
}

// Len reports the number of tracked users.
func (t *LowHFTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// WatchSetMember returns the union of hot-set users and low-HF entries with
// LastHF <= 1.03.
func WatchSetMember(hotSet []chaintypes.Address, tracker *LowHFTracker) []chaintypes.Address {
	const watchSetLowHFCeiling = 1.03

	seen := make(map[chaintypes.Address]struct{}, len(hotSet))
	result := make([]chaintypes.Address, 0, len(hotSet))

	for _, u := range hotSet {
		if _, ok := seen[u]; !ok {
			seen[u] = struct{}{}
			result = append(result, u)
		}
	}

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	for u, elem := range tracker.entries {
		entry := elem.Value.(*LowHFEntry)
		if entry.LastHF > watchSetLowHFCeiling {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		result = append(result, u)
	}
	return result
}

package predictive

import (
	"strings"
	"sync"
	"time"
)

// QueueRejectReason is a typed reason shouldEvaluate rejected a candidate.
type QueueRejectReason string

const (
	QueueRejectSafetyMax       QueueRejectReason = "queue_safety_max_exceeded"
	QueueRejectCandidateBudget QueueRejectReason = "candidate_budget_exceeded"
	QueueRejectCallBudget      QueueRejectReason = "call_budget_exceeded"
	QueueRejectDedupSameBlock  QueueRejectReason = "dedup_same_block"
	QueueRejectBlockDebounce   QueueRejectReason = "dedup_block_debounce"
	QueueRejectCooldown        QueueRejectReason = "dedup_cooldown"
)

// QueueConfig carries the per-block budgets for the predictive queue.
type QueueConfig struct {
	SafetyMax        int
	CandidatesPerBlock int
	CallsPerBlock      int
	BlockDebounce      uint64 // default 3
	CooldownSec        int
}

type queueEntry struct {
	lastEvaluatedBlock uint64
	lastEvaluatedMs    int64
}

// QueueManager enforces dedup and per-block budgets for predictive
// evaluations. One instance per process, passed explicitly to the
// predictive pipeline — never a package-level global.
type QueueManager struct {
	mu     sync.Mutex
	cfg    QueueConfig
	nowFn  func() time.Time

	entries map[string]*queueEntry

	currentBlock            uint64
	candidatesThisBlock     int
	callsThisBlock          int
	budgetExceededThisBlock bool
}

// NewQueueManager constructs a QueueManager. nowFn defaults to time.Now;
// tests may override it for deterministic cooldown checks.
func NewQueueManager(cfg QueueConfig, nowFn func() time.Time) *QueueManager {
	if cfg.BlockDebounce == 0 {
		cfg.BlockDebounce = 3
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &QueueManager{cfg: cfg, nowFn: nowFn, entries: make(map[string]*queueEntry)}
}

// key builds the `user|scenario` key, lowercasing user.
func key(user, scenario string) string {
	return strings.ToLower(user) + "|" + scenario
}

// Decision is the queue manager's outcome for shouldEvaluate.
type Decision struct {
	Accept bool
	Reason QueueRejectReason
}

// ShouldEvaluate implements the ordered gating algorithm.
func (q *QueueManager) ShouldEvaluate(user, scenario string, block uint64) Decision {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.advanceBlockLocked(block)

	if len(q.entries) >= q.cfg.SafetyMax && q.cfg.SafetyMax > 0 {
		return Decision{Reason: QueueRejectSafetyMax}
	}
	if q.cfg.CandidatesPerBlock > 0 && q.candidatesThisBlock >= q.cfg.CandidatesPerBlock {
		q.budgetExceededThisBlock = true
		return Decision{Reason: QueueRejectCandidateBudget}
	}
	if q.cfg.CallsPerBlock > 0 && q.callsThisBlock >= q.cfg.CallsPerBlock {
		q.budgetExceededThisBlock = true
		return Decision{Reason: QueueRejectCallBudget}
	}

	k := key(user, scenario)
	if existing, ok := q.entries[k]; ok {
		if existing.lastEvaluatedBlock == block {
			return Decision{Reason: QueueRejectDedupSameBlock}
		}
		if block-existing.lastEvaluatedBlock < q.cfg.BlockDebounce {
			return Decision{Reason: QueueRejectBlockDebounce}
		}
		if q.cfg.CooldownSec > 0 {
			elapsedMs := q.nowFn().UnixMilli() - existing.lastEvaluatedMs
			if elapsedMs < int64(q.cfg.CooldownSec)*1000 {
				return Decision{Reason: QueueRejectCooldown}
			}
		}
	}

	return Decision{Accept: true}
}

// advanceBlockLocked must be called with q.mu held.
func (q *QueueManager) advanceBlockLocked(block uint64) {
	if block == q.currentBlock {
		return
	}
	q.currentBlock = block
	q.candidatesThisBlock = 0
	q.callsThisBlock = 0
	q.budgetExceededThisBlock = false
}

// MarkEvaluated records that (user, scenario) was evaluated at block,
// incrementing candidatesThisBlock. Idempotent within a block: repeated
// calls for the same key in the same block never push candidatesThisBlock
// past 1 for that key.
func (q *QueueManager) MarkEvaluated(user, scenario string, block uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	k := key(user, scenario)
	existing, ok := q.entries[k]
	alreadyCountedThisBlock := ok && existing.lastEvaluatedBlock == block

	if !ok {
		existing = &queueEntry{}
		q.entries[k] = existing
	}
	existing.lastEvaluatedBlock = block
	existing.lastEvaluatedMs = q.nowFn().UnixMilli()

	if !alreadyCountedThisBlock {
		q.candidatesThisBlock++
	}
}

// IncrementCalls records n RPC calls spent evaluating this block.
func (q *QueueManager) IncrementCalls(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.callsThisBlock += n
}

// BudgetExceededThisBlock reports whether any budget gate rejected during
// the current block.
func (q *QueueManager) BudgetExceededThisBlock() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.budgetExceededThisBlock
}

// QueueSize reports the number of tracked (user, scenario) entries.
func (q *QueueManager) QueueSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// PruneStale removes entries whose lastEvaluatedMs is older than maxAgeMs.
func (q *QueueManager) PruneStale(maxAgeMs int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.nowFn().UnixMilli()
	for k, e := range q.entries {
		if now-e.lastEvaluatedMs > maxAgeMs {
			delete(q.entries, k)
		}
	}
}

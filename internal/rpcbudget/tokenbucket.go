// Package rpcbudget implements the process-global RPC token bucket, error
// classification, and provider pool, built on
// golang.org/x/time/rate and generalized with FIFO-queued blocking
// acquisition, minimum inter-acquisition spacing, and additive jitter.
package rpcbudget

import (
	"container/list"
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config describes the token bucket's shape: burst capacity, steady-state
// refill rate, minimum inter-acquisition spacing, and additive jitter.
type Config struct {
	Capacity     int           // rpcBudgetBurst
	RefillRate   float64       // rpcBudgetCuPerSec
	MinSpacing   time.Duration // rpcBudgetMinSpacingMs
	JitterMax    time.Duration // rpcJitterMs, additive upper bound
}

// DefaultConfig mirrors the config package's RPC defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:   50,
		RefillRate: 20,
		MinSpacing: 10 * time.Millisecond,
		JitterMax:  5 * time.Millisecond,
	}
}

// waiter is a single FIFO queue entry.
type waiter struct {
	n    int
	done chan struct{}
}

// TokenBucket bounds outbound RPC call rate process-wide. It is constructed
// once at startup and passed explicitly into every component that issues
// RPC calls — never a package-level global (per the core's lifecycle
// design, see internal/core).
type TokenBucket struct {
	cfg     Config
	limiter *rate.Limiter

	mu           sync.Mutex
	lastAcquired time.Time
	queue        *list.List // of *waiter, processed FIFO
	processing   bool
}

// New constructs a TokenBucket. Capacity and RefillRate are required;
// zero/negative values fall back to DefaultConfig's equivalents.
func New(cfg Config) *TokenBucket {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.RefillRate <= 0 {
		cfg.RefillRate = DefaultConfig().RefillRate
	}
	return &TokenBucket{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RefillRate), cfg.Capacity),
		queue:   list.New(),
	}
}

// TryAcquire returns true without blocking if n tokens and the spacing
// constraint are both satisfied right now.
func (b *TokenBucket) TryAcquire(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.spacingSatisfied() {
		return false
	}
	if !b.limiter.AllowN(time.Now(), n) {
		return false
	}
	b.lastAcquired = time.Now()
	return true
}

func (b *TokenBucket) spacingSatisfied() bool {
	if b.cfg.MinSpacing <= 0 {
		return true
	}
	return time.Since(b.lastAcquired) >= b.cfg.MinSpacing
}

// Acquire blocks until n tokens are available and the spacing constraint is
// met, honoring ctx cancellation. Waiters are served strictly FIFO: a
// single background goroutine drains the queue, releasing the front waiter
// once it can be admitted and polling again until then.
func (b *TokenBucket) Acquire(ctx context.Context, n int) error {
	if b.TryAcquire(n) {
		b.jitterSleep(ctx)
		return nil
	}

	w := &waiter{n: n, done: make(chan struct{})}
	b.mu.Lock()
	elem := b.queue.PushBack(w)
	b.startProcessingLocked()
	b.mu.Unlock()

	select {
	case <-w.done:
		b.jitterSleep(ctx)
		return nil
	case <-ctx.Done():
		b.mu.Lock()
		b.queue.Remove(elem)
		b.mu.Unlock()
		return ctx.Err()
	}
}

// startProcessingLocked launches the single queue-draining goroutine if one
// is not already running. Must be called with b.mu held.
func (b *TokenBucket) startProcessingLocked() {
	if b.processing {
		return
	}
	b.processing = true
	go b.drainQueue()
}

func (b *TokenBucket) drainQueue() {
	for {
		b.mu.Lock()
		front := b.queue.Front()
		if front == nil {
			b.processing = false
			b.mu.Unlock()
			return
		}
		w := front.Value.(*waiter)

		if b.spacingSatisfied() && b.limiter.AllowN(time.Now(), w.n) {
			b.lastAcquired = time.Now()
			b.queue.Remove(front)
			b.mu.Unlock()
			close(w.done)
			continue
		}
		b.mu.Unlock()

		// Sleep the remaining spacing gap (at most 50ms, or 1ms once spacing
		// is met), then re-check; bounded sleep keeps the processor
		// responsive to cancellations removing waiters mid-wait.
		time.Sleep(b.nextCheckDelay())
	}
}

func (b *TokenBucket) nextCheckDelay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.cfg.MinSpacing - time.Since(b.lastAcquired)
	if remaining <= 0 {
		return time.Millisecond
	}
	if remaining > 50*time.Millisecond {
		return 50 * time.Millisecond
	}
	return remaining
}

func (b *TokenBucket) jitterSleep(ctx context.Context) {
	if b.cfg.JitterMax <= 0 {
		return
	}
	d := time.Duration(rand.Int63n(int64(b.cfg.JitterMax) + 1))
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// QueueLen reports the current number of waiters, used by metrics/tests.
func (b *TokenBucket) QueueLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len()
}

// Package scanregistry implements the sole cross-trigger scan-dedup
// coordination point, built on github.com/hashicorp/golang-lru/v2 for the
// bounded recently-completed set, and on core.Service lifecycle
// conventions for its periodic-cleanup goroutine.
package scanregistry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TriggerType identifies what kind of event caused a scan attempt.
type TriggerType string

const (
	TriggerEvent      TriggerType = "event"
	TriggerPrice      TriggerType = "price"
	TriggerSweep      TriggerType = "sweep"
	TriggerPredictive TriggerType = "predictive"
)

// SuppressReason explains why Acquire returned false.
type SuppressReason string

const (
	ReasonInFlight          SuppressReason = "in_flight"
	ReasonRecentlyCompleted SuppressReason = "recently_completed"
)

// Key identifies one scan key shape: triggerType:normalizedSubject:
// bBLOCK:reasonHash.
type Key struct {
	Trigger TriggerType
	Subject string
	Block   uint64
	Reason  string
}

// normalizedSubject normalizes a scan subject: first 12 chars if
// 0x-prefixed, else lowercase.
func normalizedSubject(raw string) string {
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		if len(raw) > 12 {
			return strings.ToLower(raw[:12])
		}
		return strings.ToLower(raw)
	}
	return strings.ToLower(raw)
}

// NewKey builds a Key, normalizing subject and hashing the free-form reason.
func NewKey(trigger TriggerType, subject string, block uint64, reason string) Key {
	return Key{
		Trigger: trigger,
		Subject: normalizedSubject(subject),
		Block:   block,
		Reason:  reasonHash(reason),
	}
}

func reasonHash(reason string) string {
	sum := sha256.Sum256([]byte(reason))
	return hex.EncodeToString(sum[:])[:8]
}

// String renders the key in its canonical triggerType:normalizedSubject:
// bBLOCK:reasonHash shape.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:b%d:%s", k.Trigger, k.Subject, k.Block, k.Reason)
}

type inFlightEntry struct {
	startTime time.Time
	ttl       time.Duration
}

// Counters is a minimal metrics sink the registry reports suppression/
// acquire/release events to, kept decoupled from internal/metrics so this
// package has no Prometheus dependency of its own.
type Counters interface {
	IncSuppressed(trigger TriggerType, reason SuppressReason)
	IncAcquired()
	IncReleased()
}

type noopCounters struct{}

func (noopCounters) IncSuppressed(TriggerType, SuppressReason) {}
func (noopCounters) IncAcquired()                               {}
func (noopCounters) IncReleased()                               {}

// Registry is the process-wide scan registry. Constructed once at startup
// by cmd/liquidator, which starts and stops it; never a package-level
// global.
type Registry struct {
	mu                sync.Mutex
	inFlight          map[Key]inFlightEntry
	recentlyCompleted *lru.Cache[Key, time.Time]
	defaultTTL        time.Duration
	counters          Counters

	stopCh chan struct{}
	stopOnce sync.Once
}

// Config controls TTL and recently-completed capacity.
type Config struct {
	AvgBlockTime             time.Duration
	MaxRecentlyCompletedSize int
	Counters                 Counters
}

// New constructs a Registry. TTL = max(2×avgBlockTime, 10s).
func New(cfg Config) *Registry {
	ttl := 2 * cfg.AvgBlockTime
	if ttl < 10*time.Second {
		ttl = 10 * time.Second
	}
	size := cfg.MaxRecentlyCompletedSize
	if size <= 0 {
		size = 1000
	}
	counters := cfg.Counters
	if counters == nil {
		counters = noopCounters{}
	}

	cache, _ := lru.New[Key, time.Time](size)
	return &Registry{
		inFlight:          make(map[Key]inFlightEntry),
		recentlyCompleted: cache,
		defaultTTL:        ttl,
		counters:          counters,
		stopCh:            make(chan struct{}),
	}
}

// Acquire returns true only if no in-flight and no recently-completed entry
// for key is within TTL; otherwise it increments scans_suppressed with the
// applicable reason.
func (r *Registry) Acquire(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if entry, ok := r.inFlight[key]; ok {
		if now.Sub(entry.startTime) < entry.ttl {
			r.counters.IncSuppressed(key.Trigger, ReasonInFlight)
			return false
		}
		delete(r.inFlight, key)
	}

	if completedAt, ok := r.recentlyCompleted.Get(key); ok {
		if now.Sub(completedAt) < r.defaultTTL {
			r.counters.IncSuppressed(key.Trigger, ReasonRecentlyCompleted)
			return false
		}
		r.recentlyCompleted.Remove(key)
	}

	r.inFlight[key] = inFlightEntry{startTime: now, ttl: r.defaultTTL}
	r.counters.IncAcquired()
	return true
}

// Release moves key from in-flight to recently-completed.
func (r *Registry) Release(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.inFlight, key)
	r.recentlyCompleted.Add(key, time.Now())
	r.counters.IncReleased()
}

// cleanup removes expired in-flight entries (a key whose holder crashed
// without releasing). Recently-completed entries self-expire via TTL
// comparison in Acquire and via LRU eviction, so cleanup only targets
// in-flight.
func (r *Registry) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for k, entry := range r.inFlight {
		if now.Sub(entry.startTime) >= entry.ttl {
			delete(r.inFlight, k)
		}
	}
}

// Start launches the periodic cleanup loop at ttl/2 (min 5s).
func (r *Registry) Start() {
	interval := r.defaultTTL / 2
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.cleanup()
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Stop halts the cleanup loop.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

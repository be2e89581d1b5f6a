// Package bus provides the typed event bus that breaks the tracker ↔
// resolver ↔ executor cycle, built on go-ethereum's
// event.Feed/event.Subscription (exercised directly in
// ethereum-go-ethereum's event/example_feed_test.go) — a typed, multi-
// subscriber, drop-safe pub/sub primitive already in the dependency graph
// via github.com/ethereum/go-ethereum.
package bus

import (
	"time"

	"github.com/ethereum/go-ethereum/event"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
)

// LiquidatableEvent is emitted by the HF resolver for a user whose HF has
// crossed below 1.0.
type LiquidatableEvent struct {
	User        chaintypes.Address
	HF          float64
	Block       uint64
	TriggerType string
	Timestamp   time.Time
}

// PredictiveCandidateEvent is emitted by the predictive pipeline for a
// user projected to cross the execution threshold soon.
type PredictiveCandidateEvent struct {
	User            chaintypes.Address
	HFCurrent       float64
	HFProjected     float64
	EtaSec          float64
	DebtUsd         float64
	FlaggedFastpath bool
}

// InvalidateIntentEvent tells the execution path to drop or revalidate a
// cached intent for a user, e.g. because a referenced price moved.
type InvalidateIntentEvent struct {
	User   chaintypes.Address
	Reason string
}

// Bus owns one event.Feed per event type. It is constructed once at
// startup and passed explicitly to every component that publishes or
// subscribes — there is no package-level singleton.
type Bus struct {
	ingest            event.Feed
	liquidatable      event.Feed
	predictive        event.Feed
	invalidateIntent  event.Feed
}

// New constructs an empty Bus.
func New() *Bus { return &Bus{} }

// PublishIngestEvent broadcasts a decoded protocol/oracle event from
// internal/ingest to every channel registered through SubscribeIngestEvent.
func (b *Bus) PublishIngestEvent(e chaintypes.Event) int {
	return b.ingest.Send(e)
}

// SubscribeIngestEvent registers ch to receive decoded events.
func (b *Bus) SubscribeIngestEvent(ch chan<- chaintypes.Event) event.Subscription {
	return b.ingest.Subscribe(ch)
}

// PublishLiquidatable broadcasts to all current subscribers. Per
// event.Feed semantics, Send blocks until every subscriber has received
// the value, so subscribers must consume promptly or buffer internally.
func (b *Bus) PublishLiquidatable(e LiquidatableEvent) int {
	return b.liquidatable.Send(e)
}

// SubscribeLiquidatable registers ch to receive LiquidatableEvent values.
func (b *Bus) SubscribeLiquidatable(ch chan<- LiquidatableEvent) event.Subscription {
	return b.liquidatable.Subscribe(ch)
}

// PublishPredictiveCandidate broadcasts a predictive-candidate event.
func (b *Bus) PublishPredictiveCandidate(e PredictiveCandidateEvent) int {
	return b.predictive.Send(e)
}

// SubscribePredictiveCandidate registers ch to receive predictive-candidate
// events.
func (b *Bus) SubscribePredictiveCandidate(ch chan<- PredictiveCandidateEvent) event.Subscription {
	return b.predictive.Subscribe(ch)
}

// PublishInvalidateIntent broadcasts an intent-invalidation signal.
func (b *Bus) PublishInvalidateIntent(e InvalidateIntentEvent) int {
	return b.invalidateIntent.Send(e)
}

// SubscribeInvalidateIntent registers ch to receive intent-invalidation
// events.
func (b *Bus) SubscribeInvalidateIntent(ch chan<- InvalidateIntentEvent) event.Subscription {
	return b.invalidateIntent.Subscribe(ch)
}

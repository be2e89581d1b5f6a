package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
)

func TestBus_LiquidatablePublishSubscribe(t *testing.T) {
	b := New()
	ch := make(chan LiquidatableEvent, 1)
	sub := b.SubscribeLiquidatable(ch)
	defer sub.Unsubscribe()

	user := chaintypes.NormalizeAddress("0x1111111111111111111111111111111111111111")
	sent := b.PublishLiquidatable(LiquidatableEvent{User: user, HF: 0.9, Block: 100})
	require.Equal(t, 1, sent)

	select {
	case got := <-ch:
		require.Equal(t, user, got.User)
		require.InDelta(t, 0.9, got.HF, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for liquidatable event")
	}
}

func TestBus_PredictiveCandidateNoSubscribersReturnsZero(t *testing.T) {
	b := New()
	sent := b.PublishPredictiveCandidate(PredictiveCandidateEvent{})
	require.Equal(t, 0, sent)
}

func TestBus_InvalidateIntentMultipleSubscribers(t *testing.T) {
	b := New()
	chA := make(chan InvalidateIntentEvent, 1)
	chB := make(chan InvalidateIntentEvent, 1)
	subA := b.SubscribeInvalidateIntent(chA)
	subB := b.SubscribeInvalidateIntent(chB)
	defer subA.Unsubscribe()
	defer subB.Unsubscribe()

	sent := b.PublishInvalidateIntent(InvalidateIntentEvent{Reason: "price_moved"})
	require.Equal(t, 2, sent)
	require.Equal(t, "price_moved", (<-chA).Reason)
	require.Equal(t, "price_moved", (<-chB).Reason)
}

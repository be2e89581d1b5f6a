package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/bus"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/core"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/logging"
)

// LiveReader is the subset of chainclient.ReadClient the live subscriber
// needs.
type LiveReader interface {
	SubscribeLogs(ctx context.Context, filter ethereum.FilterQuery) (<-chan types.Log, ethereum.Subscription, error)
	SubscribeBlocks(ctx context.Context) (<-chan *types.Header, ethereum.Subscription, error)
	GetBlockNumber(ctx context.Context) (uint64, error)
}

// Metrics reports ingest-stage counters, kept separate from internal/metrics
// so this package carries no Prometheus dependency.
type Metrics interface {
	IncEventsIngested(kind string)
	IncWSReconnects()
}

type noopMetrics struct{}

func (noopMetrics) IncEventsIngested(string) {}
func (noopMetrics) IncWSReconnects()         {}

// Config tunes the live subscriber's reconnect/heartbeat behavior.
type Config struct {
	Addresses        []chaintypes.Address
	HeartbeatTimeout time.Duration // default 15s
	ReconnectBackoffMin time.Duration
	ReconnectBackoffMax time.Duration
}

// Subscriber maintains a live log subscription, reconnecting with backoff
// on a hard close and forcing a reconnect if no message arrives within
// 2×HeartbeatTimeout.
type Subscriber struct {
	reader  LiveReader
	decode  Decoder
	cfg     Config
	bus     *bus.Bus
	metrics Metrics
	log     *logging.Logger

	mu       sync.Mutex
	lastSeen time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSubscriber constructs a Subscriber. metrics may be nil.
func NewSubscriber(reader LiveReader, decode Decoder, cfg Config, b *bus.Bus, metrics Metrics, log *logging.Logger) *Subscriber {
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 15 * time.Second
	}
	if cfg.ReconnectBackoffMin <= 0 {
		cfg.ReconnectBackoffMin = 500 * time.Millisecond
	}
	if cfg.ReconnectBackoffMax <= 0 {
		cfg.ReconnectBackoffMax = 30 * time.Second
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Subscriber{reader: reader, decode: decode, cfg: cfg, bus: b, metrics: metrics, log: log}
}

func (s *Subscriber) Name() string { return "ingest.subscriber" }

func (s *Subscriber) Descriptor() core.Descriptor {
	return core.Descriptor{Name: s.Name(), Layer: core.LayerIngest, Capabilities: []string{"decoded_event_stream"}}
}

// Start runs the reconnect loop in a background goroutine until ctx is
// cancelled or Stop is called.
func (s *Subscriber) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(runCtx)
	return nil
}

func (s *Subscriber) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Subscriber) runLoop(ctx context.Context) {
	defer close(s.done)

	backoff := s.cfg.ReconnectBackoffMin
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := s.connectAndPump(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.WithError(err).Warn("ingest subscription lost, reconnecting")
		}
		s.metrics.IncWSReconnects()

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > s.cfg.ReconnectBackoffMax {
			backoff = s.cfg.ReconnectBackoffMax
		}
	}
}

func (s *Subscriber) connectAndPump(ctx context.Context) error {
	filter := ethereum.FilterQuery{Addresses: toCommonAddresses(s.cfg.Addresses)}
	logs, sub, err := s.reader.SubscribeLogs(ctx, filter)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()

	watchdogCtx, cancelWatchdog := context.WithCancel(ctx)
	defer cancelWatchdog()
	staleCh := make(chan struct{}, 1)
	go s.heartbeatWatch(watchdogCtx, staleCh)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-staleCh:
			return errHeartbeatTimeout
		case err := <-sub.Err():
			return err
		case l, ok := <-logs:
			if !ok {
				return errSubscriptionClosed
			}
			s.mu.Lock()
			s.lastSeen = time.Now()
			s.mu.Unlock()
			if ev, ok := s.decode(l); ok {
				s.metrics.IncEventsIngested(string(ev.Kind))
				s.bus.PublishIngestEvent(ev)
			}
		}
	}
}

func (s *Subscriber) heartbeatWatch(ctx context.Context, stale chan<- struct{}) {
	ticker := time.NewTicker(s.cfg.HeartbeatTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			silence := time.Since(s.lastSeen)
			s.mu.Unlock()
			if silence >= 2*s.cfg.HeartbeatTimeout {
				select {
				case stale <- struct{}{}:
				default:
				}
				return
			}
		}
	}
}

type ingestError string

func (e ingestError) Error() string { return string(e) }

const (
	errHeartbeatTimeout   ingestError = "ingest: no message within 2x heartbeat timeout"
	errSubscriptionClosed ingestError = "ingest: log subscription channel closed"
)

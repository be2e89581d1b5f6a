// Package chainclient wraps go-ethereum's ethclient/rpc surface behind the
// read-only chain client contract the rest of the core consumes: every call
// takes the next available pool provider and acquires a token from
// internal/rpcbudget; every request/response call also runs through a
// per-provider circuit breaker (SubscribeBlocks and SubscribeLogs do not).
// Failures are classified with rpcbudget.Classify, and a rate_limit_429
// outcome places the provider in cooldown so the pool skips it.
package chainclient

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/errs"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/logging"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/resilience"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/rpcbudget"
)

// Call is one multicall leg: a target, calldata, and a free-form result
// pointer the underlying rpc.BatchElem decodes into.
type Call struct {
	To     common.Address
	Data   []byte
	Result any // *string for eth_call's hex-encoded return
}

// FeeData mirrors the fields a dynamic-fee (EIP-1559) transaction needs.
type FeeData struct {
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// ReadClient is the read-only chain client contract the rest of the core
// consumes.
type ReadClient interface {
	GetLogs(ctx context.Context, filter ethereum.FilterQuery) ([]types.Log, error)
	Call(ctx context.Context, to common.Address, data []byte, blockTag *big.Int) ([]byte, error)
	Multicall(ctx context.Context, calls []Call, blockTag *big.Int) error
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	GetFeeData(ctx context.Context) (FeeData, error)
	BroadcastTransaction(ctx context.Context, signedTx *types.Transaction) error
	SubscribeBlocks(ctx context.Context) (<-chan *types.Header, ethereum.Subscription, error)
	SubscribeLogs(ctx context.Context, filter ethereum.FilterQuery) (<-chan types.Log, ethereum.Subscription, error)
	GetBlockNumber(ctx context.Context) (uint64, error)
}

// DefaultMulticallBatchSize is the default multicall batch size.
const DefaultMulticallBatchSize = 120

// ProviderDialer dials an *ethclient.Client for a URL, overridable in tests.
type ProviderDialer func(ctx context.Context, url string) (*ethclient.Client, error)

func defaultDialer(ctx context.Context, url string) (*ethclient.Client, error) {
	return ethclient.DialContext(ctx, url)
}

// Client implements ReadClient over a rotating provider pool, a shared
// rpcbudget.TokenBucket, and one circuit breaker per provider.
type Client struct {
	pool    *rpcbudget.Pool
	budget  *rpcbudget.TokenBucket
	dial    ProviderDialer
	log     *logging.Logger
	clients map[string]*ethclient.Client
	breakers map[string]*resilience.CircuitBreaker
	batchSize int
}

// New constructs a Client. dial defaults to ethclient.DialContext.
func New(pool *rpcbudget.Pool, budget *rpcbudget.TokenBucket, dial ProviderDialer, log *logging.Logger) *Client {
	if dial == nil {
		dial = defaultDialer
	}
	return &Client{
		pool:      pool,
		budget:    budget,
		dial:      dial,
		log:       log,
		clients:   make(map[string]*ethclient.Client),
		breakers:  make(map[string]*resilience.CircuitBreaker),
		batchSize: DefaultMulticallBatchSize,
	}
}

// acquire selects the next available provider, lazily dialing and wrapping
// it with a circuit breaker, then waits for RPC budget. It returns the
// dialed client, that provider's breaker, and the provider URL the caller
// passes to classify so a rate-limited provider is cooled down.
func (c *Client) acquire(ctx context.Context) (*ethclient.Client, *resilience.CircuitBreaker, string, error) {
	provider, ok := c.pool.Next()
	if !ok {
		return nil, nil, "", errs.ProviderUnavailable("all providers in cooldown")
	}

	if err := c.budget.Acquire(ctx, 1); err != nil {
		return nil, nil, "", errs.Timeout("rpc_budget_acquire")
	}

	cl, ok := c.clients[provider.URL]
	if !ok {
		dialed, err := c.dial(ctx, provider.URL)
		if err != nil {
			c.pool.Cooldown(provider.URL, 0)
			return nil, nil, "", errs.Network(err)
		}
		c.clients[provider.URL] = dialed
		cl = dialed
	}

	br, ok := c.breakers[provider.URL]
	if !ok {
		br = resilience.New(resilience.DefaultProviderCBConfig(c.log))
		c.breakers[provider.URL] = br
	}

	return cl, br, provider.URL, nil
}

// classify maps a raw transport error onto a CoreError and, for a rate
// limit, places the offending provider in cooldown.
func (c *Client) classify(providerURL string, err error) error {
	if err == nil {
		return nil
	}
	kind := rpcbudget.Classify(err)
	if kind == rpcbudget.ErrRateLimit429 {
		c.pool.Cooldown(providerURL, 0)
	}
	return rpcbudget.ToCoreError(kind, err)
}

func (c *Client) GetLogs(ctx context.Context, filter ethereum.FilterQuery) ([]types.Log, error) {
	cl, br, url, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	var logs []types.Log
	execErr := br.Execute(ctx, func() error {
		var callErr error
		logs, callErr = cl.FilterLogs(ctx, filter)
		return callErr
	})
	if execErr != nil {
		return nil, c.classify(url, execErr)
	}
	return logs, nil
}

func (c *Client) Call(ctx context.Context, to common.Address, data []byte, blockTag *big.Int) ([]byte, error) {
	cl, br, url, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	var out []byte
	execErr := br.Execute(ctx, func() error {
		var callErr error
		out, callErr = cl.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, blockTag)
		return callErr
	})
	if execErr != nil {
		return nil, c.classify(url, execErr)
	}
	return out, nil
}

// Multicall batches calls into rpc.BatchElem groups of at most batchSize and
// issues them against one provider's raw RPC client.
func (c *Client) Multicall(ctx context.Context, calls []Call, blockTag *big.Int) error {
	cl, br, url, err := c.acquire(ctx)
	if err != nil {
		return err
	}

	rawClient := cl.Client()
	blockArg := "latest"
	if blockTag != nil {
		blockArg = hexutilBlockTag(blockTag)
	}

	for start := 0; start < len(calls); start += c.batchSize {
		end := start + c.batchSize
		if end > len(calls) {
			end = len(calls)
		}
		batch := calls[start:end]

		elems := make([]rpc.BatchElem, len(batch))
		results := make([]string, len(batch))
		for i, call := range batch {
			elems[i] = rpc.BatchElem{
				Method: "eth_call",
				Args: []any{map[string]any{
					"to":   call.To,
					"data": hexBytes(call.Data),
				}, blockArg},
				Result: &results[i],
			}
		}

		execErr := br.Execute(ctx, func() error {
			return rawClient.BatchCallContext(ctx, elems)
		})
		if execErr != nil {
			return c.classify(url, execErr)
		}

		for i, elem := range elems {
			if elem.Error != nil {
				return c.classify(url, elem.Error)
			}
			if ptr, ok := batch[i].Result.(*string); ok {
				*ptr = results[i]
			}
		}
	}

	return nil
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	cl, br, url, err := c.acquire(ctx)
	if err != nil {
		return 0, err
	}
	var gas uint64
	execErr := br.Execute(ctx, func() error {
		var callErr error
		gas, callErr = cl.EstimateGas(ctx, msg)
		return callErr
	})
	if execErr != nil {
		return 0, c.classify(url, execErr)
	}
	return gas, nil
}

func (c *Client) GetFeeData(ctx context.Context) (FeeData, error) {
	cl, br, url, err := c.acquire(ctx)
	if err != nil {
		return FeeData{}, err
	}
	var fee FeeData
	execErr := br.Execute(ctx, func() error {
		tip, tipErr := cl.SuggestGasTipCap(ctx)
		if tipErr != nil {
			return tipErr
		}
		head, headErr := cl.HeaderByNumber(ctx, nil)
		if headErr != nil {
			return headErr
		}
		baseFee := head.BaseFee
		if baseFee == nil {
			baseFee = big.NewInt(0)
		}
		maxFee := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)
		fee = FeeData{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}
		return nil
	})
	if execErr != nil {
		return FeeData{}, c.classify(url, execErr)
	}
	return fee, nil
}

func (c *Client) BroadcastTransaction(ctx context.Context, signedTx *types.Transaction) error {
	cl, br, url, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	execErr := br.Execute(ctx, func() error {
		return cl.SendTransaction(ctx, signedTx)
	})
	if execErr != nil {
		return c.classify(url, execErr)
	}
	return nil
}

func (c *Client) SubscribeBlocks(ctx context.Context) (<-chan *types.Header, ethereum.Subscription, error) {
	cl, _, url, err := c.acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	headers := make(chan *types.Header)
	sub, err := cl.SubscribeNewHead(ctx, headers)
	if err != nil {
		return nil, nil, c.classify(url, err)
	}
	return headers, sub, nil
}

func (c *Client) SubscribeLogs(ctx context.Context, filter ethereum.FilterQuery) (<-chan types.Log, ethereum.Subscription, error) {
	cl, _, url, err := c.acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	logs := make(chan types.Log)
	sub, err := cl.SubscribeFilterLogs(ctx, filter, logs)
	if err != nil {
		return nil, nil, c.classify(url, err)
	}
	return logs, sub, nil
}

func (c *Client) GetBlockNumber(ctx context.Context) (uint64, error) {
	cl, br, url, err := c.acquire(ctx)
	if err != nil {
		return 0, err
	}
	var n uint64
	execErr := br.Execute(ctx, func() error {
		var callErr error
		n, callErr = cl.BlockNumber(ctx)
		return callErr
	})
	if execErr != nil {
		return 0, c.classify(url, execErr)
	}
	return n, nil
}

func hexutilBlockTag(n *big.Int) string {
	return "0x" + n.Text(16)
}

func hexBytes(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 2+len(b)*2)
	out[0] = '0'
	out[1] = 'x'
	for i, v := range b {
		out[2+i*2] = hextable[v>>4]
		out[3+i*2] = hextable[v&0x0f]
	}
	return string(out)
}

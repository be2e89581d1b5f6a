package chainclient

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/holiman/uint256"
)

// AnswerUpdated mirrors a Chainlink aggregator's AnswerUpdated(current,
// roundId, updatedAt) event.
type AnswerUpdated struct {
	Asset     common.Address
	Current   *uint256.Int
	RoundID   *big.Int
	UpdatedAt time.Time
}

// OracleAdapter is the oracle read contract the predictive gate and the HF
// resolver consume.
type OracleAdapter interface {
	GetAssetPrice(ctx context.Context, asset common.Address, blockTag *big.Int) (price *uint256.Int, updatedAt time.Time, err error)
	SubscribeTransmissions(ctx context.Context, feed common.Address) (<-chan AnswerUpdated, ethereum.Subscription, error)
}

// answerUpdatedSignature selects AnswerUpdated(int256,uint256,uint256) log
// entries out of a feed's event stream.
var answerUpdatedSignature = common.HexToHash("0x0559884fd3a460db3073b7fc896cc77986f16e378210ded43186175bf646fc5f")

// ChainOracleAdapter reads aggregator prices directly off-chain through a
// ReadClient, grounded on the oracle-confirmation pattern of
// services/oracle-attesterd's evm_confirm.go: decode the log topics/data of
// a known event signature rather than depending on a generated ABI binding.
type ChainOracleAdapter struct {
	client ReadClient
}

// NewChainOracleAdapter constructs an adapter over an existing ReadClient.
func NewChainOracleAdapter(client ReadClient) *ChainOracleAdapter {
	return &ChainOracleAdapter{client: client}
}

// latestAnswerSelector is the 4-byte selector of latestRoundData(), the
// standard Chainlink aggregator read.
var latestAnswerSelector = []byte{0xfe, 0xaf, 0x96, 0x8c}

// GetAssetPrice calls latestRoundData() on the feed address and decodes the
// answer/updatedAt pair. Callers pass the feed address as asset since this
// adapter is aggregator-scoped, not asset-registry-scoped.
func (a *ChainOracleAdapter) GetAssetPrice(ctx context.Context, asset common.Address, blockTag *big.Int) (*uint256.Int, time.Time, error) {
	out, err := a.client.Call(ctx, asset, latestAnswerSelector, blockTag)
	if err != nil {
		return nil, time.Time{}, err
	}
	// latestRoundData returns (roundId, answer, startedAt, updatedAt,
	// answeredInRound), five left-padded 32-byte words.
	if len(out) < 32*5 {
		return nil, time.Time{}, errInvalidOracleResponse
	}
	answer := new(big.Int).SetBytes(out[32:64])
	updatedAtRaw := new(big.Int).SetBytes(out[96:128])

	price, overflow := uint256.FromBig(answer)
	if overflow {
		return nil, time.Time{}, errInvalidOracleResponse
	}
	return price, time.Unix(updatedAtRaw.Int64(), 0), nil
}

// SubscribeTransmissions subscribes to AnswerUpdated logs on feed and
// decodes each into an AnswerUpdated event.
func (a *ChainOracleAdapter) SubscribeTransmissions(ctx context.Context, feed common.Address) (<-chan AnswerUpdated, ethereum.Subscription, error) {
	rawLogs, sub, err := a.client.SubscribeLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{feed},
		Topics:    [][]common.Hash{{answerUpdatedSignature}},
	})
	if err != nil {
		return nil, nil, err
	}

	out := make(chan AnswerUpdated)
	go func() {
		defer close(out)
		for log := range rawLogs {
			decoded, ok := decodeAnswerUpdated(feed, log)
			if !ok {
				continue
			}
			select {
			case out <- decoded:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, sub, nil
}

func decodeAnswerUpdated(feed common.Address, log types.Log) (AnswerUpdated, bool) {
	if len(log.Topics) < 3 {
		return AnswerUpdated{}, false
	}
	current := new(big.Int).SetBytes(log.Topics[1].Bytes())
	roundID := new(big.Int).SetBytes(log.Topics[2].Bytes())
	if len(log.Data) < 32 {
		return AnswerUpdated{}, false
	}
	updatedAtRaw := new(big.Int).SetBytes(log.Data[:32])

	priceU256, overflow := uint256.FromBig(current)
	if overflow {
		return AnswerUpdated{}, false
	}

	return AnswerUpdated{
		Asset:     feed,
		Current:   priceU256,
		RoundID:   roundID,
		UpdatedAt: time.Unix(updatedAtRaw.Int64(), 0),
	}, true
}

var errInvalidOracleResponse = &oracleDecodeError{msg: "oracle response too short to decode"}

type oracleDecodeError struct{ msg string }

func (e *oracleDecodeError) Error() string { return e.msg }

package chainclient

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
)

func TestCandidateSourceSlot_EnforcesSingleInstance(t *testing.T) {
	ReleaseCandidateSourceSlot()
	require.NoError(t, AcquireCandidateSourceSlot())
	require.Error(t, AcquireCandidateSourceSlot())
	ReleaseCandidateSourceSlot()
	require.NoError(t, AcquireCandidateSourceSlot())
	ReleaseCandidateSourceSlot()
}

func TestChainCandidateSource_PaginatesUsers(t *testing.T) {
	seed := []chaintypes.Address{
		chaintypes.NormalizeAddress("0x1111111111111111111111111111111111111111"),
		chaintypes.NormalizeAddress("0x2222222222222222222222222222222222222222"),
		chaintypes.NormalizeAddress("0x3333333333333333333333333333333333333333"),
	}
	src := NewChainCandidateSource(nil, seed)

	next, err := src.UsersWithBorrowing(context.Background(), 0, 2)
	require.NoError(t, err)

	page1, ok, err := next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, page1, 2)

	page2, ok, err := next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, page2, 1)

	_, ok, err = next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestChainCandidateSource_SingleUserFindsObserved(t *testing.T) {
	user := chaintypes.NormalizeAddress("0x1111111111111111111111111111111111111111")
	src := NewChainCandidateSource(nil, nil)
	src.Observe(user)

	found, err := src.SingleUser(context.Background(), user)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, user, found.User)

	missing, err := src.SingleUser(context.Background(), chaintypes.NormalizeAddress("0x9999999999999999999999999999999999999999"))
	require.NoError(t, err)
	require.Nil(t, missing)
}

type fakeReadClient struct {
	callResult []byte
	callErr    error
	logs       []types.Log
}

func (f *fakeReadClient) GetLogs(ctx context.Context, filter ethereum.FilterQuery) ([]types.Log, error) {
	return f.logs, nil
}
func (f *fakeReadClient) Call(ctx context.Context, to common.Address, data []byte, blockTag *big.Int) ([]byte, error) {
	return f.callResult, f.callErr
}
func (f *fakeReadClient) Multicall(ctx context.Context, calls []Call, blockTag *big.Int) error {
	return nil
}
func (f *fakeReadClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 0, nil
}
func (f *fakeReadClient) GetFeeData(ctx context.Context) (FeeData, error) { return FeeData{}, nil }
func (f *fakeReadClient) BroadcastTransaction(ctx context.Context, signedTx *types.Transaction) error {
	return nil
}
func (f *fakeReadClient) SubscribeBlocks(ctx context.Context) (<-chan *types.Header, ethereum.Subscription, error) {
	return nil, nil, nil
}
func (f *fakeReadClient) SubscribeLogs(ctx context.Context, filter ethereum.FilterQuery) (<-chan types.Log, ethereum.Subscription, error) {
	return nil, nil, nil
}
func (f *fakeReadClient) GetBlockNumber(ctx context.Context) (uint64, error) { return 0, nil }

func encodeLatestRoundData(roundID, answer, updatedAt int64) []byte {
	out := make([]byte, 32*5)
	copy(out[24:32], big.NewInt(roundID).Bytes())
	answerBig := big.NewInt(answer)
	answerBytes := answerBig.Bytes()
	copy(out[64-len(answerBytes):64], answerBytes)
	copy(out[120:128], big.NewInt(updatedAt).Bytes())
	return out
}

func TestChainOracleAdapter_GetAssetPrice_DecodesLatestRoundData(t *testing.T) {
	payload := encodeLatestRoundData(42, 100_000_000, 1_700_000_000)
	fake := &fakeReadClient{callResult: payload}
	adapter := NewChainOracleAdapter(fake)

	price, updatedAt, err := adapter.GetAssetPrice(context.Background(), common.HexToAddress("0xfeed"), nil)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000_000), price.Uint64())
	require.Equal(t, time.Unix(1_700_000_000, 0), updatedAt)
}

func TestChainOracleAdapter_GetAssetPrice_RejectsShortResponse(t *testing.T) {
	fake := &fakeReadClient{callResult: []byte{0x01, 0x02}}
	adapter := NewChainOracleAdapter(fake)

	_, _, err := adapter.GetAssetPrice(context.Background(), common.HexToAddress("0xfeed"), nil)
	require.Error(t, err)
}

func TestDecodeAnswerUpdated_DecodesTopicsAndData(t *testing.T) {
	feed := common.HexToAddress("0xfeed")
	log := types.Log{
		Address: feed,
		Topics: []common.Hash{
			answerUpdatedSignature,
			common.BigToHash(big.NewInt(100_000_000)),
			common.BigToHash(big.NewInt(7)),
		},
		Data: common.LeftPadBytes(big.NewInt(1_700_000_000).Bytes(), 32),
	}

	decoded, ok := decodeAnswerUpdated(feed, log)
	require.True(t, ok)
	require.Equal(t, uint64(100_000_000), decoded.Current.Uint64())
	require.Equal(t, int64(7), decoded.RoundID.Int64())
	require.Equal(t, time.Unix(1_700_000_000, 0), decoded.UpdatedAt)
}

func TestDecodeAnswerUpdated_RejectsTooFewTopics(t *testing.T) {
	feed := common.HexToAddress("0xfeed")
	log := types.Log{Address: feed, Topics: []common.Hash{answerUpdatedSignature}}

	_, ok := decodeAnswerUpdated(feed, log)
	require.False(t, ok)
}

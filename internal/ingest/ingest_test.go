package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/logging"
)

func testLog(block uint64, txIndex, logIndex uint, txHash common.Hash) types.Log {
	return types.Log{BlockNumber: block, TxIndex: txIndex, Index: logIndex, TxHash: txHash}
}

func decodeAsBorrow(log types.Log) (chaintypes.Event, bool) {
	return chaintypes.Event{
		Kind:     chaintypes.EventBorrow,
		Block:    log.BlockNumber,
		TxIndex:  log.TxIndex,
		LogIndex: log.Index,
		TxHash:   log.TxHash,
		Args:     chaintypes.EventArgs{User: chaintypes.NormalizeAddress("0x1111111111111111111111111111111111111111")},
	}, true
}

type fakeLogReader struct {
	chunks map[[2]uint64][]types.Log
	errs   map[[2]uint64]error
}

func (f *fakeLogReader) GetLogs(ctx context.Context, filter ethereum.FilterQuery) ([]types.Log, error) {
	key := [2]uint64{filter.FromBlock.Uint64(), filter.ToBlock.Uint64()}
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	return f.chunks[key], nil
}

func TestBackfiller_ScansWindowInChunks(t *testing.T) {
	reader := &fakeLogReader{chunks: map[[2]uint64][]types.Log{
		{0, 9}:  {testLog(5, 0, 0, common.HexToHash("0xaa"))},
		{10, 10}: {testLog(10, 0, 0, common.HexToHash("0xbb"))},
	}}
	b := NewBackfiller(reader, decodeAsBorrow, BackfillConfig{WindowBlocks: 10, ChunkBlocks: 10}, logging.New("test", "info", "text"))

	events, err := b.Run(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.True(t, events[0].Block < events[1].Block)
}

func TestBackfiller_BisectsOnTooManyLogsError(t *testing.T) {
	reader := &fakeLogReader{
		chunks: map[[2]uint64][]types.Log{
			{0, 4}: {testLog(1, 0, 0, common.HexToHash("0xaa"))},
			{5, 9}: {testLog(6, 0, 0, common.HexToHash("0xbb"))},
		},
		errs: map[[2]uint64]error{
			{0, 9}: errors.New("query returned more than 10000 results"),
		},
	}
	b := NewBackfiller(reader, decodeAsBorrow, BackfillConfig{WindowBlocks: 10, ChunkBlocks: 10}, logging.New("test", "info", "text"))

	events, err := b.Run(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestBackfiller_BisectsOnMaxLogsExceeded(t *testing.T) {
	reader := &fakeLogReader{chunks: map[[2]uint64][]types.Log{
		{0, 9}: {testLog(1, 0, 0, common.HexToHash("0xaa")), testLog(6, 0, 0, common.HexToHash("0xbb"))},
		{0, 4}: {testLog(1, 0, 0, common.HexToHash("0xaa"))},
		{5, 9}: {testLog(6, 0, 0, common.HexToHash("0xbb"))},
	}}
	b := NewBackfiller(reader, decodeAsBorrow, BackfillConfig{WindowBlocks: 10, ChunkBlocks: 10, MaxLogsPerCall: 1}, logging.New("test", "info", "text"))

	events, err := b.Run(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestSeamDedupe_DropsDuplicateTxHashLogIndex(t *testing.T) {
	txHash := common.HexToHash("0xaa")
	backfilled := []chaintypes.Event{{Kind: chaintypes.EventBorrow, Block: 10, TxHash: txHash, LogIndex: 0}}
	live := []chaintypes.Event{
		{Kind: chaintypes.EventBorrow, Block: 10, TxHash: txHash, LogIndex: 0},
		{Kind: chaintypes.EventBorrow, Block: 11, TxHash: common.HexToHash("0xbb"), LogIndex: 0},
	}

	merged := SeamDedupe(backfilled, live)
	require.Len(t, merged, 2)
	require.Equal(t, uint64(10), merged[0].Block)
	require.Equal(t, uint64(11), merged[1].Block)
}

func TestSeamDedupe_OrdersByBlockTxIndexLogIndex(t *testing.T) {
	events := []chaintypes.Event{
		{Block: 5, TxIndex: 2, LogIndex: 0, TxHash: common.HexToHash("0x1")},
		{Block: 5, TxIndex: 1, LogIndex: 0, TxHash: common.HexToHash("0x2")},
		{Block: 3, TxIndex: 0, LogIndex: 0, TxHash: common.HexToHash("0x3")},
	}
	merged := SeamDedupe(events, nil)
	require.Equal(t, uint64(3), merged[0].Block)
	require.Equal(t, uint(1), merged[1].TxIndex)
	require.Equal(t, uint(2), merged[2].TxIndex)
}

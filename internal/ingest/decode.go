package ingest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
)

var (
	topicBorrow             = crypto.Keccak256Hash([]byte("Borrow(address,address,address,uint256,uint8,uint256,uint16)"))
	topicRepay              = crypto.Keccak256Hash([]byte("Repay(address,address,address,uint256,bool)"))
	topicSupply             = crypto.Keccak256Hash([]byte("Supply(address,address,address,uint256,uint16)"))
	topicWithdraw           = crypto.Keccak256Hash([]byte("Withdraw(address,address,address,uint256)"))
	topicLiquidationCall    = crypto.Keccak256Hash([]byte("LiquidationCall(address,address,address,uint256,uint256,address,bool)"))
	topicReserveDataUpdated = crypto.Keccak256Hash([]byte("ReserveDataUpdated(address,uint256,uint256,uint256,uint256,uint256)"))
	topicFlashLoan          = crypto.Keccak256Hash([]byte("FlashLoan(address,address,address,uint256,uint8,uint256,uint16)"))
	topicAnswerUpdated      = crypto.Keccak256Hash([]byte("AnswerUpdated(int256,uint256,uint256)"))
)

// DecodePoolLog classifies a raw log by its topic0 signature hash and
// extracts the indexed user-bearing addresses into chaintypes.Event. Only
// the fields ExtractUsers and the candidate store need are populated; full
// amount decoding is left to the profit simulator's direct reserve reads.
func DecodePoolLog(log types.Log) (chaintypes.Event, bool) {
	if len(log.Topics) == 0 {
		return chaintypes.Event{}, false
	}

	base := chaintypes.Event{
		Block:    log.BlockNumber,
		TxIndex:  log.TxIndex,
		LogIndex: log.Index,
		TxHash:   log.TxHash,
	}

	switch log.Topics[0] {
	case topicBorrow:
		base.Kind = chaintypes.EventBorrow
		base.Args.Reserve = topicAddr(log, 1)
		base.Args.OnBehalfOf = topicAddr(log, 2)
		base.Args.User = dataAddr(log.Data, 0)
	case topicRepay:
		base.Kind = chaintypes.EventRepay
		base.Args.Reserve = topicAddr(log, 1)
		base.Args.User = topicAddr(log, 2)
		base.Args.Repayer = topicAddr(log, 3)
	case topicSupply:
		base.Kind = chaintypes.EventSupply
		base.Args.Reserve = topicAddr(log, 1)
		base.Args.OnBehalfOf = topicAddr(log, 2)
		base.Args.User = dataAddr(log.Data, 0)
	case topicWithdraw:
		base.Kind = chaintypes.EventWithdraw
		base.Args.Reserve = topicAddr(log, 1)
		base.Args.User = topicAddr(log, 2)
	case topicLiquidationCall:
		base.Kind = chaintypes.EventLiquidationCall
		base.Args.User = topicAddr(log, 3)
	case topicReserveDataUpdated:
		base.Kind = chaintypes.EventReserveDataUpdated
		base.Args.Reserve = topicAddr(log, 1)
		if len(log.Data) >= 32*3 {
			base.Args.LiquidityRate = new(big.Int).SetBytes(log.Data[0:32])
			base.Args.VariableBorrowRate = new(big.Int).SetBytes(log.Data[64:96])
		}
	case topicFlashLoan:
		base.Kind = chaintypes.EventFlashLoan
	case topicAnswerUpdated:
		base.Kind = chaintypes.EventAnswerUpdated
		if len(log.Topics) > 1 {
			base.Args.Current = new(big.Int).SetBytes(log.Topics[1].Bytes())
		}
		if len(log.Topics) > 2 {
			base.Args.RoundID = new(big.Int).SetBytes(log.Topics[2].Bytes())
		}
		if len(log.Data) >= 32 {
			base.Args.UpdatedAt = new(big.Int).SetBytes(log.Data[0:32]).Int64()
		}
	default:
		return chaintypes.Event{}, false
	}

	return base, true
}

func topicAddr(log types.Log, idx int) common.Address {
	if idx >= len(log.Topics) {
		return common.Address{}
	}
	return common.BytesToAddress(log.Topics[idx].Bytes())
}

func dataAddr(data []byte, word int) common.Address {
	start := word * 32
	if start+32 > len(data) {
		return common.Address{}
	}
	return common.BytesToAddress(data[start+12 : start+32])
}

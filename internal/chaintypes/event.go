// Package chaintypes defines the decoded event variants, address
// normalization, and user-extraction rules, built on go-ethereum's
// common.Address (the canonical 20-byte address representation used by
// josephblackelite-nhbchain's go-ethereum dependency), with one strongly
// typed struct per event kind rather than heterogeneous any-typed args.
package chaintypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind enumerates the protocol/oracle event kinds ingest decodes.
type EventKind string

const (
	EventBorrow             EventKind = "Borrow"
	EventRepay              EventKind = "Repay"
	EventSupply             EventKind = "Supply"
	EventWithdraw           EventKind = "Withdraw"
	EventLiquidationCall    EventKind = "LiquidationCall"
	EventReserveDataUpdated EventKind = "ReserveDataUpdated"
	EventFlashLoan          EventKind = "FlashLoan"
	EventAnswerUpdated      EventKind = "AnswerUpdated"
)

// Address normalizes on NormalizeAddress: every comparison, map lookup, or
// set membership check uses this canonical form.
type Address = common.Address

// NormalizeAddress parses a raw hex address string (either case, with or
// without 0x) into the canonical common.Address form used as map keys
// throughout the core.
func NormalizeAddress(raw string) Address {
	return common.HexToAddress(raw)
}

// EventArgs carries the per-kind decoded fields. Only the fields relevant
// to the kind are populated; the rest remain zero values.
type EventArgs struct {
	User       Address
	OnBehalfOf Address
	Repayer    Address
	Reserve    Address
	Amount     *big.Int

	// ReserveDataUpdated-specific.
	LiquidityRate   *big.Int
	VariableBorrowRate *big.Int

	// AnswerUpdated-specific (Chainlink aggregator).
	Current   *big.Int
	RoundID   *big.Int
	UpdatedAt int64
}

// Event is the normalized representation every decoded log is converted
// into before entering the candidate store or bus.
type Event struct {
	Kind     EventKind
	Block    uint64
	TxIndex  uint
	LogIndex uint
	TxHash   common.Hash
	Args     EventArgs
}

// Less orders two events by (block, txIndex, logIndex), the canonical
// total ordering used to merge the backfill and live-stream seam.
func (e Event) Less(other Event) bool {
	if e.Block != other.Block {
		return e.Block < other.Block
	}
	if e.TxIndex != other.TxIndex {
		return e.TxIndex < other.TxIndex
	}
	return e.LogIndex < other.LogIndex
}

// SeamKey identifies an event for dedup across the backfill/live-stream
// seam: duplicates are suppressed by (txHash, logIndex).
type SeamKey struct {
	TxHash   common.Hash
	LogIndex uint
}

func (e Event) SeamKey() SeamKey { return SeamKey{TxHash: e.TxHash, LogIndex: e.LogIndex} }

// ExtractUsers applies the per-kind user-extraction table, returning a
// deduplicated set of addresses touched by this event.
func (e Event) ExtractUsers() []Address {
	seen := make(map[Address]struct{}, 2)
	add := func(a Address) {
		if a == (Address{}) {
			return
		}
		seen[a] = struct{}{}
	}

	switch e.Kind {
	case EventBorrow, EventSupply:
		add(e.Args.User)
		add(e.Args.OnBehalfOf)
	case EventRepay:
		add(e.Args.User)
		add(e.Args.Repayer)
	case EventWithdraw, EventLiquidationCall:
		add(e.Args.User)
	default:
		// ReserveDataUpdated, FlashLoan, AnswerUpdated touch no specific user.
	}

	users := make([]Address, 0, len(seen))
	for a := range seen {
		users = append(users, a)
	}
	return users
}

package chaintypes

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress_CaseInsensitive(t *testing.T) {
	lower := NormalizeAddress("0xabcabcabcabcabcabcabcabcabcabcabcabcabc")
	upper := NormalizeAddress("0xABCABCABCABCABCABCABCABCABCABCABCABCABC")
	require.Equal(t, lower, upper)
}

func TestEvent_Less_OrdersByBlockThenTxIndexThenLogIndex(t *testing.T) {
	a := Event{Block: 1, TxIndex: 0, LogIndex: 0}
	b := Event{Block: 1, TxIndex: 0, LogIndex: 1}
	c := Event{Block: 1, TxIndex: 1, LogIndex: 0}
	d := Event{Block: 2, TxIndex: 0, LogIndex: 0}

	require.True(t, a.Less(b))
	require.True(t, b.Less(c))
	require.True(t, c.Less(d))
	require.False(t, d.Less(a))
}

func TestExtractUsers_BorrowDedupesUserAndOnBehalfOf(t *testing.T) {
	user := NormalizeAddress("0x1111111111111111111111111111111111111111")
	e := Event{Kind: EventBorrow, Args: EventArgs{User: user, OnBehalfOf: user}}
	require.Equal(t, []Address{user}, e.ExtractUsers())
}

func TestExtractUsers_RepayProducesUserAndRepayer(t *testing.T) {
	user := NormalizeAddress("0x1111111111111111111111111111111111111111")
	repayer := NormalizeAddress("0x2222222222222222222222222222222222222222")
	e := Event{Kind: EventRepay, Args: EventArgs{User: user, Repayer: repayer}}
	users := e.ExtractUsers()
	require.ElementsMatch(t, []Address{user, repayer}, users)
}

func TestExtractUsers_WithdrawProducesOnlyUser(t *testing.T) {
	user := NormalizeAddress("0x1111111111111111111111111111111111111111")
	e := Event{Kind: EventWithdraw, Args: EventArgs{User: user}}
	require.Equal(t, []Address{user}, e.ExtractUsers())
}

func TestExtractUsers_ReserveDataUpdatedProducesNoUsers(t *testing.T) {
	e := Event{Kind: EventReserveDataUpdated}
	require.Empty(t, e.ExtractUsers())
}

func TestEvent_SeamKey_Identity(t *testing.T) {
	h := common.HexToHash("0xdeadbeef")
	e := Event{TxHash: h, LogIndex: 3}
	require.Equal(t, SeamKey{TxHash: h, LogIndex: 3}, e.SeamKey())
}

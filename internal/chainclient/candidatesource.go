package chainclient

import (
	"context"
	"sync/atomic"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/chaintypes"
	"github.com/anassgono3-ctrl/liquidbot-core/internal/errs"
)

// ReserveBalance is one reserve line of a Borrower's position as reported by
// a CandidateSource, grounded on the oracle adapter's answer decoding above
// but scoped to balances instead of prices.
type ReserveBalance struct {
	Asset            chaintypes.Address
	ATokenBalanceRaw string
	VariableDebtRaw  string
	StableDebtRaw    string
}

// Borrower is one candidate the CandidateSource surfaces: a user address
// plus its per-reserve balances at the time of the read.
type Borrower struct {
	User     chaintypes.Address
	Reserves []ReserveBalance
}

// CandidateSource is the borrower discovery contract, consumed through the
// interface rather than a concrete type. ChainCandidateSource is the only
// implementation in this module.
type CandidateSource interface {
	// UsersWithBorrowing returns up to limit borrowers, paginating pageSize
	// at a time. The returned function yields one page per call and a false
	// ok once exhausted.
	UsersWithBorrowing(ctx context.Context, limit, pageSize int) (func() ([]Borrower, bool, error), error)
	SingleUser(ctx context.Context, user chaintypes.Address) (*Borrower, error)
}

// instanceGuard enforces the at-most-one-instance-in-production rule for
// CandidateSource: a second concurrent instance would
// double-count borrowers against the same per-block RPC budget.
var instanceGuard int32

// AcquireCandidateSourceSlot claims the single production CandidateSource
// slot, returning an error if one is already held. Call ReleaseCandidateSourceSlot
// on shutdown.
func AcquireCandidateSourceSlot() error {
	if !atomic.CompareAndSwapInt32(&instanceGuard, 0, 1) {
		return errs.New(errs.KindConfigInvalid, "a CandidateSource instance is already active in this process")
	}
	return nil
}

// ReleaseCandidateSourceSlot releases the production CandidateSource slot.
func ReleaseCandidateSourceSlot() {
	atomic.StoreInt32(&instanceGuard, 0)
}

// ChainCandidateSource is the chain-backed CandidateSource. It reports only
// the users in its seed list plus those recorded through Observe, in that
// order; it does not scan logs itself, and the ReadClient it holds is not
// read by UsersWithBorrowing or SingleUser.
type ChainCandidateSource struct {
	client ReadClient
	seen   []chaintypes.Address
}

// NewChainCandidateSource constructs a ChainCandidateSource seeded with the
// given addresses.
func NewChainCandidateSource(client ReadClient, seed []chaintypes.Address) *ChainCandidateSource {
	return &ChainCandidateSource{client: client, seen: seed}
}

// Observe appends a user to the reported candidates. Nothing in
// internal/ingest or cmd/liquidator calls it.
func (s *ChainCandidateSource) Observe(user chaintypes.Address) {
	s.seen = append(s.seen, user)
}

func (s *ChainCandidateSource) UsersWithBorrowing(ctx context.Context, limit, pageSize int) (func() ([]Borrower, bool, error), error) {
	if pageSize <= 0 {
		pageSize = 500
	}
	users := s.seen
	if limit > 0 && limit < len(users) {
		users = users[:limit]
	}
	offset := 0
	return func() ([]Borrower, bool, error) {
		if offset >= len(users) {
			return nil, false, nil
		}
		end := offset + pageSize
		if end > len(users) {
			end = len(users)
		}
		page := make([]Borrower, 0, end-offset)
		for _, u := range users[offset:end] {
			page = append(page, Borrower{User: u})
		}
		offset = end
		return page, true, nil
	}, nil
}

func (s *ChainCandidateSource) SingleUser(ctx context.Context, user chaintypes.Address) (*Borrower, error) {
	for _, u := range s.seen {
		if u == user {
			return &Borrower{User: u}, nil
		}
	}
	return nil, nil
}

package ports

import (
	"context"
	"errors"

	"github.com/arkade-os/custodyd/internal/core/domain"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotOwner          = errors.New("not the owner")
)

// LiveStore groups the balances and registries kept outside of the custody ledger.
type LiveStore interface {
	Funds() Funds
	Ownership() OwnershipRegistry
	Fractions() FractionRegistry
	Close()
}

// Funds keeps two books per account and token: the wallet, that payments are
// pulled from, and the available (claimable) balance, that payouts are credited to.
type Funds interface {
	CreditAvailable(ctx context.Context, entityId, token string, amount uint64) error
	DebitAvailable(ctx context.Context, entityId, token string, amount uint64) error
	// PullPayment moves amount out of the payer's wallet into protocol custody and
	// fails without side effects if the wallet can't cover it.
	PullPayment(ctx context.Context, payer, token string, amount uint64) error
	FundWallet(ctx context.Context, address, token string, amount uint64) error
	GetAvailable(ctx context.Context, entityId, token string) (uint64, error)
	GetWallet(ctx context.Context, address, token string) (uint64, error)
	GetBalances(ctx context.Context, account string) ([]Balance, error)
}

type TokenState uint8

const (
	TokenStateNone TokenState = iota
	TokenStateCheckedIn
	TokenStateUnwrapping
	TokenStateVerified
	TokenStateCheckedOut
	TokenStateBurned
)

func (s TokenState) String() string {
	return []string{
		"None",
		"CheckedIn",
		"Unwrapping",
		"Verified",
		"CheckedOut",
		"Burned",
	}[s]
}

type OwnershipRegistry interface {
	Mint(ctx context.Context, tokenId domain.SubjectId, owner string) error
	// OwnerOf returns an empty string for unknown tokens.
	OwnerOf(ctx context.Context, tokenId domain.SubjectId) (string, error)
	Transfer(ctx context.Context, tokenId domain.SubjectId, from, to string) error
	TransferState(ctx context.Context, tokenId domain.SubjectId, state TokenState) error
	StateOf(ctx context.Context, tokenId domain.SubjectId) (TokenState, error)
}

type FractionRegistry interface {
	Mint(ctx context.Context, offerId, holder string, amount uint64) error
	Transfer(ctx context.Context, offerId, from, to string, amount uint64) error
	Burn(ctx context.Context, offerId, holder string, amount uint64) error
	BalanceOf(ctx context.Context, offerId, holder string) (uint64, error)
	TotalSupply(ctx context.Context, offerId string) (uint64, error)
}

type Balance struct {
	Token     string
	Available uint64
	Wallet    uint64
}

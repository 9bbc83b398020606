package application

import (
	"context"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/arkade-os/custodyd/pkg/errors"
)

type Service interface {
	Start() errors.Error
	Stop()

	GetOffer(ctx context.Context, offerId string) (*domain.Offer, errors.Error)

	// Vault ledger
	GetVault(ctx context.Context, subject domain.SubjectId) (*domain.Vault, errors.Error)
	DepositToVault(
		ctx context.Context, caller string, subject domain.SubjectId, amount uint64,
	) (*domain.Vault, errors.Error)
	ReleaseVault(ctx context.Context, subject domain.SubjectId) (*ReleaseResult, errors.Error)

	// Custody lifecycle of a token
	CheckIn(ctx context.Context, caller string, tokenId domain.SubjectId) errors.Error
	RequestCheckOut(ctx context.Context, caller string, tokenId domain.SubjectId) errors.Error
	SubmitTaxAmount(
		ctx context.Context, caller string, tokenId domain.SubjectId, amount uint64,
	) errors.Error
	ClearCheckoutRequest(
		ctx context.Context, caller string, tokenId domain.SubjectId,
	) errors.Error
	CheckOut(
		ctx context.Context, caller string, tokenId domain.SubjectId,
	) (*CheckoutResult, errors.Error)
	GetCheckoutRequest(
		ctx context.Context, tokenId domain.SubjectId,
	) (*domain.CheckoutRequest, errors.Error)

	// Custodian replacement
	RequestCustodianUpdate(
		ctx context.Context, caller string, params CustodianUpdateParams,
	) errors.Error
	AcceptCustodianUpdate(ctx context.Context, caller string, subject domain.SubjectId) errors.Error
	RejectCustodianUpdate(ctx context.Context, caller string, subject domain.SubjectId) errors.Error
	GetCustodianUpdateRequest(
		ctx context.Context, subject domain.SubjectId,
	) (*domain.CustodianUpdateRequest, errors.Error)

	// Fraction auctions
	StartAuction(ctx context.Context, caller, offerId string) (*AuctionInfo, errors.Error)
	PlaceBid(
		ctx context.Context, caller, offerId string, amount uint64,
	) (*AuctionInfo, errors.Error)
	EndAuction(ctx context.Context, offerId string) (*AuctionSettlement, errors.Error)
	GetAuction(ctx context.Context, offerId string) (*AuctionInfo, errors.Error)
}

type AdminService interface {
	RegisterOffer(ctx context.Context, offer domain.Offer) errors.Error
	FundWallet(ctx context.Context, address, token string, amount uint64) errors.Error
	GetBalances(ctx context.Context, account string) ([]ports.Balance, errors.Error)
	GrantRole(
		ctx context.Context, entityId, caller string, role ports.Role, accountRole ports.AccountRole,
	) errors.Error
	SweepVaults(ctx context.Context) (*SweepReport, errors.Error)
}

type ReleaseResult struct {
	Vault          domain.Vault
	Payoff         domain.Payoff
	AuctionStarted bool
}

type CheckoutResult struct {
	Payoff   uint64
	Residual uint64
	// VaultClosed is false when the item left a batch that still holds other items.
	VaultClosed bool
}

type CustodianUpdateParams struct {
	Subject                domain.SubjectId
	NewCustodianId         string
	NewCustodianFee        domain.FeeTerms
	KeepExistingParameters bool
	IsEmergencyUpdate      bool
}

type AuctionInfo struct {
	domain.FractionAuction
	Config *domain.FractionConfig
	MinBid uint64
	Open   bool
}

type AuctionSettlement struct {
	domain.AuctionResult
	PaidToCustodian bool
	Restarted       bool
}

type SweepReport struct {
	Released        int
	AuctionsStarted int
	Failed          int
}

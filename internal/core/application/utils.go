package application

import (
	"context"
	stderrors "errors"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/arkade-os/custodyd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func toError(err error) errors.Error {
	if err == nil {
		return nil
	}
	var typed errors.Error
	if stderrors.As(err, &typed) {
		return typed
	}
	return errors.INTERNAL_ERROR.Wrap(err)
}

func internalError(err error, msg string) errors.Error {
	log.WithError(err).Error(msg)
	return errors.INTERNAL_ERROR.New("%s: %w", msg, err)
}

func (s *service) getOffer(ctx context.Context, offerId string) (*domain.Offer, errors.Error) {
	offer, err := s.repoManager.Offers().GetOffer(ctx, offerId)
	if err != nil {
		return nil, internalError(err, "failed to get offer")
	}
	if offer == nil {
		return nil, errors.OFFER_NOT_FOUND.New("offer %s not found", offerId).
			WithMetadata(errors.OfferMetadata{OfferId: offerId})
	}
	return offer, nil
}

// getTokenOffer returns the offer of tokenId, failing if the id isn't one of its tokens.
func (s *service) getTokenOffer(
	ctx context.Context, tokenId domain.SubjectId,
) (*domain.Offer, errors.Error) {
	offer, err := s.getOffer(ctx, tokenId.OfferId)
	if err != nil {
		return nil, err
	}
	if !offer.HasToken(tokenId) {
		return nil, errors.INVALID_SUBJECT_ID.New(
			"%s is not a token of offer %s", tokenId, offer.Id,
		)
	}
	return offer, nil
}

func (s *service) getVault(
	ctx context.Context, subject domain.SubjectId,
) (*domain.Vault, errors.Error) {
	vault, err := s.repoManager.Vaults().GetVault(ctx, subject)
	if err != nil {
		return nil, internalError(err, "failed to get vault")
	}
	return vault, nil
}

// getOfferVault returns the vault currently funding the custody of the offer
// items: the batch vault for multi-item or fractionalized offers, the token vault
// otherwise. It returns nil if none is active.
func (s *service) getOfferVault(
	ctx context.Context, offer *domain.Offer,
) (*domain.Vault, errors.Error) {
	batch, err := s.getVault(ctx, offer.BatchId())
	if err != nil {
		return nil, err
	}
	if offer.IsBatch() || (batch != nil && batch.IsActive()) {
		if batch == nil || !batch.IsActive() {
			return nil, nil
		}
		return batch, nil
	}

	vault, err := s.getVault(ctx, domain.NewTokenId(offer.Id, offer.FirstItemIndex))
	if err != nil {
		return nil, err
	}
	if vault == nil || !vault.IsActive() {
		return nil, nil
	}
	return vault, nil
}

func (s *service) getCheckoutRequest(
	ctx context.Context, tokenId domain.SubjectId,
) (*domain.CheckoutRequest, errors.Error) {
	req, err := s.repoManager.CheckoutRequests().GetCheckoutRequest(ctx, tokenId)
	if err != nil {
		return nil, internalError(err, "failed to get checkout request")
	}
	if req == nil {
		return domain.NewCheckoutRequest(tokenId), nil
	}
	return req, nil
}

func (s *service) getCustodianUpdate(
	ctx context.Context, subject domain.SubjectId,
) (*domain.CustodianUpdateRequest, errors.Error) {
	req, err := s.repoManager.CustodianUpdates().GetCustodianUpdateRequest(ctx, subject)
	if err != nil {
		return nil, internalError(err, "failed to get custodian update request")
	}
	if req == nil {
		return &domain.CustodianUpdateRequest{Subject: subject}, nil
	}
	return req, nil
}

func (s *service) getAuction(
	ctx context.Context, offerId string,
) (*domain.FractionAuction, errors.Error) {
	auction, err := s.repoManager.Auctions().GetAuction(ctx, offerId)
	if err != nil {
		return nil, internalError(err, "failed to get auction")
	}
	if auction == nil {
		return domain.NewFractionAuction(offerId), nil
	}
	return auction, nil
}

// fractionConfig returns the auction parameters of the vault, deriving the defaults
// from the offer if the vault was never fractionalized.
func (s *service) fractionConfig(
	offer *domain.Offer, vault *domain.Vault,
) (*domain.FractionConfig, errors.Error) {
	if vault != nil && vault.Fractions != nil {
		return vault.Fractions, nil
	}
	cfg, err := domain.NewFractionConfig(offer.CustodianFee, offer.LastPrice, s.auctionParams)
	if err != nil {
		return nil, toError(err)
	}
	return cfg, nil
}

// refreshFractionConfig derives the thresholds of a fractionalized vault for a new
// fee, keeping the supply and the bidding rules it was fractionalized with.
func refreshFractionConfig(
	cfg *domain.FractionConfig, fee domain.FeeTerms, lastPrice uint64,
) (*domain.FractionConfig, errors.Error) {
	next, err := domain.NewFractionConfig(fee, lastPrice, domain.AuctionParams{
		TotalFractionSupply: cfg.TotalFractionSupply,
		MinIncrementBps:     cfg.MinIncrementBps,
		BidBuffer:           cfg.BidBuffer,
	})
	if err != nil {
		return nil, toError(err)
	}
	return next, nil
}

type roleCheck struct {
	entityId    string
	role        ports.Role
	accountRole ports.AccountRole
}

// requireAnyRole fails with ACCESS_DENIED unless the caller holds one of the roles.
func (s *service) requireAnyRole(
	ctx context.Context, caller string, checks ...roleCheck,
) errors.Error {
	if caller == "" {
		return errors.ACCESS_DENIED.New("missing caller").
			WithMetadata(errors.AccessDeniedMetadata{})
	}
	for _, check := range checks {
		ok, err := s.authority.HasRole(ctx, check.entityId, caller, check.role, check.accountRole)
		if err != nil {
			return internalError(err, "failed to check caller role")
		}
		if ok {
			return nil
		}
	}

	md := errors.AccessDeniedMetadata{Caller: caller}
	if len(checks) > 0 {
		md.Entity = checks[0].entityId
		md.Role = check2String(checks[0])
	}
	return errors.ACCESS_DENIED.New("caller %s is not allowed", caller).WithMetadata(md)
}

func check2String(c roleCheck) string {
	return c.accountRole.String() + " " + c.role.String()
}

func custodianAgent(entityId string) roleCheck {
	return roleCheck{entityId, ports.RoleAgent, ports.AccountRoleCustodian}
}

func sellerAgent(entityId string) roleCheck {
	return roleCheck{entityId, ports.RoleAgent, ports.AccountRoleSeller}
}

// requireOwner fails unless caller owns every token.
func (s *service) requireOwner(
	ctx context.Context, caller string, tokenIds ...domain.SubjectId,
) errors.Error {
	for _, tokenId := range tokenIds {
		owner, err := s.liveStore.Ownership().OwnerOf(ctx, tokenId)
		if err != nil {
			return internalError(err, "failed to get token owner")
		}
		if caller == "" || owner != caller {
			return errors.ACCESS_DENIED.New(
				"caller %s does not own %s", caller, tokenId,
			).WithMetadata(errors.AccessDeniedMetadata{
				Caller: caller,
				Entity: tokenId.String(),
				Role:   "owner",
			})
		}
	}
	return nil
}

// pull takes amount from the payer wallet before the commit and gives it back if
// the operation fails.
func (s *service) pull(tx *ledgerTx, payer, token string, amount uint64) {
	if amount == 0 {
		return
	}
	funds := s.liveStore.Funds()
	tx.pre = append(tx.pre, interaction{
		name: "pull payment",
		run: func(ctx context.Context) error {
			if err := funds.PullPayment(ctx, payer, token, amount); err != nil {
				if stderrors.Is(err, ports.ErrInsufficientFunds) {
					available, _ := funds.GetWallet(ctx, payer, token)
					return errors.INSUFFICIENT_FUNDS.Wrap(err).
						WithMetadata(errors.InsufficientFundsMetadata{
							Account:   payer,
							Token:     token,
							Available: available,
							Required:  amount,
						})
				}
				return err
			}
			return nil
		},
		revert: func(ctx context.Context) error {
			return funds.FundWallet(ctx, payer, token, amount)
		},
	})
}

// credit pays amount to the available balance of entityId before the commit and
// takes it back if the operation fails.
func (s *service) credit(tx *ledgerTx, entityId, token string, amount uint64) {
	if amount == 0 {
		return
	}
	funds := s.liveStore.Funds()
	tx.pre = append(tx.pre, interaction{
		name: "credit available balance",
		run: func(ctx context.Context) error {
			return funds.CreditAvailable(ctx, entityId, token, amount)
		},
		revert: func(ctx context.Context) error {
			return funds.DebitAvailable(ctx, entityId, token, amount)
		},
	})
}

func (s *service) setTokenState(
	tx *ledgerTx, tokenId domain.SubjectId, state ports.TokenState,
) {
	registry := s.liveStore.Ownership()
	tx.after("update token state", func(ctx context.Context) error {
		return registry.TransferState(ctx, tokenId, state)
	})
}

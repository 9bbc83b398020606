package application

import (
	"context"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/arkade-os/custodyd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// CheckIn starts the custody of a token. The token gets its own vault, unless its
// offer pools items in a batch vault, which the token joins.
func (s *service) CheckIn(ctx context.Context, caller string, tokenId domain.SubjectId) errors.Error {
	s.lock.Lock()
	defer s.lock.Unlock()

	offer, err := s.getTokenOffer(ctx, tokenId)
	if err != nil {
		return err
	}
	if err := s.requireAnyRole(ctx, caller, custodianAgent(offer.CustodianId)); err != nil {
		return err
	}
	req, err := s.getCheckoutRequest(ctx, tokenId)
	if err != nil {
		return err
	}

	now := s.nowUnix()
	if err := req.CheckIn(now); err != nil {
		return toError(err)
	}

	batch, err := s.getVault(ctx, offer.BatchId())
	if err != nil {
		return err
	}
	vault := batch
	if !offer.IsBatch() && (batch == nil || !batch.IsActive()) {
		if vault, err = s.getVault(ctx, tokenId); err != nil {
			return err
		}
		if vault == nil {
			vault = domain.NewVault(tokenId)
		}
	} else if vault == nil {
		vault = domain.NewVault(offer.BatchId())
	}

	tx := &ledgerTx{}
	if vault.IsActive() {
		if !offer.IsBatch() && vault.Subject.IsToken() {
			return errors.INTERNAL_ERROR.New("vault %s is already open", vault.Subject)
		}
		if err := vault.AddItem(now); err != nil {
			return toError(err)
		}
		tx.emit(domain.NewVaultBalanceUpdated(*vault, now))
	} else {
		if err := vault.Open(now, 1); err != nil {
			return toError(err)
		}
		tx.emit(domain.NewVaultOpened(*vault, now))
	}

	tx.changes.AddVault(*vault)
	tx.changes.AddCheckoutRequest(*req)
	tx.emit(domain.NewCheckedIn(tokenId, offer.CustodianId, now))
	s.setTokenState(tx, tokenId, ports.TokenStateCheckedIn)

	if err := s.apply(ctx, tx); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"token_id": tokenId.String(),
		"vault":    vault.Subject.String(),
	}).Info("token checked in")
	return nil
}

// RequestCheckOut moves the token into escrow on behalf of its owner, who becomes
// the claimant of the physical item.
func (s *service) RequestCheckOut(
	ctx context.Context, caller string, tokenId domain.SubjectId,
) errors.Error {
	s.lock.Lock()
	defer s.lock.Unlock()

	offer, err := s.getTokenOffer(ctx, tokenId)
	if err != nil {
		return err
	}
	if err := s.requireOwner(ctx, caller, tokenId); err != nil {
		return err
	}

	now := s.nowUnix()
	auction, err := s.getAuction(ctx, offer.Id)
	if err != nil {
		return err
	}
	if !auction.IsIdle() {
		return errors.AUCTION_ONGOING.New(
			"auction for offer %s is in progress", offer.Id,
		).WithMetadata(errors.AuctionMetadata{
			OfferId: offer.Id, EndTime: auction.EndTime, Now: now,
		})
	}

	req, err := s.getCheckoutRequest(ctx, tokenId)
	if err != nil {
		return err
	}
	if err := req.RequestCheckOut(caller, now); err != nil {
		return toError(err)
	}

	registry := s.liveStore.Ownership()
	escrow := s.escrowAddress
	tx := &ledgerTx{}
	tx.pre = append(tx.pre, interaction{
		name: "transfer token to escrow",
		run: func(ctx context.Context) error {
			return registry.Transfer(ctx, tokenId, caller, escrow)
		},
		revert: func(ctx context.Context) error {
			return registry.Transfer(ctx, tokenId, escrow, caller)
		},
	})
	tx.changes.AddCheckoutRequest(*req)
	tx.emit(domain.NewCheckoutRequested(*req, now))
	s.setTokenState(tx, tokenId, ports.TokenStateUnwrapping)

	return s.apply(ctx, tx)
}

func (s *service) SubmitTaxAmount(
	ctx context.Context, caller string, tokenId domain.SubjectId, amount uint64,
) errors.Error {
	s.lock.Lock()
	defer s.lock.Unlock()

	offer, err := s.getTokenOffer(ctx, tokenId)
	if err != nil {
		return err
	}
	if err := s.requireAnyRole(ctx, caller, sellerAgent(offer.SellerId)); err != nil {
		return err
	}
	req, err := s.getCheckoutRequest(ctx, tokenId)
	if err != nil {
		return err
	}

	now := s.nowUnix()
	if err := req.SubmitTaxAmount(amount, now); err != nil {
		return toError(err)
	}

	tx := &ledgerTx{}
	tx.changes.AddCheckoutRequest(*req)
	tx.emit(domain.NewCheckoutTaxSubmitted(*req, now))
	return s.apply(ctx, tx)
}

// ClearCheckoutRequest approves the checkout. Without tax the seller clears it,
// otherwise the claimant clears it by paying the tax to the seller.
func (s *service) ClearCheckoutRequest(
	ctx context.Context, caller string, tokenId domain.SubjectId,
) errors.Error {
	s.lock.Lock()
	defer s.lock.Unlock()

	offer, err := s.getTokenOffer(ctx, tokenId)
	if err != nil {
		return err
	}
	req, err := s.getCheckoutRequest(ctx, tokenId)
	if err != nil {
		return err
	}

	tx := &ledgerTx{}
	if req.TaxAmount == 0 {
		if err := s.requireAnyRole(ctx, caller, sellerAgent(offer.SellerId)); err != nil {
			return err
		}
	} else {
		if caller == "" || caller != req.Buyer {
			return errors.ACCESS_DENIED.New(
				"only the claimant of %s can pay its tax", tokenId,
			).WithMetadata(errors.AccessDeniedMetadata{
				Caller: caller,
				Entity: tokenId.String(),
				Role:   "claimant",
			})
		}
		s.pull(tx, caller, offer.ExchangeToken, req.TaxAmount)
		s.credit(tx, offer.SellerId, offer.ExchangeToken, req.TaxAmount)
	}

	now := s.nowUnix()
	if err := req.Clear(now); err != nil {
		return toError(err)
	}

	tx.changes.AddCheckoutRequest(*req)
	tx.emit(domain.NewCheckOutRequestCleared(*req, now))
	s.setTokenState(tx, tokenId, ports.TokenStateVerified)
	return s.apply(ctx, tx)
}

// CheckOut ends the custody of a token. The item leaves its vault and both its
// accrued fee and the rest of its balance share are paid to the custodian.
func (s *service) CheckOut(
	ctx context.Context, caller string, tokenId domain.SubjectId,
) (*CheckoutResult, errors.Error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	offer, err := s.getTokenOffer(ctx, tokenId)
	if err != nil {
		return nil, err
	}
	if err := s.requireAnyRole(ctx, caller, custodianAgent(offer.CustodianId)); err != nil {
		return nil, err
	}
	req, err := s.getCheckoutRequest(ctx, tokenId)
	if err != nil {
		return nil, err
	}

	now := s.nowUnix()
	if err := req.CheckOut(now); err != nil {
		return nil, toError(err)
	}

	vault, err := s.getOfferVault(ctx, offer)
	if err != nil {
		return nil, err
	}

	tx := &ledgerTx{}
	var exit domain.ItemExit
	if vault != nil {
		var rerr error
		if exit, rerr = vault.RemoveItem(now, offer.CustodianFee); rerr != nil {
			return nil, toError(rerr)
		}
		tx.changes.AddVault(*vault)
		total := exit.Payoff + exit.Residual
		s.credit(tx, offer.CustodianId, offer.ExchangeToken, total)
		if exit.Closed {
			tx.emit(domain.NewVaultClosed(*vault, offer.CustodianId, exit, now))
		} else {
			tx.emit(domain.NewVaultBalanceUpdated(*vault, now))
		}
	}

	registry := s.liveStore.Ownership()
	escrow := s.escrowAddress
	buyer := req.Buyer
	tx.changes.AddCheckoutRequest(*req)
	tx.emit(domain.NewCheckedOut(*req, offer.CustodianId, exit, now))
	s.setTokenState(tx, tokenId, ports.TokenStateCheckedOut)
	tx.after("release token to claimant", func(ctx context.Context) error {
		return registry.Transfer(ctx, tokenId, escrow, buyer)
	})

	if err := s.apply(ctx, tx); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"token_id": tokenId.String(),
		"payoff":   exit.Payoff,
		"residual": exit.Residual,
	}).Info("token checked out")
	return &CheckoutResult{
		Payoff:      exit.Payoff,
		Residual:    exit.Residual,
		VaultClosed: exit.Closed,
	}, nil
}

func (s *service) GetCheckoutRequest(
	ctx context.Context, tokenId domain.SubjectId,
) (*domain.CheckoutRequest, errors.Error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, err := s.getTokenOffer(ctx, tokenId); err != nil {
		return nil, err
	}
	return s.getCheckoutRequest(ctx, tokenId)
}

package application

import (
	"context"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/arkade-os/custodyd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// StartAuction opens a fraction auction for an offer whose vault ran short. Anyone
// can trigger it, it fails with AUCTION_NOT_NEEDED if the vault is healthy.
func (s *service) StartAuction(
	ctx context.Context, caller, offerId string,
) (*AuctionInfo, errors.Error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	offer, err := s.getOffer(ctx, offerId)
	if err != nil {
		return nil, err
	}
	vault, err := s.getOfferVault(ctx, offer)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, errors.INACTIVE_VAULT.New("offer %s has no active vault", offerId).
			WithMetadata(errors.VaultMetadata{Subject: offer.BatchId().String()})
	}

	now := s.nowUnix()
	auction, err := s.getAuction(ctx, offerId)
	if err != nil {
		return nil, err
	}
	if !auction.IsIdle() {
		return nil, errors.AUCTION_ONGOING.New(
			"auction for offer %s is still open", offerId,
		).WithMetadata(errors.AuctionMetadata{OfferId: offerId, EndTime: auction.EndTime, Now: now})
	}

	perPeriod, perr := offer.CustodianFee.PerPeriod(uint64(vault.Items))
	if perr != nil {
		return nil, toError(perr)
	}
	needed, err := s.auctionNeeded(offer, vault, vault.Balance < perPeriod)
	if err != nil {
		return nil, err
	}
	if !needed {
		return nil, errors.AUCTION_NOT_NEEDED.New(
			"vault %s holds enough funds", vault.Subject,
		).WithMetadata(errors.AuctionMetadata{OfferId: offerId, Now: now})
	}

	tx := &ledgerTx{}
	if vault, err = s.startAuctionTx(ctx, tx, offer, vault, auction, now); err != nil {
		return nil, err
	}
	if err := s.apply(ctx, tx); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"offer_id": offerId,
		"caller":   caller,
		"round":    auction.Round,
	}).Info("auction started on demand")
	return s.auctionInfo(*auction, vault.Fractions, now), nil
}

// startAuctionTx starts a new round on the batch vault of the offer. A single-item
// token vault is fractionalized first, its owner receiving the whole fraction supply.
// It returns the vault now backing the auction.
func (s *service) startAuctionTx(
	ctx context.Context, tx *ledgerTx, offer *domain.Offer,
	vault *domain.Vault, auction *domain.FractionAuction, now int64,
) (*domain.Vault, errors.Error) {
	cfg, err := s.fractionConfig(offer, vault)
	if err != nil {
		return nil, err
	}

	if vault.Subject.IsToken() {
		owner, oerr := s.liveStore.Ownership().OwnerOf(ctx, vault.Subject)
		if oerr != nil {
			return nil, internalError(oerr, "failed to get token owner")
		}
		tokenVault := vault
		batch, ferr := tokenVault.Fractionalize(*cfg, now)
		if ferr != nil {
			return nil, toError(ferr)
		}
		tx.changes.AddVault(*tokenVault)
		tx.changes.AddVault(*batch)
		tx.emit(
			domain.NewVaultClosed(*tokenVault, offer.CustodianId, domain.ItemExit{Closed: true}, now),
			domain.NewVaultOpened(*batch, now),
		)
		if owner != "" {
			s.mintFractions(tx, offer.Id, owner, cfg.TotalFractionSupply)
		}
		vault = batch

		log.WithFields(log.Fields{
			"token_id": tokenVault.Subject.String(),
			"owner":    owner,
		}).Info("token vault fractionalized")
	} else if vault.Fractions == nil {
		vault.Fractions = cfg
		tx.changes.AddVault(*vault)
	}

	fractions, err := mulAmounts(uint64(vault.Items), cfg.FractionsPerAuction)
	if err != nil {
		return nil, err
	}
	if serr := auction.Start(now, cfg.PartialAuctionDuration, fractions); serr != nil {
		return nil, toError(serr)
	}

	tx.changes.AddAuction(*auction)
	s.mintFractions(tx, offer.Id, s.escrowAddress, fractions)
	tx.emit(domain.NewAuctionStarted(*auction))
	tx.alert(ports.AuctionStarted, auctionStartedAlert(*auction))
	s.scheduleSettlement(tx, offer.Id, auction.EndTime)
	return vault, nil
}

func (s *service) PlaceBid(
	ctx context.Context, caller, offerId string, amount uint64,
) (*AuctionInfo, errors.Error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	offer, err := s.getOffer(ctx, offerId)
	if err != nil {
		return nil, err
	}
	auction, err := s.getAuction(ctx, offerId)
	if err != nil {
		return nil, err
	}
	vault, err := s.getVault(ctx, offer.BatchId())
	if err != nil {
		return nil, err
	}
	cfg, err := s.fractionConfig(offer, vault)
	if err != nil {
		return nil, err
	}

	now := s.nowUnix()
	prevEndTime := auction.EndTime
	outbid, berr := auction.Bid(caller, amount, now, cfg.MinIncrementBps, cfg.BidBuffer)
	if berr != nil {
		return nil, toError(berr)
	}

	tx := &ledgerTx{}
	s.pull(tx, caller, offer.ExchangeToken, amount)
	if outbid != nil {
		s.credit(tx, outbid.BidderId, offer.ExchangeToken, outbid.Amount)
	}
	tx.changes.AddAuction(*auction)
	tx.emit(domain.NewBidPlaced(*auction, now))
	if auction.EndTime != prevEndTime {
		s.scheduleSettlement(tx, offerId, auction.EndTime)
	}

	if err := s.apply(ctx, tx); err != nil {
		return nil, err
	}
	return s.auctionInfo(*auction, cfg, now), nil
}

// EndAuction settles an auction past its end time. The winning bid refills the
// vault, or goes to the custodian if the vault closed meanwhile. A vault still under
// the liquidation threshold gets a new round right away.
func (s *service) EndAuction(
	ctx context.Context, offerId string,
) (*AuctionSettlement, errors.Error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.endAuction(ctx, offerId)
}

func (s *service) endAuction(
	ctx context.Context, offerId string,
) (*AuctionSettlement, errors.Error) {
	offer, err := s.getOffer(ctx, offerId)
	if err != nil {
		return nil, err
	}
	auction, err := s.getAuction(ctx, offerId)
	if err != nil {
		return nil, err
	}
	vault, err := s.getVault(ctx, offer.BatchId())
	if err != nil {
		return nil, err
	}

	now := s.nowUnix()
	result, eerr := auction.End(now)
	if eerr != nil {
		return nil, toError(eerr)
	}

	tx := &ledgerTx{}
	tx.changes.AddAuction(*auction)
	settlement := &AuctionSettlement{AuctionResult: result}

	fractions := s.liveStore.Fractions()
	escrow := s.escrowAddress
	if result.HasWinner() {
		tx.after("transfer fractions", func(ctx context.Context) error {
			return fractions.Transfer(ctx, offerId, escrow, result.Winner, result.Fractions)
		})
		if vault != nil && vault.IsActive() {
			if derr := vault.Deposit(result.Amount, now); derr != nil {
				return nil, toError(derr)
			}
			tx.changes.AddVault(*vault)
			tx.emit(domain.NewVaultBalanceUpdated(*vault, now))
		} else {
			s.credit(tx, offer.CustodianId, offer.ExchangeToken, result.Amount)
			settlement.PaidToCustodian = true
		}
	} else if result.Fractions > 0 {
		tx.after("burn unsold fractions", func(ctx context.Context) error {
			return fractions.Burn(ctx, offerId, escrow, result.Fractions)
		})
	}
	tx.emit(domain.NewAuctionFinished(result, now))

	if vault != nil && vault.IsActive() {
		cfg, err := s.fractionConfig(offer, vault)
		if err != nil {
			return nil, err
		}
		if vault.PerItemBalance() < cfg.LiquidationThreshold {
			if _, err := s.startAuctionTx(ctx, tx, offer, vault, auction, now); err != nil {
				return nil, err
			}
			settlement.Restarted = true
		}
	}
	tx.alert(ports.AuctionFinished, auctionFinishedAlert(result, settlement.Restarted))

	if err := s.apply(ctx, tx); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"offer_id":  offerId,
		"round":     result.Round,
		"winner":    result.Winner,
		"amount":    result.Amount,
		"restarted": settlement.Restarted,
	}).Info("auction settled")
	return settlement, nil
}

func (s *service) GetAuction(ctx context.Context, offerId string) (*AuctionInfo, errors.Error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	offer, err := s.getOffer(ctx, offerId)
	if err != nil {
		return nil, err
	}
	auction, err := s.getAuction(ctx, offerId)
	if err != nil {
		return nil, err
	}
	vault, err := s.getVault(ctx, offer.BatchId())
	if err != nil {
		return nil, err
	}
	cfg, err := s.fractionConfig(offer, vault)
	if err != nil {
		return nil, err
	}
	return s.auctionInfo(*auction, cfg, s.nowUnix()), nil
}

func (s *service) auctionInfo(
	auction domain.FractionAuction, cfg *domain.FractionConfig, now int64,
) *AuctionInfo {
	info := &AuctionInfo{
		FractionAuction: auction,
		Config:          cfg,
		Open:            auction.IsOpen(now),
	}
	if cfg != nil && !auction.IsIdle() {
		info.MinBid, _ = auction.MinBid(cfg.MinIncrementBps)
	}
	return info
}

func (s *service) mintFractions(tx *ledgerTx, offerId, holder string, amount uint64) {
	if amount == 0 {
		return
	}
	fractions := s.liveStore.Fractions()
	tx.after("mint fractions", func(ctx context.Context) error {
		return fractions.Mint(ctx, offerId, holder, amount)
	})
}

func (s *service) scheduleSettlement(tx *ledgerTx, offerId string, endTime int64) {
	if s.keeper == nil {
		return
	}
	tx.onDone = append(tx.onDone, func() {
		s.keeper.scheduleSettlement(offerId, endTime)
	})
}

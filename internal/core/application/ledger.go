package application

import (
	"context"
	"math/bits"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/arkade-os/custodyd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func (s *service) GetVault(
	ctx context.Context, subject domain.SubjectId,
) (*domain.Vault, errors.Error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	vault, err := s.getVault(ctx, subject)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, errors.VAULT_NOT_FOUND.New("vault %s not found", subject).
			WithMetadata(errors.VaultMetadata{Subject: subject.String()})
	}
	return vault, nil
}

// DepositToVault tops up an active vault with funds pulled from the caller wallet.
func (s *service) DepositToVault(
	ctx context.Context, caller string, subject domain.SubjectId, amount uint64,
) (*domain.Vault, errors.Error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, errors.INVALID_AMOUNT.New("deposit amount must be positive")
	}

	offer, err := s.getOffer(ctx, subject.OfferId)
	if err != nil {
		return nil, err
	}
	vault, err := s.getVault(ctx, subject)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, errors.VAULT_NOT_FOUND.New("vault %s not found", subject).
			WithMetadata(errors.VaultMetadata{Subject: subject.String()})
	}

	now := s.nowUnix()
	if err := vault.Deposit(amount, now); err != nil {
		return nil, toError(err)
	}

	tx := &ledgerTx{}
	s.pull(tx, caller, offer.ExchangeToken, amount)
	tx.changes.AddVault(*vault)
	tx.emit(domain.NewVaultBalanceUpdated(*vault, now))

	if err := s.apply(ctx, tx); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"subject": subject.String(),
		"amount":  amount,
		"balance": vault.Balance,
	}).Debug("vault topped up")
	return vault, nil
}

func (s *service) ReleaseVault(
	ctx context.Context, subject domain.SubjectId,
) (*ReleaseResult, errors.Error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	offer, err := s.getOffer(ctx, subject.OfferId)
	if err != nil {
		return nil, err
	}
	vault, err := s.getVault(ctx, subject)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, errors.VAULT_NOT_FOUND.New("vault %s not found", subject).
			WithMetadata(errors.VaultMetadata{Subject: subject.String()})
	}

	tx := &ledgerTx{}
	result, err := s.releaseVault(ctx, tx, offer, vault, s.nowUnix())
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, tx); err != nil {
		return nil, err
	}
	return result, nil
}

// releaseVault pays the custodian the whole periods the vault can cover and starts
// an auction when the vault runs short.
func (s *service) releaseVault(
	ctx context.Context, tx *ledgerTx, offer *domain.Offer, vault *domain.Vault, now int64,
) (*ReleaseResult, errors.Error) {
	payoff, rerr := vault.Release(now, offer.CustodianFee)
	if rerr != nil {
		return nil, toError(rerr)
	}

	tx.changes.AddVault(*vault)
	s.credit(tx, offer.CustodianId, offer.ExchangeToken, payoff.Amount)
	tx.emit(
		domain.NewVaultReleased(*vault, offer.CustodianId, payoff, now),
		domain.NewVaultBalanceUpdated(*vault, now),
	)
	if payoff.Shortfall() {
		tx.alert(ports.VaultShortfall, shortfallAlert(*vault, offer.CustodianId, payoff))
	}

	result := &ReleaseResult{Payoff: payoff}
	needed, err := s.auctionNeeded(offer, vault, payoff.Shortfall())
	if err != nil {
		return nil, err
	}
	if needed {
		auction, err := s.getAuction(ctx, offer.Id)
		if err != nil {
			return nil, err
		}
		if auction.IsIdle() {
			if vault, err = s.startAuctionTx(ctx, tx, offer, vault, auction, now); err != nil {
				return nil, err
			}
			result.AuctionStarted = true
		}
	}

	result.Vault = *vault
	return result, nil
}

// auctionNeeded tells whether the vault must be refilled: either the last release
// fell short or, for batches, the per-item balance is below the partial threshold.
func (s *service) auctionNeeded(
	offer *domain.Offer, vault *domain.Vault, shortfall bool,
) (bool, errors.Error) {
	if shortfall {
		return true, nil
	}
	if vault.Subject.IsToken() {
		return false, nil
	}
	cfg, err := s.fractionConfig(offer, vault)
	if err != nil {
		return false, err
	}
	return vault.PerItemBalance() < cfg.PartialAuctionThreshold, nil
}

// sweepVaults releases every active vault whose period elapsed, each in its own
// transaction.
func (s *service) sweepVaults(ctx context.Context) (*SweepReport, errors.Error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	vaults, err := s.repoManager.Vaults().GetActiveVaults(ctx)
	if err != nil {
		return nil, internalError(err, "failed to get active vaults")
	}

	report := &SweepReport{}
	now := s.nowUnix()
	for _, v := range vaults {
		// an earlier release of the same offer may have moved this vault
		vault, err := s.getVault(ctx, v.Subject)
		if err != nil || vault == nil || !vault.IsActive() {
			continue
		}
		offer, err := s.getOffer(ctx, vault.Subject.OfferId)
		if err != nil {
			report.Failed++
			continue
		}
		if now < vault.AccrualCursor+offer.CustodianFee.Period {
			continue
		}
		waiting, err := s.waitingForAuction(ctx, offer, vault, now)
		if err != nil {
			report.Failed++
			continue
		}
		if waiting {
			continue
		}

		tx := &ledgerTx{}
		result, err := s.releaseVault(ctx, tx, offer, vault, now)
		if err == nil {
			err = s.apply(ctx, tx)
		}
		if err != nil {
			log.WithError(err).WithField("subject", vault.Subject.String()).
				Warn("failed to release vault")
			report.Failed++
			continue
		}
		report.Released++
		if result.AuctionStarted {
			report.AuctionsStarted++
		}
	}

	if report.Released > 0 || report.Failed > 0 {
		log.WithFields(log.Fields{
			"released":         report.Released,
			"auctions_started": report.AuctionsStarted,
			"failed":           report.Failed,
		}).Info("vault sweep completed")
	}
	return report, nil
}

// waitingForAuction tells whether a release would pay nothing while the offer auction
// is still running or waiting for settlement, in which case the sweep leaves the
// vault alone until the auction refills it.
func (s *service) waitingForAuction(
	ctx context.Context, offer *domain.Offer, vault *domain.Vault, now int64,
) (bool, errors.Error) {
	payoff, err := domain.ComputePayoff(
		vault.Balance, vault.AccrualCursor, now, offer.CustodianFee, uint64(vault.Items),
	)
	if err != nil || payoff.Amount > 0 {
		return false, nil
	}
	auction, aerr := s.getAuction(ctx, offer.Id)
	if aerr != nil {
		return false, aerr
	}
	return !auction.IsIdle(), nil
}

func requireCaller(caller string) errors.Error {
	if caller == "" {
		return errors.ACCESS_DENIED.New("missing caller").
			WithMetadata(errors.AccessDeniedMetadata{})
	}
	return nil
}

func mulAmounts(a, b uint64) (uint64, errors.Error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, errors.AMOUNT_OVERFLOW.New("%d * %d overflows", a, b)
	}
	return lo, nil
}

package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const ledgerStoreDir = "ledger"

// LedgerRepository stores offers, vaults, checkout and custodian update requests and
// auctions in a single badger db, so that a change set commits in one transaction.
type LedgerRepository interface {
	domain.OfferRepository
	domain.VaultRepository
	domain.CheckoutRepository
	domain.CustodianUpdateRepository
	domain.AuctionRepository
	Commit(ctx context.Context, changes domain.Changeset) error
}

type checkoutRequestDTO struct {
	OfferId string
	Request domain.CheckoutRequest
}

type ledgerRepository struct {
	store     *badgerhold.Store
	closeOnce sync.Once
}

func NewLedgerRepository(config ...interface{}) (LedgerRepository, error) {
	baseDir, logger, err := parseConfig(config...)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, ledgerStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger store: %s", err)
	}

	return &ledgerRepository{store: store}, nil
}

func (r *ledgerRepository) GetOffer(ctx context.Context, id string) (*domain.Offer, error) {
	var offer domain.Offer
	if err := r.store.Get(id, &offer); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get offer %s: %w", id, err)
	}
	return &offer, nil
}

func (r *ledgerRepository) GetOffers(ctx context.Context) ([]domain.Offer, error) {
	var offers []domain.Offer
	if err := r.store.Find(&offers, nil); err != nil {
		return nil, fmt.Errorf("failed to get offers: %w", err)
	}
	return offers, nil
}

func (r *ledgerRepository) GetVault(
	ctx context.Context, subject domain.SubjectId,
) (*domain.Vault, error) {
	var vault domain.Vault
	if err := r.store.Get(subject.String(), &vault); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get vault %s: %w", subject, err)
	}
	return &vault, nil
}

func (r *ledgerRepository) GetActiveVaults(ctx context.Context) ([]domain.Vault, error) {
	var vaults []domain.Vault
	query := badgerhold.Where("AccrualCursor").Gt(int64(0))
	if err := r.store.Find(&vaults, query); err != nil {
		return nil, fmt.Errorf("failed to get active vaults: %w", err)
	}
	return vaults, nil
}

func (r *ledgerRepository) GetCheckoutRequest(
	ctx context.Context, tokenId domain.SubjectId,
) (*domain.CheckoutRequest, error) {
	var dto checkoutRequestDTO
	if err := r.store.Get(tokenId.String(), &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get checkout request %s: %w", tokenId, err)
	}
	return &dto.Request, nil
}

func (r *ledgerRepository) GetCheckoutRequestsByOffer(
	ctx context.Context, offerId string,
) ([]domain.CheckoutRequest, error) {
	var dtos []checkoutRequestDTO
	if err := r.store.Find(&dtos, badgerhold.Where("OfferId").Eq(offerId)); err != nil {
		return nil, fmt.Errorf("failed to get checkout requests of offer %s: %w", offerId, err)
	}
	requests := make([]domain.CheckoutRequest, 0, len(dtos))
	for _, dto := range dtos {
		requests = append(requests, dto.Request)
	}
	return requests, nil
}

func (r *ledgerRepository) GetCustodianUpdateRequest(
	ctx context.Context, subject domain.SubjectId,
) (*domain.CustodianUpdateRequest, error) {
	var request domain.CustodianUpdateRequest
	if err := r.store.Get(subject.String(), &request); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get custodian update request %s: %w", subject, err)
	}
	return &request, nil
}

func (r *ledgerRepository) GetAuction(
	ctx context.Context, offerId string,
) (*domain.FractionAuction, error) {
	var auction domain.FractionAuction
	if err := r.store.Get(offerId, &auction); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get auction %s: %w", offerId, err)
	}
	return &auction, nil
}

func (r *ledgerRepository) GetPendingAuctions(
	ctx context.Context,
) ([]domain.FractionAuction, error) {
	var auctions []domain.FractionAuction
	query := badgerhold.Where("EndTime").Gt(int64(0))
	if err := r.store.Find(&auctions, query); err != nil {
		return nil, fmt.Errorf("failed to get pending auctions: %w", err)
	}
	return auctions, nil
}

func (r *ledgerRepository) Commit(ctx context.Context, changes domain.Changeset) error {
	if changes.IsEmpty() {
		return nil
	}
	if err := withRetries(func() error {
		return r.store.Badger().Update(func(txn *badger.Txn) error {
			return r.commit(txn, changes)
		})
	}); err != nil {
		return fmt.Errorf("failed to commit changes: %w", err)
	}
	return nil
}

func (r *ledgerRepository) commit(txn *badger.Txn, changes domain.Changeset) error {
	for _, offer := range changes.Offers {
		if err := r.store.TxUpsert(txn, offer.Id, &offer); err != nil {
			return err
		}
	}
	for _, vault := range changes.Vaults {
		if err := r.store.TxUpsert(txn, vault.Subject.String(), &vault); err != nil {
			return err
		}
	}
	for _, request := range changes.CheckoutRequests {
		dto := checkoutRequestDTO{OfferId: request.TokenId.OfferId, Request: request}
		if err := r.store.TxUpsert(txn, request.TokenId.String(), &dto); err != nil {
			return err
		}
	}
	for _, subject := range changes.DeletedCustodianUpdates {
		err := r.store.TxDelete(txn, subject.String(), domain.CustodianUpdateRequest{})
		if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}
	}
	for _, request := range changes.CustodianUpdates {
		if err := r.store.TxUpsert(txn, request.Subject.String(), &request); err != nil {
			return err
		}
	}
	for _, auction := range changes.Auctions {
		if err := r.store.TxUpsert(txn, auction.OfferId, &auction); err != nil {
			return err
		}
	}
	return nil
}

func (r *ledgerRepository) Close() {
	r.closeOnce.Do(func() {
		//nolint:errcheck
		r.store.Close()
	})
}

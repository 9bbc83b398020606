package ports

import (
	"context"

	"github.com/arkade-os/custodyd/internal/core/domain"
)

type RepoManager interface {
	Events() domain.EventRepository
	Offers() domain.OfferRepository
	Vaults() domain.VaultRepository
	CheckoutRequests() domain.CheckoutRepository
	CustodianUpdates() domain.CustodianUpdateRepository
	Auctions() domain.AuctionRepository
	// Commit persists every change of the set atomically.
	Commit(ctx context.Context, changes domain.Changeset) error
	Close()
}

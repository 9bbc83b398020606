package domain

import "context"

type AuctionRepository interface {
	GetAuction(ctx context.Context, offerId string) (*FractionAuction, error)
	// GetPendingAuctions returns the auctions that are open or waiting for settlement.
	GetPendingAuctions(ctx context.Context) ([]FractionAuction, error)
	Close()
}

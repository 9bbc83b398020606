package domain

import "context"

type OfferRepository interface {
	GetOffer(ctx context.Context, id string) (*Offer, error)
	GetOffers(ctx context.Context) ([]Offer, error)
	Close()
}

package domain

import "context"

type CheckoutRepository interface {
	GetCheckoutRequest(ctx context.Context, tokenId SubjectId) (*CheckoutRequest, error)
	GetCheckoutRequestsByOffer(ctx context.Context, offerId string) ([]CheckoutRequest, error)
	Close()
}

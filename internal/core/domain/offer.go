package domain

import (
	"github.com/arkade-os/custodyd/pkg/errors"
)

// Offer is the listing a set of custodied items belongs to. Only the custodian and
// its fee are ever changed by this service.
type Offer struct {
	Id             string
	SellerId       string
	CustodianId    string
	CustodianFee   FeeTerms
	ExchangeToken  string
	ItemCount      uint32
	FirstItemIndex uint32
	// LastPrice is the last observed price of a single item, in ExchangeToken units.
	LastPrice uint64
	CreatedAt int64
}

func (o Offer) Validate() error {
	md := errors.OfferMetadata{OfferId: o.Id}
	if err := validateOfferId(o.Id); err != nil {
		return errors.INVALID_OFFER.Wrap(err).WithMetadata(md)
	}
	if o.SellerId == "" || o.CustodianId == "" {
		return errors.INVALID_OFFER.New("missing seller or custodian").WithMetadata(md)
	}
	if o.ExchangeToken == "" {
		return errors.INVALID_OFFER.New("missing exchange token").WithMetadata(md)
	}
	if o.ItemCount == 0 {
		return errors.INVALID_OFFER.New("offer must have at least one item").WithMetadata(md)
	}
	if uint64(o.FirstItemIndex)+uint64(o.ItemCount) > 1<<32 {
		return errors.INVALID_OFFER.New("item range overflows").WithMetadata(md)
	}
	if err := o.CustodianFee.Validate(); err != nil {
		return errors.INVALID_OFFER.Wrap(err).WithMetadata(md)
	}
	return nil
}

// IsBatch reports whether the offer pools its items under a single batch vault.
func (o Offer) IsBatch() bool {
	return o.ItemCount > 1
}

func (o Offer) BatchId() SubjectId {
	return NewBatchId(o.Id)
}

func (o Offer) TokenIds() []SubjectId {
	ids := make([]SubjectId, 0, o.ItemCount)
	for i := range o.ItemCount {
		ids = append(ids, NewTokenId(o.Id, o.FirstItemIndex+i))
	}
	return ids
}

func (o Offer) HasToken(id SubjectId) bool {
	return id.IsToken() && id.OfferId == o.Id &&
		id.LocalIndex >= o.FirstItemIndex &&
		uint64(id.LocalIndex) < uint64(o.FirstItemIndex)+uint64(o.ItemCount)
}

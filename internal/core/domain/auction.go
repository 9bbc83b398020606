package domain

import (
	"math/big"

	"github.com/arkade-os/custodyd/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	// DefaultPartialThresholdPeriods and DefaultLiquidationThresholdPeriods are
	// multiples of the per-item fee.
	DefaultPartialThresholdPeriods     = 12
	DefaultLiquidationThresholdPeriods = 3
	DefaultTotalFractionSupply         = 1_000_000
	DefaultMinIncrementBps             = 1000
	DefaultBidBuffer                   = 10 * 60
)

// FractionConfig drives the auctions of a fractionalized vault. Thresholds are
// compared against the per-item balance.
type FractionConfig struct {
	PartialAuctionThreshold uint64
	LiquidationThreshold    uint64
	PartialAuctionDuration  int64
	FractionsPerAuction     uint64
	TotalFractionSupply     uint64
	MinIncrementBps         uint32
	BidBuffer               int64
}

// AuctionParams are the service-wide knobs used to derive a FractionConfig.
type AuctionParams struct {
	TotalFractionSupply uint64
	MinIncrementBps     uint32
	BidBuffer           int64
}

// NewFractionConfig derives the auction parameters of a vault from its fee and
// from the last observed item price.
func NewFractionConfig(
	fee FeeTerms, lastPrice uint64, params AuctionParams,
) (*FractionConfig, error) {
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	if params.MinIncrementBps > BasisPoints {
		return nil, errors.INVALID_AMOUNT.New(
			"min increment %d bps exceeds %d", params.MinIncrementBps, BasisPoints,
		)
	}
	supply := params.TotalFractionSupply
	if supply == 0 {
		supply = DefaultTotalFractionSupply
	}

	partial, err := fee.PerPeriod(DefaultPartialThresholdPeriods)
	if err != nil {
		return nil, err
	}
	liquidation, err := fee.PerPeriod(DefaultLiquidationThresholdPeriods)
	if err != nil {
		return nil, err
	}
	duration := fee.Period / 4
	if duration <= 0 {
		duration = 1
	}

	return &FractionConfig{
		PartialAuctionThreshold: partial,
		LiquidationThreshold:    liquidation,
		PartialAuctionDuration:  duration,
		FractionsPerAuction:     fractionsPerAuction(supply, partial, lastPrice),
		TotalFractionSupply:     supply,
		MinIncrementBps:         params.MinIncrementBps,
		BidBuffer:               params.BidBuffer,
	}, nil
}

// fractionsPerAuction sizes a lot so that, at the last observed price, it is worth
// about the partial auction threshold.
func fractionsPerAuction(supply, threshold, price uint64) uint64 {
	if price == 0 {
		return max(supply/100, 1)
	}
	if threshold == 0 {
		return 1
	}
	ratio := decimalFromUint64(price).Div(decimalFromUint64(threshold))
	if ratio.IsZero() {
		return supply
	}
	fractions := decimalFromUint64(supply).Div(ratio).Floor()
	if fractions.LessThan(decimal.NewFromInt(1)) {
		return 1
	}
	if fractions.GreaterThan(decimalFromUint64(supply)) {
		return supply
	}
	return fractions.BigInt().Uint64()
}

func decimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// FractionAuction is the rising-bid auction of an offer batch. A zero EndTime means
// no auction is open.
type FractionAuction struct {
	OfferId            string
	Round              uint32
	StartedAt          int64
	EndTime            int64
	MaxBid             uint64
	BidderId           string
	AvailableFractions uint64
}

// AuctionResult is what the settlement of an auction has to move around.
type AuctionResult struct {
	OfferId   string
	Round     uint32
	Winner    string
	Amount    uint64
	Fractions uint64
}

func (r AuctionResult) HasWinner() bool {
	return r.Winner != ""
}

// Outbid is the bid replaced by a higher one, to be refunded.
type Outbid struct {
	BidderId string
	Amount   uint64
}

func NewFractionAuction(offerId string) *FractionAuction {
	return &FractionAuction{OfferId: offerId}
}

func (a *FractionAuction) IsOpen(now int64) bool {
	return a.EndTime > now
}

// IsIdle reports whether there is no auction running or waiting for settlement.
func (a *FractionAuction) IsIdle() bool {
	return a.EndTime == 0
}

func (a *FractionAuction) Start(now, duration int64, fractions uint64) error {
	if !a.IsIdle() {
		return errors.AUCTION_ONGOING.New(
			"auction for offer %s is still open", a.OfferId,
		).WithMetadata(a.metadata(now))
	}
	if duration <= 0 {
		return errors.INVALID_AMOUNT.New("auction duration must be positive")
	}
	a.Round++
	a.StartedAt = now
	a.EndTime = now + duration
	a.MaxBid = 0
	a.BidderId = ""
	a.AvailableFractions = fractions
	return nil
}

// MinBid returns the lowest bid the auction currently accepts.
func (a *FractionAuction) MinBid(minIncrementBps uint32) (uint64, error) {
	if a.MaxBid == 0 {
		return 1, nil
	}
	return MinNextBid(a.MaxBid, minIncrementBps)
}

// Bid places amount on behalf of bidder and returns the bid it replaced, if any.
// Bids landing within bidBuffer of the end push the end to now+bidBuffer.
func (a *FractionAuction) Bid(
	bidder string, amount uint64, now int64, minIncrementBps uint32, bidBuffer int64,
) (*Outbid, error) {
	if a.IsIdle() {
		return nil, errors.AUCTION_NOT_STARTED.New(
			"no auction for offer %s", a.OfferId,
		).WithMetadata(a.metadata(now))
	}
	if now > a.EndTime {
		return nil, errors.AUCTION_ENDED.New(
			"auction for offer %s ended at %d", a.OfferId, a.EndTime,
		).WithMetadata(a.metadata(now))
	}
	minBid, err := a.MinBid(minIncrementBps)
	if err != nil {
		return nil, err
	}
	if amount < minBid {
		return nil, errors.INVALID_BID.New(
			"bid %d below minimum %d", amount, minBid,
		).WithMetadata(errors.InvalidBidMetadata{
			OfferId: a.OfferId,
			Amount:  amount,
			MinBid:  minBid,
		})
	}

	var outbid *Outbid
	if a.BidderId != "" {
		outbid = &Outbid{BidderId: a.BidderId, Amount: a.MaxBid}
	}
	a.MaxBid = amount
	a.BidderId = bidder
	if bidBuffer > 0 && a.EndTime-now < bidBuffer {
		a.EndTime = now + bidBuffer
	}
	return outbid, nil
}

// End closes the auction once its end time has passed and resets it to idle.
func (a *FractionAuction) End(now int64) (AuctionResult, error) {
	if a.IsIdle() {
		return AuctionResult{}, errors.AUCTION_NOT_STARTED.New(
			"no auction for offer %s", a.OfferId,
		).WithMetadata(a.metadata(now))
	}
	if now <= a.EndTime {
		return AuctionResult{}, errors.AUCTION_ONGOING.New(
			"auction for offer %s ends at %d", a.OfferId, a.EndTime,
		).WithMetadata(a.metadata(now))
	}

	result := AuctionResult{
		OfferId:   a.OfferId,
		Round:     a.Round,
		Winner:    a.BidderId,
		Amount:    a.MaxBid,
		Fractions: a.AvailableFractions,
	}
	a.EndTime = 0
	a.MaxBid = 0
	a.BidderId = ""
	a.AvailableFractions = 0
	return result, nil
}

func (a *FractionAuction) metadata(now int64) errors.AuctionMetadata {
	return errors.AuctionMetadata{OfferId: a.OfferId, EndTime: a.EndTime, Now: now}
}

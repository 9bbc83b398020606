package httpservice

import (
	"github.com/arkade-os/custodyd/internal/core/application"
	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/core/ports"
)

type feeTerms struct {
	Amount uint64 `json:"amount"`
	Period int64  `json:"period"`
}

func (f feeTerms) toDomain() domain.FeeTerms {
	return domain.FeeTerms{Amount: f.Amount, Period: f.Period}
}

func toFeeTerms(f domain.FeeTerms) feeTerms {
	return feeTerms{Amount: f.Amount, Period: f.Period}
}

type offer struct {
	Id             string   `json:"id"`
	SellerId       string   `json:"seller_id"`
	CustodianId    string   `json:"custodian_id"`
	CustodianFee   feeTerms `json:"custodian_fee"`
	ExchangeToken  string   `json:"exchange_token"`
	ItemCount      uint32   `json:"item_count"`
	FirstItemIndex uint32   `json:"first_item_index"`
	LastPrice      uint64   `json:"last_price"`
	CreatedAt      int64    `json:"created_at,omitempty"`
}

func (o offer) toDomain() domain.Offer {
	return domain.Offer{
		Id:             o.Id,
		SellerId:       o.SellerId,
		CustodianId:    o.CustodianId,
		CustodianFee:   o.CustodianFee.toDomain(),
		ExchangeToken:  o.ExchangeToken,
		ItemCount:      o.ItemCount,
		FirstItemIndex: o.FirstItemIndex,
		LastPrice:      o.LastPrice,
		CreatedAt:      o.CreatedAt,
	}
}

func toOffer(o domain.Offer) offer {
	return offer{
		Id:             o.Id,
		SellerId:       o.SellerId,
		CustodianId:    o.CustodianId,
		CustodianFee:   toFeeTerms(o.CustodianFee),
		ExchangeToken:  o.ExchangeToken,
		ItemCount:      o.ItemCount,
		FirstItemIndex: o.FirstItemIndex,
		LastPrice:      o.LastPrice,
		CreatedAt:      o.CreatedAt,
	}
}

type fractionConfig struct {
	PartialAuctionThreshold uint64 `json:"partial_auction_threshold"`
	LiquidationThreshold    uint64 `json:"liquidation_threshold"`
	PartialAuctionDuration  int64  `json:"partial_auction_duration"`
	FractionsPerAuction     uint64 `json:"fractions_per_auction"`
	TotalFractionSupply     uint64 `json:"total_fraction_supply"`
	MinIncrementBps         uint32 `json:"min_increment_bps"`
	BidBuffer               int64  `json:"bid_buffer"`
}

func toFractionConfig(c *domain.FractionConfig) *fractionConfig {
	if c == nil {
		return nil
	}
	return &fractionConfig{
		PartialAuctionThreshold: c.PartialAuctionThreshold,
		LiquidationThreshold:    c.LiquidationThreshold,
		PartialAuctionDuration:  c.PartialAuctionDuration,
		FractionsPerAuction:     c.FractionsPerAuction,
		TotalFractionSupply:     c.TotalFractionSupply,
		MinIncrementBps:         c.MinIncrementBps,
		BidBuffer:               c.BidBuffer,
	}
}

type vault struct {
	Subject       string          `json:"subject"`
	Balance       uint64          `json:"balance"`
	AccrualCursor int64           `json:"accrual_cursor"`
	Active        bool            `json:"active"`
	Items         uint32          `json:"items"`
	Fractions     *fractionConfig `json:"fractions,omitempty"`
	UpdatedAt     int64           `json:"updated_at"`
}

func toVault(v domain.Vault) vault {
	return vault{
		Subject:       v.Subject.String(),
		Balance:       v.Balance,
		AccrualCursor: v.AccrualCursor,
		Active:        v.AccrualCursor > 0,
		Items:         v.Items,
		Fractions:     toFractionConfig(v.Fractions),
		UpdatedAt:     v.UpdatedAt,
	}
}

type releaseResponse struct {
	Vault          vault  `json:"vault"`
	Payoff         uint64 `json:"payoff"`
	CoveredPeriods uint64 `json:"covered_periods"`
	ElapsedPeriods uint64 `json:"elapsed_periods"`
	AuctionStarted bool   `json:"auction_started"`
}

func toReleaseResponse(r application.ReleaseResult) releaseResponse {
	return releaseResponse{
		Vault:          toVault(r.Vault),
		Payoff:         r.Payoff.Amount,
		CoveredPeriods: r.Payoff.CoveredPeriods,
		ElapsedPeriods: r.Payoff.ElapsedPeriods,
		AuctionStarted: r.AuctionStarted,
	}
}

type checkoutRequest struct {
	TokenId   string `json:"token_id"`
	Status    string `json:"status"`
	Buyer     string `json:"buyer,omitempty"`
	TaxAmount uint64 `json:"tax_amount"`
	UpdatedAt int64  `json:"updated_at"`
}

func toCheckoutRequest(r domain.CheckoutRequest) checkoutRequest {
	return checkoutRequest{
		TokenId:   r.TokenId.String(),
		Status:    r.Status.String(),
		Buyer:     r.Buyer,
		TaxAmount: r.TaxAmount,
		UpdatedAt: r.UpdatedAt,
	}
}

type checkoutResponse struct {
	Payoff      uint64 `json:"payoff"`
	Residual    uint64 `json:"residual"`
	VaultClosed bool   `json:"vault_closed"`
}

type custodianUpdateRequest struct {
	Subject                string   `json:"subject"`
	Status                 string   `json:"status"`
	NewCustodianId         string   `json:"new_custodian_id"`
	NewCustodianFee        feeTerms `json:"new_custodian_fee"`
	RequestTimestamp       int64    `json:"request_timestamp"`
	KeepExistingParameters bool     `json:"keep_existing_parameters"`
	IsEmergencyUpdate      bool     `json:"is_emergency_update"`
	Requester              string   `json:"requester"`
}

func toCustodianUpdateRequest(r domain.CustodianUpdateRequest) custodianUpdateRequest {
	return custodianUpdateRequest{
		Subject:                r.Subject.String(),
		Status:                 r.Status.String(),
		NewCustodianId:         r.NewCustodianId,
		NewCustodianFee:        toFeeTerms(r.NewCustodianFee),
		RequestTimestamp:       r.RequestTimestamp,
		KeepExistingParameters: r.KeepExistingParameters,
		IsEmergencyUpdate:      r.IsEmergencyUpdate,
		Requester:              r.Requester,
	}
}

type requestCustodianUpdateBody struct {
	NewCustodianId         string   `json:"new_custodian_id"`
	NewCustodianFee        feeTerms `json:"new_custodian_fee"`
	KeepExistingParameters bool     `json:"keep_existing_parameters"`
	IsEmergencyUpdate      bool     `json:"is_emergency_update"`
}

type auction struct {
	OfferId            string          `json:"offer_id"`
	Round              uint32          `json:"round"`
	StartedAt          int64           `json:"started_at"`
	EndTime            int64           `json:"end_time"`
	MaxBid             uint64          `json:"max_bid"`
	BidderId           string          `json:"bidder_id,omitempty"`
	AvailableFractions uint64          `json:"available_fractions"`
	MinBid             uint64          `json:"min_bid"`
	Open               bool            `json:"open"`
	Config             *fractionConfig `json:"config,omitempty"`
}

func toAuction(a application.AuctionInfo) auction {
	return auction{
		OfferId:            a.OfferId,
		Round:              a.Round,
		StartedAt:          a.StartedAt,
		EndTime:            a.EndTime,
		MaxBid:             a.MaxBid,
		BidderId:           a.BidderId,
		AvailableFractions: a.AvailableFractions,
		MinBid:             a.MinBid,
		Open:               a.Open,
		Config:             toFractionConfig(a.Config),
	}
}

type auctionSettlement struct {
	OfferId         string `json:"offer_id"`
	Round           uint32 `json:"round"`
	Winner          string `json:"winner,omitempty"`
	Amount          uint64 `json:"amount"`
	Fractions       uint64 `json:"fractions"`
	PaidToCustodian bool   `json:"paid_to_custodian"`
	Restarted       bool   `json:"restarted"`
}

func toAuctionSettlement(s application.AuctionSettlement) auctionSettlement {
	return auctionSettlement{
		OfferId:         s.OfferId,
		Round:           s.Round,
		Winner:          s.Winner,
		Amount:          s.Amount,
		Fractions:       s.Fractions,
		PaidToCustodian: s.PaidToCustodian,
		Restarted:       s.Restarted,
	}
}

type amountBody struct {
	Amount uint64 `json:"amount"`
}

type fundWalletBody struct {
	Token  string `json:"token"`
	Amount uint64 `json:"amount"`
}

type grantRoleBody struct {
	EntityId    string `json:"entity_id"`
	Caller      string `json:"caller"`
	Role        string `json:"role"`
	AccountRole string `json:"account_role"`
}

type balance struct {
	Token     string `json:"token"`
	Available uint64 `json:"available"`
	Wallet    uint64 `json:"wallet"`
}

func toBalances(list []ports.Balance) []balance {
	balances := make([]balance, 0, len(list))
	for _, b := range list {
		balances = append(balances, balance{b.Token, b.Available, b.Wallet})
	}
	return balances
}

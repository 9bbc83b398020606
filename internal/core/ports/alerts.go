package ports

import "context"

const (
	AuctionStarted  Topic = "Auction Started"
	AuctionFinished Topic = "Auction Finished"
	VaultShortfall  Topic = "Vault Shortfall"
)

type Topic string

type Alerts interface {
	Publish(ctx context.Context, topic Topic, message interface{}) error
}

type VaultShortfallAlert struct {
	Subject        string `json:"subject"`
	CustodianId    string `json:"custodian_id"`
	Balance        uint64 `json:"balance"`
	Payoff         uint64 `json:"payoff"`
	CoveredPeriods uint64 `json:"covered_periods"`
	ElapsedPeriods uint64 `json:"elapsed_periods"`
}

type AuctionStartedAlert struct {
	OfferId   string `json:"offer_id"`
	Round     uint32 `json:"round"`
	Fractions uint64 `json:"fractions"`
	StartedAt string `json:"started_at"`
	EndsAt    string `json:"ends_at"`
}

type AuctionFinishedAlert struct {
	OfferId   string `json:"offer_id"`
	Round     uint32 `json:"round"`
	Winner    string `json:"winner"`
	Amount    uint64 `json:"amount"`
	Fractions uint64 `json:"fractions"`
	Restarted bool   `json:"restarted"`
}

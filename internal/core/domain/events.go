package domain

const (
	VaultTopic           = "vault"
	CustodyTopic         = "custody"
	CustodianUpdateTopic = "custodian_update"
	AuctionTopic         = "auction"
)

type EventType uint8

const (
	EventTypeUndefined EventType = iota
	EventTypeVaultOpened
	EventTypeVaultBalanceUpdated
	EventTypeVaultReleased
	EventTypeVaultClosed
	EventTypeCheckedIn
	EventTypeCheckoutRequested
	EventTypeCheckoutTaxSubmitted
	EventTypeCheckOutRequestCleared
	EventTypeCheckedOut
	EventTypeCustodianUpdateRequested
	EventTypeCustodianUpdateAccepted
	EventTypeCustodianUpdateRejected
	EventTypeAuctionStarted
	EventTypeBidPlaced
	EventTypeAuctionFinished
)

func (t EventType) String() string {
	return []string{
		"Undefined",
		"VaultOpened",
		"VaultBalanceUpdated",
		"VaultReleased",
		"VaultClosed",
		"CheckedIn",
		"CheckoutRequested",
		"CheckoutTaxSubmitted",
		"CheckOutRequestCleared",
		"CheckedOut",
		"CustodianUpdateRequested",
		"CustodianUpdateAccepted",
		"CustodianUpdateRejected",
		"AuctionStarted",
		"BidPlaced",
		"AuctionFinished",
	}[t]
}

// Topic returns the event stream the event type belongs to.
func (t EventType) Topic() string {
	switch t {
	case EventTypeVaultOpened, EventTypeVaultBalanceUpdated,
		EventTypeVaultReleased, EventTypeVaultClosed:
		return VaultTopic
	case EventTypeCheckedIn, EventTypeCheckoutRequested, EventTypeCheckoutTaxSubmitted,
		EventTypeCheckOutRequestCleared, EventTypeCheckedOut:
		return CustodyTopic
	case EventTypeCustodianUpdateRequested, EventTypeCustodianUpdateAccepted,
		EventTypeCustodianUpdateRejected:
		return CustodianUpdateTopic
	case EventTypeAuctionStarted, EventTypeBidPlaced, EventTypeAuctionFinished:
		return AuctionTopic
	default:
		return ""
	}
}

type Event interface {
	GetId() string
	GetType() EventType
	GetTimestamp() int64
}

// CustodyEvent is embedded by every event. Id is the subject or offer the event
// refers to.
type CustodyEvent struct {
	Id        string
	Type      EventType
	Timestamp int64
}

func (e CustodyEvent) GetId() string       { return e.Id }
func (e CustodyEvent) GetType() EventType  { return e.Type }
func (e CustodyEvent) GetTimestamp() int64 { return e.Timestamp }

type VaultOpened struct {
	CustodyEvent
	Items uint32
}

type VaultBalanceUpdated struct {
	CustodyEvent
	Balance uint64
}

type VaultReleased struct {
	CustodyEvent
	CustodianId    string
	Payoff         uint64
	CoveredPeriods uint64
	ElapsedPeriods uint64
	Shortfall      bool
}

type VaultClosed struct {
	CustodyEvent
	CustodianId string
	Payoff      uint64
	Residual    uint64
}

type CheckedIn struct {
	CustodyEvent
	CustodianId string
}

type CheckoutRequested struct {
	CustodyEvent
	Buyer string
}

type CheckoutTaxSubmitted struct {
	CustodyEvent
	TaxAmount uint64
}

type CheckOutRequestCleared struct {
	CustodyEvent
	TaxPaid uint64
}

type CheckedOut struct {
	CustodyEvent
	Buyer       string
	CustodianId string
	Payoff      uint64
	Residual    uint64
}

type CustodianUpdateRequested struct {
	CustodyEvent
	NewCustodianId    string
	NewCustodianFee   FeeTerms
	IsEmergencyUpdate bool
	Requester         string
}

type CustodianUpdateAccepted struct {
	CustodyEvent
	OldCustodianId string
	NewCustodianId string
	Fee            FeeTerms
	Settled        uint64
}

type CustodianUpdateRejected struct {
	CustodyEvent
	NewCustodianId string
}

type AuctionStarted struct {
	CustodyEvent
	Round     uint32
	EndTime   int64
	Fractions uint64
}

type BidPlaced struct {
	CustodyEvent
	BidderId string
	Amount   uint64
	EndTime  int64
}

type AuctionFinished struct {
	CustodyEvent
	Round     uint32
	Winner    string
	Amount    uint64
	Fractions uint64
}

func newEvent(t EventType, id string, now int64) CustodyEvent {
	return CustodyEvent{Id: id, Type: t, Timestamp: now}
}

func NewVaultOpened(v Vault, now int64) VaultOpened {
	return VaultOpened{
		CustodyEvent: newEvent(EventTypeVaultOpened, v.Subject.String(), now),
		Items:        v.Items,
	}
}

func NewVaultBalanceUpdated(v Vault, now int64) VaultBalanceUpdated {
	return VaultBalanceUpdated{
		CustodyEvent: newEvent(EventTypeVaultBalanceUpdated, v.Subject.String(), now),
		Balance:      v.Balance,
	}
}

func NewVaultReleased(v Vault, custodianId string, p Payoff, now int64) VaultReleased {
	return VaultReleased{
		CustodyEvent:   newEvent(EventTypeVaultReleased, v.Subject.String(), now),
		CustodianId:    custodianId,
		Payoff:         p.Amount,
		CoveredPeriods: p.CoveredPeriods,
		ElapsedPeriods: p.ElapsedPeriods,
		Shortfall:      p.Shortfall(),
	}
}

func NewVaultClosed(v Vault, custodianId string, exit ItemExit, now int64) VaultClosed {
	return VaultClosed{
		CustodyEvent: newEvent(EventTypeVaultClosed, v.Subject.String(), now),
		CustodianId:  custodianId,
		Payoff:       exit.Payoff,
		Residual:     exit.Residual,
	}
}

func NewCheckedIn(tokenId SubjectId, custodianId string, now int64) CheckedIn {
	return CheckedIn{
		CustodyEvent: newEvent(EventTypeCheckedIn, tokenId.String(), now),
		CustodianId:  custodianId,
	}
}

func NewCheckoutRequested(r CheckoutRequest, now int64) CheckoutRequested {
	return CheckoutRequested{
		CustodyEvent: newEvent(EventTypeCheckoutRequested, r.TokenId.String(), now),
		Buyer:        r.Buyer,
	}
}

func NewCheckoutTaxSubmitted(r CheckoutRequest, now int64) CheckoutTaxSubmitted {
	return CheckoutTaxSubmitted{
		CustodyEvent: newEvent(EventTypeCheckoutTaxSubmitted, r.TokenId.String(), now),
		TaxAmount:    r.TaxAmount,
	}
}

func NewCheckOutRequestCleared(r CheckoutRequest, now int64) CheckOutRequestCleared {
	return CheckOutRequestCleared{
		CustodyEvent: newEvent(EventTypeCheckOutRequestCleared, r.TokenId.String(), now),
		TaxPaid:      r.TaxAmount,
	}
}

func NewCheckedOut(
	r CheckoutRequest, custodianId string, exit ItemExit, now int64,
) CheckedOut {
	return CheckedOut{
		CustodyEvent: newEvent(EventTypeCheckedOut, r.TokenId.String(), now),
		Buyer:        r.Buyer,
		CustodianId:  custodianId,
		Payoff:       exit.Payoff,
		Residual:     exit.Residual,
	}
}

func NewCustodianUpdateRequested(r CustodianUpdateRequest) CustodianUpdateRequested {
	return CustodianUpdateRequested{
		CustodyEvent: newEvent(
			EventTypeCustodianUpdateRequested, r.Subject.String(), r.RequestTimestamp,
		),
		NewCustodianId:    r.NewCustodianId,
		NewCustodianFee:   r.NewCustodianFee,
		IsEmergencyUpdate: r.IsEmergencyUpdate,
		Requester:         r.Requester,
	}
}

func NewCustodianUpdateAccepted(
	r CustodianUpdateRequest, oldCustodianId string, fee FeeTerms, settled uint64, now int64,
) CustodianUpdateAccepted {
	return CustodianUpdateAccepted{
		CustodyEvent:   newEvent(EventTypeCustodianUpdateAccepted, r.Subject.String(), now),
		OldCustodianId: oldCustodianId,
		NewCustodianId: r.NewCustodianId,
		Fee:            fee,
		Settled:        settled,
	}
}

func NewCustodianUpdateRejected(r CustodianUpdateRequest, now int64) CustodianUpdateRejected {
	return CustodianUpdateRejected{
		CustodyEvent:   newEvent(EventTypeCustodianUpdateRejected, r.Subject.String(), now),
		NewCustodianId: r.NewCustodianId,
	}
}

func NewAuctionStarted(a FractionAuction) AuctionStarted {
	return AuctionStarted{
		CustodyEvent: newEvent(EventTypeAuctionStarted, a.OfferId, a.StartedAt),
		Round:        a.Round,
		EndTime:      a.EndTime,
		Fractions:    a.AvailableFractions,
	}
}

func NewBidPlaced(a FractionAuction, now int64) BidPlaced {
	return BidPlaced{
		CustodyEvent: newEvent(EventTypeBidPlaced, a.OfferId, now),
		BidderId:     a.BidderId,
		Amount:       a.MaxBid,
		EndTime:      a.EndTime,
	}
}

func NewAuctionFinished(r AuctionResult, now int64) AuctionFinished {
	return AuctionFinished{
		CustodyEvent: newEvent(EventTypeAuctionFinished, r.OfferId, now),
		Round:        r.Round,
		Winner:       r.Winner,
		Amount:       r.Amount,
		Fractions:    r.Fractions,
	}
}

package dbutil

import (
	"encoding/json"
	"fmt"

	"github.com/arkade-os/custodyd/internal/core/domain"
)

func SerializeEvent(event domain.Event) ([]byte, error) {
	return json.Marshal(event)
}

// DeserializeEvent restores the concrete event type from its json encoding.
func DeserializeEvent(buf []byte) (domain.Event, error) {
	var eventType struct {
		Type domain.EventType
	}
	if err := json.Unmarshal(buf, &eventType); err != nil {
		return nil, err
	}

	switch eventType.Type {
	case domain.EventTypeVaultOpened:
		return decode[domain.VaultOpened](buf)
	case domain.EventTypeVaultBalanceUpdated:
		return decode[domain.VaultBalanceUpdated](buf)
	case domain.EventTypeVaultReleased:
		return decode[domain.VaultReleased](buf)
	case domain.EventTypeVaultClosed:
		return decode[domain.VaultClosed](buf)
	case domain.EventTypeCheckedIn:
		return decode[domain.CheckedIn](buf)
	case domain.EventTypeCheckoutRequested:
		return decode[domain.CheckoutRequested](buf)
	case domain.EventTypeCheckoutTaxSubmitted:
		return decode[domain.CheckoutTaxSubmitted](buf)
	case domain.EventTypeCheckOutRequestCleared:
		return decode[domain.CheckOutRequestCleared](buf)
	case domain.EventTypeCheckedOut:
		return decode[domain.CheckedOut](buf)
	case domain.EventTypeCustodianUpdateRequested:
		return decode[domain.CustodianUpdateRequested](buf)
	case domain.EventTypeCustodianUpdateAccepted:
		return decode[domain.CustodianUpdateAccepted](buf)
	case domain.EventTypeCustodianUpdateRejected:
		return decode[domain.CustodianUpdateRejected](buf)
	case domain.EventTypeAuctionStarted:
		return decode[domain.AuctionStarted](buf)
	case domain.EventTypeBidPlaced:
		return decode[domain.BidPlaced](buf)
	case domain.EventTypeAuctionFinished:
		return decode[domain.AuctionFinished](buf)
	default:
		return nil, fmt.Errorf("unknown event type %d", eventType.Type)
	}
}

func decode[E domain.Event](buf []byte) (domain.Event, error) {
	var event E
	if err := json.Unmarshal(buf, &event); err != nil {
		return nil, err
	}
	return event, nil
}

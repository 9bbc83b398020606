package inmemorylivestore

import "github.com/arkade-os/custodyd/internal/core/ports"

type liveStore struct {
	funds     ports.Funds
	ownership ports.OwnershipRegistry
	fractions ports.FractionRegistry
}

func NewLiveStore() ports.LiveStore {
	return &liveStore{
		funds:     NewFundsStore(),
		ownership: NewOwnershipRegistry(),
		fractions: NewFractionRegistry(),
	}
}

func (s *liveStore) Funds() ports.Funds {
	return s.funds
}

func (s *liveStore) Ownership() ports.OwnershipRegistry {
	return s.ownership
}

func (s *liveStore) Fractions() ports.FractionRegistry {
	return s.fractions
}

func (s *liveStore) Close() {}

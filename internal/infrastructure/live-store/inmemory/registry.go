package inmemorylivestore

import (
	"context"
	"fmt"
	"sync"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/core/ports"
)

type ownershipRegistry struct {
	lock   sync.RWMutex
	owners map[domain.SubjectId]string
	states map[domain.SubjectId]ports.TokenState
}

func NewOwnershipRegistry() ports.OwnershipRegistry {
	return &ownershipRegistry{
		owners: make(map[domain.SubjectId]string),
		states: make(map[domain.SubjectId]ports.TokenState),
	}
}

func (m *ownershipRegistry) Mint(_ context.Context, tokenId domain.SubjectId, owner string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if current, ok := m.owners[tokenId]; ok {
		return fmt.Errorf("token %s already minted to %s", tokenId, current)
	}
	m.owners[tokenId] = owner
	return nil
}

func (m *ownershipRegistry) OwnerOf(_ context.Context, tokenId domain.SubjectId) (string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.owners[tokenId], nil
}

func (m *ownershipRegistry) Transfer(
	_ context.Context, tokenId domain.SubjectId, from, to string,
) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.owners[tokenId] != from {
		return fmt.Errorf("%w: %s does not own %s", ports.ErrNotOwner, from, tokenId)
	}
	m.owners[tokenId] = to
	return nil
}

func (m *ownershipRegistry) TransferState(
	_ context.Context, tokenId domain.SubjectId, state ports.TokenState,
) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.states[tokenId] = state
	return nil
}

func (m *ownershipRegistry) StateOf(
	_ context.Context, tokenId domain.SubjectId,
) (ports.TokenState, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.states[tokenId], nil
}

type fractionKey struct {
	offerId string
	holder  string
}

type fractionRegistry struct {
	lock     sync.RWMutex
	balances map[fractionKey]uint64
	supply   map[string]uint64
}

func NewFractionRegistry() ports.FractionRegistry {
	return &fractionRegistry{
		balances: make(map[fractionKey]uint64),
		supply:   make(map[string]uint64),
	}
}

func (m *fractionRegistry) Mint(_ context.Context, offerId, holder string, amount uint64) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.balances[fractionKey{offerId, holder}] += amount
	m.supply[offerId] += amount
	return nil
}

func (m *fractionRegistry) Transfer(
	_ context.Context, offerId, from, to string, amount uint64,
) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	fromKey := fractionKey{offerId, from}
	if m.balances[fromKey] < amount {
		return fmt.Errorf(
			"%w: %s holds %d fractions of %s", ports.ErrInsufficientFunds,
			from, m.balances[fromKey], offerId,
		)
	}
	m.balances[fromKey] -= amount
	m.balances[fractionKey{offerId, to}] += amount
	return nil
}

func (m *fractionRegistry) Burn(_ context.Context, offerId, holder string, amount uint64) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	key := fractionKey{offerId, holder}
	if m.balances[key] < amount {
		return fmt.Errorf(
			"%w: %s holds %d fractions of %s", ports.ErrInsufficientFunds,
			holder, m.balances[key], offerId,
		)
	}
	m.balances[key] -= amount
	m.supply[offerId] -= amount
	return nil
}

func (m *fractionRegistry) BalanceOf(_ context.Context, offerId, holder string) (uint64, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.balances[fractionKey{offerId, holder}], nil
}

func (m *fractionRegistry) TotalSupply(_ context.Context, offerId string) (uint64, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.supply[offerId], nil
}

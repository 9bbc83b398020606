package inmemorylivestore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/arkade-os/custodyd/internal/core/ports"
)

type balanceKey struct {
	account string
	token   string
}

type fundsStore struct {
	lock      sync.RWMutex
	wallets   map[balanceKey]uint64
	available map[balanceKey]uint64
}

func NewFundsStore() ports.Funds {
	return &fundsStore{
		wallets:   make(map[balanceKey]uint64),
		available: make(map[balanceKey]uint64),
	}
}

func (m *fundsStore) CreditAvailable(
	_ context.Context, entityId, token string, amount uint64,
) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	return credit(m.available, balanceKey{entityId, token}, amount)
}

func (m *fundsStore) DebitAvailable(
	_ context.Context, entityId, token string, amount uint64,
) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	return debit(m.available, balanceKey{entityId, token}, amount)
}

func (m *fundsStore) PullPayment(_ context.Context, payer, token string, amount uint64) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	return debit(m.wallets, balanceKey{payer, token}, amount)
}

func (m *fundsStore) FundWallet(_ context.Context, address, token string, amount uint64) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	return credit(m.wallets, balanceKey{address, token}, amount)
}

func (m *fundsStore) GetAvailable(_ context.Context, entityId, token string) (uint64, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.available[balanceKey{entityId, token}], nil
}

func (m *fundsStore) GetWallet(_ context.Context, address, token string) (uint64, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.wallets[balanceKey{address, token}], nil
}

func (m *fundsStore) GetBalances(_ context.Context, account string) ([]ports.Balance, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	byToken := make(map[string]*ports.Balance)
	get := func(token string) *ports.Balance {
		if b, ok := byToken[token]; ok {
			return b
		}
		b := &ports.Balance{Token: token}
		byToken[token] = b
		return b
	}
	for key, amount := range m.available {
		if key.account == account {
			get(key.token).Available = amount
		}
	}
	for key, amount := range m.wallets {
		if key.account == account {
			get(key.token).Wallet = amount
		}
	}

	balances := make([]ports.Balance, 0, len(byToken))
	for _, b := range byToken {
		balances = append(balances, *b)
	}
	sort.SliceStable(balances, func(i, j int) bool {
		return balances[i].Token < balances[j].Token
	})
	return balances, nil
}

func credit(book map[balanceKey]uint64, key balanceKey, amount uint64) error {
	if book[key] > math.MaxUint64-amount {
		return fmt.Errorf("balance of %s overflows", key.account)
	}
	book[key] += amount
	return nil
}

func debit(book map[balanceKey]uint64, key balanceKey, amount uint64) error {
	if book[key] < amount {
		return fmt.Errorf(
			"%w: %s holds %d %s, %d required",
			ports.ErrInsufficientFunds, key.account, book[key], key.token, amount,
		)
	}
	book[key] -= amount
	return nil
}

package redislivestore

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

const (
	walletKeyPrefix    = "fundsStore:wallet:"
	availableKeyPrefix = "fundsStore:available:"
)

type fundsStore struct {
	rdb     *redis.Client
	counter hashCounter
}

func NewFundsStore(rdb *redis.Client, numOfRetries int) ports.Funds {
	return &fundsStore{
		rdb:     rdb,
		counter: hashCounter{rdb, numOfRetries, defaultRetryDelay},
	}
}

func (s *fundsStore) CreditAvailable(
	ctx context.Context, entityId, token string, amount uint64,
) error {
	return s.counter.apply(ctx, counterUpdate{
		key: availableKeyPrefix + entityId, field: token, delta: amount,
	})
}

func (s *fundsStore) DebitAvailable(
	ctx context.Context, entityId, token string, amount uint64,
) error {
	return s.counter.apply(ctx, counterUpdate{
		key: availableKeyPrefix + entityId, field: token, delta: amount, decrease: true,
	})
}

func (s *fundsStore) PullPayment(ctx context.Context, payer, token string, amount uint64) error {
	return s.counter.apply(ctx, counterUpdate{
		key: walletKeyPrefix + payer, field: token, delta: amount, decrease: true,
	})
}

func (s *fundsStore) FundWallet(ctx context.Context, address, token string, amount uint64) error {
	return s.counter.apply(ctx, counterUpdate{
		key: walletKeyPrefix + address, field: token, delta: amount,
	})
}

func (s *fundsStore) GetAvailable(ctx context.Context, entityId, token string) (uint64, error) {
	return s.counter.get(ctx, availableKeyPrefix+entityId, token)
}

func (s *fundsStore) GetWallet(ctx context.Context, address, token string) (uint64, error) {
	return s.counter.get(ctx, walletKeyPrefix+address, token)
}

func (s *fundsStore) GetBalances(ctx context.Context, account string) ([]ports.Balance, error) {
	available, err := s.rdb.HGetAll(ctx, availableKeyPrefix+account).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get available balances of %s: %v", account, err)
	}
	wallet, err := s.rdb.HGetAll(ctx, walletKeyPrefix+account).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet of %s: %v", account, err)
	}

	byToken := make(map[string]*ports.Balance)
	get := func(token string) *ports.Balance {
		if b, ok := byToken[token]; ok {
			return b
		}
		b := &ports.Balance{Token: token}
		byToken[token] = b
		return b
	}
	for token, str := range available {
		amount, err := strconv.ParseUint(str, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed available balance of %s in storage: %v", account, err)
		}
		get(token).Available = amount
	}
	for token, str := range wallet {
		amount, err := strconv.ParseUint(str, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed wallet balance of %s in storage: %v", account, err)
		}
		get(token).Wallet = amount
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

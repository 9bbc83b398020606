package redislivestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

const (
	tokenOwnersHashKey    = "ownershipRegistry:owners"
	tokenStatesHashKey    = "ownershipRegistry:states"
	fractionsKeyPrefix    = "fractionRegistry:balances:"
	fractionSupplyHashKey = "fractionRegistry:supply"
)

type ownershipRegistry struct {
	rdb          *redis.Client
	numOfRetries int
	retryDelay   time.Duration
}

func NewOwnershipRegistry(rdb *redis.Client, numOfRetries int) ports.OwnershipRegistry {
	return &ownershipRegistry{
		rdb:          rdb,
		numOfRetries: numOfRetries,
		retryDelay:   defaultRetryDelay,
	}
}

func (s *ownershipRegistry) Mint(ctx context.Context, tokenId domain.SubjectId, owner string) error {
	ok, err := s.rdb.HSetNX(ctx, tokenOwnersHashKey, tokenId.String(), owner).Result()
	if err != nil {
		return fmt.Errorf("failed to mint token %s: %v", tokenId, err)
	}
	if !ok {
		return fmt.Errorf("token %s already minted", tokenId)
	}
	return nil
}

func (s *ownershipRegistry) OwnerOf(ctx context.Context, tokenId domain.SubjectId) (string, error) {
	owner, err := s.rdb.HGet(ctx, tokenOwnersHashKey, tokenId.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get owner of %s: %v", tokenId, err)
	}
	return owner, nil
}

func (s *ownershipRegistry) Transfer(
	ctx context.Context, tokenId domain.SubjectId, from, to string,
) error {
	field := tokenId.String()

	var err error
	for range s.numOfRetries {
		if err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			owner, err := tx.HGet(ctx, tokenOwnersHashKey, field).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if owner != from {
				return fmt.Errorf("%w: %s does not own %s", ports.ErrNotOwner, from, tokenId)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, tokenOwnersHashKey, field, to)
				return nil
			})
			return err
		}, tokenOwnersHashKey); err == nil {
			return nil
		}
		if errors.Is(err, ports.ErrNotOwner) {
			return err
		}
		time.Sleep(s.retryDelay)
	}
	return fmt.Errorf(
		"failed to transfer token %s after max number of retries: %v", tokenId, err,
	)
}

func (s *ownershipRegistry) TransferState(
	ctx context.Context, tokenId domain.SubjectId, state ports.TokenState,
) error {
	if err := s.rdb.HSet(
		ctx, tokenStatesHashKey, tokenId.String(), int(state),
	).Err(); err != nil {
		return fmt.Errorf("failed to update state of %s: %v", tokenId, err)
	}
	return nil
}

func (s *ownershipRegistry) StateOf(
	ctx context.Context, tokenId domain.SubjectId,
) (ports.TokenState, error) {
	str, err := s.rdb.HGet(ctx, tokenStatesHashKey, tokenId.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ports.TokenStateNone, nil
		}
		return 0, fmt.Errorf("failed to get state of %s: %v", tokenId, err)
	}
	state, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("malformed state of %s in storage: %v", tokenId, err)
	}
	return ports.TokenState(state), nil
}

type fractionRegistry struct {
	counter hashCounter
}

func NewFractionRegistry(rdb *redis.Client, numOfRetries int) ports.FractionRegistry {
	return &fractionRegistry{hashCounter{rdb, numOfRetries, defaultRetryDelay}}
}

func (s *fractionRegistry) Mint(ctx context.Context, offerId, holder string, amount uint64) error {
	return s.counter.apply(ctx,
		counterUpdate{key: fractionsKeyPrefix + offerId, field: holder, delta: amount},
		counterUpdate{key: fractionSupplyHashKey, field: offerId, delta: amount},
	)
}

func (s *fractionRegistry) Transfer(
	ctx context.Context, offerId, from, to string, amount uint64,
) error {
	if from == to {
		return nil
	}
	key := fractionsKeyPrefix + offerId
	return s.counter.apply(ctx,
		counterUpdate{key: key, field: from, delta: amount, decrease: true},
		counterUpdate{key: key, field: to, delta: amount},
	)
}

func (s *fractionRegistry) Burn(ctx context.Context, offerId, holder string, amount uint64) error {
	return s.counter.apply(ctx,
		counterUpdate{key: fractionsKeyPrefix + offerId, field: holder, delta: amount, decrease: true},
		counterUpdate{key: fractionSupplyHashKey, field: offerId, delta: amount, decrease: true},
	)
}

func (s *fractionRegistry) BalanceOf(ctx context.Context, offerId, holder string) (uint64, error) {
	return s.counter.get(ctx, fractionsKeyPrefix+offerId, holder)
}

func (s *fractionRegistry) TotalSupply(ctx context.Context, offerId string) (uint64, error) {
	return s.counter.get(ctx, fractionSupplyHashKey, offerId)
}

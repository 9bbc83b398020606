package redislivestore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

const defaultRetryDelay = 10 * time.Millisecond

// hashCounter updates uint64 counters stored as hash fields with optimistic
// locking, retrying when a watched key changes under it.
type hashCounter struct {
	rdb          *redis.Client
	numOfRetries int
	retryDelay   time.Duration
}

type counterUpdate struct {
	key   string
	field string
	delta uint64
	// decrease subtracts delta instead of adding it.
	decrease bool
}

func (c hashCounter) apply(ctx context.Context, updates ...counterUpdate) error {
	keys := make([]string, 0, len(updates))
	for _, u := range updates {
		keys = append(keys, u.key)
	}

	var err error
	for range c.numOfRetries {
		err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
			values := make([]uint64, len(updates))
			for i, u := range updates {
				current, err := readUint(ctx, tx, u.key, u.field)
				if err != nil {
					return err
				}
				if u.decrease {
					if current < u.delta {
						return fmt.Errorf(
							"%w: %s holds %d, %d required",
							ports.ErrInsufficientFunds, u.field, current, u.delta,
						)
					}
					values[i] = current - u.delta
					continue
				}
				if current > math.MaxUint64-u.delta {
					return fmt.Errorf("%s of %s overflows", u.field, u.key)
				}
				values[i] = current + u.delta
			}

			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for i, u := range updates {
					pipe.HSet(ctx, u.key, u.field, strconv.FormatUint(values[i], 10))
				}
				return nil
			})
			return err
		}, keys...)
		if err == nil {
			return nil
		}
		if errors.Is(err, ports.ErrInsufficientFunds) {
			return err
		}
		time.Sleep(c.retryDelay)
	}
	return fmt.Errorf("failed to update balances after max number of retries: %w", err)
}

func (c hashCounter) get(ctx context.Context, key, field string) (uint64, error) {
	return readUint(ctx, c.rdb, key, field)
}

type hashGetter interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func readUint(ctx context.Context, rdb hashGetter, key, field string) (uint64, error) {
	str, err := rdb.HGet(ctx, key, field).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get %s of %s: %v", field, key, err)
	}
	value, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed %s of %s in storage (value=%s): %v", field, key, str, err)
	}
	return value, nil
}

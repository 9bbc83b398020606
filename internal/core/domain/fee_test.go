package domain_test

import (
	"math"
	"testing"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestComputePayoff(t *testing.T) {
	fee := domain.FeeTerms{Amount: 100, Period: 1000}

	tests := []struct {
		name     string
		balance  uint64
		cursor   int64
		now      int64
		items    uint64
		expected domain.Payoff
	}{
		{
			name:     "whole periods only",
			balance:  1000,
			cursor:   0,
			now:      2500,
			items:    1,
			expected: domain.Payoff{Amount: 200, CoveredPeriods: 2, ElapsedPeriods: 2},
		},
		{
			name:     "clamped to balance",
			balance:  150,
			cursor:   0,
			now:      3000,
			items:    1,
			expected: domain.Payoff{Amount: 100, CoveredPeriods: 1, ElapsedPeriods: 3},
		},
		{
			name:     "batch of items",
			balance:  10_000,
			cursor:   1000,
			now:      3000,
			items:    3,
			expected: domain.Payoff{Amount: 600, CoveredPeriods: 2, ElapsedPeriods: 2},
		},
		{
			name:     "no time elapsed",
			balance:  10,
			cursor:   1000,
			now:      1000,
			items:    1,
			expected: domain.Payoff{},
		},
		{
			name:     "empty balance",
			balance:  0,
			cursor:   0,
			now:      5000,
			items:    1,
			expected: domain.Payoff{Amount: 0, CoveredPeriods: 0, ElapsedPeriods: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payoff, err := domain.ComputePayoff(tt.balance, tt.cursor, tt.now, fee, tt.items)
			require.NoError(t, err)
			require.Equal(t, tt.expected, payoff)
			require.LessOrEqual(t, payoff.Amount, tt.balance)
		})
	}

	t.Run("invalid period", func(t *testing.T) {
		_, err := domain.ComputePayoff(100, 0, 10, domain.FeeTerms{Amount: 1}, 1)
		require.Error(t, err)
	})

	t.Run("overflow", func(t *testing.T) {
		_, err := domain.ComputePayoff(
			100, 0, 10, domain.FeeTerms{Amount: math.MaxUint64, Period: 1}, 2,
		)
		require.True(t, errors.AMOUNT_OVERFLOW.Is(err))
	})
}

func TestComputeAccruedPayoff(t *testing.T) {
	fee := domain.FeeTerms{Amount: 100, Period: 1000}

	accrued, err := domain.ComputeAccruedPayoff(0, 30, fee, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(3), accrued)

	accrued, err = domain.ComputeAccruedPayoff(0, 2500, fee, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(500), accrued)

	accrued, err = domain.ComputeAccruedPayoff(100, 50, fee, 1)
	require.NoError(t, err)
	require.Zero(t, accrued)

	// The intermediate product exceeds 64 bits but the result doesn't.
	big := domain.FeeTerms{Amount: math.MaxUint64 / 2, Period: 1 << 20}
	accrued, err = domain.ComputeAccruedPayoff(0, 1<<19, big, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64/4), accrued)
}

func TestApplyPercentage(t *testing.T) {
	tests := []struct {
		amount   uint64
		bps      uint32
		expected uint64
	}{
		{100, 1000, 10},
		{105, 1000, 10},
		{1, 9999, 0},
		{math.MaxUint64, 10000, math.MaxUint64},
		{12345, 0, 0},
	}

	for _, tt := range tests {
		result, err := domain.ApplyPercentage(tt.amount, tt.bps)
		require.NoError(t, err)
		require.Equal(t, tt.expected, result,
			"ApplyPercentage(%d, %d) should be %d", tt.amount, tt.bps, tt.expected)
	}

	_, err := domain.ApplyPercentage(1, 10001)
	require.Error(t, err)
}

func TestMinNextBid(t *testing.T) {
	next, err := domain.MinNextBid(100, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(110), next)

	// Rounded up so that the increment is never below the required percentage.
	next, err = domain.MinNextBid(105, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(116), next)

	// Exact increments match the floored percentage.
	increment, err := domain.ApplyPercentage(2000, 250)
	require.NoError(t, err)
	next, err = domain.MinNextBid(2000, 250)
	require.NoError(t, err)
	require.Equal(t, 2000+increment, next)

	_, err = domain.MinNextBid(100, 10001)
	require.True(t, errors.INVALID_AMOUNT.Is(err))

	_, err = domain.MinNextBid(math.MaxUint64, 1000)
	require.True(t, errors.AMOUNT_OVERFLOW.Is(err))
}

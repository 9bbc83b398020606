package domain

import (
	"math/bits"

	"github.com/arkade-os/custodyd/pkg/errors"
)

// BasisPoints is the denominator of every percentage expressed in bps.
const BasisPoints = 10000

// FeeTerms is the custodian fee charged per item for every elapsed period.
type FeeTerms struct {
	Amount uint64
	Period int64 // seconds
}

func (f FeeTerms) Validate() error {
	if f.Period <= 0 {
		return errors.INVALID_AMOUNT.New("fee period must be positive, got %d", f.Period)
	}
	return nil
}

// PerPeriod returns the fee owed for itemCount items over one period.
func (f FeeTerms) PerPeriod(itemCount uint64) (uint64, error) {
	hi, lo := bits.Mul64(f.Amount, itemCount)
	if hi != 0 {
		return 0, errors.AMOUNT_OVERFLOW.New(
			"fee %d for %d items overflows", f.Amount, itemCount,
		)
	}
	return lo, nil
}

// Payoff is the outcome of a periodic release.
type Payoff struct {
	Amount         uint64
	CoveredPeriods uint64
	ElapsedPeriods uint64
}

// Shortfall reports whether the balance could not cover every elapsed period.
func (p Payoff) Shortfall() bool {
	return p.CoveredPeriods < p.ElapsedPeriods
}

// ComputePayoff returns the amount owed to the custodian for the whole periods elapsed
// since cursor, clamped to the number of periods the balance can pay for.
func ComputePayoff(
	balance uint64, cursor, now int64, fee FeeTerms, itemCount uint64,
) (Payoff, error) {
	if err := fee.Validate(); err != nil {
		return Payoff{}, err
	}
	if now <= cursor {
		return Payoff{}, nil
	}

	elapsed := uint64((now - cursor) / fee.Period)
	perPeriod, err := fee.PerPeriod(itemCount)
	if err != nil {
		return Payoff{}, err
	}
	if perPeriod == 0 {
		return Payoff{CoveredPeriods: elapsed, ElapsedPeriods: elapsed}, nil
	}

	covered := elapsed
	if affordable := balance / perPeriod; affordable < elapsed {
		covered = affordable
	}
	// covered*perPeriod <= balance, so this can't overflow.
	return Payoff{
		Amount:         covered * perPeriod,
		CoveredPeriods: covered,
		ElapsedPeriods: elapsed,
	}, nil
}

// ComputeAccruedPayoff returns the pro-rata fee accrued between cursor and now,
// partial periods included.
func ComputeAccruedPayoff(cursor, now int64, fee FeeTerms, itemCount uint64) (uint64, error) {
	if err := fee.Validate(); err != nil {
		return 0, err
	}
	if now <= cursor {
		return 0, nil
	}

	perPeriod, err := fee.PerPeriod(itemCount)
	if err != nil {
		return 0, err
	}
	hi, lo := bits.Mul64(perPeriod, uint64(now-cursor))
	if hi >= uint64(fee.Period) {
		return 0, errors.AMOUNT_OVERFLOW.New(
			"accrued fee over %ds overflows", now-cursor,
		)
	}
	accrued, _ := bits.Div64(hi, lo, uint64(fee.Period))
	return accrued, nil
}

// ApplyPercentage returns floor(amount * bps / 10000).
func ApplyPercentage(amount uint64, bps uint32) (uint64, error) {
	if bps > BasisPoints {
		return 0, errors.INVALID_AMOUNT.New("percentage %d bps exceeds %d", bps, BasisPoints)
	}
	hi, lo := bits.Mul64(amount, uint64(bps))
	q, _ := bits.Div64(hi, lo, BasisPoints)
	return q, nil
}

// MinNextBid returns the smallest bid that outbids prev by at least bps.
// The increment is rounded up so that every accepted bid is >= prev*(1+bps/10000).
func MinNextBid(prev uint64, bps uint32) (uint64, error) {
	increment, err := ApplyPercentage(prev, bps)
	if err != nil {
		return 0, err
	}
	hi, lo := bits.Mul64(prev, uint64(bps))
	if _, rem := bits.Div64(hi, lo, BasisPoints); rem > 0 {
		increment++
	}
	next, carry := bits.Add64(prev, increment, 0)
	if carry != 0 {
		return 0, errors.AMOUNT_OVERFLOW.New("next bid after %d overflows", prev)
	}
	return next, nil
}

func addAmounts(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, errors.AMOUNT_OVERFLOW.New("%d + %d overflows", a, b)
	}
	return sum, nil
}

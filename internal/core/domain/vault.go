package domain

import (
	"github.com/arkade-os/custodyd/pkg/errors"
)

// Vault holds the funds paying the custodian of a token or of an offer batch.
// A zero AccrualCursor means the vault is inactive.
type Vault struct {
	Subject       SubjectId
	Balance       uint64
	AccrualCursor int64
	// Items is the number of items the fee is charged for.
	Items uint32
	// Fractions is set once the vault has been fractionalized.
	Fractions *FractionConfig
	UpdatedAt int64
}

// ItemExit is the outcome of an item leaving custody.
type ItemExit struct {
	Payoff   uint64
	Residual uint64
	Closed   bool
}

func NewVault(subject SubjectId) *Vault {
	return &Vault{Subject: subject}
}

func (v *Vault) IsActive() bool {
	return v.AccrualCursor > 0
}

func (v *Vault) IsFractionalized() bool {
	return v.Fractions != nil
}

// Open starts fee accrual at now for the given number of items.
func (v *Vault) Open(now int64, items uint32) error {
	if v.IsActive() {
		return errors.INTERNAL_ERROR.New("vault %s is already open", v.Subject)
	}
	if now <= 0 {
		return errors.INVALID_AMOUNT.New("invalid open time %d", now)
	}
	if items == 0 {
		items = 1
	}
	v.AccrualCursor = now
	v.Items = items
	v.UpdatedAt = now
	return nil
}

// AddItem charges one more item to an active batch vault.
func (v *Vault) AddItem(now int64) error {
	if !v.IsActive() {
		return v.inactiveErr()
	}
	v.Items++
	v.UpdatedAt = now
	return nil
}

func (v *Vault) Deposit(amount uint64, now int64) error {
	if amount == 0 {
		return errors.INVALID_AMOUNT.New("deposit amount must be positive")
	}
	if !v.IsActive() {
		return v.inactiveErr()
	}
	balance, err := addAmounts(v.Balance, amount)
	if err != nil {
		return err
	}
	v.Balance = balance
	v.UpdatedAt = now
	return nil
}

// Release pays out the whole periods elapsed since the cursor that the balance
// can cover. The cursor only advances by the covered periods.
func (v *Vault) Release(now int64, fee FeeTerms) (Payoff, error) {
	if !v.IsActive() {
		return Payoff{}, v.inactiveErr()
	}
	if err := fee.Validate(); err != nil {
		return Payoff{}, err
	}
	if now < v.AccrualCursor+fee.Period {
		return Payoff{}, errors.PERIOD_NOT_OVER.New(
			"next release for %s not before %d", v.Subject, v.AccrualCursor+fee.Period,
		).WithMetadata(errors.PeriodNotOverMetadata{
			Subject:       v.Subject.String(),
			AccrualCursor: v.AccrualCursor,
			Period:        fee.Period,
			Now:           now,
		})
	}

	payoff, err := ComputePayoff(v.Balance, v.AccrualCursor, now, fee, uint64(v.Items))
	if err != nil {
		return Payoff{}, err
	}
	v.Balance -= payoff.Amount
	v.AccrualCursor += int64(payoff.CoveredPeriods) * fee.Period
	v.UpdatedAt = now
	return payoff, nil
}

// Settle pays out the pro-rata fee accrued up to now, partial periods included, and
// moves the cursor to now. It fails if the balance can't cover it.
func (v *Vault) Settle(now int64, fee FeeTerms) (uint64, error) {
	if !v.IsActive() {
		return 0, v.inactiveErr()
	}
	accrued, err := ComputeAccruedPayoff(v.AccrualCursor, now, fee, uint64(v.Items))
	if err != nil {
		return 0, err
	}
	if accrued > v.Balance {
		return 0, errors.INSUFFICIENT_VAULT_BALANCE.New(
			"vault %s holds %d, accrued fee is %d", v.Subject, v.Balance, accrued,
		).WithMetadata(errors.InsufficientBalanceMetadata{
			Subject:  v.Subject.String(),
			Balance:  v.Balance,
			Required: accrued,
		})
	}
	v.Balance -= accrued
	if now > v.AccrualCursor {
		v.AccrualCursor = now
	}
	v.UpdatedAt = now
	return accrued, nil
}

// Fractionalize moves the whole vault, balance and cursor included, into a new
// batch vault driven by cfg, and closes v.
func (v *Vault) Fractionalize(cfg FractionConfig, now int64) (*Vault, error) {
	if !v.IsActive() {
		return nil, v.inactiveErr()
	}
	if !v.Subject.IsToken() {
		return nil, errors.INTERNAL_ERROR.New("vault %s is already a batch", v.Subject)
	}
	batch := &Vault{
		Subject:       NewBatchId(v.Subject.OfferId),
		Balance:       v.Balance,
		AccrualCursor: v.AccrualCursor,
		Items:         v.Items,
		Fractions:     &cfg,
		UpdatedAt:     now,
	}
	v.Close(now)
	return batch, nil
}

// Close deactivates the vault and returns the residual balance.
func (v *Vault) Close(now int64) uint64 {
	residual := v.Balance
	v.Balance = 0
	v.AccrualCursor = 0
	v.Items = 0
	v.UpdatedAt = now
	return residual
}

// SplitForSingleItem returns the balance share of a single item. The rounding
// loss is at most Items-1 units and stays in the vault.
func (v *Vault) SplitForSingleItem() (uint64, error) {
	if !v.IsActive() || v.Items == 0 {
		return 0, v.inactiveErr()
	}
	return v.Balance / uint64(v.Items), nil
}

// PerItemBalance is like SplitForSingleItem but returns 0 for inactive vaults.
func (v *Vault) PerItemBalance() uint64 {
	share, err := v.SplitForSingleItem()
	if err != nil {
		return 0
	}
	return share
}

// RemoveItem takes one item out of the vault. The item's pro-rata fee since the
// cursor is paid from its share of the balance, clamped to that share, and the rest
// of the share is returned as residual. The vault closes with its last item and any
// rounding dust goes to the residual.
func (v *Vault) RemoveItem(now int64, fee FeeTerms) (ItemExit, error) {
	share, err := v.SplitForSingleItem()
	if err != nil {
		return ItemExit{}, err
	}
	accrued, err := ComputeAccruedPayoff(v.AccrualCursor, now, fee, 1)
	if err != nil {
		return ItemExit{}, err
	}
	if accrued > share {
		accrued = share
	}

	if v.Items == 1 {
		total := v.Close(now)
		return ItemExit{Payoff: accrued, Residual: total - accrued, Closed: true}, nil
	}

	v.Balance -= share
	v.Items--
	v.UpdatedAt = now
	return ItemExit{Payoff: accrued, Residual: share - accrued}, nil
}

func (v *Vault) inactiveErr() error {
	return errors.INACTIVE_VAULT.New("vault %s is not active", v.Subject).
		WithMetadata(errors.VaultMetadata{Subject: v.Subject.String()})
}

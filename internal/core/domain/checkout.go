package domain

import (
	"github.com/arkade-os/custodyd/pkg/errors"
)

type CheckoutStatus uint8

const (
	CheckoutStatusNone CheckoutStatus = iota
	CheckoutStatusCheckedIn
	CheckoutStatusCheckOutRequested
	CheckoutStatusCheckOutRequestCleared
	CheckoutStatusCheckedOut
)

func (s CheckoutStatus) String() string {
	return []string{
		"None",
		"CheckedIn",
		"CheckOutRequested",
		"CheckOutRequestCleared",
		"CheckedOut",
	}[s]
}

// CheckoutRequest tracks the custody lifecycle of a single token.
type CheckoutRequest struct {
	TokenId   SubjectId
	Status    CheckoutStatus
	Buyer     string
	TaxAmount uint64
	UpdatedAt int64
}

func NewCheckoutRequest(tokenId SubjectId) *CheckoutRequest {
	return &CheckoutRequest{TokenId: tokenId}
}

// CheckIn starts a custody cycle. A checked out token starts a new cycle.
func (r *CheckoutRequest) CheckIn(now int64) error {
	if r.Status == CheckoutStatusCheckedOut {
		r.reset()
	}
	if err := r.expect(CheckoutStatusNone); err != nil {
		return err
	}
	r.Status = CheckoutStatusCheckedIn
	r.UpdatedAt = now
	return nil
}

func (r *CheckoutRequest) RequestCheckOut(buyer string, now int64) error {
	if err := r.expect(CheckoutStatusCheckedIn); err != nil {
		return err
	}
	r.Status = CheckoutStatusCheckOutRequested
	r.Buyer = buyer
	r.TaxAmount = 0
	r.UpdatedAt = now
	return nil
}

func (r *CheckoutRequest) SubmitTaxAmount(amount uint64, now int64) error {
	if err := r.expect(CheckoutStatusCheckOutRequested); err != nil {
		return err
	}
	r.TaxAmount = amount
	r.UpdatedAt = now
	return nil
}

func (r *CheckoutRequest) Clear(now int64) error {
	if err := r.expect(CheckoutStatusCheckOutRequested); err != nil {
		return err
	}
	r.Status = CheckoutStatusCheckOutRequestCleared
	r.UpdatedAt = now
	return nil
}

func (r *CheckoutRequest) CheckOut(now int64) error {
	if err := r.expect(CheckoutStatusCheckOutRequestCleared); err != nil {
		return err
	}
	r.Status = CheckoutStatusCheckedOut
	r.UpdatedAt = now
	return nil
}

func (r *CheckoutRequest) IsCheckedOut() bool {
	return r.Status == CheckoutStatusCheckedOut
}

func (r *CheckoutRequest) reset() {
	r.Status = CheckoutStatusNone
	r.Buyer = ""
	r.TaxAmount = 0
}

func (r *CheckoutRequest) expect(status CheckoutStatus) error {
	if r.Status == status {
		return nil
	}
	return errors.INVALID_CHECKOUT_REQUEST_STATUS.New(
		"token %s is %s, expected %s", r.TokenId, r.Status, status,
	).WithMetadata(errors.CheckoutStatusMetadata{
		TokenId:  r.TokenId.String(),
		Expected: status.String(),
		Actual:   r.Status.String(),
	})
}

package domain

import (
	"github.com/arkade-os/custodyd/pkg/errors"
)

// DefaultCustodianUpdateWindow is how long, in seconds, a custodian update request
// stays acceptable and blocks new normal requests.
const DefaultCustodianUpdateWindow int64 = 24 * 60 * 60

type CustodianUpdateStatus uint8

const (
	CustodianUpdateStatusNone CustodianUpdateStatus = iota
	CustodianUpdateStatusRequested
)

func (s CustodianUpdateStatus) String() string {
	return []string{
		"None",
		"Requested",
	}[s]
}

type CustodianUpdateRequest struct {
	Subject                SubjectId
	Status                 CustodianUpdateStatus
	NewCustodianId         string
	NewCustodianFee        FeeTerms
	RequestTimestamp       int64
	KeepExistingParameters bool
	IsEmergencyUpdate      bool
	Requester              string
}

func (r CustodianUpdateRequest) IsPending() bool {
	return r.Status == CustodianUpdateStatusRequested
}

// IsExpired reports whether the acceptance window closed strictly before now.
func (r CustodianUpdateRequest) IsExpired(now, window int64) bool {
	return r.RequestTimestamp+window < now
}

// CanBeReplaced tells whether a new normal request may overwrite this one.
func (r CustodianUpdateRequest) CanBeReplaced(now, window int64) error {
	if !r.IsPending() || r.RequestTimestamp+window <= now {
		return nil
	}
	return errors.UPDATE_REQUEST_TOO_RECENT.New(
		"pending custodian update on %s until %d", r.Subject, r.RequestTimestamp+window,
	).WithMetadata(r.metadata(now))
}

// CheckOpen fails unless the request is pending and still within its window.
func (r CustodianUpdateRequest) CheckOpen(now, window int64) error {
	if !r.IsPending() {
		return errors.INVALID_CUSTODIAN_UPDATE_STATUS.New(
			"no pending custodian update on %s", r.Subject,
		).WithMetadata(r.metadata(now))
	}
	if r.IsExpired(now, window) {
		return errors.UPDATE_REQUEST_EXPIRED.New(
			"custodian update on %s expired at %d", r.Subject, r.RequestTimestamp+window,
		).WithMetadata(r.metadata(now))
	}
	return nil
}

func (r CustodianUpdateRequest) metadata(now int64) errors.CustodianUpdateMetadata {
	return errors.CustodianUpdateMetadata{
		Subject:          r.Subject.String(),
		Status:           r.Status.String(),
		RequestTimestamp: r.RequestTimestamp,
		Now:              now,
	}
}

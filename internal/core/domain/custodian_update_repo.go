package domain

import "context"

type CustodianUpdateRepository interface {
	GetCustodianUpdateRequest(
		ctx context.Context, subject SubjectId,
	) (*CustodianUpdateRequest, error)
	Close()
}

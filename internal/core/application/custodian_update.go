package application

import (
	"context"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func (s *service) RequestCustodianUpdate(
	ctx context.Context, caller string, params CustodianUpdateParams,
) errors.Error {
	s.lock.Lock()
	defer s.lock.Unlock()

	offer, err := s.getOffer(ctx, params.Subject.OfferId)
	if err != nil {
		return err
	}
	tokenIds, err := updateScope(offer, params.Subject)
	if err != nil {
		return err
	}

	md := errors.CustodianUpdateMetadata{Subject: params.Subject.String()}
	if params.NewCustodianId == "" {
		return errors.INVALID_CUSTODIAN_UPDATE.New("missing new custodian").WithMetadata(md)
	}
	if params.NewCustodianId == offer.CustodianId && !params.IsEmergencyUpdate {
		return errors.INVALID_CUSTODIAN_UPDATE.New(
			"%s already is the custodian of %s", params.NewCustodianId, offer.Id,
		).WithMetadata(md)
	}
	if !params.KeepExistingParameters {
		if err := params.NewCustodianFee.Validate(); err != nil {
			return errors.INVALID_CUSTODIAN_UPDATE.Wrap(err).WithMetadata(md)
		}
	}

	if params.IsEmergencyUpdate {
		err = s.requireAnyRole(
			ctx, caller, custodianAgent(offer.CustodianId), sellerAgent(offer.SellerId),
		)
	} else {
		err = s.requireAnyRole(ctx, caller, custodianAgent(params.NewCustodianId))
	}
	if err != nil {
		return err
	}

	now := s.nowUnix()
	if !params.IsEmergencyUpdate {
		current, err := s.getCustodianUpdate(ctx, params.Subject)
		if err != nil {
			return err
		}
		if err := current.CanBeReplaced(now, s.updateWindow); err != nil {
			return toError(err)
		}
	}

	for _, tokenId := range tokenIds {
		req, err := s.getCheckoutRequest(ctx, tokenId)
		if err != nil {
			return err
		}
		if req.IsCheckedOut() {
			return errors.ITEM_CHECKED_OUT.New("%s is checked out", tokenId).
				WithMetadata(errors.ItemCheckedOutMetadata{
					Subject: params.Subject.String(),
					TokenId: tokenId.String(),
				})
		}
	}

	req := domain.CustodianUpdateRequest{
		Subject:                params.Subject,
		Status:                 domain.CustodianUpdateStatusRequested,
		NewCustodianId:         params.NewCustodianId,
		NewCustodianFee:        params.NewCustodianFee,
		RequestTimestamp:       now,
		KeepExistingParameters: params.KeepExistingParameters,
		IsEmergencyUpdate:      params.IsEmergencyUpdate,
		Requester:              caller,
	}
	if req.KeepExistingParameters {
		req.NewCustodianFee = offer.CustodianFee
	}

	tx := &ledgerTx{}
	tx.changes.AddCustodianUpdate(req)
	tx.emit(domain.NewCustodianUpdateRequested(req))
	if err := s.apply(ctx, tx); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"subject":       params.Subject.String(),
		"new_custodian": params.NewCustodianId,
		"emergency":     params.IsEmergencyUpdate,
	}).Info("custodian update requested")
	return nil
}

// AcceptCustodianUpdate settles the vault against the current fee up to now, then
// hands the offer over to the new custodian.
func (s *service) AcceptCustodianUpdate(
	ctx context.Context, caller string, subject domain.SubjectId,
) errors.Error {
	s.lock.Lock()
	defer s.lock.Unlock()

	offer, err := s.getOffer(ctx, subject.OfferId)
	if err != nil {
		return err
	}
	tokenIds, err := updateScope(offer, subject)
	if err != nil {
		return err
	}
	req, err := s.getCustodianUpdate(ctx, subject)
	if err != nil {
		return err
	}

	now := s.nowUnix()
	if err := req.CheckOpen(now, s.updateWindow); err != nil {
		return toError(err)
	}
	if req.IsEmergencyUpdate {
		err = s.requireAnyRole(ctx, caller, custodianAgent(req.NewCustodianId))
	} else {
		err = s.requireOwner(ctx, caller, tokenIds...)
	}
	if err != nil {
		return err
	}

	vault, err := s.getOfferVault(ctx, offer)
	if err != nil {
		return err
	}

	tx := &ledgerTx{}
	settled := uint64(0)
	if vault != nil {
		var serr error
		if settled, serr = vault.Settle(now, offer.CustodianFee); serr != nil {
			return toError(serr)
		}
		if !req.KeepExistingParameters && vault.Fractions != nil {
			cfg, err := refreshFractionConfig(vault.Fractions, req.NewCustodianFee, offer.LastPrice)
			if err != nil {
				return err
			}
			vault.Fractions = cfg
		}
		tx.changes.AddVault(*vault)
		tx.emit(domain.NewVaultBalanceUpdated(*vault, now))
		s.credit(tx, offer.CustodianId, offer.ExchangeToken, settled)
	}

	oldCustodianId := offer.CustodianId
	offer.CustodianId = req.NewCustodianId
	if !req.KeepExistingParameters {
		offer.CustodianFee = req.NewCustodianFee
	}
	tx.changes.AddOffer(*offer)
	tx.changes.DeleteCustodianUpdate(subject)
	tx.emit(domain.NewCustodianUpdateAccepted(
		*req, oldCustodianId, offer.CustodianFee, settled, now,
	))

	if err := s.apply(ctx, tx); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"subject":       subject.String(),
		"old_custodian": oldCustodianId,
		"new_custodian": offer.CustodianId,
		"settled":       settled,
	}).Info("custodian update accepted")
	return nil
}

func (s *service) RejectCustodianUpdate(
	ctx context.Context, caller string, subject domain.SubjectId,
) errors.Error {
	s.lock.Lock()
	defer s.lock.Unlock()

	offer, err := s.getOffer(ctx, subject.OfferId)
	if err != nil {
		return err
	}
	tokenIds, err := updateScope(offer, subject)
	if err != nil {
		return err
	}
	req, err := s.getCustodianUpdate(ctx, subject)
	if err != nil {
		return err
	}

	now := s.nowUnix()
	if err := req.CheckOpen(now, s.updateWindow); err != nil {
		return toError(err)
	}
	if req.IsEmergencyUpdate {
		return errors.INVALID_CUSTODIAN_UPDATE_STATUS.New(
			"emergency update on %s can't be rejected", subject,
		).WithMetadata(errors.CustodianUpdateMetadata{
			Subject:          subject.String(),
			Status:           req.Status.String(),
			RequestTimestamp: req.RequestTimestamp,
			Now:              now,
		})
	}
	if err := s.requireOwner(ctx, caller, tokenIds...); err != nil {
		return err
	}

	tx := &ledgerTx{}
	tx.changes.DeleteCustodianUpdate(subject)
	tx.emit(domain.NewCustodianUpdateRejected(*req, now))
	return s.apply(ctx, tx)
}

// GetCustodianUpdateRequest returns the pending request on subject. Expired
// requests are reported as such, never returned.
func (s *service) GetCustodianUpdateRequest(
	ctx context.Context, subject domain.SubjectId,
) (*domain.CustodianUpdateRequest, errors.Error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	req, err := s.getCustodianUpdate(ctx, subject)
	if err != nil {
		return nil, err
	}
	if !req.IsPending() {
		return nil, errors.NOT_FOUND.New("no custodian update request on %s", subject).
			WithMetadata(map[string]any{"subject": subject.String()})
	}
	if cerr := req.CheckOpen(s.nowUnix(), s.updateWindow); cerr != nil {
		return nil, toError(cerr)
	}
	return req, nil
}

// updateScope returns the tokens a custodian update on subject applies to: the
// token itself for single-item offers, every item for multi-item offers.
func updateScope(offer *domain.Offer, subject domain.SubjectId) ([]domain.SubjectId, errors.Error) {
	switch subject.Kind {
	case domain.SubjectKindToken:
		if offer.IsBatch() || !offer.HasToken(subject) {
			return nil, errors.INVALID_SUBJECT_ID.New(
				"custodian updates on offer %s must target %s", offer.Id, offer.BatchId(),
			)
		}
		return []domain.SubjectId{subject}, nil
	case domain.SubjectKindOfferBatch:
		if !offer.IsBatch() {
			return nil, errors.INVALID_SUBJECT_ID.New(
				"custodian updates on offer %s must target its token", offer.Id,
			)
		}
		return offer.TokenIds(), nil
	default:
		return nil, errors.INVALID_SUBJECT_ID.New("invalid subject %s", subject)
	}
}

package application

import (
	"context"
	"fmt"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/arkade-os/custodyd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type adminService struct {
	*service
}

func NewAdminService(svc Service) (AdminService, error) {
	s, ok := svc.(*service)
	if !ok {
		return nil, fmt.Errorf("unsupported service type %T", svc)
	}
	return &adminService{s}, nil
}

// RegisterOffer seeds a new offer: its tokens are minted to the seller and each
// gets an empty custody record.
func (a *adminService) RegisterOffer(ctx context.Context, offer domain.Offer) errors.Error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if err := offer.Validate(); err != nil {
		return toError(err)
	}
	existing, err := a.repoManager.Offers().GetOffer(ctx, offer.Id)
	if err != nil {
		return internalError(err, "failed to get offer")
	}
	if existing != nil {
		return errors.INVALID_OFFER.New("offer %s already exists", offer.Id).
			WithMetadata(errors.OfferMetadata{OfferId: offer.Id})
	}

	now := a.nowUnix()
	if offer.CreatedAt == 0 {
		offer.CreatedAt = now
	}

	tx := &ledgerTx{}
	tx.changes.AddOffer(offer)
	registry := a.liveStore.Ownership()
	for _, tokenId := range offer.TokenIds() {
		tx.changes.AddCheckoutRequest(*domain.NewCheckoutRequest(tokenId))
		tokenId := tokenId
		tx.after("mint token", func(ctx context.Context) error {
			return registry.Mint(ctx, tokenId, offer.SellerId)
		})
	}
	if err := a.apply(ctx, tx); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"offer_id":  offer.Id,
		"items":     offer.ItemCount,
		"custodian": offer.CustodianId,
	}).Info("offer registered")
	return nil
}

func (a *adminService) FundWallet(
	ctx context.Context, address, token string, amount uint64,
) errors.Error {
	if address == "" || token == "" {
		return errors.INVALID_AMOUNT.New("missing address or token")
	}
	if amount == 0 {
		return errors.INVALID_AMOUNT.New("amount must be positive")
	}
	if err := a.liveStore.Funds().FundWallet(ctx, address, token, amount); err != nil {
		return internalError(err, "failed to fund wallet")
	}
	return nil
}

func (a *adminService) GetBalances(
	ctx context.Context, account string,
) ([]ports.Balance, errors.Error) {
	balances, err := a.liveStore.Funds().GetBalances(ctx, account)
	if err != nil {
		return nil, internalError(err, "failed to get balances")
	}
	return balances, nil
}

func (a *adminService) GrantRole(
	ctx context.Context, entityId, caller string, role ports.Role, accountRole ports.AccountRole,
) errors.Error {
	granter, ok := a.authority.(ports.RoleGranter)
	if !ok {
		return errors.INTERNAL_ERROR.New("role authority does not accept grants")
	}
	if entityId == "" || caller == "" {
		return errors.ACCESS_DENIED.New("missing entity or caller").
			WithMetadata(errors.AccessDeniedMetadata{Caller: caller, Entity: entityId})
	}
	if err := granter.GrantRole(ctx, entityId, caller, role, accountRole); err != nil {
		return internalError(err, "failed to grant role")
	}
	return nil
}

func (a *adminService) SweepVaults(ctx context.Context) (*SweepReport, errors.Error) {
	return a.sweepVaults(ctx)
}

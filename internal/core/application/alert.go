package application

import (
	"context"
	"time"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

func (s *service) publishAlert(topic ports.Topic, message any) {
	if s.alerts == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.alerts.Publish(ctx, topic, message); err != nil {
		log.WithError(err).WithField("topic", topic).Warn("failed to publish alert")
	}
}

func shortfallAlert(
	vault domain.Vault, custodianId string, payoff domain.Payoff,
) ports.VaultShortfallAlert {
	return ports.VaultShortfallAlert{
		Subject:        vault.Subject.String(),
		CustodianId:    custodianId,
		Balance:        vault.Balance,
		Payoff:         payoff.Amount,
		CoveredPeriods: payoff.CoveredPeriods,
		ElapsedPeriods: payoff.ElapsedPeriods,
	}
}

func auctionStartedAlert(auction domain.FractionAuction) ports.AuctionStartedAlert {
	return ports.AuctionStartedAlert{
		OfferId:   auction.OfferId,
		Round:     auction.Round,
		Fractions: auction.AvailableFractions,
		StartedAt: time.Unix(auction.StartedAt, 0).UTC().Format(time.RFC3339),
		EndsAt:    time.Unix(auction.EndTime, 0).UTC().Format(time.RFC3339),
	}
}

func auctionFinishedAlert(
	result domain.AuctionResult, restarted bool,
) ports.AuctionFinishedAlert {
	winner := result.Winner
	if winner == "" {
		winner = "N/A"
	}
	return ports.AuctionFinishedAlert{
		OfferId:   result.OfferId,
		Round:     result.Round,
		Winner:    winner,
		Amount:    result.Amount,
		Fractions: result.Fractions,
		Restarted: restarted,
	}
}

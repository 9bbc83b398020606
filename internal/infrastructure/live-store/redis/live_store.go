package redislivestore

import (
	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type liveStore struct {
	rdb       *redis.Client
	funds     ports.Funds
	ownership ports.OwnershipRegistry
	fractions ports.FractionRegistry
}

func NewLiveStore(rdb *redis.Client, numOfRetries int) ports.LiveStore {
	if numOfRetries <= 0 {
		numOfRetries = 1
	}
	return &liveStore{
		rdb:       rdb,
		funds:     NewFundsStore(rdb, numOfRetries),
		ownership: NewOwnershipRegistry(rdb, numOfRetries),
		fractions: NewFractionRegistry(rdb, numOfRetries),
	}
}

func (s *liveStore) Funds() ports.Funds {
	return s.funds
}

func (s *liveStore) Ownership() ports.OwnershipRegistry {
	return s.ownership
}

func (s *liveStore) Fractions() ports.FractionRegistry {
	return s.fractions
}

func (s *liveStore) Close() {
	if err := s.rdb.Close(); err != nil {
		log.WithError(err).Warn("failed to close redis client")
	}
}

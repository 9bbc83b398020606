package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/arkade-os/custodyd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const defaultSweepInterval = time.Minute

// keeper is an unexported service running while the main application service is
// started. It periodically releases the vaults whose period elapsed and settles
// auctions once they end. When an auction starts or gets extended, the main service
// schedules its settlement through the keeper.
type keeper struct {
	svc           *service
	scheduler     ports.SchedulerService
	sweepInterval time.Duration

	// cache of scheduled settlements, avoid scheduling the same one multiple times
	locker         *sync.Mutex
	scheduledTasks map[string]struct{}
}

func newKeeper(
	svc *service, scheduler ports.SchedulerService, sweepInterval time.Duration,
) *keeper {
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	return &keeper{
		svc, scheduler, sweepInterval, &sync.Mutex{}, make(map[string]struct{}),
	}
}

func (k *keeper) start() error {
	k.scheduler.Start()

	ctx := context.Background()
	pending, err := k.svc.repoManager.Auctions().GetPendingAuctions(ctx)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		log.Infof("keeper: restoring %d pending auctions", len(pending))
	}
	for _, auction := range pending {
		k.scheduleSettlement(auction.OfferId, auction.EndTime)
	}

	return k.scheduler.ScheduleTaskEvery(k.sweepInterval, k.sweep)
}

func (k *keeper) stop() {
	k.scheduler.Stop()
}

func (k *keeper) sweep() {
	if _, err := k.svc.sweepVaults(context.Background()); err != nil {
		log.WithError(err).Warn("keeper: vault sweep failed")
	}
}

// scheduleSettlement settles the auction of offerId right after endTime. If the end
// time moved in the meantime the settlement is scheduled again at the new one.
func (k *keeper) scheduleSettlement(offerId string, endTime int64) {
	id := fmt.Sprintf("%s:%d", offerId, endTime)

	k.locker.Lock()
	if _, scheduled := k.scheduledTasks[id]; scheduled {
		k.locker.Unlock()
		return
	}
	k.scheduledTasks[id] = struct{}{}
	k.locker.Unlock()

	at := endTime + 1
	if !k.scheduler.AfterNow(at) {
		at = k.scheduler.AddNow(1)
	}

	task := func() {
		defer k.removeTask(id)
		k.settle(offerId, endTime)
	}
	if err := k.scheduler.ScheduleTaskOnce(at, task); err != nil {
		k.removeTask(id)
		log.WithError(err).WithField("offer_id", offerId).
			Error("keeper: failed to schedule auction settlement")
		return
	}
	log.Debugf("keeper: scheduled settlement of auction %s at %d", offerId, at)
}

func (k *keeper) settle(offerId string, endTime int64) {
	ctx := context.Background()

	settlement, err := k.svc.EndAuction(ctx, offerId)
	if err == nil {
		log.Debugf(
			"keeper: settled round %d of auction %s", settlement.Round, offerId,
		)
		return
	}
	if !errors.AUCTION_ONGOING.Is(err) {
		if !errors.AUCTION_NOT_STARTED.Is(err) {
			log.WithError(err).WithField("offer_id", offerId).
				Warn("keeper: failed to settle auction")
		}
		return
	}

	info, err := k.svc.GetAuction(ctx, offerId)
	if err != nil {
		log.WithError(err).WithField("offer_id", offerId).Warn("keeper: failed to get auction")
		return
	}
	// the settlement of the new end time is scheduled by the bid that extended it
	if info.EndTime == endTime {
		k.removeTask(fmt.Sprintf("%s:%d", offerId, endTime))
		k.scheduleSettlement(offerId, info.EndTime)
	}
}

// removeTask update the cached map of scheduled tasks
func (k *keeper) removeTask(id string) {
	k.locker.Lock()
	defer k.locker.Unlock()
	delete(k.scheduledTasks, id)
}

package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/arkade-os/custodyd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const defaultEscrowAddress = "custodyd-escrow"

type Option func(*service)

// WithClock replaces the wall clock every deadline is checked against.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

func WithAlerts(alerts ports.Alerts) Option {
	return func(s *service) {
		s.alerts = alerts
	}
}

// WithScheduler enables the periodic release sweep and the automatic settlement of
// auctions.
func WithScheduler(scheduler ports.SchedulerService, sweepInterval time.Duration) Option {
	return func(s *service) {
		s.scheduler = scheduler
		s.sweepInterval = sweepInterval
	}
}

func WithEscrowAddress(address string) Option {
	return func(s *service) {
		s.escrowAddress = address
	}
}

func WithCustodianUpdateWindow(window time.Duration) Option {
	return func(s *service) {
		s.updateWindow = int64(window.Seconds())
	}
}

func WithAuctionParams(params domain.AuctionParams) Option {
	return func(s *service) {
		s.auctionParams = params
	}
}

type service struct {
	// services
	repoManager ports.RepoManager
	liveStore   ports.LiveStore
	authority   ports.RoleAuthority
	alerts      ports.Alerts
	scheduler   ports.SchedulerService
	keeper      *keeper

	// config
	escrowAddress string
	updateWindow  int64
	auctionParams domain.AuctionParams
	sweepInterval time.Duration
	now           func() time.Time

	// every read and write of the ledger is serialized
	lock *sync.Mutex
}

func NewService(
	repoManager ports.RepoManager,
	liveStore ports.LiveStore,
	authority ports.RoleAuthority,
	opts ...Option,
) (Service, error) {
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}
	if liveStore == nil {
		return nil, fmt.Errorf("missing live store")
	}
	if authority == nil {
		return nil, fmt.Errorf("missing role authority")
	}

	svc := &service{
		repoManager:   repoManager,
		liveStore:     liveStore,
		authority:     authority,
		escrowAddress: defaultEscrowAddress,
		updateWindow:  domain.DefaultCustodianUpdateWindow,
		auctionParams: domain.AuctionParams{
			TotalFractionSupply: domain.DefaultTotalFractionSupply,
			MinIncrementBps:     domain.DefaultMinIncrementBps,
			BidBuffer:           domain.DefaultBidBuffer,
		},
		now:  time.Now,
		lock: &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(svc)
	}

	if svc.updateWindow <= 0 {
		return nil, fmt.Errorf("custodian update window must be positive")
	}
	if svc.auctionParams.MinIncrementBps > domain.BasisPoints {
		return nil, fmt.Errorf(
			"min bid increment must be at most %d bps", domain.BasisPoints,
		)
	}
	if svc.escrowAddress == "" {
		return nil, fmt.Errorf("missing escrow address")
	}
	if svc.scheduler != nil {
		svc.keeper = newKeeper(svc, svc.scheduler, svc.sweepInterval)
	}

	return svc, nil
}

func (s *service) Start() errors.Error {
	if s.keeper == nil {
		log.Debug("no scheduler configured, vaults are released on demand only")
		return nil
	}

	log.Debug("starting keeper service...")
	if err := s.keeper.start(); err != nil {
		return errors.INTERNAL_ERROR.Wrap(err)
	}
	return nil
}

func (s *service) Stop() {
	if s.keeper != nil {
		s.keeper.stop()
		log.Debug("stopped keeper service")
	}
	s.repoManager.Close()
	log.Debug("closed connection to db")
	s.liveStore.Close()
	log.Debug("closed connection to live store")
}

func (s *service) GetOffer(ctx context.Context, offerId string) (*domain.Offer, errors.Error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.getOffer(ctx, offerId)
}

func (s *service) nowUnix() int64 {
	return s.now().Unix()
}

// interaction is a call to an external collaborator that can fail. It runs before
// the ledger changes are committed and is reverted if anything after it fails.
type interaction struct {
	name   string
	run    func(ctx context.Context) error
	revert func(ctx context.Context) error
}

type alertMessage struct {
	topic   ports.Topic
	message any
}

// ledgerTx collects everything an operation does: the fallible interactions, the
// ledger changes, and the effects applied once the changes are committed.
type ledgerTx struct {
	pre     []interaction
	changes domain.Changeset
	post    []interaction
	events  []domain.Event
	alerts  []alertMessage
	onDone  []func()
}

func (tx *ledgerTx) emit(events ...domain.Event) {
	tx.events = append(tx.events, events...)
}

func (tx *ledgerTx) alert(topic ports.Topic, message any) {
	tx.alerts = append(tx.alerts, alertMessage{topic, message})
}

func (tx *ledgerTx) after(name string, fn func(ctx context.Context) error) {
	tx.post = append(tx.post, interaction{name: name, run: fn})
}

// apply runs the operation: pre-commit interactions, atomic commit, then post-commit
// effects and event propagation. Nothing is persisted if a pre-commit interaction or
// the commit fails.
func (s *service) apply(ctx context.Context, tx *ledgerTx) errors.Error {
	done := make([]interaction, 0, len(tx.pre))
	for _, step := range tx.pre {
		if err := step.run(ctx); err != nil {
			s.revert(ctx, done)
			return toError(err)
		}
		done = append(done, step)
	}

	if !tx.changes.IsEmpty() {
		if err := s.repoManager.Commit(ctx, tx.changes); err != nil {
			s.revert(ctx, done)
			log.WithError(err).Error("failed to commit ledger changes")
			return errors.INTERNAL_ERROR.Wrap(err)
		}
	}

	for _, step := range tx.post {
		if err := step.run(ctx); err != nil {
			log.WithError(err).Errorf("failed to %s", step.name)
		}
	}

	s.saveEvents(ctx, tx.events)
	for _, a := range tx.alerts {
		go s.publishAlert(a.topic, a.message)
	}
	for _, fn := range tx.onDone {
		fn()
	}
	return nil
}

func (s *service) revert(ctx context.Context, done []interaction) {
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.revert == nil {
			continue
		}
		if err := step.revert(ctx); err != nil {
			log.WithError(err).Errorf("failed to revert %s", step.name)
		}
	}
}

func (s *service) saveEvents(ctx context.Context, events []domain.Event) {
	if len(events) <= 0 {
		return
	}

	type stream struct{ topic, id string }
	order := make([]stream, 0)
	grouped := make(map[stream][]domain.Event)
	for _, event := range events {
		key := stream{event.GetType().Topic(), event.GetId()}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], event)
	}

	for _, key := range order {
		if err := s.repoManager.Events().Save(ctx, key.topic, key.id, grouped[key]); err != nil {
			log.WithError(err).WithField("topic", key.topic).Warn("failed to save events")
		}
	}
}

package application_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/arkade-os/custodyd/internal/core/application"
	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/arkade-os/custodyd/internal/infrastructure/authority"
	"github.com/arkade-os/custodyd/internal/infrastructure/db"
	inmemorylivestore "github.com/arkade-os/custodyd/internal/infrastructure/live-store/inmemory"
	"github.com/arkade-os/custodyd/pkg/errors"
	"github.com/stretchr/testify/require"
)

const (
	t0        = int64(1_700_000_000)
	usdc      = "usdc"
	seller    = "seller"
	custodian = "custodian"
	escrow    = "escrow"

	custodianAgent    = "custodian-agent"
	sellerAgent       = "seller-agent"
	newCustodian      = "custodian2"
	newCustodianAgent = "custodian2-agent"
)

var fee = domain.FeeTerms{Amount: 100, Period: 1000}

type testClock struct {
	now int64
}

func (c *testClock) Now() time.Time {
	return time.Unix(c.now, 0)
}

func (c *testClock) set(offset int64) {
	c.now = t0 + offset
}

type testEnv struct {
	svc       application.Service
	admin     application.AdminService
	liveStore ports.LiveStore
	clock     *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithLiveStore(t, inmemorylivestore.NewLiveStore())
}

func newTestEnvWithLiveStore(t *testing.T, liveStore ports.LiveStore) *testEnv {
	t.Helper()

	repo, err := db.NewService(db.ServiceConfig{
		EventStoreType:   "badger",
		DataStoreType:    "badger",
		EventStoreConfig: []interface{}{"", nil},
		DataStoreConfig:  []interface{}{"", nil},
	})
	require.NoError(t, err)

	roles, err := authority.NewStaticAuthority(
		authority.Grant{
			EntityId: custodian, Caller: custodianAgent, Role: "agent", AccountRole: "custodian",
		},
		authority.Grant{
			EntityId: seller, Caller: sellerAgent, Role: "agent", AccountRole: "seller",
		},
		authority.Grant{
			EntityId: newCustodian, Caller: newCustodianAgent, Role: "agent", AccountRole: "custodian",
		},
	)
	require.NoError(t, err)

	clock := &testClock{now: t0}
	svc, err := application.NewService(
		repo, liveStore, roles,
		application.WithClock(clock.Now),
		application.WithEscrowAddress(escrow),
	)
	require.NoError(t, err)
	t.Cleanup(svc.Stop)

	admin, err := application.NewAdminService(svc)
	require.NoError(t, err)

	return &testEnv{svc, admin, liveStore, clock}
}

func (e *testEnv) registerOffer(t *testing.T, id string, items uint32, lastPrice uint64) domain.Offer {
	t.Helper()
	offer := domain.Offer{
		Id:            id,
		SellerId:      seller,
		CustodianId:   custodian,
		CustodianFee:  fee,
		ExchangeToken: usdc,
		ItemCount:     items,
		LastPrice:     lastPrice,
	}
	require.NoError(t, e.admin.RegisterOffer(t.Context(), offer))
	return offer
}

func (e *testEnv) fund(t *testing.T, address string, amount uint64) {
	t.Helper()
	require.NoError(t, e.admin.FundWallet(t.Context(), address, usdc, amount))
}

func (e *testEnv) available(t *testing.T, entityId string) uint64 {
	t.Helper()
	amount, err := e.liveStore.Funds().GetAvailable(t.Context(), entityId, usdc)
	require.NoError(t, err)
	return amount
}

func (e *testEnv) wallet(t *testing.T, address string) uint64 {
	t.Helper()
	amount, err := e.liveStore.Funds().GetWallet(t.Context(), address, usdc)
	require.NoError(t, err)
	return amount
}

// unreachableFunds fails every credit to the given account.
type unreachableFunds struct {
	ports.Funds
	account string
}

func (f unreachableFunds) CreditAvailable(
	ctx context.Context, entityId, token string, amount uint64,
) error {
	if entityId == f.account {
		return fmt.Errorf("dial tcp: connection refused")
	}
	return f.Funds.CreditAvailable(ctx, entityId, token, amount)
}

type liveStoreWithFunds struct {
	ports.LiveStore
	funds ports.Funds
}

func (l liveStoreWithFunds) Funds() ports.Funds {
	return l.funds
}

func newLiveStoreFailingCredits(account string) ports.LiveStore {
	liveStore := inmemorylivestore.NewLiveStore()
	return liveStoreWithFunds{
		LiveStore: liveStore,
		funds:     unreachableFunds{liveStore.Funds(), account},
	}
}

func requireCode[MT any](t *testing.T, code errors.Code[MT], err errors.Error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code.Code, err.Code(), err.Error())
}

func TestNewService(t *testing.T) {
	repo, err := db.NewService(db.ServiceConfig{
		EventStoreType:   "badger",
		DataStoreType:    "badger",
		EventStoreConfig: []interface{}{"", nil},
		DataStoreConfig:  []interface{}{"", nil},
	})
	require.NoError(t, err)
	defer repo.Close()
	roles, err := authority.NewStaticAuthority()
	require.NoError(t, err)
	liveStore := inmemorylivestore.NewLiveStore()

	fixtures := []struct {
		name        string
		repo        ports.RepoManager
		liveStore   ports.LiveStore
		authority   ports.RoleAuthority
		opts        []application.Option
		expectedErr string
	}{
		{"missing repo manager", nil, liveStore, roles, nil, "missing repo manager"},
		{"missing live store", repo, nil, roles, nil, "missing live store"},
		{"missing authority", repo, liveStore, nil, nil, "missing role authority"},
		{
			"invalid update window", repo, liveStore, roles,
			[]application.Option{application.WithCustodianUpdateWindow(0)},
			"custodian update window must be positive",
		},
		{
			"invalid min increment", repo, liveStore, roles,
			[]application.Option{application.WithAuctionParams(domain.AuctionParams{
				MinIncrementBps: 10001,
			})},
			"min bid increment must be at most 10000 bps",
		},
		{
			"missing escrow", repo, liveStore, roles,
			[]application.Option{application.WithEscrowAddress("")},
			"missing escrow address",
		},
	}
	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			svc, err := application.NewService(f.repo, f.liveStore, f.authority, f.opts...)
			require.EqualError(t, err, f.expectedErr)
			require.Nil(t, svc)
		})
	}
}

// A vault released half a period after its first period pays a single period and
// keeps the rest accruing.
func TestReleaseVault(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	offer := env.registerOffer(t, "offerA", 1, 100_000)
	tokenId := offer.TokenIds()[0]

	require.NoError(t, env.svc.CheckIn(ctx, custodianAgent, tokenId))
	env.fund(t, "alice", 1000)
	vault, err := env.svc.DepositToVault(ctx, "alice", tokenId, 1000)
	require.Nil(t, err)
	require.Equal(t, uint64(1000), vault.Balance)
	require.Zero(t, env.wallet(t, "alice"))

	env.clock.set(999)
	_, err = env.svc.ReleaseVault(ctx, tokenId)
	requireCode(t, errors.PERIOD_NOT_OVER, err)

	env.clock.set(1500)
	result, err := env.svc.ReleaseVault(ctx, tokenId)
	require.Nil(t, err)
	require.Equal(t, domain.Payoff{Amount: 100, CoveredPeriods: 1, ElapsedPeriods: 1}, result.Payoff)
	require.False(t, result.AuctionStarted)
	require.Equal(t, t0+1000, result.Vault.AccrualCursor)
	require.Equal(t, uint64(900), result.Vault.Balance)
	require.Equal(t, uint64(100), env.available(t, custodian))

	env.clock.set(1999)
	_, err = env.svc.ReleaseVault(ctx, tokenId)
	requireCode(t, errors.PERIOD_NOT_OVER, err)

	env.clock.set(2000)
	result, err = env.svc.ReleaseVault(ctx, tokenId)
	require.Nil(t, err)
	require.Equal(t, uint64(100), result.Payoff.Amount)
	require.Equal(t, t0+2000, result.Vault.AccrualCursor)
	require.Equal(t, uint64(800), result.Vault.Balance)

	// conservation: every unit deposited is either in the vault or paid out
	require.Equal(t, uint64(1000), result.Vault.Balance+env.available(t, custodian))

	t.Run("invalid", func(t *testing.T) {
		_, err := env.svc.ReleaseVault(ctx, domain.NewTokenId("missing", 0))
		requireCode(t, errors.OFFER_NOT_FOUND, err)

		_, err = env.svc.ReleaseVault(ctx, offer.BatchId())
		requireCode(t, errors.VAULT_NOT_FOUND, err)

		_, err = env.svc.DepositToVault(ctx, "alice", tokenId, 0)
		requireCode(t, errors.INVALID_AMOUNT, err)

		_, err = env.svc.DepositToVault(ctx, "alice", tokenId, 10)
		requireCode(t, errors.INSUFFICIENT_FUNDS, err)

		_, err = env.svc.DepositToVault(ctx, "", tokenId, 10)
		requireCode(t, errors.ACCESS_DENIED, err)
	})
}

// A release that can't cover a single period falls short and puts the item up for
// auction, fractionalizing its vault.
func TestReleaseShortfall(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	offer := env.registerOffer(t, "offerB", 1, 100_000)
	tokenId := offer.TokenIds()[0]

	require.NoError(t, env.svc.CheckIn(ctx, custodianAgent, tokenId))
	env.fund(t, "alice", 50)
	_, err := env.svc.DepositToVault(ctx, "alice", tokenId, 50)
	require.Nil(t, err)

	env.clock.set(1000)
	result, err := env.svc.ReleaseVault(ctx, tokenId)
	require.Nil(t, err)
	require.Equal(t, domain.Payoff{CoveredPeriods: 0, ElapsedPeriods: 1}, result.Payoff)
	require.True(t, result.Payoff.Shortfall())
	require.True(t, result.AuctionStarted)
	require.Equal(t, offer.BatchId(), result.Vault.Subject)
	require.Equal(t, uint64(50), result.Vault.Balance)
	require.NotNil(t, result.Vault.Fractions)

	tokenVault, err := env.svc.GetVault(ctx, tokenId)
	require.Nil(t, err)
	require.False(t, tokenVault.IsActive())
	require.Zero(t, tokenVault.Balance)

	info, err := env.svc.GetAuction(ctx, offer.Id)
	require.Nil(t, err)
	require.True(t, info.Open)
	require.Equal(t, uint32(1), info.Round)
	require.Equal(t, result.Vault.Fractions.FractionsPerAuction, info.AvailableFractions)
	require.Equal(t, uint64(1), info.MinBid)

	fractions := env.liveStore.Fractions()
	held, ferr := fractions.BalanceOf(ctx, offer.Id, seller)
	require.NoError(t, ferr)
	require.Equal(t, uint64(domain.DefaultTotalFractionSupply), held)
	held, ferr = fractions.BalanceOf(ctx, offer.Id, escrow)
	require.NoError(t, ferr)
	require.Equal(t, info.AvailableFractions, held)

	// the shortfall doesn't pay anything
	require.Zero(t, env.available(t, custodian))
}

// Payouts are part of the operation: if a credit fails nothing is committed and
// the payments already pulled are given back.
func TestFailedCredit(t *testing.T) {
	t.Run("release", func(t *testing.T) {
		env := newTestEnvWithLiveStore(t, newLiveStoreFailingCredits(custodian))
		ctx := t.Context()
		offer := env.registerOffer(t, "offerM", 1, 100_000)
		tokenId := offer.TokenIds()[0]

		require.NoError(t, env.svc.CheckIn(ctx, custodianAgent, tokenId))
		env.fund(t, "alice", 1000)
		_, err := env.svc.DepositToVault(ctx, "alice", tokenId, 1000)
		require.Nil(t, err)

		env.clock.set(3000)
		_, err = env.svc.ReleaseVault(ctx, tokenId)
		requireCode(t, errors.INTERNAL_ERROR, err)

		vault, err := env.svc.GetVault(ctx, tokenId)
		require.Nil(t, err)
		require.Equal(t, uint64(1000), vault.Balance)
		require.Equal(t, t0, vault.AccrualCursor)
		require.Zero(t, env.available(t, custodian))
	})

	t.Run("outbid refund", func(t *testing.T) {
		env := newTestEnvWithLiveStore(t, newLiveStoreFailingCredits("alice"))
		ctx := t.Context()
		offer := env.registerOffer(t, "offerN", 2, 100_000)
		for _, tokenId := range offer.TokenIds() {
			require.NoError(t, env.svc.CheckIn(ctx, custodianAgent, tokenId))
		}
		env.fund(t, "alice", 1000)
		env.fund(t, "bob", 1000)

		_, err := env.svc.StartAuction(ctx, "anyone", offer.Id)
		require.Nil(t, err)
		_, err = env.svc.PlaceBid(ctx, "alice", offer.Id, 100)
		require.Nil(t, err)

		_, err = env.svc.PlaceBid(ctx, "bob", offer.Id, 200)
		requireCode(t, errors.INTERNAL_ERROR, err)

		info, err := env.svc.GetAuction(ctx, offer.Id)
		require.Nil(t, err)
		require.Equal(t, "alice", info.BidderId)
		require.Equal(t, uint64(100), info.MaxBid)
		require.Equal(t, uint64(1000), env.wallet(t, "bob"))
		require.Equal(t, uint64(900), env.wallet(t, "alice"))
		require.Zero(t, env.available(t, "alice"))
	})
}

// Bids must outbid the previous one by the min increment, outbid bidders get their
// funds back and the winning bid refills the vault.
func TestAuction(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	offer := env.registerOffer(t, "offerC", 2, 100_000)
	for _, tokenId := range offer.TokenIds() {
		require.NoError(t, env.svc.CheckIn(ctx, custodianAgent, tokenId))
	}
	env.fund(t, "alice", 1000)
	env.fund(t, "bob", 1000)

	_, err := env.svc.PlaceBid(ctx, "alice", offer.Id, 100)
	requireCode(t, errors.AUCTION_NOT_STARTED, err)

	env.clock.set(10)
	info, err := env.svc.StartAuction(ctx, "anyone", offer.Id)
	require.Nil(t, err)
	require.True(t, info.Open)
	require.Equal(t, t0+10+fee.Period/4, info.EndTime)

	t.Run("at most one open auction", func(t *testing.T) {
		_, err := env.svc.StartAuction(ctx, "anyone", offer.Id)
		requireCode(t, errors.AUCTION_ONGOING, err)
	})

	t.Run("no checkout while auction is open", func(t *testing.T) {
		err := env.svc.RequestCheckOut(ctx, seller, offer.TokenIds()[0])
		requireCode(t, errors.AUCTION_ONGOING, err)
	})

	env.clock.set(20)
	info, err = env.svc.PlaceBid(ctx, "alice", offer.Id, 100)
	require.Nil(t, err)
	require.Equal(t, uint64(110), info.MinBid)
	// bids close to the end extend the auction by the bid buffer
	require.Equal(t, t0+20+domain.DefaultBidBuffer, info.EndTime)

	_, err = env.svc.PlaceBid(ctx, "bob", offer.Id, 105)
	requireCode(t, errors.INVALID_BID, err)

	env.clock.set(30)
	info, err = env.svc.PlaceBid(ctx, "bob", offer.Id, 111)
	require.Nil(t, err)
	require.Equal(t, "bob", info.BidderId)
	require.Equal(t, uint64(111), info.MaxBid)
	require.Equal(t, uint64(123), info.MinBid)
	endTime := info.EndTime

	_, err = env.svc.PlaceBid(ctx, "alice", offer.Id, 111)
	requireCode(t, errors.INVALID_BID, err)

	require.Equal(t, uint64(900), env.wallet(t, "alice"))
	require.Equal(t, uint64(100), env.available(t, "alice"))
	require.Equal(t, uint64(889), env.wallet(t, "bob"))

	_, err = env.svc.EndAuction(ctx, offer.Id)
	requireCode(t, errors.AUCTION_ONGOING, err)

	env.clock.set(endTime - t0 + 1)
	_, err = env.svc.PlaceBid(ctx, "alice", offer.Id, 500)
	requireCode(t, errors.AUCTION_ENDED, err)

	settlement, err := env.svc.EndAuction(ctx, offer.Id)
	require.Nil(t, err)
	require.Equal(t, "bob", settlement.Winner)
	require.Equal(t, uint64(111), settlement.Amount)
	require.False(t, settlement.PaidToCustodian)
	// 111 over 2 items is still below the liquidation threshold
	require.True(t, settlement.Restarted)

	vault, err := env.svc.GetVault(ctx, offer.BatchId())
	require.Nil(t, err)
	require.Equal(t, uint64(111), vault.Balance)

	held, ferr := env.liveStore.Fractions().BalanceOf(ctx, offer.Id, "bob")
	require.NoError(t, ferr)
	require.Equal(t, settlement.Fractions, held)

	info, err = env.svc.GetAuction(ctx, offer.Id)
	require.Nil(t, err)
	require.Equal(t, uint32(2), info.Round)
	require.True(t, info.Open)
	require.Zero(t, info.MaxBid)

	// conservation across wallets, claimable balances and the vault
	total := env.wallet(t, "alice") + env.available(t, "alice") +
		env.wallet(t, "bob") + env.available(t, "bob") + vault.Balance
	require.Equal(t, uint64(2000), total)
}

// The winning bid of an auction whose last item checked out meanwhile goes to the
// custodian.
func TestAuctionAfterLastCheckout(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	offer := env.registerOffer(t, "offerL", 1, 100_000)
	tokenId := offer.TokenIds()[0]

	require.NoError(t, env.svc.CheckIn(ctx, custodianAgent, tokenId))
	require.NoError(t, env.svc.RequestCheckOut(ctx, seller, tokenId))
	require.NoError(t, env.svc.ClearCheckoutRequest(ctx, sellerAgent, tokenId))

	_, err := env.svc.StartAuction(ctx, "anyone", offer.Id)
	require.Nil(t, err)

	result, err := env.svc.CheckOut(ctx, custodianAgent, tokenId)
	require.Nil(t, err)
	require.True(t, result.VaultClosed)

	env.fund(t, "alice", 1000)
	env.clock.set(10)
	info, err := env.svc.PlaceBid(ctx, "alice", offer.Id, 100)
	require.Nil(t, err)

	env.clock.set(info.EndTime - t0 + 1)
	settlement, err := env.svc.EndAuction(ctx, offer.Id)
	require.Nil(t, err)
	require.Equal(t, "alice", settlement.Winner)
	require.True(t, settlement.PaidToCustodian)
	require.False(t, settlement.Restarted)
	require.Equal(t, uint64(100), env.available(t, custodian))

	vault, err := env.svc.GetVault(ctx, offer.BatchId())
	require.Nil(t, err)
	require.False(t, vault.IsActive())
	require.Zero(t, vault.Balance)

	held, ferr := env.liveStore.Fractions().BalanceOf(ctx, offer.Id, "alice")
	require.NoError(t, ferr)
	require.Equal(t, settlement.Fractions, held)

	info, err = env.svc.GetAuction(ctx, offer.Id)
	require.Nil(t, err)
	require.False(t, info.Open)
}

func TestAuctionNotNeeded(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	offer := env.registerOffer(t, "offerF", 1, 100_000)
	tokenId := offer.TokenIds()[0]

	_, err := env.svc.StartAuction(ctx, "anyone", offer.Id)
	requireCode(t, errors.INACTIVE_VAULT, err)

	require.NoError(t, env.svc.CheckIn(ctx, custodianAgent, tokenId))
	env.fund(t, "alice", 1000)
	_, err = env.svc.DepositToVault(ctx, "alice", tokenId, 1000)
	require.Nil(t, err)

	_, err = env.svc.StartAuction(ctx, "anyone", offer.Id)
	requireCode(t, errors.AUCTION_NOT_NEEDED, err)
}

// A custodian update is accepted within its 24h window and expires right after.
func TestCustodianUpdate(t *testing.T) {
	newFee := domain.FeeTerms{Amount: 120, Period: 1000}
	params := func(offer domain.Offer) application.CustodianUpdateParams {
		return application.CustodianUpdateParams{
			Subject:         offer.TokenIds()[0],
			NewCustodianId:  newCustodian,
			NewCustodianFee: newFee,
		}
	}
	setup := func(t *testing.T, offerId string) (*testEnv, domain.Offer) {
		env := newTestEnv(t)
		offer := env.registerOffer(t, offerId, 1, 100_000)
		require.NoError(t, env.svc.CheckIn(t.Context(), custodianAgent, offer.TokenIds()[0]))
		env.fund(t, "alice", 10_000)
		_, err := env.svc.DepositToVault(t.Context(), "alice", offer.TokenIds()[0], 10_000)
		require.Nil(t, err)
		return env, offer
	}

	t.Run("accepted before expiry", func(t *testing.T) {
		env, offer := setup(t, "offerD")
		ctx := t.Context()
		subject := offer.TokenIds()[0]

		require.NoError(t, env.svc.RequestCustodianUpdate(ctx, newCustodianAgent, params(offer)))

		req, err := env.svc.GetCustodianUpdateRequest(ctx, subject)
		require.Nil(t, err)
		require.Equal(t, domain.CustodianUpdateStatusRequested, req.Status)
		require.Equal(t, t0, req.RequestTimestamp)

		env.clock.set(100)
		err = env.svc.RequestCustodianUpdate(ctx, newCustodianAgent, params(offer))
		requireCode(t, errors.UPDATE_REQUEST_TOO_RECENT, err)

		err = env.svc.AcceptCustodianUpdate(ctx, "mallory", subject)
		requireCode(t, errors.ACCESS_DENIED, err)

		env.clock.set(86399)
		require.NoError(t, env.svc.AcceptCustodianUpdate(ctx, seller, subject))

		// pro-rata settlement against the old fee: 100 * 86399 / 1000
		require.Equal(t, uint64(8639), env.available(t, custodian))
		vault, err := env.svc.GetVault(ctx, subject)
		require.Nil(t, err)
		require.Equal(t, uint64(10_000-8639), vault.Balance)
		require.Equal(t, t0+86399, vault.AccrualCursor)

		updated, err := env.svc.GetOffer(ctx, offer.Id)
		require.Nil(t, err)
		require.Equal(t, newCustodian, updated.CustodianId)
		require.Equal(t, newFee, updated.CustodianFee)

		_, err = env.svc.GetCustodianUpdateRequest(ctx, subject)
		requireCode(t, errors.NOT_FOUND, err)
	})

	t.Run("expired", func(t *testing.T) {
		env, offer := setup(t, "offerD")
		ctx := t.Context()
		subject := offer.TokenIds()[0]

		require.NoError(t, env.svc.RequestCustodianUpdate(ctx, newCustodianAgent, params(offer)))

		env.clock.set(86401)
		err := env.svc.AcceptCustodianUpdate(ctx, seller, subject)
		requireCode(t, errors.UPDATE_REQUEST_EXPIRED, err)
		err = env.svc.RejectCustodianUpdate(ctx, seller, subject)
		requireCode(t, errors.UPDATE_REQUEST_EXPIRED, err)
		_, err = env.svc.GetCustodianUpdateRequest(ctx, subject)
		requireCode(t, errors.UPDATE_REQUEST_EXPIRED, err)

		// an expired request can be replaced
		require.NoError(t, env.svc.RequestCustodianUpdate(ctx, newCustodianAgent, params(offer)))
		require.NoError(t, env.svc.RejectCustodianUpdate(ctx, seller, subject))

		updated, err := env.svc.GetOffer(ctx, offer.Id)
		require.Nil(t, err)
		require.Equal(t, custodian, updated.CustodianId)
	})

	t.Run("emergency", func(t *testing.T) {
		env, offer := setup(t, "offerD")
		ctx := t.Context()
		subject := offer.TokenIds()[0]
		emergency := params(offer)
		emergency.IsEmergencyUpdate = true
		emergency.KeepExistingParameters = true

		err := env.svc.RequestCustodianUpdate(ctx, newCustodianAgent, emergency)
		requireCode(t, errors.ACCESS_DENIED, err)

		require.NoError(t, env.svc.RequestCustodianUpdate(ctx, sellerAgent, emergency))
		// emergency requests skip the cooldown
		require.NoError(t, env.svc.RequestCustodianUpdate(ctx, custodianAgent, emergency))

		err = env.svc.RejectCustodianUpdate(ctx, seller, subject)
		requireCode(t, errors.INVALID_CUSTODIAN_UPDATE_STATUS, err)
		err = env.svc.AcceptCustodianUpdate(ctx, seller, subject)
		requireCode(t, errors.ACCESS_DENIED, err)

		env.clock.set(1000)
		require.NoError(t, env.svc.AcceptCustodianUpdate(ctx, newCustodianAgent, subject))
		require.Equal(t, uint64(100), env.available(t, custodian))

		updated, err := env.svc.GetOffer(ctx, offer.Id)
		require.Nil(t, err)
		require.Equal(t, newCustodian, updated.CustodianId)
		require.Equal(t, fee, updated.CustodianFee)
	})

	t.Run("vault can't cover the settlement", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := t.Context()
		offer := env.registerOffer(t, "offerE", 1, 100_000)
		subject := offer.TokenIds()[0]
		require.NoError(t, env.svc.CheckIn(ctx, custodianAgent, subject))
		env.fund(t, "alice", 50)
		_, err := env.svc.DepositToVault(ctx, "alice", subject, 50)
		require.Nil(t, err)
		require.NoError(t, env.svc.RequestCustodianUpdate(ctx, newCustodianAgent, params(offer)))

		env.clock.set(1000)
		err = env.svc.AcceptCustodianUpdate(ctx, seller, subject)
		requireCode(t, errors.INSUFFICIENT_VAULT_BALANCE, err)

		unchanged, err := env.svc.GetOffer(ctx, offer.Id)
		require.Nil(t, err)
		require.Equal(t, custodian, unchanged.CustodianId)
		require.Equal(t, fee, unchanged.CustodianFee)
		vault, err := env.svc.GetVault(ctx, subject)
		require.Nil(t, err)
		require.Equal(t, uint64(50), vault.Balance)
		require.Equal(t, t0, vault.AccrualCursor)
		req, err := env.svc.GetCustodianUpdateRequest(ctx, subject)
		require.Nil(t, err)
		require.Equal(t, domain.CustodianUpdateStatusRequested, req.Status)
		require.Zero(t, env.available(t, custodian))
	})

	t.Run("new fee updates the auction thresholds", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := t.Context()
		offer := env.registerOffer(t, "offerK", 2, 100_000)
		for _, tokenId := range offer.TokenIds() {
			require.NoError(t, env.svc.CheckIn(ctx, custodianAgent, tokenId))
		}
		_, err := env.svc.StartAuction(ctx, "anyone", offer.Id)
		require.Nil(t, err)
		before, err := env.svc.GetVault(ctx, offer.BatchId())
		require.Nil(t, err)
		require.NotNil(t, before.Fractions)

		update := params(offer)
		update.Subject = offer.BatchId()
		require.NoError(t, env.svc.RequestCustodianUpdate(ctx, newCustodianAgent, update))
		require.NoError(t, env.svc.AcceptCustodianUpdate(ctx, seller, offer.BatchId()))

		expected, ferr := domain.NewFractionConfig(newFee, offer.LastPrice, domain.AuctionParams{
			TotalFractionSupply: before.Fractions.TotalFractionSupply,
			MinIncrementBps:     before.Fractions.MinIncrementBps,
			BidBuffer:           before.Fractions.BidBuffer,
		})
		require.NoError(t, ferr)
		after, err := env.svc.GetVault(ctx, offer.BatchId())
		require.Nil(t, err)
		require.Equal(t, expected, after.Fractions)
		require.Equal(t, uint64(120*domain.DefaultPartialThresholdPeriods), after.Fractions.PartialAuctionThreshold)
		require.Equal(t, uint64(120*domain.DefaultLiquidationThresholdPeriods), after.Fractions.LiquidationThreshold)
	})

	t.Run("invalid", func(t *testing.T) {
		env, offer := setup(t, "offerD")
		ctx := t.Context()
		subject := offer.TokenIds()[0]

		err := env.svc.AcceptCustodianUpdate(ctx, seller, subject)
		requireCode(t, errors.INVALID_CUSTODIAN_UPDATE_STATUS, err)

		invalid := params(offer)
		invalid.Subject = offer.BatchId()
		err = env.svc.RequestCustodianUpdate(ctx, newCustodianAgent, invalid)
		requireCode(t, errors.INVALID_SUBJECT_ID, err)

		invalid = params(offer)
		invalid.NewCustodianId = custodian
		err = env.svc.RequestCustodianUpdate(ctx, custodianAgent, invalid)
		requireCode(t, errors.INVALID_CUSTODIAN_UPDATE, err)

		invalid = params(offer)
		invalid.NewCustodianFee = domain.FeeTerms{Amount: 1}
		err = env.svc.RequestCustodianUpdate(ctx, newCustodianAgent, invalid)
		requireCode(t, errors.INVALID_CUSTODIAN_UPDATE, err)
	})
}

// The full custody cycle of a token. At checkout both the accrued fee and the
// residual balance of the vault go to the custodian.
func TestCheckoutResidualGoesToCustodian(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	offer := env.registerOffer(t, "offerE", 1, 100_000)
	tokenId := offer.TokenIds()[0]

	err := env.svc.CheckIn(ctx, "mallory", tokenId)
	requireCode(t, errors.ACCESS_DENIED, err)

	require.NoError(t, env.svc.CheckIn(ctx, custodianAgent, tokenId))
	env.fund(t, "alice", 1000)
	_, err = env.svc.DepositToVault(ctx, "alice", tokenId, 1000)
	require.Nil(t, err)

	err = env.svc.CheckIn(ctx, custodianAgent, tokenId)
	requireCode(t, errors.INVALID_CHECKOUT_REQUEST_STATUS, err)

	env.clock.set(10)
	err = env.svc.RequestCheckOut(ctx, "mallory", tokenId)
	requireCode(t, errors.ACCESS_DENIED, err)
	require.NoError(t, env.svc.RequestCheckOut(ctx, seller, tokenId))

	owner, oerr := env.liveStore.Ownership().OwnerOf(ctx, tokenId)
	require.NoError(t, oerr)
	require.Equal(t, escrow, owner)

	_, err = env.svc.CheckOut(ctx, custodianAgent, tokenId)
	requireCode(t, errors.INVALID_CHECKOUT_REQUEST_STATUS, err)

	env.clock.set(20)
	require.NoError(t, env.svc.ClearCheckoutRequest(ctx, sellerAgent, tokenId))

	env.clock.set(30)
	result, err := env.svc.CheckOut(ctx, custodianAgent, tokenId)
	require.Nil(t, err)
	// 100 * 30 / 1000 accrued over [0, 30)
	require.Equal(t, uint64(3), result.Payoff)
	require.Equal(t, uint64(997), result.Residual)
	require.True(t, result.VaultClosed)
	require.Equal(t, uint64(1000), env.available(t, custodian))

	vault, err := env.svc.GetVault(ctx, tokenId)
	require.Nil(t, err)
	require.False(t, vault.IsActive())
	require.Zero(t, vault.Balance)

	req, err := env.svc.GetCheckoutRequest(ctx, tokenId)
	require.Nil(t, err)
	require.True(t, req.IsCheckedOut())
	require.Equal(t, seller, req.Buyer)

	owner, oerr = env.liveStore.Ownership().OwnerOf(ctx, tokenId)
	require.NoError(t, oerr)
	require.Equal(t, seller, owner)
	state, serr := env.liveStore.Ownership().StateOf(ctx, tokenId)
	require.NoError(t, serr)
	require.Equal(t, ports.TokenStateCheckedOut, state)

	// a checked out token can be checked in again
	env.clock.set(40)
	require.NoError(t, env.svc.CheckIn(ctx, custodianAgent, tokenId))
	vault, err = env.svc.GetVault(ctx, tokenId)
	require.Nil(t, err)
	require.Equal(t, t0+40, vault.AccrualCursor)
}

func TestCheckoutWithTax(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	offer := env.registerOffer(t, "offerG", 2, 100_000)
	tokenIds := offer.TokenIds()
	for _, tokenId := range tokenIds {
		require.NoError(t, env.svc.CheckIn(ctx, custodianAgent, tokenId))
	}
	env.fund(t, "alice", 2001)
	_, err := env.svc.DepositToVault(ctx, "alice", offer.BatchId(), 2001)
	require.Nil(t, err)

	// the seller hands the token over to bob, who then claims the item
	require.NoError(t, env.liveStore.Ownership().Transfer(ctx, tokenIds[0], seller, "bob"))
	env.fund(t, "bob", 50)

	env.clock.set(10)
	require.NoError(t, env.svc.RequestCheckOut(ctx, "bob", tokenIds[0]))
	err = env.svc.SubmitTaxAmount(ctx, "bob", tokenIds[0], 50)
	requireCode(t, errors.ACCESS_DENIED, err)
	require.NoError(t, env.svc.SubmitTaxAmount(ctx, sellerAgent, tokenIds[0], 50))

	err = env.svc.ClearCheckoutRequest(ctx, sellerAgent, tokenIds[0])
	requireCode(t, errors.ACCESS_DENIED, err)
	require.NoError(t, env.svc.ClearCheckoutRequest(ctx, "bob", tokenIds[0]))
	require.Zero(t, env.wallet(t, "bob"))
	require.Equal(t, uint64(50), env.available(t, seller))

	env.clock.set(500)
	result, err := env.svc.CheckOut(ctx, custodianAgent, tokenIds[0])
	require.Nil(t, err)
	// the item share is 2001/2, the extra unit stays in the batch
	require.Equal(t, uint64(50), result.Payoff)
	require.Equal(t, uint64(950), result.Residual)
	require.False(t, result.VaultClosed)

	vault, err := env.svc.GetVault(ctx, offer.BatchId())
	require.Nil(t, err)
	require.Equal(t, uint32(1), vault.Items)
	require.Equal(t, uint64(1001), vault.Balance)

	owner, oerr := env.liveStore.Ownership().OwnerOf(ctx, tokenIds[0])
	require.NoError(t, oerr)
	require.Equal(t, "bob", owner)

	t.Run("checked out items block custodian updates", func(t *testing.T) {
		err := env.svc.RequestCustodianUpdate(ctx, newCustodianAgent, application.CustodianUpdateParams{
			Subject:         offer.BatchId(),
			NewCustodianId:  newCustodian,
			NewCustodianFee: fee,
		})
		requireCode(t, errors.ITEM_CHECKED_OUT, err)
	})
}

func TestSweepVaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	funded := env.registerOffer(t, "offerH", 1, 100_000)
	empty := env.registerOffer(t, "offerI", 1, 100_000)
	require.NoError(t, env.svc.CheckIn(ctx, custodianAgent, funded.TokenIds()[0]))
	require.NoError(t, env.svc.CheckIn(ctx, custodianAgent, empty.TokenIds()[0]))
	env.fund(t, "alice", 1000)
	_, err := env.svc.DepositToVault(ctx, "alice", funded.TokenIds()[0], 1000)
	require.Nil(t, err)

	report, err := env.admin.SweepVaults(ctx)
	require.Nil(t, err)
	require.Equal(t, application.SweepReport{}, *report)

	env.clock.set(2500)
	report, err = env.admin.SweepVaults(ctx)
	require.Nil(t, err)
	require.Equal(t, 2, report.Released)
	require.Equal(t, 1, report.AuctionsStarted)
	require.Zero(t, report.Failed)
	require.Equal(t, uint64(200), env.available(t, custodian))

	info, err := env.svc.GetAuction(ctx, empty.Id)
	require.Nil(t, err)
	require.True(t, info.Open)

	// the empty vault can't pay anything until its auction settles
	before, err := env.svc.GetVault(ctx, empty.BatchId())
	require.Nil(t, err)
	env.clock.set(2600)
	report, err = env.admin.SweepVaults(ctx)
	require.Nil(t, err)
	require.Equal(t, application.SweepReport{}, *report)
	after, err := env.svc.GetVault(ctx, empty.BatchId())
	require.Nil(t, err)
	require.Equal(t, before, after)

	// nor while the ended auction waits for settlement
	env.clock.set(3600)
	report, err = env.admin.SweepVaults(ctx)
	require.Nil(t, err)
	require.Equal(t, application.SweepReport{Released: 1}, *report)
	require.Equal(t, uint64(300), env.available(t, custodian))
	after, err = env.svc.GetVault(ctx, empty.BatchId())
	require.Nil(t, err)
	require.Equal(t, before, after)
}

func TestAdminService(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	offer := env.registerOffer(t, "offerJ", 3, 100_000)

	err := env.admin.RegisterOffer(ctx, offer)
	requireCode(t, errors.INVALID_OFFER, err)
	err = env.admin.RegisterOffer(ctx, domain.Offer{Id: "bad:id"})
	requireCode(t, errors.INVALID_OFFER, err)

	for _, tokenId := range offer.TokenIds() {
		owner, oerr := env.liveStore.Ownership().OwnerOf(ctx, tokenId)
		require.NoError(t, oerr)
		require.Equal(t, seller, owner)
		req, err := env.svc.GetCheckoutRequest(ctx, tokenId)
		require.Nil(t, err)
		require.Equal(t, domain.CheckoutStatusNone, req.Status)
	}

	err = env.admin.FundWallet(ctx, "alice", usdc, 0)
	requireCode(t, errors.INVALID_AMOUNT, err)
	env.fund(t, "alice", 10)
	balances, err := env.admin.GetBalances(ctx, "alice")
	require.Nil(t, err)
	require.Equal(t, []ports.Balance{{Token: usdc, Wallet: 10}}, balances)

	err = env.svc.CheckIn(ctx, "dave", offer.TokenIds()[0])
	requireCode(t, errors.ACCESS_DENIED, err)
	require.NoError(t, env.admin.GrantRole(
		context.Background(), custodian, "dave", ports.RoleAgent, ports.AccountRoleCustodian,
	))
	require.NoError(t, env.svc.CheckIn(ctx, "dave", offer.TokenIds()[0]))
}

package db_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/arkade-os/custodyd/internal/infrastructure/db"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestService(t *testing.T) {
	tests := []struct {
		name   string
		config db.ServiceConfig
	}{
		{
			name: "repo_manager_with_badger_stores",
			config: db.ServiceConfig{
				EventStoreType:   "badger",
				DataStoreType:    "badger",
				EventStoreConfig: []interface{}{"", nil},
				DataStoreConfig:  []interface{}{"", nil},
			},
		},
		{
			name: "repo_manager_with_sqlite_stores",
			config: db.ServiceConfig{
				EventStoreType:   "badger",
				DataStoreType:    "sqlite",
				EventStoreConfig: []interface{}{"", nil},
				DataStoreConfig:  []interface{}{t.TempDir()},
			},
		},
	}

	if pgUrl := os.Getenv("CUSTODYD_TEST_PG_URL"); pgUrl != "" {
		tests = append(tests, struct {
			name   string
			config db.ServiceConfig
		}{
			name: "repo_manager_with_postgres_stores",
			config: db.ServiceConfig{
				EventStoreType:   "postgres",
				DataStoreType:    "postgres",
				EventStoreConfig: []interface{}{pgUrl, true},
				DataStoreConfig:  []interface{}{pgUrl, true},
			},
		})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := db.NewService(tt.config)
			require.NoError(t, err)
			defer svc.Close()

			testEventRepository(t, svc)
			testLedgerRepositories(t, svc)
		})
	}

	t.Run("invalid store types", func(t *testing.T) {
		_, err := db.NewService(db.ServiceConfig{
			EventStoreType: "sqlite",
			DataStoreType:  "badger",
		})
		require.Error(t, err)

		_, err = db.NewService(db.ServiceConfig{
			EventStoreType: "badger",
			DataStoreType:  "mysql",
		})
		require.Error(t, err)
	})
}

func testEventRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_event_repository", func(t *testing.T) {
		offerId := uuid.NewString()
		received := make(chan []domain.Event, 1)
		svc.Events().RegisterEventsHandler(domain.AuctionTopic, func(events []domain.Event) {
			received <- events
		})
		defer svc.Events().ClearRegisteredHandlers(domain.AuctionTopic)

		events := []domain.Event{
			domain.NewAuctionStarted(domain.FractionAuction{
				OfferId: offerId, Round: 1, StartedAt: 100, EndTime: 200, AvailableFractions: 10,
			}),
			domain.NewBidPlaced(domain.FractionAuction{
				OfferId: offerId, Round: 1, EndTime: 200, MaxBid: 5, BidderId: "bob",
			}, 150),
		}
		err := svc.Events().Save(t.Context(), domain.AuctionTopic, offerId, events)
		require.NoError(t, err)

		select {
		case got := <-received:
			require.Equal(t, events, got)
		case <-time.After(5 * time.Second):
			t.Fatal("events not dispatched")
		}
	})
}

func testLedgerRepositories(t *testing.T, svc ports.RepoManager) {
	t.Run("test_ledger_repositories", func(t *testing.T) {
		ctx := t.Context()
		offer := domain.Offer{
			Id:             uuid.NewString(),
			SellerId:       "seller",
			CustodianId:    "custodian",
			CustodianFee:   domain.FeeTerms{Amount: 10, Period: 60},
			ExchangeToken:  "usdc",
			ItemCount:      2,
			FirstItemIndex: 4,
			LastPrice:      1_000,
			CreatedAt:      time.Now().Unix(),
		}

		got, err := svc.Offers().GetOffer(ctx, offer.Id)
		require.NoError(t, err)
		require.Nil(t, got)

		batch := domain.Vault{
			Subject:       offer.BatchId(),
			Balance:       500,
			AccrualCursor: 1_000,
			Items:         2,
			Fractions: &domain.FractionConfig{
				PartialAuctionThreshold: 120,
				LiquidationThreshold:    30,
				TotalFractionSupply:     1_000_000,
				FractionsPerAuction:     100,
				MinIncrementBps:         1_000,
				BidBuffer:               600,
			},
			UpdatedAt: 1_000,
		}
		closed := domain.Vault{Subject: domain.NewTokenId(offer.Id, 4), UpdatedAt: 1_000}
		tokenIds := offer.TokenIds()
		request := domain.CustodianUpdateRequest{
			Subject:           offer.BatchId(),
			Status:            domain.CustodianUpdateStatusRequested,
			NewCustodianId:    "custodian2",
			NewCustodianFee:   domain.FeeTerms{Amount: 12, Period: 60},
			RequestTimestamp:  1_100,
			IsEmergencyUpdate: true,
			Requester:         "agent",
		}
		auction := domain.FractionAuction{
			OfferId:            offer.Id,
			Round:              1,
			StartedAt:          1_200,
			EndTime:            1_800,
			MaxBid:             50,
			BidderId:           "bob",
			AvailableFractions: 200,
		}

		var changes domain.Changeset
		changes.AddOffer(offer)
		changes.AddVault(batch)
		changes.AddVault(closed)
		for _, tokenId := range tokenIds {
			changes.AddCheckoutRequest(domain.CheckoutRequest{
				TokenId: tokenId, Status: domain.CheckoutStatusCheckedIn, UpdatedAt: 1_000,
			})
		}
		changes.AddCustodianUpdate(request)
		changes.AddAuction(auction)
		err = svc.Commit(ctx, changes)
		require.NoError(t, err)

		got, err = svc.Offers().GetOffer(ctx, offer.Id)
		require.NoError(t, err)
		require.Equal(t, offer, *got)

		offers, err := svc.Offers().GetOffers(ctx)
		require.NoError(t, err)
		require.Contains(t, offers, offer)

		vault, err := svc.Vaults().GetVault(ctx, batch.Subject)
		require.NoError(t, err)
		require.Equal(t, batch, *vault)

		vault, err = svc.Vaults().GetVault(ctx, domain.NewTokenId(offer.Id, 5))
		require.NoError(t, err)
		require.Nil(t, vault)

		activeVaults, err := svc.Vaults().GetActiveVaults(ctx)
		require.NoError(t, err)
		require.Contains(t, activeVaults, batch)
		require.NotContains(t, activeVaults, closed)

		checkout, err := svc.CheckoutRequests().GetCheckoutRequest(ctx, tokenIds[1])
		require.NoError(t, err)
		require.Equal(t, domain.CheckoutStatusCheckedIn, checkout.Status)

		checkouts, err := svc.CheckoutRequests().GetCheckoutRequestsByOffer(ctx, offer.Id)
		require.NoError(t, err)
		require.Len(t, checkouts, 2)

		update, err := svc.CustodianUpdates().GetCustodianUpdateRequest(ctx, offer.BatchId())
		require.NoError(t, err)
		require.Equal(t, request, *update)

		gotAuction, err := svc.Auctions().GetAuction(ctx, offer.Id)
		require.NoError(t, err)
		require.Equal(t, auction, *gotAuction)

		pending, err := svc.Auctions().GetPendingAuctions(ctx)
		require.NoError(t, err)
		require.Contains(t, pending, auction)

		// Settle the auction, check one token out and drop the custodian update.
		auction.EndTime = 0
		batch.Balance = 450
		batch.Items = 1
		changes = domain.Changeset{}
		changes.AddAuction(auction)
		changes.AddVault(batch)
		changes.AddCheckoutRequest(domain.CheckoutRequest{
			TokenId:   tokenIds[0],
			Status:    domain.CheckoutStatusCheckedOut,
			Buyer:     "buyer",
			TaxAmount: 7,
			UpdatedAt: 2_000,
		})
		changes.DeleteCustodianUpdate(offer.BatchId())
		err = svc.Commit(ctx, changes)
		require.NoError(t, err)

		pending, err = svc.Auctions().GetPendingAuctions(ctx)
		require.NoError(t, err)
		require.NotContains(t, pending, auction)

		vault, err = svc.Vaults().GetVault(ctx, batch.Subject)
		require.NoError(t, err)
		require.Equal(t, batch, *vault)

		checkout, err = svc.CheckoutRequests().GetCheckoutRequest(ctx, tokenIds[0])
		require.NoError(t, err)
		require.Equal(t, "buyer", checkout.Buyer)
		require.True(t, checkout.IsCheckedOut())

		update, err = svc.CustodianUpdates().GetCustodianUpdateRequest(ctx, offer.BatchId())
		require.NoError(t, err)
		require.Nil(t, update)

		err = svc.Commit(context.Background(), domain.Changeset{})
		require.NoError(t, err)
	})
}

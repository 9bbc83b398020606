package watermilldb_test

import (
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/arkade-os/custodyd/internal/infrastructure/db/dbutil"
	watermilldb "github.com/arkade-os/custodyd/internal/infrastructure/db/watermill"
	"github.com/stretchr/testify/require"
)

func TestEventRepository(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		Persistent: true,
	}, watermill.NopLogger{})
	repo := watermilldb.NewWatermillEventRepository(pubsub, nil)
	defer repo.Close()

	messages, err := pubsub.Subscribe(t.Context(), domain.AuctionTopic)
	require.NoError(t, err)

	handled := make(chan []domain.Event, 1)
	repo.RegisterEventsHandler(domain.AuctionTopic, func(events []domain.Event) {
		handled <- events
	})

	events := []domain.Event{
		domain.NewAuctionStarted(domain.FractionAuction{
			OfferId: "offer1", Round: 1, StartedAt: 10, EndTime: 100, AvailableFractions: 50,
		}),
		domain.NewBidPlaced(domain.FractionAuction{
			OfferId: "offer1", Round: 1, EndTime: 100, MaxBid: 20, BidderId: "bob",
		}, 20),
	}
	err = repo.Save(t.Context(), domain.AuctionTopic, "offer1", events)
	require.NoError(t, err)

	select {
	case got := <-handled:
		require.Equal(t, events, got)
	case <-time.After(time.Second):
		t.Fatal("events not dispatched")
	}

	published := make([]domain.Event, 0, len(events))
	for range events {
		select {
		case msg := <-messages:
			msg.Ack()
			require.Equal(t, "offer1", msg.Metadata.Get("id"))
			got, err := dbutil.DeserializeEvent(msg.Payload)
			require.NoError(t, err)
			published = append(published, got)
		case <-time.After(time.Second):
			t.Fatal("event not published")
		}
	}
	require.ElementsMatch(t, events, published)
}

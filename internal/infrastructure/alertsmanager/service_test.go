package alertsmanager_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/arkade-os/custodyd/internal/core/ports"
	"github.com/arkade-os/custodyd/internal/infrastructure/alertsmanager"
	"github.com/stretchr/testify/require"
)

func TestPublish(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		fixtures := []struct {
			topic    ports.Topic
			message  any
			labels   map[string]string
			contains string
		}{
			{
				topic: ports.VaultShortfall,
				message: ports.VaultShortfallAlert{
					Subject:        "token:offer1:0",
					CustodianId:    "custodian",
					Payoff:         20,
					CoveredPeriods: 2,
					ElapsedPeriods: 5,
				},
				labels: map[string]string{
					"severity": "warning", "subject": "token:offer1:0",
				},
				contains: "Periods covered: 2/5",
			},
			{
				topic: ports.AuctionStarted,
				message: ports.AuctionStartedAlert{
					OfferId: "offer1", Round: 1, Fractions: 100,
				},
				labels:   map[string]string{"offer_id": "offer1"},
				contains: "Fractions on sale: 100",
			},
			{
				topic: ports.AuctionFinished,
				message: ports.AuctionFinishedAlert{
					OfferId: "offer1", Round: 1, Winner: "N/A", Restarted: true,
				},
				labels:   map[string]string{"offer_id": "offer1"},
				contains: "a new round was started",
			},
		}

		for _, f := range fixtures {
			t.Run(string(f.topic), func(t *testing.T) {
				var received []alertsmanager.Alert
				server := httptest.NewServer(http.HandlerFunc(
					func(w http.ResponseWriter, r *http.Request) {
						require.Equal(t, "application/json", r.Header.Get("Content-Type"))
						require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
						w.WriteHeader(http.StatusOK)
					},
				))
				defer server.Close()

				svc := alertsmanager.NewService(server.URL)
				err := svc.Publish(t.Context(), f.topic, f.message)
				require.NoError(t, err)

				require.Len(t, received, 1)
				alert := received[0]
				require.Equal(t, string(f.topic), alert.Labels["alertname"])
				require.Equal(t, "custodyd", alert.Labels["service"])
				for k, v := range f.labels {
					require.Equal(t, v, alert.Labels[k])
				}
				require.Contains(t, alert.Annotations["description"], f.contains)
			})
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Run("message type", func(t *testing.T) {
			svc := alertsmanager.NewService("http://localhost:0")
			err := svc.Publish(t.Context(), ports.VaultShortfall, "not an alert")
			require.ErrorContains(t, err, "invalid message type")
		})

		t.Run("client error is not retried", func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(
				func(w http.ResponseWriter, r *http.Request) {
					calls.Add(1)
					w.WriteHeader(http.StatusBadRequest)
				},
			))
			defer server.Close()

			svc := alertsmanager.NewService(server.URL)
			err := svc.Publish(t.Context(), ports.AuctionStarted, ports.AuctionStartedAlert{})
			require.Error(t, err)
			require.Equal(t, int32(1), calls.Load())
		})

		t.Run("server error is retried", func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(
				func(w http.ResponseWriter, r *http.Request) {
					if calls.Add(1) < 3 {
						w.WriteHeader(http.StatusServiceUnavailable)
						return
					}
					w.WriteHeader(http.StatusOK)
				},
			))
			defer server.Close()

			svc := alertsmanager.NewService(server.URL)
			err := svc.Publish(t.Context(), ports.AuctionStarted, ports.AuctionStartedAlert{})
			require.NoError(t, err)
			require.Equal(t, int32(3), calls.Load())
		})
	})
}

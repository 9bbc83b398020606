package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arkade-os/custodyd/internal/core/domain"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "custodyd"

// Service collects the custody and http metrics in its own registry.
type Service struct {
	registry *prometheus.Registry

	events          *prometheus.CounterVec
	releasedAmount  prometheus.Counter
	shortfalls      prometheus.Counter
	vaultBalance    *prometheus.GaugeVec
	openVaults      prometheus.Gauge
	auctionsStarted prometheus.Counter
	auctionsSettled *prometheus.CounterVec
	bids            prometheus.Counter
	checkouts       prometheus.Counter

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func NewService() *Service {
	s := &Service{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of domain events saved.",
		}, []string{"topic", "type"}),
		releasedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "released_amount_total",
			Help:      "Total amount released from vaults to custodians.",
		}),
		shortfalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "shortfalls_total",
			Help:      "Number of releases the vault balance could not fully cover.",
		}),
		vaultBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "balance",
			Help:      "Last known balance of a vault.",
		}, []string{"subject"}),
		openVaults: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "open",
			Help:      "Number of vaults opened minus the ones closed since start.",
		}),
		auctionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "started_total",
			Help:      "Total number of auction rounds started.",
		}),
		auctionsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "settled_total",
			Help:      "Total number of auction rounds settled.",
		}, []string{"outcome"}),
		bids: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "bids_total",
			Help:      "Total number of accepted bids.",
		}),
		checkouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "custody",
			Name:      "checkouts_total",
			Help:      "Total number of items checked out of custody.",
		}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
	}

	s.registry.MustRegister(
		s.events,
		s.releasedAmount,
		s.shortfalls,
		s.vaultBalance,
		s.openVaults,
		s.auctionsStarted,
		s.auctionsSettled,
		s.bids,
		s.checkouts,
		s.httpInFlight,
		s.httpRequests,
		s.httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return s
}

func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// Handler exposes the registered metrics.
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// RegisterEventHandlers feeds the custody metrics from the events of every topic.
func (s *Service) RegisterEventHandlers(repo domain.EventRepository) {
	for _, topic := range []string{
		domain.VaultTopic, domain.CustodyTopic, domain.CustodianUpdateTopic, domain.AuctionTopic,
	} {
		repo.RegisterEventsHandler(topic, s.HandleEvents)
	}
}

func (s *Service) HandleEvents(events []domain.Event) {
	for _, event := range events {
		s.events.WithLabelValues(event.GetType().Topic(), event.GetType().String()).Inc()

		switch e := event.(type) {
		case domain.VaultOpened:
			s.openVaults.Inc()
		case domain.VaultBalanceUpdated:
			s.vaultBalance.WithLabelValues(e.Id).Set(float64(e.Balance))
		case domain.VaultReleased:
			s.releasedAmount.Add(float64(e.Payoff))
			if e.Shortfall {
				s.shortfalls.Inc()
			}
		case domain.VaultClosed:
			s.openVaults.Dec()
			s.releasedAmount.Add(float64(e.Payoff))
			s.vaultBalance.DeleteLabelValues(e.Id)
		case domain.CheckedOut:
			s.checkouts.Inc()
		case domain.AuctionStarted:
			s.auctionsStarted.Inc()
		case domain.BidPlaced:
			s.bids.Inc()
		case domain.AuctionFinished:
			outcome := "sold"
			if e.Winner == "" {
				outcome = "unsold"
			}
			s.auctionsSettled.WithLabelValues(outcome).Inc()
		}
	}
}

// InstrumentHandler records count and duration of the requests served by next,
// labelled by chi route pattern.
func (s *Service) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		s.httpInFlight.Inc()
		defer s.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		method := strings.ToUpper(r.Method)

		s.httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		s.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

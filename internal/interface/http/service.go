package httpservice

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/arkade-os/custodyd/internal/config"
	"github.com/arkade-os/custodyd/internal/core/application"
	"github.com/arkade-os/custodyd/internal/core/ports"
	interfaces "github.com/arkade-os/custodyd/internal/interface"
	"github.com/arkade-os/custodyd/internal/infrastructure/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

type Config struct {
	Port uint32
}

func (c Config) Validate() error {
	if c.Port == 0 {
		return fmt.Errorf("missing port")
	}
	return nil
}

func (c Config) address() string {
	return fmt.Sprintf(":%d", c.Port)
}

type service struct {
	config        Config
	appConfig     *config.Config
	server        *http.Server
	appSvcStarted atomic.Bool
}

func NewService(svcConfig Config, appConfig *config.Config) (interfaces.Service, error) {
	if err := svcConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service config: %s", err)
	}
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid app config: %s", err)
	}

	return &service{
		config:    svcConfig,
		appConfig: appConfig,
	}, nil
}

func (s *service) Start() error {
	appSvc, err := s.appConfig.AppService()
	if err != nil {
		return err
	}
	adminSvc, err := s.appConfig.AdminService()
	if err != nil {
		return err
	}

	if err := appSvc.Start(); err != nil {
		return fmt.Errorf("failed to start app service: %s", err)
	}
	s.appSvcStarted.Store(true)
	log.Info("started app service")

	s.server = &http.Server{
		Addr: s.config.address(),
		Handler: NewRouter(
			appSvc, adminSvc, s.appConfig.RoleAuthority(), s.appConfig.Metrics(),
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server stopped unexpectedly")
		}
	}()

	log.Infof("started listening at %s", s.config.address())
	return nil
}

func (s *service) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("failed to gracefully shutdown http server")
		}
	}

	if s.appSvcStarted.CompareAndSwap(true, false) {
		appSvc, _ := s.appConfig.AppService()
		if appSvc != nil {
			appSvc.Stop()
			log.Info("stopped app service")
		}
	}
	log.Info("shutdown service")
}

// NewRouter mounts the custody API under /v1. Metrics are served and collected
// only if metricsSvc is not nil.
func NewRouter(
	svc application.Service, adminSvc application.AdminService,
	authority ports.RoleAuthority, metricsSvc *metrics.Service,
) http.Handler {
	h := newHandler(svc, adminSvc)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(panicRecovery)
	if metricsSvc != nil {
		r.Use(metricsSvc.InstrumentHandler)
		r.Method(http.MethodGet, "/metrics", metricsSvc.Handler())
	}
	r.Get("/healthz", h.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/offers/{offerId}", h.getOffer)

		r.Route("/tokens/{tokenId}", func(r chi.Router) {
			r.Get("/checkout", h.getCheckoutRequest)
			r.Group(func(r chi.Router) {
				r.Use(requireCaller)
				r.Post("/check-in", h.checkIn)
				r.Post("/checkout/request", h.requestCheckOut)
				r.Post("/checkout/tax", h.submitTaxAmount)
				r.Post("/checkout/clear", h.clearCheckoutRequest)
				r.Post("/checkout", h.checkOut)
			})
		})

		r.Route("/vaults/{subjectId}", func(r chi.Router) {
			r.Get("/", h.getVault)
			r.Post("/release", h.releaseVault)
			r.With(requireCaller).Post("/deposit", h.depositToVault)
		})

		r.Route("/custodian-updates/{subjectId}", func(r chi.Router) {
			r.Get("/", h.getCustodianUpdateRequest)
			r.Group(func(r chi.Router) {
				r.Use(requireCaller)
				r.Post("/", h.requestCustodianUpdate)
				r.Post("/accept", h.acceptCustodianUpdate)
				r.Post("/reject", h.rejectCustodianUpdate)
			})
		})

		r.Route("/auctions/{offerId}", func(r chi.Router) {
			r.Get("/", h.getAuction)
			r.Post("/end", h.endAuction)
			r.With(requireCaller).Post("/start", h.startAuction)
			r.With(requireCaller).Post("/bids", h.placeBid)
		})

		r.Get("/balances/{entityId}", h.getBalances)

		r.Group(func(r chi.Router) {
			r.Use(requireCaller)
			r.Use(requireAdmin(authority))
			r.Post("/offers", h.registerOffer)
			r.Post("/admin/wallets/{address}/fund", h.fundWallet)
			r.Post("/admin/roles", h.grantRole)
			r.Post("/admin/sweep", h.sweepVaults)
		})
	})

	return r
}

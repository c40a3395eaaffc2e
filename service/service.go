package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/bettertest/metrics"
)

// DefaultHealthzAddr is used when the healthz server is enabled without an address
const DefaultHealthzAddr = "0.0.0.0:8080"

// Config selects the servers to run. An empty address disables a server.
type Config struct {
	HealthzAddr string
	MetricsAddr string
}

// Enabled reports whether any server is configured
func (c Config) Enabled() bool {
	return c.HealthzAddr != "" || c.MetricsAddr != ""
}

type Service struct {
	cfg     Config
	log     log.Logger
	Healthz *HealthzServer
	Metrics *MetricsServer
}

func New(cfg Config, logger log.Logger) *Service {
	return &Service{
		cfg:     cfg,
		log:     logger,
		Healthz: NewHealthzServer(logger),
		Metrics: NewMetricsServer(),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.log.Info("service starting")

	if s.cfg.HealthzAddr != "" {
		go func() {
			s.log.Info("starting healthz server", "addr", s.cfg.HealthzAddr)
			if err := s.Healthz.Start(ctx, s.cfg.HealthzAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("error starting healthz server", "err", err)
				metrics.RecordErrorDetails("error starting healthz server", err)
			}
		}()
	}

	if s.cfg.MetricsAddr != "" {
		go func() {
			s.log.Info("starting metrics server", "addr", s.cfg.MetricsAddr)
			if err := s.Metrics.Start(ctx, s.cfg.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("error starting metrics server", "err", err)
				metrics.RecordErrorDetails("error starting metrics server", err)
			}
		}()
	}

	s.log.Info("service started")
}

func (s *Service) Shutdown() {
	s.log.Info("service shutting down")

	_ = s.Healthz.Shutdown()
	s.log.Info("healthz stopped")

	_ = s.Metrics.Shutdown()
	s.log.Info("metrics stopped")

	s.log.Info("service stopped")
}

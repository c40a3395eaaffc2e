package service

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ethereum-optimism/infra/bettertest/metrics"
)

// MetricsServer exposes the harness registry for Prometheus scraping
type MetricsServer struct {
	*httpServer
}

func NewMetricsServer() *MetricsServer {
	return &MetricsServer{httpServer: newHTTPServer()}
}

// Start listens on addr and serves /metrics until Shutdown
func (m *MetricsServer) Start(ctx context.Context, addr string) error {
	hdlr := http.NewServeMux()
	hdlr.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	return m.serve(ctx, addr, hdlr)
}

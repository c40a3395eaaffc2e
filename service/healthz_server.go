package service

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

// HealthzServer answers liveness probes while a long run is in progress
type HealthzServer struct {
	*httpServer
	log log.Logger
}

func NewHealthzServer(logger log.Logger) *HealthzServer {
	return &HealthzServer{httpServer: newHTTPServer(), log: logger}
}

// Start listens on addr and serves until Shutdown
func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return h.serve(ctx, addr, c.Handler(hdlr))
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.log.Trace("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

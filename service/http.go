package service

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"
)

const shutdownTimeout = 5 * time.Second

// httpServer is the listener bookkeeping shared by the healthz and metrics servers
type httpServer struct {
	mu        sync.Mutex
	server    *http.Server
	addr      net.Addr
	ready     chan struct{}
	readyOnce sync.Once
}

func newHTTPServer() *httpServer {
	return &httpServer{ready: make(chan struct{})}
}

func (s *httpServer) serve(ctx context.Context, addr string, handler http.Handler) error {
	defer s.readyOnce.Do(func() { close(s.ready) })

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr()
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	return srv.Serve(ln)
}

// Addr blocks until the server has tried to listen and returns the bound
// address, or nil if listening failed
func (s *httpServer) Addr() net.Addr {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *httpServer) Shutdown() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

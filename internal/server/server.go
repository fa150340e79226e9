package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server owns the listening HTTP server.
type Server struct {
	srv      *http.Server
	certFile string
	keyFile  string
}

// ServerOption configures a [Server].
type ServerOption func(*Server)

// WithTLS serves HTTPS with the given certificate and key files.
func WithTLS(certFile, keyFile string) ServerOption {
	return func(s *Server) {
		s.certFile = certFile
		s.keyFile = keyFile
	}
}

// NewServer creates a Server for handler on addr. Write timeouts are left
// generous because one submission waits on STT, two chat passes and
// synthesis.
func NewServer(addr string, handler http.Handler, opts ...ServerOption) *Server {
	s := &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       2 * time.Minute,
			WriteTimeout:      3 * time.Minute,
			IdleTimeout:       2 * time.Minute,
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Serve accepts connections on ln until Shutdown is called. It returns nil
// after a graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("http server listening", "addr", ln.Addr().String(), "tls", s.certFile != "")
	var err error
	if s.certFile != "" {
		err = s.srv.ServeTLS(ln, s.certFile, s.keyFile)
	} else {
		err = s.srv.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and serves.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ln)
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

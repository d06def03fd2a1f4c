package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ShutdownTimeout bounds how long in-flight requests may finish after a signal.
var ShutdownTimeout = 10 * time.Second

// Server wraps the http.Server with defaults suited to long-lived event streams.
type Server struct {
	inner  *http.Server
	cancel context.CancelFunc
}

// New constructs a server listening on the provided port. Request contexts
// derive from a base context that is cancelled when Shutdown begins, so open
// streams end instead of holding shutdown until its deadline.
func New(port int, handler http.Handler) *Server {
	base, cancel := context.WithCancel(context.Background())

	inner := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: /auth/events responses stay open for the life of a page.
		IdleTimeout: 2 * time.Minute,
		BaseContext: func(net.Listener) context.Context { return base },
	}
	inner.RegisterOnShutdown(cancel)

	return &Server{inner: inner, cancel: cancel}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.inner.Addr
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Serve accepts connections on l.
func (s *Server) Serve(l net.Listener) error {
	return s.inner.Serve(l)
}

// Shutdown gracefully terminates the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.cancel()
	return s.inner.Shutdown(ctx)
}

// Package httpserver wraps the standard http.Server with the timeouts every
// deployment should run with.
package httpserver

import (
	"net/http"
	"time"
)

// New returns an http.Server for addr with conservative timeouts. The
// handler carries its own per-request timeout middleware, so the write
// timeout only guards against wedged connections.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

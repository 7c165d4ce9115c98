package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. The read and write timeouts are generous because
// a sync against a slow document store can legitimately take a while; the
// handler-level timeout middleware cuts requests off well before these fire.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       1 * time.Minute,
		WriteTimeout:      1 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}

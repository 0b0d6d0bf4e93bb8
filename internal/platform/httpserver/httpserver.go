package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. Handlers carry their own 30s timeout
// middleware, so the write timeout here is a backstop, not the budget.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

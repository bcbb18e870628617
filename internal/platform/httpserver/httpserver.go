package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with defaults tuned for provisioning
// workloads: header reads stay tight while large dataset responses get
// a generous write window. Per-request deadlines are enforced by the
// router's timeout middleware, not here.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
}

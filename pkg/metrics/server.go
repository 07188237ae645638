package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// StartServer serves /metrics on a port of its own, outside the API's rate
// limit and request timeout, and returns the server's shutdown func. The port
// is bound before returning so a clash shows up at startup. A zero port, or
// a failed bind, yields a no-op shutdown.
func StartServer(port int) (shutdown func(context.Context) error) {
	noop := func(context.Context) error { return nil }
	if port <= 0 {
		return noop
	}
	log := slog.Default().With("component", "metrics-server")

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		log.Error("metrics port unavailable, scraping disabled", "port", port, "error", err)
		return noop
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	mux.Handle("GET /{$}", http.RedirectHandler("/metrics", http.StatusFound))

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	go func() {
		log.Info("metrics server listening", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "error", err)
		}
	}()
	return server.Shutdown
}

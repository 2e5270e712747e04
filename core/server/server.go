// Package server runs the HTTP endpoints of the twinrelay services
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relabs-tech/twinrelay/core/logger"
	"github.com/relabs-tech/twinrelay/core/metrics"
)

// ShutdownTimeout is the time given to open requests when the server stops
const ShutdownTimeout = 5 * time.Second

// NewRouter returns a router which adds a request logger to every request and serves the
// prometheus metrics of gatherer on /metrics
func NewRouter(gatherer prometheus.Gatherer) *mux.Router {
	router := mux.NewRouter()
	logger.AddRequestID(router)
	router.Handle("/metrics", metrics.Handler(gatherer)).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)
	return router
}

// Handler wraps the router with panic recovery and, if origins are given, CORS
func Handler(router *mux.Router, origins []string) http.Handler {
	var h http.Handler = router
	if len(origins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(origins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPut, http.MethodPatch}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
			handlers.AllowCredentials(),
		)(h)
	}
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
}

// Origins splits a comma separated list of allowed origins
func Origins(list string) []string {
	var origins []string
	for _, o := range strings.Split(list, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// ListenAndServe serves handler on address until ctx is done
func ListenAndServe(ctx context.Context, address string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		logger.Default().Infoln("listen on", address)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run runs all tasks until ctx is done or the first task fails. The context of the other
// tasks is cancelled then. Run returns the first error.
func Run(ctx context.Context, tasks ...func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, len(tasks))
	for _, task := range tasks {
		go func(task func(ctx context.Context) error) {
			err := task(ctx)
			if err != nil {
				cancel()
			}
			errs <- err
		}(task)
	}
	var first error
	for range tasks {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}

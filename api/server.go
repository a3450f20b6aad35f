// Package api serves the planning HTTP API.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kilianp07/ucplan/core/runlog"
	"github.com/kilianp07/ucplan/infra/logger"
	"github.com/kilianp07/ucplan/infra/metrics"
)

// NewMux routes the API:
//
//	POST /api/schedule  solve a posted instance
//	GET  /api/runs      query the run history
//	GET  /healthz       liveness, unauthenticated
//	GET  /metrics       Prometheus, when withMetrics is set
func NewMux(p Planner, store runlog.Store, token string, maxBody int64, withMetrics bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/schedule", requireToken(token, NewScheduleHandler(p, maxBody)))
	mux.Handle("/api/runs", requireToken(token, NewRunsHandler(store)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if withMetrics {
		mux.Handle("/metrics", metrics.Handler(nil))
	}
	return mux
}

// Serve runs h on addr until ctx is canceled.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	log := logger.New("api")
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("api shutdown: %v", err)
		}
		cancel()
	}()
	log.Infof("serving API on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

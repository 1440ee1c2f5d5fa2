package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pg-sharding/shrouter/pkg/spqrlog"
	"github.com/pg-sharding/shrouter/router/rule"
	"github.com/pg-sharding/shrouter/router/statistics"
)

// RouteTimes is the per strategy latency summary served on /routes, in
// milliseconds.
type RouteTimes struct {
	Count uint64  `json:"count"`
	P50   float64 `json:"p50_ms"`
	P99   float64 `json:"p99_ms"`
}

type Status struct {
	Version uint64                `json:"snapshot_version"`
	Routes  map[string]RouteTimes `json:"routes"`
}

// NewHandler serves prometheus metrics, a health check that passes once a
// snapshot is published, and route latency quantiles.
func NewHandler(holder *rule.Holder) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if holder.Load() == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("no sharding rule"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/routes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status(holder))
	})
	return mux
}

func status(holder *rule.Holder) Status {
	st := Status{Version: holder.Version(), Routes: map[string]RouteTimes{}}
	for _, s := range statistics.RouteTimes.Strategies() {
		st.Routes[s] = RouteTimes{
			Count: statistics.RouteTimes.Count(s),
			P50:   statistics.RouteTimes.Quantile(s, 0.5),
			P99:   statistics.RouteTimes.Quantile(s, 0.99),
		}
	}
	return st
}

// Serve runs the metrics server on addr until ctx is done.
func Serve(ctx context.Context, addr string, holder *rule.Holder) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(holder),
		ReadHeaderTimeout: 5 * time.Second,
	}
	spqrlog.Zero.Info().
		Str("addr", addr).
		Msg("starting metrics server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		spqrlog.Zero.Error().
			Err(err).
			Msg("metrics server failed")
		return err
	}
	return nil
}

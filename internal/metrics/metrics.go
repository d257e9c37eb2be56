// Registers:
//
//	#cryptonorm_events_total{exchange,kind}
//	#cryptonorm_transform_errors_total{exchange,reason}
//	#cryptonorm_reconnects_total{exchange}
//	#cryptonorm_group_failures_total{exchange}
//	#cryptonorm_groups{exchange,state}
//	#go_* and process_* system metrics
//
// Serve exposes them on /metrics using the Prometheus HTTP handler.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cryptonorm/logger"
)

var (
	once            sync.Once
	registry        *prometheus.Registry
	eventsTotal     *prometheus.CounterVec
	transformErrors *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	groupFailures   *prometheus.CounterVec
	groupStates     *prometheus.GaugeVec
)

// Init registers the collectors. It is safe to call more than once; the
// counters are usable without it and simply stay unregistered.
func Init() {
	once.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			eventsTotal,
			transformErrors,
			reconnects,
			groupFailures,
			groupStates,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

func init() {
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptonorm_events_total",
			Help: "Number of normalised market events delivered",
		},
		[]string{"exchange", "kind"},
	)
	transformErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptonorm_transform_errors_total",
			Help: "Number of inbound frames skipped because they could not be transformed",
		},
		[]string{"exchange", "reason"},
	)
	reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptonorm_reconnects_total",
			Help: "Number of connection group reconnect attempts",
		},
		[]string{"exchange"},
	)
	groupFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptonorm_group_failures_total",
			Help: "Number of connection groups that ended with a terminal error",
		},
		[]string{"exchange"},
	)
	groupStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cryptonorm_groups",
			Help: "Number of connection groups per state",
		},
		[]string{"exchange", "state"},
	)
}

// Serve exposes the registry on addr until ctx is done.
func Serve(ctx context.Context, addr string) {
	Init()
	log := logger.GetLogger().WithComponent("prometheus")

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		log.WithFields(logger.Fields{"addr": addr}).Info("serving prometheus metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server failed")
		}
	}()
}

// Handler returns the HTTP handler for the registry.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func IncEvents(exchange, kind string, n int) {
	eventsTotal.WithLabelValues(exchange, kind).Add(float64(n))
}

func IncTransformError(exchange, reason string) {
	transformErrors.WithLabelValues(exchange, reason).Inc()
}

func IncReconnect(exchange string) {
	reconnects.WithLabelValues(exchange).Inc()
}

func IncGroupFailure(exchange string) {
	groupFailures.WithLabelValues(exchange).Inc()
}

// MoveGroupState moves one group of exchange from state from to state to.
// An empty from only increments to.
func MoveGroupState(exchange, from, to string) {
	if from != "" {
		groupStates.WithLabelValues(exchange, from).Dec()
	}
	if to != "" {
		groupStates.WithLabelValues(exchange, to).Inc()
	}
}

// Package metrics exposes the trading engine's Prometheus series.
//
//   - limitbot_iterations_total               trading loop iterations
//   - limitbot_iteration_seconds              iteration wall time
//   - limitbot_tokens_trading                 engines live in the current run
//   - limitbot_discovery_errors_total         tokens dropped by discovery
//   - limitbot_tx_submitted_total{kind}       approve|buy|sell broadcasts
//   - limitbot_tx_settled_total{kind,status}  receipt resolutions
//   - limitbot_submit_errors_total{reason}    rejected before broadcast
//   - limitbot_consecutive_failures           current fail streak
//   - limitbot_native_price_usd               reference BNB price
//   - limitbot_wallet_balance{asset}          BNB/BUSD/USDT balances
//
// All methods are no-ops on a nil *Metrics.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "limitbot"

type Metrics struct {
	reg *prometheus.Registry

	iterations       prometheus.Counter
	iterationSeconds prometheus.Histogram
	tokensTrading    prometheus.Gauge
	discoveryErrors  prometheus.Counter
	submitted        *prometheus.CounterVec
	settled          *prometheus.CounterVec
	submitErrors     *prometheus.CounterVec
	failStreak       prometheus.Gauge
	nativePrice      prometheus.Gauge
	walletBalance    *prometheus.GaugeVec
}

// New registers the series on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		iterations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Trading loop iterations completed.",
		}),
		iterationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iteration_seconds",
			Help:      "Wall time of one discovery plus evaluation iteration.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		tokensTrading: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tokens_trading",
			Help:      "Tokens with a live order engine.",
		}),
		discoveryErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_errors_total",
			Help:      "Tokens excluded because discovery failed.",
		}),
		submitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_submitted_total",
			Help:      "Transactions broadcast, by kind.",
		}, []string{"kind"}),
		settled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_settled_total",
			Help:      "Transactions resolved from their receipt, by kind and status.",
		}, []string{"kind", "status"}),
		submitErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_errors_total",
			Help:      "Submissions rejected before broadcast, by reason.",
		}, []string{"reason"}),
		failStreak: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Settlement failures since the last success.",
		}),
		nativePrice: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "native_price_usd",
			Help:      "BNB price in USD from the reference pool.",
		}),
		walletBalance: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wallet_balance",
			Help:      "Wallet balance per counter asset, in whole units.",
		}, []string{"asset"}),
	}
}

func (m *Metrics) ObserveIteration(d time.Duration) {
	if m == nil {
		return
	}
	m.iterations.Inc()
	m.iterationSeconds.Observe(d.Seconds())
}

func (m *Metrics) SetTokensTrading(n int) {
	if m == nil {
		return
	}
	m.tokensTrading.Set(float64(n))
}

func (m *Metrics) IncDiscoveryError() {
	if m == nil {
		return
	}
	m.discoveryErrors.Inc()
}

func (m *Metrics) IncSubmitted(kind string) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncSettled(kind string, ok bool) {
	if m == nil {
		return
	}
	status := "fail"
	if ok {
		status = "successful"
	}
	m.settled.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) IncSubmitError(reason string) {
	if m == nil {
		return
	}
	m.submitErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetFailStreak(n int) {
	if m == nil {
		return
	}
	m.failStreak.Set(float64(n))
}

func (m *Metrics) SetNativePrice(usd float64) {
	if m == nil {
		return
	}
	m.nativePrice.Set(usd)
}

func (m *Metrics) SetWalletBalance(asset string, v float64) {
	if m == nil {
		return
	}
	m.walletBalance.WithLabelValues(asset).Set(v)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics and /healthz on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[warn] metrics shutdown: %v", err)
		}
	}()

	log.Printf("serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package lib

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

/* This file implements dev-ops telemetry for the node in the form of prometheus metrics */

const metricsPattern = "/metrics"

// Metrics represents a server that exposes Prometheus metrics
type Metrics struct {
	server   *http.Server          // the http prometheus server
	config   MetricsConfig         // the configuration
	registry *prometheus.Registry // the collectors of this instance
	log      LoggerI               // the logger

	NodeMetrics  // general telemetry about the node
	RoundMetrics // round scheduler telemetry
}

// NodeMetrics represents general telemetry for the node's health
type NodeMetrics struct {
	NodeStatus prometheus.Gauge // is the node alive?
}

// RoundMetrics represents the telemetry of the round scheduler
type RoundMetrics struct {
	RoundNumber    prometheus.Gauge       // the current round number
	TermNumber     prometheus.Gauge       // the current term number
	LibHeight      prometheus.Gauge       // the confirmed irreversible height
	LibRound       prometheus.Gauge       // the round of the confirmed irreversible height
	MiningStatus   prometheus.Gauge       // 0: normal, 1: abnormal, 2: severe
	TransitionTime prometheus.Histogram   // how long does applying a transaction take?
	Transitions    *prometheus.CounterVec // accepted transitions by behaviour
	Rejections     *prometheus.CounterVec // rejected transitions by code and category
	EvilMiners     prometheus.Counter     // miners reported as evil at term changes
	SevereEvents   prometheus.Counter     // times the LIB lagged into the severe state
}

// NewMetricsServer() creates a new telemetry server with its own registry
func NewMetricsServer(config MetricsConfig, log LoggerI) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	mux := http.NewServeMux()
	mux.Handle(metricsPattern, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &Metrics{
		server:   &http.Server{Addr: config.PrometheusAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		config:   config,
		registry: registry,
		log:      log,
		NodeMetrics: NodeMetrics{
			NodeStatus: factory.NewGauge(prometheus.GaugeOpts{
				Name: "aedpos_node_status",
				Help: "The node is alive and processing transitions",
			}),
		},
		RoundMetrics: RoundMetrics{
			RoundNumber: factory.NewGauge(prometheus.GaugeOpts{
				Name: "aedpos_round_number",
				Help: "Current round number",
			}),
			TermNumber: factory.NewGauge(prometheus.GaugeOpts{
				Name: "aedpos_term_number",
				Help: "Current term number",
			}),
			LibHeight: factory.NewGauge(prometheus.GaugeOpts{
				Name: "aedpos_lib_height",
				Help: "Confirmed last irreversible block height",
			}),
			LibRound: factory.NewGauge(prometheus.GaugeOpts{
				Name: "aedpos_lib_round",
				Help: "Round number of the confirmed last irreversible block height",
			}),
			MiningStatus: factory.NewGauge(prometheus.GaugeOpts{
				Name: "aedpos_mining_status",
				Help: "Blockchain mining status (0: Normal, 1: Abnormal, 2: Severe)",
			}),
			TransitionTime: factory.NewHistogram(prometheus.HistogramOpts{
				Name: "aedpos_transition_time",
				Help: "Time to validate and commit a transaction in seconds",
			}),
			Transitions: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "aedpos_transitions_total",
				Help: "Accepted transitions by behaviour",
			}, []string{"behaviour"}),
			Rejections: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "aedpos_rejections_total",
				Help: "Rejected transitions by error code and category",
			}, []string{"code", "category"}),
			EvilMiners: factory.NewCounter(prometheus.CounterOpts{
				Name: "aedpos_evil_miners_total",
				Help: "Miners reported as evil at term changes",
			}),
			SevereEvents: factory.NewCounter(prometheus.CounterOpts{
				Name: "aedpos_severe_status_total",
				Help: "Times the irreversible height lagged into the severe mining status",
			}),
		},
	}
}

// Registry() exposes the collectors, used in tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Start() starts the telemetry server
func (m *Metrics) Start() {
	// exit if empty
	if m == nil {
		return
	}
	// if the metrics server is enabled
	if m.config.Enabled {
		go func() {
			m.log.Infof("Starting metrics server on %s", m.config.PrometheusAddress)
			// run the server
			if err := m.server.ListenAndServe(); err != nil {
				if err != http.ErrServerClosed {
					m.log.Errorf("Metrics server failed with err: %s", err.Error())
				}
			}
		}()
	}
}

// Stop() gracefully stops the telemetry server
func (m *Metrics) Stop() {
	// exit if empty
	if m == nil {
		return
	}
	// if the metrics server isn't enabled
	if m.config.Enabled {
		// shutdown the server
		if err := m.server.Shutdown(context.Background()); err != nil {
			m.log.Error(err.Error())
		}
	}
}

// UpdateRound() is a setter for the round gauges after a commit
func (m *Metrics) UpdateRound(r *Round, miningStatus int) {
	// exit if empty
	if m == nil || r == nil {
		return
	}
	m.NodeStatus.Set(1)
	m.RoundNumber.Set(float64(r.RoundNumber))
	m.TermNumber.Set(float64(r.TermNumber))
	m.LibHeight.Set(float64(r.ConfirmedIrreversibleHeight))
	m.LibRound.Set(float64(r.ConfirmedIrreversibleRound))
	m.MiningStatus.Set(float64(miningStatus))
}

// ObserveTransition() records an accepted transition and its processing time
func (m *Metrics) ObserveTransition(behaviour Behaviour, duration time.Duration) {
	// exit if empty
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(string(behaviour)).Inc()
	m.TransitionTime.Observe(duration.Seconds())
}

// ObserveRejection() records a rejected transition
func (m *Metrics) ObserveRejection(code ErrorCode, category string) {
	// exit if empty
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(fmt.Sprintf("%d", code), category).Inc()
}

// ObserveEvilMiners() adds to the evil miner counter
func (m *Metrics) ObserveEvilMiners(count int) {
	if m == nil {
		return
	}
	m.EvilMiners.Add(float64(count))
}

// ObserveSevere() counts a severe mining status event
func (m *Metrics) ObserveSevere() {
	if m == nil {
		return
	}
	m.SevereEvents.Inc()
}

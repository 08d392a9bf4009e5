// Package metrics exposes Prometheus collectors for the pen bridge.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"spenremote/pkg/spen"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "spenremote_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	eventsReceived *prometheus.CounterVec
	connectResults *prometheus.CounterVec
	connState      *prometheus.GaugeVec
	sinkPublishes  *prometheus.CounterVec
	sinkLatency    *prometheus.HistogramVec
	udpSubscribers prometheus.Gauge
	wsClients      prometheus.Gauge
)

// Init registers the collectors with the default registry. Later calls do nothing.
func Init() {
	registerOnce.Do(func() {
		eventsReceived = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_received_total",
				Help: "Total pen events received by unit type",
			},
			[]string{"unit"},
		)
		connectResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "connect_results_total",
				Help: "Total connect attempts by result",
			},
			[]string{"result"},
		)
		connState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "connection_state",
				Help: "1 for the current connection state, 0 otherwise",
			},
			[]string{"state"},
		)
		sinkPublishes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sink_publishes_total",
				Help: "Total events forwarded to a sink by result",
			},
			[]string{"sink", "result"},
		)
		sinkLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "sink_publish_latency_seconds",
				Help:    "Time spent forwarding one event to a sink",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"sink"},
		)
		udpSubscribers = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "udp_subscribers",
				Help: "Registered UDP subscribers",
			},
		)
		wsClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "ws_clients",
				Help: "Connected websocket event stream clients",
			},
		)

		prometheus.MustRegister(
			eventsReceived,
			connectResults,
			connState,
			sinkPublishes,
			sinkLatency,
			udpSubscribers,
			wsClients,
		)

		for _, s := range []spen.ConnectionState{spen.StateConnected, spen.StateDisconnected, spen.StateDisconnectedUnknownReason} {
			connState.WithLabelValues(s.String()).Set(0)
		}
		connState.WithLabelValues(spen.StateDisconnected.String()).Set(1)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveEvent counts one received event.
func ObserveEvent(t spen.UnitType) {
	if eventsReceived == nil {
		return
	}
	eventsReceived.WithLabelValues(t.String()).Inc()
}

// ObserveConnect counts one connect outcome.
func ObserveConnect(err error) {
	if connectResults == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	connectResults.WithLabelValues(result).Inc()
}

// SetConnectionState marks state as the current one.
func SetConnectionState(state spen.ConnectionState) {
	if connState == nil {
		return
	}
	for _, s := range []spen.ConnectionState{spen.StateConnected, spen.StateDisconnected, spen.StateDisconnectedUnknownReason} {
		v := 0.0
		if s == state {
			v = 1
		}
		connState.WithLabelValues(s.String()).Set(v)
	}
}

// ObservePublish records one sink delivery that started at start.
func ObservePublish(sink string, start time.Time, err error) {
	if sinkPublishes == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	sinkPublishes.WithLabelValues(sink, result).Inc()
	sinkLatency.WithLabelValues(sink).Observe(time.Since(start).Seconds())
}

// SetUDPSubscribers records the UDP subscriber count.
func SetUDPSubscribers(n int) {
	if udpSubscribers == nil {
		return
	}
	udpSubscribers.Set(float64(n))
}

// SetWSClients records the websocket client count.
func SetWSClients(n int) {
	if wsClients == nil {
		return
	}
	wsClients.Set(float64(n))
}

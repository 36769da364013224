package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marstek-ble-bridge/pkg/state"
)

const namespace = "marstek"

// PrometheusMetrics tracks application metrics with client_golang collectors
// registered on a private registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	frameErrorsTotal *prometheus.CounterVec
	pollCyclesTotal  *prometheus.CounterVec
	pollDuration     prometheus.Histogram
	watchdogTotal    prometheus.Counter
	mqttPublishes    prometheus.Counter
	mqttErrors       prometheus.Counter
	deviceStatus     prometheus.Gauge
	connected        prometheus.Gauge
	fieldValue       *prometheus.GaugeVec
	fieldAge         *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a collector set labelled with the device name.
func NewPrometheusMetrics(device string) *PrometheusMetrics {
	labels := prometheus.Labels{"device": device}
	pm := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_total",
			Help:        "Commands sent, by command and result",
			ConstLabels: labels,
		}, []string{"command", "result"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "command_duration_seconds",
			Help:        "Time from write to correlated reply",
			ConstLabels: labels,
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 20},
		}, []string{"command"}),
		frameErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frame_errors_total",
			Help:        "Notifications rejected by the frame parser",
			ConstLabels: labels,
		}, []string{"kind"}),
		pollCyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "poll_cycles_total",
			Help:        "Poll cycles by trigger and result",
			ConstLabels: labels,
		}, []string{"trigger", "result"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "poll_duration_seconds",
			Help:        "Duration of poll cycles",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		watchdogTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "watchdog_fires_total",
			Help:        "Forced poll cycles started by the watchdog",
			ConstLabels: labels,
		}),
		mqttPublishes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "mqtt_publishes_total",
			Help:        "Successful MQTT publishes",
			ConstLabels: labels,
		}),
		mqttErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "mqtt_errors_total",
			Help:        "Failed MQTT publishes",
			ConstLabels: labels,
		}),
		deviceStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "device_online",
			Help:        "Device availability (1 = online, 0 = offline)",
			ConstLabels: labels,
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ble_connected",
			Help:        "BLE session open (1) or closed (0)",
			ConstLabels: labels,
		}),
		fieldValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "field_value",
			Help:        "Latest decoded numeric device field",
			ConstLabels: labels,
		}, []string{"field", "unit"}),
		fieldAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "field_age_seconds",
			Help:        "Seconds since the field was last decoded",
			ConstLabels: labels,
		}, []string{"field"}),
	}

	pm.registry.MustRegister(
		pm.commandsTotal,
		pm.commandDuration,
		pm.frameErrorsTotal,
		pm.pollCyclesTotal,
		pm.pollDuration,
		pm.watchdogTotal,
		pm.mqttPublishes,
		pm.mqttErrors,
		pm.deviceStatus,
		pm.connected,
		pm.fieldValue,
		pm.fieldAge,
		collectors.NewGoCollector(),
	)
	return pm
}

// Registry exposes the private registry, mainly for tests.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry { return pm.registry }

func (pm *PrometheusMetrics) IncrementCommandSuccess(command string) {
	pm.commandsTotal.WithLabelValues(command, "success").Inc()
}

func (pm *PrometheusMetrics) IncrementCommandFailures(command string) {
	pm.commandsTotal.WithLabelValues(command, "failure").Inc()
}

func (pm *PrometheusMetrics) ObserveCommandDuration(command string, duration time.Duration) {
	pm.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func (pm *PrometheusMetrics) IncrementFrameErrors(kind string) {
	pm.frameErrorsTotal.WithLabelValues(kind).Inc()
}

func (pm *PrometheusMetrics) IncrementPollCycles(trigger string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	pm.pollCyclesTotal.WithLabelValues(trigger, result).Inc()
}

func (pm *PrometheusMetrics) ObservePollDuration(duration time.Duration) {
	pm.pollDuration.Observe(duration.Seconds())
}

func (pm *PrometheusMetrics) IncrementWatchdogFires() { pm.watchdogTotal.Inc() }

func (pm *PrometheusMetrics) IncrementMQTTPublishes() { pm.mqttPublishes.Inc() }

func (pm *PrometheusMetrics) IncrementMQTTErrors() { pm.mqttErrors.Inc() }

func (pm *PrometheusMetrics) SetDeviceStatus(online bool) { pm.deviceStatus.Set(boolGauge(online)) }

func (pm *PrometheusMetrics) SetConnected(connected bool) { pm.connected.Set(boolGauge(connected)) }

// UpdateFromSnapshot exports every set numeric or boolean field.
func (pm *PrometheusMetrics) UpdateFromSnapshot(snap state.Snapshot) {
	for _, id := range state.Fields() {
		v := snap.Value(id)
		if !v.IsSet() {
			continue
		}
		var f float64
		switch id.Kind() {
		case state.KindFloat:
			f, _ = v.Float()
		case state.KindInt:
			i, _ := v.Int()
			f = float64(i)
		case state.KindBool:
			b, _ := v.Bool()
			f = boolGauge(b)
		default:
			continue
		}
		pm.fieldValue.WithLabelValues(id.String(), id.Unit()).Set(f)
		if md, ok := snap.Metadata(id); ok {
			pm.fieldAge.WithLabelValues(id.String()).Set(md.AgeSeconds)
		}
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Handler serves the private registry.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// StartMetricsServer starts a dedicated HTTP server on the given port.
// It blocks until the server stops.
func (pm *PrometheusMetrics) StartMetricsServer(port int) error {
	if port == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", pm.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return server.ListenAndServe()
}

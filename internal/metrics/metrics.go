package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Vehicles = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_vehicles",
		Help: "Vehicles currently tracked by the telemetry store.",
	})

	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_connections",
		Help: "Connections currently registered with the broadcaster, mirrors included.",
	})

	Ticks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_ticks_total",
		Help: "Simulation ticks executed.",
	})

	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "telemetry_tick_duration_seconds",
		Help:    "Wall time of one simulation tick, publish included.",
		Buckets: prometheus.DefBuckets,
	})

	VehicleStepFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_vehicle_step_failures_total",
		Help: "Per-vehicle simulation steps that panicked and were skipped.",
	})

	SerializationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_serialization_failures_total",
		Help: "Snapshots that could not be encoded into a wire message.",
	})

	// result: ok, error
	Sends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_sends_total",
		Help: "Per-connection send attempts by result.",
	}, []string{"result"})

	Superseded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_updates_superseded_total",
		Help: "Queued updates replaced by a newer update for the same vehicle before they were written.",
	})

	Pruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_connections_pruned_total",
		Help: "Connections removed by the failure pruning policy.",
	})

	// source: http, redis, postgres; op: upsert, remove, status
	IngestEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_ingest_events_total",
		Help: "Registry events applied to the telemetry store.",
	}, []string{"source", "op"})

	Alerts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_alerts_total",
		Help: "Battery alerts raised, after deduplication.",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(
		Vehicles,
		Connections,
		Ticks,
		TickDuration,
		VehicleStepFailures,
		SerializationFailures,
		Sends,
		Superseded,
		Pruned,
		IngestEvents,
		Alerts,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

package transport

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics
var (
	streamStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "transport_stream_starts_total", Help: "Stream start attempts"},
		[]string{"kind", "result"},
	)
	streamStops = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "transport_stream_stops_total", Help: "Streams stopped by a project"},
	)
	recordingsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "transport_recordings_total", Help: "Finished recordings"},
		[]string{"result"},
	)
	dropoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "transport_dropouts_total", Help: "Capture intervals lost during recording"},
	)
	refusalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "transport_refusals_total", Help: "Transport requests refused"},
		[]string{"op"},
	)

	registerOnce sync.Once
)

// RegisterMetrics 注册传输指标，重复调用安全
func RegisterMetrics(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(streamStarts, streamStops, recordingsFinished, dropoutsTotal, refusalsTotal)
	})
}

func observeStart(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	streamStarts.WithLabelValues(kind, result).Inc()
}

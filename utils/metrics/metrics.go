package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// NewRegistry returns a registry carrying the standard process and Go
// collectors. Each engine owns one so several can coexist in a process.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

type DetectionMetrics struct {
	Passes          prometheus.Counter
	PassFailures    *prometheus.CounterVec
	PassDuration    prometheus.Histogram
	SearchDuration  prometheus.Histogram
	CyclesFound     prometheus.Counter
	CyclesDiscarded *prometheus.CounterVec
	Filtered        *prometheus.CounterVec
	Opportunities   prometheus.Gauge
	BestProfitPct   prometheus.Gauge
	SnapshotVersion prometheus.Gauge
	Edges           prometheus.Gauge
	RejectedQuotes  *prometheus.CounterVec
}

func NewDetectionMetrics(reg prometheus.Registerer, namespace string) *DetectionMetrics {
	f := promauto.With(reg)
	return &DetectionMetrics{
		Passes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Total number of completed detection passes",
		}),
		PassFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pass_failures_total",
			Help:      "Total number of detection passes that did not complete",
		}, []string{"reason"}),
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Time taken by a full detection pass",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Time taken by a single-source cycle search",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 14),
		}),
		CyclesFound: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_found_total",
			Help:      "Total number of negative cycles reconstructed",
		}),
		CyclesDiscarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_discarded_total",
			Help:      "Total number of cycles discarded during reconstruction or evaluation",
		}, []string{"reason"}),
		Filtered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_filtered_total",
			Help:      "Total number of evaluated opportunities dropped by the ranker",
		}, []string{"reason"}),
		Opportunities: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "opportunities",
			Help:      "Number of opportunities reported by the last pass",
		}),
		BestProfitPct: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_profit_percent",
			Help:      "Profit percentage of the top opportunity of the last pass",
		}),
		SnapshotVersion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_version",
			Help:      "Version of the rate snapshot searched last",
		}),
		Edges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "edges",
			Help:      "Number of searchable edges in the current snapshot",
		}),
		RejectedQuotes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_rejected_total",
			Help:      "Total number of quotes refused admission to the graph",
		}, []string{"reason"}),
	}
}

type SourceMetrics struct {
	Fetches       *prometheus.CounterVec
	FetchErrors   *prometheus.CounterVec
	FetchLatency  *prometheus.HistogramVec
	QuotesFetched *prometheus.GaugeVec
}

func NewSourceMetrics(reg prometheus.Registerer, namespace string) *SourceMetrics {
	f := promauto.With(reg)
	return &SourceMetrics{
		Fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetches_total",
			Help:      "Total number of quote fetches per source",
		}, []string{"source"}),
		FetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed quote fetches per source",
		}, []string{"source"}),
		FetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_latency_seconds",
			Help:      "Quote fetch latency per source",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"source"}),
		QuotesFetched: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "quotes",
			Help:      "Number of quotes returned by the last fetch per source",
		}, []string{"source"}),
	}
}

type ReportMetrics struct {
	Reported   *prometheus.CounterVec
	Suppressed prometheus.Counter
	Errors     *prometheus.CounterVec
}

func NewReportMetrics(reg prometheus.Registerer, namespace string) *ReportMetrics {
	f := promauto.With(reg)
	return &ReportMetrics{
		Reported: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "opportunities_total",
			Help:      "Total number of opportunities delivered per reporter",
		}, []string{"reporter"}),
		Suppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "suppressed_total",
			Help:      "Total number of opportunities suppressed as recently reported",
		}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "errors_total",
			Help:      "Total number of reporter failures",
		}, []string{"reporter"}),
	}
}

type SystemMetrics struct {
	MemoryUsage prometheus.Gauge
	HeapObjects prometheus.Gauge
	GCPause     prometheus.Histogram
	Goroutines  prometheus.Gauge
	Uptime      prometheus.Counter
}

func NewSystemMetrics(reg prometheus.Registerer, namespace string) *SystemMetrics {
	f := promauto.With(reg)
	return &SystemMetrics{
		MemoryUsage: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_usage_bytes",
			Help:      "Memory usage in bytes",
		}),
		HeapObjects: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "heap_objects",
			Help:      "Number of allocated heap objects",
		}),
		GCPause: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "gc_pause_seconds",
			Help:      "GC pause time in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 12),
		}),
		Goroutines: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "goroutines",
			Help:      "Number of goroutines",
		}),
		Uptime: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "uptime_seconds",
			Help:      "Uptime in seconds",
		}),
	}
}

// DetectionStatus is a point-in-time reading of the detection counters.
type DetectionStatus struct {
	Passes          float64
	Failures        float64
	CyclesFound     float64
	Opportunities   float64
	BestProfitPct   float64
	SnapshotVersion float64
}

// Status reads the current detection counters. Failures sums every reason.
func (m *DetectionMetrics) Status() DetectionStatus {
	return DetectionStatus{
		Passes:          CounterValue(m.Passes),
		Failures:        CounterValue(m.PassFailures.WithLabelValues("refresh")) + CounterValue(m.PassFailures.WithLabelValues("aborted")),
		CyclesFound:     CounterValue(m.CyclesFound),
		Opportunities:   GaugeValue(m.Opportunities),
		BestProfitPct:   GaugeValue(m.BestProfitPct),
		SnapshotVersion: GaugeValue(m.SnapshotVersion),
	}
}

// CounterValue reads the current value of a counter.
func CounterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// GaugeValue reads the current value of a gauge.
func GaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"vsltap/internal/usecase"
)

type Metrics struct {
	registry       *prometheus.Registry
	FramesDecoded  prometheus.Counter
	RecordsOpened  prometheus.Counter
	RecordsEmitted prometheus.Counter
	RecordsEvicted prometheus.Counter
	ParseDegraded  prometheus.Counter
	StateWarnings  prometheus.Counter
	RecordsInStore prometheus.Gauge
}

func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		FramesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsltap",
			Name:      "frames_decoded_total",
			Help:      "Total VSL frames deframed from the stream",
		}),
		RecordsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsltap",
			Name:      "records_opened_total",
			Help:      "Total transaction records opened at Begin",
		}),
		RecordsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsltap",
			Name:      "records_emitted_total",
			Help:      "Total records emitted in completed session trees",
		}),
		RecordsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsltap",
			Name:      "records_evicted_total",
			Help:      "Total records flushed partial by eviction, expiry or EOF",
		}),
		ParseDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsltap",
			Name:      "parse_degraded_total",
			Help:      "Total payloads that degraded to the unparsed variant",
		}),
		StateWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsltap",
			Name:      "state_warnings_total",
			Help:      "Total state machine warnings",
		}),
		RecordsInStore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vsltap",
			Name:      "records_in_store",
			Help:      "Records currently held across the correlation stores",
		}),
	}
	r.MustRegister(m.FramesDecoded, m.RecordsOpened, m.RecordsEmitted,
		m.RecordsEvicted, m.ParseDegraded, m.StateWarnings, m.RecordsInStore)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Observe folds a pipeline stats snapshot into the counters. The pipeline is
// single-threaded, so snapshots are taken between frames or at EOF; the
// deltas since the previous snapshot are added.
func (m *Metrics) Observe(prev, cur usecase.Stats, inStore int) {
	m.FramesDecoded.Add(float64(cur.FramesDecoded - prev.FramesDecoded))
	m.RecordsOpened.Add(float64(cur.RecordsOpened - prev.RecordsOpened))
	m.RecordsEmitted.Add(float64(cur.RecordsEmitted - prev.RecordsEmitted))
	m.RecordsEvicted.Add(float64(cur.RecordsEvicted - prev.RecordsEvicted))
	m.ParseDegraded.Add(float64(cur.ParseDegraded - prev.ParseDegraded))
	m.StateWarnings.Add(float64(cur.StateWarnings - prev.StateWarnings))
	m.RecordsInStore.Set(float64(inStore))
}

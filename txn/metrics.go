package txn

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the transaction tracker's metric set (spec.md §6, "Metric
// entity"): gauges instantiated with an initial value of zero, plus the two
// rejection counters used to satisfy property P7.
type Metrics struct {
	allInflight   prometheus.Gauge
	writeInflight prometheus.Gauge
	alterInflight prometheus.Gauge

	pressureRejections prometheus.Counter
	limitRejections    prometheus.Counter
}

// NewMetrics registers a tablet-scoped metric set against reg. tabletID
// labels every series so a single registry can host every tablet's tracker,
// the way metrics/metric.go hosts one shared prometheus.Registry per
// process.
func NewMetrics(reg prometheus.Registerer, tabletID string) *Metrics {
	labels := prometheus.Labels{"tablet_id": tabletID}
	m := &Metrics{
		allInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "tablet",
			Name:        "all_transactions_inflight",
			Help:        "Number of transactions currently in-flight, including any type.",
			ConstLabels: labels,
		}),
		writeInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "tablet",
			Name:        "write_transactions_inflight",
			Help:        "Number of write transactions currently in-flight.",
			ConstLabels: labels,
		}),
		alterInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "tablet",
			Name:        "alter_schema_transactions_inflight",
			Help:        "Number of alter schema transactions currently in-flight.",
			ConstLabels: labels,
		}),
		pressureRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "tablet",
			Name:        "transaction_memory_pressure_rejections",
			Help:        "Transactions rejected because tracker or ancestor memory usage exceeded a limit.",
			ConstLabels: labels,
		}),
		limitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "tablet",
			Name:        "transaction_memory_limit_rejections",
			Help:        "Transactions rejected because this tablet's own transaction memory limit was reached.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(m.allInflight, m.writeInflight, m.alterInflight,
		m.pressureRejections, m.limitRejections)
	return m
}

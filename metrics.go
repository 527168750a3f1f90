package wlparser

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "wlparser"

// Metrics counts processing outcomes. A nil *Metrics records nothing.
type Metrics struct {
	Folders  *prometheus.CounterVec
	Warnings prometheus.Counter
	Failed   prometheus.Counter
	Records  prometheus.Counter
}

// NewMetrics creates the counters and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Folders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "folders_processed_total",
				Help:      "Workload folders processed, by dataset shape.",
			},
			[]string{"shape"},
		),
		Warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "warnings_total",
			Help:      "Warnings attached to folder results.",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "folders_failed_total",
			Help:      "Workload folders that produced no record.",
		}),
		Records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_extracted_total",
			Help:      "Metric records merged into workload records.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Folders, m.Warnings, m.Failed, m.Records} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(res FolderResult) {
	if m == nil {
		return
	}
	m.Folders.WithLabelValues(res.Shape.String()).Inc()
	m.Warnings.Add(float64(len(res.Warnings)))
	if res.Failed {
		m.Failed.Inc()
	}
	m.Records.Add(float64(res.Record.Len()))
}

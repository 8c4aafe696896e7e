package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the service metrics on a private registry so tests can
// build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	Ticks          prometheus.Counter
	HistorySamples prometheus.Counter
	Saves          *prometheus.CounterVec
	SaveDuration   prometheus.Histogram
	Notifications  *prometheus.CounterVec
	Alerts         *prometheus.CounterVec
	Monitoring     prometheus.Gauge
}

func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Simulator ticks applied to the live snapshot",
		}),
		HistorySamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_samples_total",
			Help:      "Samples appended to the trend buffer",
		}),
		Saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "Snapshot saves by trigger and result",
		}, []string{"trigger", "result"}),
		SaveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "save_duration_seconds",
			Help:      "Time spent persisting a snapshot",
			Buckets:   prometheus.DefBuckets,
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications sent to the display layer",
		}, []string{"kind"}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Emergency alerts by delivery result",
		}, []string{"result"}),
		Monitoring: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitoring",
			Help:      "1 while the simulator is running",
		}),
	}
	c.registry.MustRegister(
		c.Ticks,
		c.HistorySamples,
		c.Saves,
		c.SaveDuration,
		c.Notifications,
		c.Alerts,
		c.Monitoring,
		collectors.NewGoCollector(),
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

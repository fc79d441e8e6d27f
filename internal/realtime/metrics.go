package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	droppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_dropped_total",
		Help: "Snapshots discarded because a subscriber buffer was full.",
	})

	subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_subscriptions",
		Help: "Current number of open realtime subscriptions.",
	})

	publishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_published_total",
		Help: "Snapshots published by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(droppedTotal, subscribers, publishedTotal)
}

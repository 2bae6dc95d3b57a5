package docker

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the launcher's Prometheus collectors.
type Metrics struct {
	Launches      *prometheus.CounterVec
	Exits         *prometheus.CounterVec
	Restarts      *prometheus.CounterVec
	BuildDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Launches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quyca",
			Name:      "launches_total",
			Help:      "Profile launches by result.",
		}, []string{"profile", "result"}),
		Exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quyca",
			Name:      "container_exits_total",
			Help:      "Container process exits by outcome.",
		}, []string{"profile", "outcome"}),
		Restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quyca",
			Name:      "container_restarts_total",
			Help:      "Restarts performed by the supervisor under the restart policy.",
		}, []string{"profile"}),
		BuildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quyca",
			Name:      "image_build_duration_seconds",
			Help:      "Image build wall time.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"profile", "target"}),
	}
	if reg != nil {
		reg.MustRegister(m.Launches, m.Exits, m.Restarts, m.BuildDuration)
	}
	return m
}

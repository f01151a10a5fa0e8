package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"geoattend/internal/attendance"
	"geoattend/internal/authenticator"
)

// Collectors groups the service's Prometheus metrics.
type Collectors struct {
	Transitions *prometheus.CounterVec
	Outcomes    *prometheus.CounterVec
	Ceremonies  *prometheus.CounterVec
	Distance    prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "state_transitions_total",
			Help:      "Attendance flow transitions by target state.",
		}, []string{"to"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "outcomes_total",
			Help:      "Recorded attendance outcomes by status.",
		}, []string{"status"}),
		Ceremonies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "ceremonies_total",
			Help:      "Authenticator ceremonies by operation and result.",
		}, []string{"op", "result"}),
		Distance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "attendance",
			Name:      "geo_distance_meters",
			Help:      "Distance between device and class at verification time.",
			Buckets:   []float64{10, 25, 50, 100, 250, 1000, 10000, 100000, 1e6, 1e7},
		}),
	}
	reg.MustRegister(c.Transitions, c.Outcomes, c.Ceremonies, c.Distance)
	return c
}

// ObserveTransition is an attendance.Observer.
func (c *Collectors) ObserveTransition(_, _ string, _, to attendance.State) {
	c.Transitions.WithLabelValues(string(to)).Inc()
}

// ObserveOutcome counts a recorded outcome.
func (c *Collectors) ObserveOutcome(o attendance.Outcome) {
	c.Outcomes.WithLabelValues(string(o.Status)).Inc()
}

// ObserveCeremony is an authenticator.Observer. Only terminal states are counted.
func (c *Collectors) ObserveCeremony(op string, state authenticator.CeremonyState, err error) {
	switch state {
	case authenticator.StateSucceeded:
		c.Ceremonies.WithLabelValues(op, "success").Inc()
	case authenticator.StateFailed:
		c.Ceremonies.WithLabelValues(op, authenticator.KindOf(err).String()).Inc()
	}
}

// ObserveDistance records a computed distance.
func (c *Collectors) ObserveDistance(_ string, meters float64) {
	c.Distance.Observe(meters)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoansSweptOverdue counts loans transitioned to overdue by the sweep.
	LoansSweptOverdue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "library_loans_swept_overdue_total",
		Help: "Number of loans transitioned to overdue by the periodic sweep.",
	})

	// DashboardRefreshes counts dashboard recomputations by result.
	DashboardRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_dashboard_refreshes_total",
		Help: "Number of dashboard recomputations.",
	}, []string{"result"})

	// EventsPublished counts lifecycle events handed to the broker.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_events_published_total",
		Help: "Number of loan lifecycle events published.",
	}, []string{"event_type"})
)

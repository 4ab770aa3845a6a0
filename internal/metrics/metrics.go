// Package metrics exposes the application's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the domain counters registered on a single registry.
type Metrics struct {
	Registry *prometheus.Registry

	MarksTotal      *prometheus.CounterVec
	MarkRejections  *prometheus.CounterVec
	ReportsBuilt    *prometheus.CounterVec
	StudentsCreated prometheus.Counter
}

// New creates and registers the application counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		MarksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attendtrack_marks_total",
			Help: "Attendance records created, by marking method.",
		}, []string{"method"}),
		MarkRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attendtrack_mark_rejections_total",
			Help: "Rejected marking attempts, by reason.",
		}, []string{"reason"}),
		ReportsBuilt: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attendtrack_reports_built_total",
			Help: "Reports materialized, by output format.",
		}, []string{"format"}),
		StudentsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "attendtrack_students_created_total",
			Help: "Students registered, including bulk imports.",
		}),
	}
}

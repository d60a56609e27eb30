package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the attendance write and report paths.
var (
	SessionsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deptportal_attendance_sessions_written_total",
		Help: "Attendance sessions written, labelled by upsert mode.",
	}, []string{"mode"})

	ReportsComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deptportal_attendance_reports_computed_total",
		Help: "Student attendance reports computed from the store.",
	})

	ReportCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deptportal_report_cache_requests_total",
		Help: "Report cache lookups, labelled by hit or miss.",
	}, []string{"result"})
)

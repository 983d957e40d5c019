// Package metrics exposes Prometheus counters for the write path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Commits counts accepted writes by kind.
	Commits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prodboard_commits_total",
		Help: "Accepted record writes",
	}, []string{"kind"})

	// Conflicts counts rejected writes by kind.
	Conflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prodboard_conflicts_total",
		Help: "Writes rejected with a version conflict",
	}, []string{"kind"})

	// LegacyVersionChecks counts writes resolved via whole-record versioning
	// because the client sent no usable field-version snapshot.
	LegacyVersionChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prodboard_legacy_version_checks_total",
		Help: "Writes checked against the whole-record version",
	}, []string{"kind"})

	// InvariantViolations counts proposed fields whose client counter was
	// ahead of the server's.
	InvariantViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prodboard_version_invariant_violations_total",
		Help: "Client field counters ahead of the server",
	}, []string{"kind"})
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// time spent in Acquire, from call to return, successful or not
	// long tails mean heavy contention or an empty candidate pool
	AcquireDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rowlock_acquire_duration_seconds",
			Help:    "time spent in acquire calls",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~33s
		},
	)

	// how Acquire calls ended
	// labels: status (success/timeout/cancelled/error)
	AcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlock_acquire_total",
			Help: "total number of acquire calls by outcome",
		},
		[]string{"status"},
	)

	// single compare-and-swap attempts on a cold candidate
	// labels: outcome (won/conflict/live/absent/error)
	// a high conflict share means many clients chase the same rows
	AttemptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlock_acquire_attempt_total",
			Help: "total number of conditional acquire attempts by outcome",
		},
		[]string{"outcome"},
	)

	// writes through a held handle and creates
	// labels: op (create/update/release/delete), status (ok/conflict/error)
	WriteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlock_write_total",
			Help: "total number of lock writes by operation and outcome",
		},
		[]string{"op", "status"},
	)

	// candidate scans issued by scanners
	// labels: status (ok/error)
	ScanTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlock_scan_total",
			Help: "total number of candidate scans",
		},
		[]string{"status"},
	)

	// size of each candidate batch
	ScanCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rowlock_scan_candidates",
			Help:    "number of acquirable locks returned per scan",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	// server side conditional writes
	// labels: mode (if_absent/if_present), outcome (written/miss/error)
	TablePutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlock_table_put_total",
			Help: "total number of conditional row writes handled by the table server",
		},
		[]string{"mode", "outcome"},
	)

	// raft leader status - 1 if this node is leader, 0 if follower
	// exactly one node in cluster should have this = 1
	RaftIsLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rowlock_raft_is_leader",
			Help: "whether this node is the raft leader (1 = leader, 0 = follower)",
		},
	)

	// raft log index - last index applied to the fsm
	RaftAppliedIndex = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rowlock_raft_applied_index",
			Help: "last raft log index applied to the fsm",
		},
	)

	// rows held by the local replica or store
	TableRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rowlock_table_rows",
			Help: "number of lock rows held by this node",
		},
	)

	// requests served by the http gateway
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlock_http_requests_total",
			Help: "total number of http gateway requests by route and status code",
		},
		[]string{"route", "code"},
	)

	// service uptime - always 1 when running
	Up = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rowlock_up",
			Help: "whether the service is up (always 1 when running)",
		},
	)
)

func init() {
	Up.Set(1)
}

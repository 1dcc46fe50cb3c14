package cluster

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hive_cluster_sync_cycles_total",
		Help: "Anti-entropy sync cycles attempted.",
	})
	syncFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hive_cluster_sync_failures_total",
		Help: "Sync cycles abandoned due to a local storage error.",
	})
	eventsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hive_cluster_events_applied_total",
		Help: "Remote change events applied to the local store.",
	})
	storyMerges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hive_cluster_story_merges_total",
		Help: "Duplicate stories merged by the deduplication pass.",
	})
	roleChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hive_cluster_role_changes_total",
		Help: "Role transitions of this node, labelled by the new role.",
	}, []string{"role"})
	currentTerm = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hive_cluster_term",
		Help: "Highest election term observed by this node.",
	})
)

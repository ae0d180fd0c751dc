package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "litevfs_registry_poll_total",
		Help: "Number of replica status polls.",
	}, []string{"replica", "status"})
	replicaTxID = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "litevfs_registry_replica_txid",
		Help: "Latest observed transaction index of the replica.",
	}, []string{"replica"})
	replicaCommitAge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "litevfs_registry_replica_commit_age_seconds",
		Help: "Age of the replica's latest commit as of its last poll, in seconds.",
	}, []string{"replica"})
)

package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var routedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "litevfs_router_routed_total",
	Help: "Number of operations routed, by target alias and reason.",
}, []string{"target", "reason"})

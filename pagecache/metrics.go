package pagecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "litevfs_pagecache_hits_total",
		Help: "Number of page reads served from cache.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "litevfs_pagecache_misses_total",
		Help: "Number of page reads which required composing from segments.",
	})
	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "litevfs_pagecache_evictions_total",
		Help: "Number of live cache entries evicted under byte-budget pressure.",
	})
	cacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "litevfs_pagecache_bytes",
		Help: "Current byte usage of the page cache.",
	})
)

package stores

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	pb "go.litevfs.dev/core/protocol"
)

var (
	constructors = make(map[string]Constructor)
	stores       = make(map[pb.ReplicaStore]*ActiveStore)
	storesMu     sync.RWMutex
)

// RegisterProviders registers store constructors for different storage schemes.
// This should be called during initialization to register all available store types.
func RegisterProviders(providers map[string]Constructor) {
	storesMu.Lock()
	defer storesMu.Unlock()

	for scheme, constructor := range providers {
		constructors[scheme] = constructor
	}
}

// GetProviders returns a copy of the currently registered store constructors.
// This is useful for tests that need to preserve and restore providers.
func GetProviders() map[string]Constructor {
	storesMu.RLock()
	defer storesMu.RUnlock()

	var copy = make(map[string]Constructor, len(constructors))
	for scheme, constructor := range constructors {
		copy[scheme] = constructor
	}
	return copy
}

// Get returns an ActiveStore for the given ReplicaStore configuration.
// It will attempt to initialize the store if not already cached.
func Get(rs pb.ReplicaStore) (*ActiveStore, error) {
	// Fast path: check if store already exists.
	storesMu.RLock()
	if activeStore, ok := stores[rs]; ok {
		storesMu.RUnlock()
		return activeStore, nil
	}
	storesMu.RUnlock()

	// Slow path: need to initialize.
	storesMu.Lock()
	defer storesMu.Unlock()

	// Double-check after acquiring write lock.
	if activeStore, ok := stores[rs]; ok {
		return activeStore, nil
	}

	var ep = rs.URL()
	constructor, ok := constructors[ep.Scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported replica store scheme: %s", ep.Scheme)
	}

	store, err := constructor(ep)
	if err != nil {
		// Return error but don't cache - will retry on next call.
		return nil, err
	}

	var activeStore = &ActiveStore{
		Key:   rs,
		Store: store,
	}
	activeStore.Mark.Store(true)
	stores[rs] = activeStore

	activeStores.Set(float64(len(stores)))

	return activeStore, nil
}

// Sweep removes any stores that haven't been marked since the last sweep.
// It supports reconfiguration: replicas removed from the config stop marking
// their stores, and the next sweep drops them. Returns the number removed.
func Sweep() int {
	storesMu.Lock()
	defer storesMu.Unlock()

	var removed int
	for rs, activeStore := range stores {
		if !activeStore.Mark.Load() {
			delete(stores, rs)
			removed++
		} else {
			activeStore.Mark.Store(false)
		}
	}
	activeStores.Set(float64(len(stores)))

	return removed
}

var (
	activeStores = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "litevfs_store_active",
		Help: "Number of active replica stores",
	})

	storeOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "litevfs_store_operation_duration_seconds",
		Help:    "Duration of store operations in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
	}, []string{"store", "operation", "status"})

	storeOperationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "litevfs_store_operation_total",
		Help: "Total number of store operations",
	}, []string{"store", "operation", "status"})

	storeListItems = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "litevfs_store_list_items_count",
		Help:    "Number of items returned by list operations",
		Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1 to ~32k items
	}, []string{"store"})
)

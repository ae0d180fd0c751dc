// Package router selects the database a given operation should run against:
// a randomly-chosen healthy replica for ordinary reads, or the authoritative
// primary for writes, schema changes, and reads with no eligible replica.
package router

import (
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	pb "go.litevfs.dev/core/protocol"
)

var timeNow = time.Now

// ReplicaSource serves the replica topology and health snapshots which drive
// routing decisions. It is implemented by registry.Registry.
type ReplicaSource interface {
	// HealthyReplicas returns the replicas which are Healthy as of |now|.
	HealthyReplicas(now time.Time) []pb.Replica
	// Replica returns the configured Replica with |alias|.
	Replica(alias string) (pb.Replica, bool)
	// Primary returns the alias of the authoritative, writable database.
	Primary() string
}

// Operation describes a database operation to be routed.
type Operation struct {
	// SchemaChange marks schema migrations and other DDL, which always run
	// against the primary: replicas are read-only projections and must never
	// be selected for operations which assume write authority.
	SchemaChange bool
	// Replica explicitly addresses a replica by alias, bypassing health
	// based selection. Explicit addressing reaches Lagging and Stale
	// replicas; the caller has opted into whatever lag the replica carries.
	Replica string
}

// Target is a routing decision.
type Target struct {
	// Alias of the selected database.
	Alias string
	// Replica backing the Target. Valid only when Primary is false.
	Replica pb.Replica
	// Primary indicates the authoritative database was selected.
	Primary bool
}

// Router routes operations across a ReplicaSource's replicas.
type Router struct {
	source ReplicaSource

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRouter returns a Router over the ReplicaSource. A non-zero |seed| makes
// replica selection deterministic.
func NewRouter(source ReplicaSource, seed int64) *Router {
	if seed == 0 {
		seed = timeNow().UnixNano()
	}
	return &Router{source: source, rnd: rand.New(rand.NewSource(seed))}
}

// RouteRead selects the target of a read operation. Ordinary reads go to a
// random replica which is currently Healthy; when none is, the read falls
// back to the primary rather than failing or reaching for a lagging replica.
func (r *Router) RouteRead(op Operation) (Target, error) {
	if op.SchemaChange {
		return r.primary("schema_change"), nil
	}
	if op.Replica != "" {
		var replica, ok = r.source.Replica(op.Replica)
		if !ok {
			return Target{}, pb.NewValidationError("Replica: no replica with alias %q", op.Replica)
		}
		routedTotal.WithLabelValues(op.Replica, "explicit").Inc()
		return Target{Alias: op.Replica, Replica: replica}, nil
	}

	var healthy = r.source.HealthyReplicas(timeNow())
	if len(healthy) == 0 {
		log.Debug("no healthy replica; read falls back to primary")
		return r.primary("fallback"), nil
	}

	r.mu.Lock()
	var pick = healthy[r.rnd.Intn(len(healthy))]
	r.mu.Unlock()

	routedTotal.WithLabelValues(pick.Alias, "read").Inc()
	return Target{Alias: pick.Alias, Replica: pick}, nil
}

// RouteWrite selects the target of a write operation: always the primary.
func (r *Router) RouteWrite() Target { return r.primary("write") }

func (r *Router) primary(reason string) Target {
	var alias = r.source.Primary()
	routedTotal.WithLabelValues(alias, reason).Inc()
	return Target{Alias: alias, Primary: true}
}

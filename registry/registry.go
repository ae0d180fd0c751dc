// Package registry tracks the replication status of configured replicas. A
// Registry runs one poller per replica which periodically lists the replica's
// transaction log, snapshots its latest index and lag, and invalidates live
// cache entries when the index advances. Routing and session components read
// the Registry's status snapshots without touching storage.
package registry

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.litevfs.dev/core/logreader"
	"go.litevfs.dev/core/pagecache"
	pb "go.litevfs.dev/core/protocol"
	"go.litevfs.dev/core/task"
)

var timeNow = time.Now

// Registry polls configured replicas and serves status snapshots.
type Registry struct {
	cfg    Config
	reader *logreader.Reader
	cache  *pagecache.Cache // May be nil.

	mu     sync.RWMutex
	status map[string]pb.ReplicaStatus
}

// NewRegistry returns a Registry over the validated Config. The Cache, if
// non-nil, has a replica's live entries invalidated whenever its transaction
// index is observed to advance.
func NewRegistry(cfg Config, reader *logreader.Reader, cache *pagecache.Cache) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var status = make(map[string]pb.ReplicaStatus, len(cfg.Replicas))
	for alias, store := range cfg.Replicas {
		status[alias] = pb.ReplicaStatus{Alias: alias, Store: store}
	}
	return &Registry{cfg: cfg, reader: reader, cache: cache, status: status}, nil
}

// QueueTasks queues a polling loop for each configured replica. Loops poll
// once immediately and then at the configured interval with +/-20% jitter,
// and exit cleanly on Group cancellation.
func (r *Registry) QueueTasks(tasks *task.Group) {
	for alias := range r.cfg.Replicas {
		var replica = pb.Replica{Alias: alias, Store: r.cfg.Replicas[alias]}

		tasks.Queue("pollReplica("+alias+")", func() error {
			r.pollLoop(tasks.Context(), replica)
			return nil
		})
	}
}

func (r *Registry) pollLoop(ctx context.Context, replica pb.Replica) {
	var rnd = rand.New(rand.NewSource(timeNow().UnixNano()))

	for {
		r.pollOne(ctx, replica)

		// Jitter de-synchronizes pollers which started together, spreading
		// listing load across the interval.
		var base = time.Duration(r.cfg.PollInterval)
		var wait = base*8/10 + time.Duration(rnd.Int63n(int64(base)*4/10+1))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Poll polls every configured replica once, synchronously.
func (r *Registry) Poll(ctx context.Context) {
	for alias, store := range r.cfg.Replicas {
		r.pollOne(ctx, pb.Replica{Alias: alias, Store: store})
	}
}

func (r *Registry) pollOne(ctx context.Context, replica pb.Replica) {
	var infos, err = r.reader.ListSegments(ctx, replica)
	if err == nil && len(infos) == 0 {
		err = pb.ErrNoSegments
	}

	if err != nil {
		r.mu.Lock()
		var s = r.status[replica.Alias]
		s.PollFailures++
		r.status[replica.Alias] = s
		r.mu.Unlock()

		pollTotal.WithLabelValues(replica.Alias, "error").Inc()
		log.WithFields(log.Fields{"replica": replica.Alias, "err": err}).
			Warn("failed to poll replica status")
		return
	}

	var latest = infos[len(infos)-1]
	var now = timeNow()

	r.mu.Lock()
	var prev = r.status[replica.Alias]
	var advanced = latest.TxID > prev.TxID
	r.status[replica.Alias] = pb.ReplicaStatus{
		Alias:      replica.Alias,
		Store:      replica.Store,
		TxID:       latest.TxID,
		CommitTime: latest.CommitTime,
		LastPoll:   now,
	}
	r.mu.Unlock()

	pollTotal.WithLabelValues(replica.Alias, "ok").Inc()
	replicaTxID.WithLabelValues(replica.Alias).Set(float64(latest.TxID))
	replicaCommitAge.WithLabelValues(replica.Alias).Set(now.Sub(latest.CommitTime).Seconds())

	if advanced && r.cache != nil {
		r.cache.InvalidateReplica(replica.Alias)
	}
	if advanced {
		log.WithFields(log.Fields{"replica": replica.Alias, "txid": latest.TxID}).
			Debug("replica advanced")
	}
}

// Status returns a snapshot of every replica's status, ordered by alias.
func (r *Registry) Status() []pb.ReplicaStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out = make([]pb.ReplicaStatus, 0, len(r.status))
	for _, s := range r.status {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// StatusOf returns the status snapshot of the replica with |alias|.
func (r *Registry) StatusOf(alias string) (pb.ReplicaStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s, ok = r.status[alias]
	return s, ok
}

// Replica returns the configured Replica with |alias|.
func (r *Registry) Replica(alias string) (pb.Replica, bool) {
	var store, ok = r.cfg.Replicas[alias]
	return pb.Replica{Alias: alias, Store: store}, ok
}

// Primary returns the alias of the authoritative, writable database.
func (r *Registry) Primary() string { return r.cfg.Primary }

// Thresholds returns the configured health classification Thresholds.
func (r *Registry) Thresholds() pb.Thresholds { return r.cfg.Thresholds() }

// HealthyReplicas returns the replicas which are Healthy as of |now|,
// ordered by alias.
func (r *Registry) HealthyReplicas(now time.Time) []pb.Replica {
	var thresholds = r.cfg.Thresholds()

	r.mu.RLock()
	var out []pb.Replica
	for alias, s := range r.status {
		if s.Health(now, thresholds) == pb.Healthy {
			out = append(out, pb.Replica{Alias: alias, Store: s.Store})
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// LatestTxID implements pagecache.IndexSource from polled status, avoiding a
// storage listing per live read. A replica which has not yet been polled
// falls through to an authoritative listing.
func (r *Registry) LatestTxID(ctx context.Context, replica pb.Replica) (pb.TxID, error) {
	r.mu.RLock()
	var s, ok = r.status[replica.Alias]
	r.mu.RUnlock()

	if ok && s.TxID != 0 {
		return s.TxID, nil
	}
	return r.reader.LatestTxID(ctx, replica)
}

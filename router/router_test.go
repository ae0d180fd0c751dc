package router

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.litevfs.dev/core/logreader"
	pb "go.litevfs.dev/core/protocol"
	"go.litevfs.dev/core/registry"
	"go.litevfs.dev/core/replicatest"
)

// statusSource serves fixed status snapshots, classifying health against the
// default thresholds as a registry would.
type statusSource struct {
	status  map[string]pb.ReplicaStatus
	primary string
}

func (s *statusSource) HealthyReplicas(now time.Time) []pb.Replica {
	var out []pb.Replica
	for _, st := range s.status {
		if st.Health(now, pb.DefaultThresholds()) == pb.Healthy {
			out = append(out, pb.Replica{Alias: st.Alias, Store: st.Store})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

func (s *statusSource) Replica(alias string) (pb.Replica, bool) {
	var st, ok = s.status[alias]
	return pb.Replica{Alias: alias, Store: st.Store}, ok
}

func (s *statusSource) Primary() string { return s.primary }

// newRegistry builds a polled two-replica registry. Polls have just happened,
// so both replicas are healthy as of the present.
func newRegistry(t *testing.T) *registry.Registry {
	var near = replicatest.NewFixture(t, "near")
	var far = replicatest.NewFixture(t, "far")

	near.Commit(t, 1, 1, map[uint32]byte{1: 'a'})
	far.Commit(t, 1, 1, map[uint32]byte{1: 'a'})

	var cfg = registry.DefaultConfig()
	cfg.Replicas = map[string]pb.ReplicaStore{
		"near": near.Replica.Store,
		"far":  far.Replica.Store,
	}
	var reg, err = registry.NewRegistry(cfg, logreader.NewReader(0), nil)
	require.NoError(t, err)
	reg.Poll(context.Background())

	return reg
}

func stubNow(t *testing.T, now time.Time) {
	var restore = timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = restore })
}

func TestReadsPreferHealthyReplica(t *testing.T) {
	var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// "near" was polled 10s ago and "far" 120s ago. Under the default 60s
	// threshold every read lands on near.
	var source = &statusSource{
		primary: "default",
		status: map[string]pb.ReplicaStatus{
			"near": {Alias: "near", TxID: 2, LastPoll: now.Add(-10 * time.Second)},
			"far":  {Alias: "far", TxID: 1, LastPoll: now.Add(-120 * time.Second)},
		},
	}
	var r = NewRouter(source, 42)
	stubNow(t, now)

	for i := 0; i != 50; i++ {
		var target, err = r.RouteRead(Operation{})
		require.NoError(t, err)
		require.False(t, target.Primary)
		require.Equal(t, "near", target.Alias)
	}
}

func TestReadsSpreadAcrossHealthyReplicas(t *testing.T) {
	var reg = newRegistry(t)
	var r = NewRouter(reg, 42)

	var seen = map[string]int{}
	for i := 0; i != 200; i++ {
		var target, err = r.RouteRead(Operation{})
		require.NoError(t, err)
		seen[target.Alias]++
	}
	require.Positive(t, seen["near"])
	require.Positive(t, seen["far"])
}

func TestReadsFallBackToPrimary(t *testing.T) {
	var reg = newRegistry(t)
	var r = NewRouter(reg, 42)

	// Long after the last poll no replica is healthy; reads fall back.
	stubNow(t, time.Now().Add(24*time.Hour))

	var target, err = r.RouteRead(Operation{})
	require.NoError(t, err)
	require.True(t, target.Primary)
	require.Equal(t, "default", target.Alias)
}

func TestExplicitReplicaBypassesHealth(t *testing.T) {
	var reg = newRegistry(t)
	var r = NewRouter(reg, 42)

	// Explicit addressing reaches a stale replica.
	stubNow(t, time.Now().Add(24*time.Hour))

	var target, err = r.RouteRead(Operation{Replica: "far"})
	require.NoError(t, err)
	require.False(t, target.Primary)
	require.Equal(t, "far", target.Alias)

	_, err = r.RouteRead(Operation{Replica: "nonesuch"})
	require.EqualError(t, err, `Replica: no replica with alias "nonesuch"`)
}

func TestWritesAndSchemaChangesGoToPrimary(t *testing.T) {
	var reg = newRegistry(t)
	var r = NewRouter(reg, 42)

	// Both replicas healthy; writes and DDL still route to the primary.
	require.True(t, r.RouteWrite().Primary)

	var target, err = r.RouteRead(Operation{SchemaChange: true})
	require.NoError(t, err)
	require.True(t, target.Primary)
	require.Equal(t, "default", target.Alias)
}

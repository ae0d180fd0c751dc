package pagecache

import (
	"context"
	"io"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.litevfs.dev/core/logreader"
	pb "go.litevfs.dev/core/protocol"
	"go.litevfs.dev/core/replicatest"
	"go.litevfs.dev/core/stores"
)

// populate publishes a small history: five transactions over a four-page
// database, with page 3 rewritten at TxID 2 and again at TxID 4.
func populate(t *testing.T, f *replicatest.Fixture) {
	f.Commit(t, 1, 4, map[uint32]byte{1: 'a', 2: 'a', 3: 'a', 4: 'a'})
	f.Commit(t, 2, 4, map[uint32]byte{3: 'b'})
	f.Commit(t, 3, 4, map[uint32]byte{1: 'c'})
	f.Commit(t, 4, 4, map[uint32]byte{3: 'd'})
	f.Commit(t, 5, 4, map[uint32]byte{2: 'e'})
}

func TestComposeAcrossSegments(t *testing.T) {
	var f = replicatest.NewFixture(t, "compose")
	var cache = NewCache(logreader.NewReader(0), nil, 0)
	var ctx = context.Background()
	populate(t, f)

	// A live read of page 3 reflects its most recent rewrite, at TxID 4.
	var data, err = cache.GetPage(ctx, f.Replica, 3)
	require.NoError(t, err)
	require.Equal(t, f.Page(3, 'd'), data)

	// Page 4 was last written by the genesis segment.
	data, err = cache.GetPage(ctx, f.Replica, 4)
	require.NoError(t, err)
	require.Equal(t, f.Page(4, 'a'), data)

	// Historical reads of page 3 at each index step through its rewrites.
	for _, tc := range []struct {
		txid    pb.TxID
		version byte
	}{
		{1, 'a'}, {2, 'b'}, {3, 'b'}, {4, 'd'}, {5, 'd'},
	} {
		data, err = cache.GetPageAt(ctx, f.Replica, 3, tc.txid)
		require.NoError(t, err)
		require.Equal(t, f.Page(3, tc.version), data, "at TxID %d", tc.txid)
	}
}

func TestPageBeyondDatabase(t *testing.T) {
	var f = replicatest.NewFixture(t, "beyond")
	var cache = NewCache(logreader.NewReader(0), nil, 0)
	populate(t, f)

	var _, err = cache.GetPage(context.Background(), f.Replica, 99)
	var notFound *pb.PageNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, uint32(99), notFound.PageNo)
}

func TestTruncatedHistory(t *testing.T) {
	var f = replicatest.NewFixture(t, "truncated")
	var cache = NewCache(logreader.NewReader(0), nil, 0)
	var ctx = context.Background()
	populate(t, f)
	f.Remove(t, 1)
	f.Remove(t, 2)

	// An index preceding the oldest retained segment cannot be served.
	var _, err = cache.GetPageAt(ctx, f.Replica, 3, 2)
	var expired *pb.ExpiredIndexError
	require.ErrorAs(t, err, &expired)
	require.Equal(t, pb.TxID(2), expired.Requested)
	require.Equal(t, pb.TxID(3), expired.Oldest)

	// Page 4's only post-image was truncated away with the genesis segment.
	_, err = cache.GetPage(ctx, f.Replica, 4)
	require.ErrorAs(t, err, &expired)

	// Page 3 remains composable: TxID 4 rewrote it within the retained log.
	data, err := cache.GetPage(ctx, f.Replica, 3)
	require.NoError(t, err)
	require.Equal(t, f.Page(3, 'd'), data)
}

func TestLiveReadsCacheAndInvalidate(t *testing.T) {
	var f = replicatest.NewFixture(t, "live")
	var cache = NewCache(logreader.NewReader(0), nil, 0)
	var ctx = context.Background()

	f.Commit(t, 1, 2, map[uint32]byte{1: 'a', 2: 'a'})

	var data, err = cache.GetPage(ctx, f.Replica, 1)
	require.NoError(t, err)
	require.Equal(t, f.Page(1, 'a'), data)
	require.Equal(t, 1, cache.PartitionLen(f.Replica.Alias, 0))

	// A new transaction rewrites page 1; invalidation drops the stale entry
	// and the next read composes at the advanced index.
	f.Commit(t, 2, 2, map[uint32]byte{1: 'b'})

	cache.InvalidateReplica(f.Replica.Alias)
	require.Equal(t, 0, cache.PartitionLen(f.Replica.Alias, 0))

	data, err = cache.GetPage(ctx, f.Replica, 1)
	require.NoError(t, err)
	require.Equal(t, f.Page(1, 'b'), data)
}

func TestPinnedPartitionIsolation(t *testing.T) {
	var f = replicatest.NewFixture(t, "pinned")
	var cache = NewCache(logreader.NewReader(0), nil, 0)
	var ctx = context.Background()
	populate(t, f)

	cache.Pin(f.Replica.Alias, 2)
	var data, err = cache.GetPageAt(ctx, f.Replica, 3, 2)
	require.NoError(t, err)
	require.Equal(t, f.Page(3, 'b'), data)
	require.Equal(t, 1, cache.PartitionLen(f.Replica.Alias, 2))

	// Live invalidation and further commits leave the pinned view untouched.
	cache.InvalidateReplica(f.Replica.Alias)
	f.Commit(t, 6, 4, map[uint32]byte{3: 'f'})

	data, err = cache.GetPageAt(ctx, f.Replica, 3, 2)
	require.NoError(t, err)
	require.Equal(t, f.Page(3, 'b'), data)
	require.Equal(t, 1, cache.PartitionLen(f.Replica.Alias, 2))

	// Meanwhile live reads observe the new transaction.
	data, err = cache.GetPage(ctx, f.Replica, 3)
	require.NoError(t, err)
	require.Equal(t, f.Page(3, 'f'), data)

	cache.Unpin(f.Replica.Alias, 2)
	require.Equal(t, 0, cache.PartitionLen(f.Replica.Alias, 2))
}

func TestPinsAreRefCounted(t *testing.T) {
	var f = replicatest.NewFixture(t, "refcount")
	var cache = NewCache(logreader.NewReader(0), nil, 0)
	var ctx = context.Background()
	populate(t, f)

	cache.Pin(f.Replica.Alias, 3)
	cache.Pin(f.Replica.Alias, 3)

	var _, err = cache.GetPageAt(ctx, f.Replica, 1, 3)
	require.NoError(t, err)

	cache.Unpin(f.Replica.Alias, 3)
	require.Equal(t, 1, cache.PartitionLen(f.Replica.Alias, 3))
	cache.Unpin(f.Replica.Alias, 3)
	require.Equal(t, 0, cache.PartitionLen(f.Replica.Alias, 3))
}

func TestBudgetEvictsLiveOnly(t *testing.T) {
	var f = replicatest.NewFixture(t, "budget")
	// Budget of three pages.
	var cache = NewCache(logreader.NewReader(0), nil, int64(3*f.PageSize))
	var ctx = context.Background()
	populate(t, f)

	for pageNo := uint32(1); pageNo <= 4; pageNo++ {
		var _, err = cache.GetPage(ctx, f.Replica, pageNo)
		require.NoError(t, err)
	}
	require.Equal(t, 3, cache.PartitionLen(f.Replica.Alias, 0))
	require.Equal(t, int64(3*f.PageSize), cache.Usage())

	// Pinned entries are exempt: filling a pinned partition may exceed the
	// budget, shedding live entries but never pinned ones.
	cache.Pin(f.Replica.Alias, 2)
	for pageNo := uint32(1); pageNo <= 4; pageNo++ {
		var _, err = cache.GetPageAt(ctx, f.Replica, pageNo, 2)
		require.NoError(t, err)
	}
	require.Equal(t, 4, cache.PartitionLen(f.Replica.Alias, 2))
	require.Equal(t, 0, cache.PartitionLen(f.Replica.Alias, 0))

	cache.Unpin(f.Replica.Alias, 2)
	require.Equal(t, int64(0), cache.Usage())
}

func TestConcurrentMissesCollapse(t *testing.T) {
	var gate = make(chan struct{})
	var getCalls int32

	var backing = stores.NewMemoryStore()
	var view, err = backing.Constructor(&url.URL{Scheme: "memory", Host: "collapse-host", Path: "/db/"})
	require.NoError(t, err)

	replicatest.InjectStore("collapse-host", &stores.CallbackStore{
		GetFunc: func(ctx context.Context, path string) (io.ReadCloser, error) {
			atomic.AddInt32(&getCalls, 1)
			<-gate
			return view.Get(ctx, path)
		},
		PutFunc:        view.Put,
		ListFunc:       view.List,
		RemoveFunc:     view.Remove,
		IsNotFoundFunc: view.IsNotFound,
	})

	var f = replicatest.NewFixtureAt(t, "collapse", "collapse-host")
	var cache = NewCache(logreader.NewReader(0), nil, 0)
	var ctx = context.Background()

	f.Commit(t, 1, 2, map[uint32]byte{1: 'a', 2: 'a'})

	var wg sync.WaitGroup
	var results = make([][]byte, 16)
	var errs = make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.GetPage(ctx, f.Replica, 1)
		}(i)
	}

	// Let all readers miss and join the in-flight composition, then release it.
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&getCalls))
	for i, data := range results {
		require.NoError(t, errs[i])
		require.Equal(t, f.Page(1, 'a'), data)
	}
}

func TestCancelledWaiterReturnsPromptly(t *testing.T) {
	var gate = make(chan struct{})
	var backing = stores.NewMemoryStore()
	var view, err = backing.Constructor(&url.URL{Scheme: "memory", Host: "waiter-host", Path: "/db/"})
	require.NoError(t, err)

	replicatest.InjectStore("waiter-host", &stores.CallbackStore{
		GetFunc: func(ctx context.Context, path string) (io.ReadCloser, error) {
			<-gate
			return view.Get(ctx, path)
		},
		PutFunc:        view.Put,
		ListFunc:       view.List,
		IsNotFoundFunc: view.IsNotFound,
	})

	var f = replicatest.NewFixtureAt(t, "waiter", "waiter-host")
	var cache = NewCache(logreader.NewReader(0), nil, 0)
	f.Commit(t, 1, 1, map[uint32]byte{1: 'a'})

	var ctx, cancel = context.WithCancel(context.Background())
	var done = make(chan error, 1)
	go func() {
		var _, err = cache.GetPage(ctx, f.Replica, 1)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled waiter did not return")
	}
	close(gate)
}

func TestUnpinDuringInFlightFetch(t *testing.T) {
	var f = replicatest.NewFixture(t, "unpin-race")
	var cache = NewCache(logreader.NewReader(0), nil, 0)
	var ctx = context.Background()
	populate(t, f)

	// An insert for a partition unpinned mid-fetch is discarded rather than
	// leaking an unevictable entry.
	cache.Pin(f.Replica.Alias, 2)
	cache.Unpin(f.Replica.Alias, 2)
	var _, err = cache.GetPageAt(ctx, f.Replica, 3, 2)
	require.NoError(t, err)
	require.Equal(t, 0, cache.PartitionLen(f.Replica.Alias, 2))
}

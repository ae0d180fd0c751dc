package stores

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	pb "go.litevfs.dev/core/protocol"
)

// clearStores is a test helper to reset the global state.
func clearStores() {
	storesMu.Lock()
	defer storesMu.Unlock()
	constructors = make(map[string]Constructor)
	stores = make(map[pb.ReplicaStore]*ActiveStore)
}

func TestRegisterProviders(t *testing.T) {
	clearStores()

	var providers = map[string]Constructor{
		"mock": func(u *url.URL) (Store, error) {
			return &CallbackStore{ProviderFunc: func() string { return "mock" }}, nil
		},
		"error": func(u *url.URL) (Store, error) {
			return nil, errors.New("constructor error")
		},
	}

	RegisterProviders(providers)

	storesMu.RLock()
	require.Equal(t, 2, len(constructors))
	require.NotNil(t, constructors["mock"])
	require.NotNil(t, constructors["error"])
	storesMu.RUnlock()
}

func TestGetCachesConstructedStores(t *testing.T) {
	clearStores()

	RegisterProviders(map[string]Constructor{
		"memory": NewMemoryStore().Constructor,
	})

	var s1, err = Get(pb.ReplicaStore("memory://bucket/one/"))
	require.NoError(t, err)
	require.Equal(t, "memory", s1.Provider())

	// Same ReplicaStore returns the cached instance.
	s2, err := Get(pb.ReplicaStore("memory://bucket/one/"))
	require.NoError(t, err)
	require.Same(t, s1, s2)

	// A different ReplicaStore constructs a new instance.
	s3, err := Get(pb.ReplicaStore("memory://bucket/two/"))
	require.NoError(t, err)
	require.NotSame(t, s1, s3)

	// Unknown scheme fails and is not cached.
	_, err = Get(pb.ReplicaStore("file:///nope/"))
	require.EqualError(t, err, "unsupported replica store scheme: file")
}

func TestSweepRemovesUnmarkedStores(t *testing.T) {
	clearStores()

	RegisterProviders(map[string]Constructor{
		"memory": NewMemoryStore().Constructor,
	})

	var rs = pb.ReplicaStore("memory://bucket/db/")
	var s, err = Get(rs)
	require.NoError(t, err)

	// First sweep clears the mark; second sweep removes.
	require.Equal(t, 0, Sweep())
	require.Equal(t, 1, Sweep())

	// A marked store survives sweeps.
	s, err = Get(rs)
	require.NoError(t, err)
	require.Equal(t, 0, Sweep())
	s.Mark.Store(true)
	require.Equal(t, 0, Sweep())
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	clearStores()

	var ms = NewMemoryStore()
	RegisterProviders(map[string]Constructor{"memory": ms.Constructor})

	var s, err = Get(pb.ReplicaStore("memory://bucket/db/"))
	require.NoError(t, err)

	var ctx = context.Background()
	var content = "segment-bytes"
	require.NoError(t, s.Put(ctx, "ltx/0001", strings.NewReader(content), int64(len(content)), ""))

	exists, err := s.Exists(ctx, "ltx/0001")
	require.NoError(t, err)
	require.True(t, exists)

	rc, err := s.Get(ctx, "ltx/0001")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, content, string(b))

	// Get of a missing path is detectable as not-found.
	_, err = s.Get(ctx, "ltx/0002")
	require.Error(t, err)
	require.True(t, s.IsNotFound(err))
	require.False(t, s.IsNotFound(errors.New("other")))

	// Listing is relative to the prefix and sorted.
	require.NoError(t, s.Put(ctx, "ltx/0002", strings.NewReader(content), int64(len(content)), ""))
	var listed []string
	require.NoError(t, s.List(ctx, "ltx/", func(path string, modTime time.Time) error {
		listed = append(listed, path)
		require.False(t, modTime.IsZero())
		return nil
	}))
	require.Equal(t, []string{"0001", "0002"}, listed)

	// Distinct replica URLs of one MemoryStore are isolated.
	other, err := Get(pb.ReplicaStore("memory://bucket/other/"))
	require.NoError(t, err)
	exists, err = other.Exists(ctx, "ltx/0001")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, s.Remove(ctx, "ltx/0001"))
	exists, err = s.Exists(ctx, "ltx/0001")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestActiveStoreInitError(t *testing.T) {
	var initErr = errors.New("bad credentials")
	var s = NewActiveStore(pb.ReplicaStore("memory://bucket/db/"), nil, initErr)

	var ctx = context.Background()
	var _, err = s.Get(ctx, "ltx/0001")
	require.Equal(t, initErr, err)
	require.Equal(t, initErr, s.List(ctx, "ltx/", nil))
	require.Equal(t, "uninitialized", s.Provider())
}

package vfs

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"go.litevfs.dev/core/logreader"
	"go.litevfs.dev/core/pagecache"
	pb "go.litevfs.dev/core/protocol"
	"go.litevfs.dev/core/replicatest"
)

func newFileSystem() *FileSystem {
	var reader = logreader.NewReader(0)
	return NewFileSystem(reader, pagecache.NewCache(reader, nil, 0), nil)
}

func TestLiveHandleReads(t *testing.T) {
	var f = replicatest.NewFixture(t, "live")
	var fs = newFileSystem()
	var ctx = context.Background()

	f.Commit(t, 1, 3, map[uint32]byte{1: 'a', 2: 'a', 3: 'a'})
	f.Commit(t, 2, 3, map[uint32]byte{2: 'b'})

	var h, err = fs.Open(f.Replica)
	require.NoError(t, err)
	defer h.Close()

	count, err := h.PageCount(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(3), count)

	size, err := h.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3*f.PageSize), size)

	data, err := h.ReadPage(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, f.Page(2, 'b'), data)

	// The handle tracks replication: a grown database is visible to
	// PageCount without reopening.
	f.Commit(t, 3, 4, map[uint32]byte{4: 'c'})
	count, err = h.PageCount(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(4), count)
}

func TestReadAtSpansPages(t *testing.T) {
	var f = replicatest.NewFixture(t, "spans")
	var fs = newFileSystem()
	var ctx = context.Background()

	f.Commit(t, 1, 3, map[uint32]byte{1: 'a', 2: 'b', 3: 'c'})

	var h, err = fs.Open(f.Replica)
	require.NoError(t, err)
	defer h.Close()

	// Read a range straddling the page 1 / page 2 boundary.
	var p = make([]byte, f.PageSize)
	n, err := h.ReadAt(ctx, p, int64(f.PageSize)/2)
	require.NoError(t, err)
	require.Equal(t, int(f.PageSize), n)
	require.Equal(t, f.Page(1, 'a')[f.PageSize/2:], p[:f.PageSize/2])
	require.Equal(t, f.Page(2, 'b')[:f.PageSize/2], p[f.PageSize/2:])

	// A read crossing the end of the database is short, with io.EOF.
	p = make([]byte, 2*f.PageSize)
	n, err = h.ReadAt(ctx, p, int64(2*f.PageSize))
	require.Equal(t, io.EOF, err)
	require.Equal(t, int(f.PageSize), n)
	require.Equal(t, f.Page(3, 'c'), p[:n])

	// Entirely past the end.
	n, err = h.ReadAt(ctx, p, int64(3*f.PageSize))
	require.Equal(t, io.EOF, err)
	require.Zero(t, n)
}

func TestPinnedHandleIsStable(t *testing.T) {
	var f = replicatest.NewFixture(t, "pinned")
	var fs = newFileSystem()
	var ctx = context.Background()

	f.Commit(t, 1, 2, map[uint32]byte{1: 'a', 2: 'a'})
	f.Commit(t, 2, 2, map[uint32]byte{1: 'b'})

	var h, err = fs.OpenAt(f.Replica, 1)
	require.NoError(t, err)
	require.Equal(t, pb.TxID(1), h.Pinned())

	// Replication continues; the pinned view does not move.
	f.Commit(t, 3, 3, map[uint32]byte{1: 'c', 3: 'c'})

	data, err := h.ReadPage(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, f.Page(1, 'a'), data)

	count, err := h.PageCount(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(2), count)

	// Close releases the pinned cache partition.
	require.NoError(t, h.Close())
	require.Equal(t, 0, fs.cache.PartitionLen(f.Replica.Alias, 1))
}

func TestHandleIsReadOnly(t *testing.T) {
	var f = replicatest.NewFixture(t, "readonly")
	var fs = newFileSystem()

	f.Commit(t, 1, 1, map[uint32]byte{1: 'a'})

	var h, err = fs.Open(f.Replica)
	require.NoError(t, err)
	defer h.Close()

	var readOnly *pb.ReadOnlyError
	_, err = h.WriteAt([]byte("x"), 0)
	require.ErrorAs(t, err, &readOnly)
	require.ErrorAs(t, h.Truncate(0), &readOnly)

	require.NoError(t, h.Lock())
	require.NoError(t, h.Unlock())
	require.NoError(t, h.Sync())
}

func TestClosedHandleFails(t *testing.T) {
	var f = replicatest.NewFixture(t, "closed")
	var fs = newFileSystem()
	var ctx = context.Background()

	f.Commit(t, 1, 1, map[uint32]byte{1: 'a'})

	var h, err = fs.Open(f.Replica)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	var closed *pb.ClosedHandleError
	_, err = h.ReadPage(ctx, 1)
	require.ErrorAs(t, err, &closed)
	_, err = h.PageCount(ctx)
	require.ErrorAs(t, err, &closed)
	_, err = h.ReadAt(ctx, make([]byte, 1), 0)
	require.ErrorAs(t, err, &closed)
	require.ErrorAs(t, h.Close(), &closed)
}

func TestOpenValidation(t *testing.T) {
	var fs = newFileSystem()

	var _, err = fs.Open(pb.Replica{Alias: "bad", Store: "not-a-url"})
	require.Error(t, err)

	_, err = fs.OpenAt(pb.Replica{Alias: "ok", Store: "memory://host/db/"}, 0)
	require.Error(t, err)
}

func TestRegistration(t *testing.T) {
	defer Reset()
	Reset()

	var fs1, fs2 = newFileSystem(), newFileSystem()

	var _, ok = Registered()
	require.False(t, ok)

	require.NoError(t, Register(fs1))
	require.NoError(t, Register(fs1)) // Idempotent for the same FileSystem.
	require.Error(t, Register(fs2))

	got, ok := Registered()
	require.True(t, ok)
	require.Equal(t, fs1, got)

	Reset()
	require.NoError(t, Register(fs2))
}

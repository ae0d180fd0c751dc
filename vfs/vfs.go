// Package vfs exposes replica databases as read-only virtual files. A
// FileSystem opens Handles over a replica's page space, either live (tracking
// the latest replicated index) or pinned to a historical transaction index,
// and serves byte-oriented reads by composing pages through the shared cache.
package vfs

import (
	"context"
	"io"
	"sync/atomic"

	"go.litevfs.dev/core/logreader"
	"go.litevfs.dev/core/pagecache"
	pb "go.litevfs.dev/core/protocol"
)

// FileSystem opens virtual file Handles over replica databases.
type FileSystem struct {
	reader *logreader.Reader
	cache  *pagecache.Cache
	source pagecache.IndexSource
}

// NewFileSystem returns a FileSystem over the Reader and Cache. The
// IndexSource resolves the effective index of live handles; if nil, the
// Reader is used.
func NewFileSystem(reader *logreader.Reader, cache *pagecache.Cache, source pagecache.IndexSource) *FileSystem {
	if source == nil {
		source = reader
	}
	return &FileSystem{reader: reader, cache: cache, source: source}
}

// Open returns a live Handle over the replica. Reads observe the replica's
// latest known transaction index at the time of each read.
func (fs *FileSystem) Open(replica pb.Replica) (*Handle, error) {
	if err := replica.Validate(); err != nil {
		return nil, err
	}
	return &Handle{fs: fs, replica: replica}, nil
}

// OpenAt returns a Handle pinned to the transaction index |txid|. All reads
// through the Handle observe the database exactly as of that index,
// regardless of ongoing replication. The pinned cache partition is held for
// the life of the Handle and released by Close.
func (fs *FileSystem) OpenAt(replica pb.Replica, txid pb.TxID) (*Handle, error) {
	if err := replica.Validate(); err != nil {
		return nil, err
	}
	if txid == 0 {
		return nil, pb.NewValidationError("TxID: cannot pin to zero")
	}
	fs.cache.Pin(replica.Alias, txid)
	return &Handle{fs: fs, replica: replica, pin: txid}, nil
}

// Handle is a read-only virtual file over a replica database. It is safe for
// concurrent reads. Write and truncate operations fail with ReadOnlyError;
// operations on a closed Handle fail with ClosedHandleError.
type Handle struct {
	fs      *FileSystem
	replica pb.Replica
	pin     pb.TxID // Zero if the Handle is live.
	closed  atomic.Bool
}

// Pinned returns the pinned transaction index of the Handle, or zero if live.
func (h *Handle) Pinned() pb.TxID { return h.pin }

// Replica returns the replica the Handle reads from.
func (h *Handle) Replica() pb.Replica { return h.replica }

// effectiveTxID resolves the index reads of the Handle observe right now.
func (h *Handle) effectiveTxID(ctx context.Context) (pb.TxID, error) {
	if h.pin != 0 {
		return h.pin, nil
	}
	return h.fs.source.LatestTxID(ctx, h.replica)
}

// ReadPage returns the content of |pageNo| at the Handle's effective index.
func (h *Handle) ReadPage(ctx context.Context, pageNo uint32) ([]byte, error) {
	if h.closed.Load() {
		return nil, &pb.ClosedHandleError{}
	}
	if h.pin != 0 {
		return h.fs.cache.GetPageAt(ctx, h.replica, pageNo, h.pin)
	}
	return h.fs.cache.GetPage(ctx, h.replica, pageNo)
}

// PageCount returns the number of pages of the database at the Handle's
// effective index. For a live Handle this reflects the latest known index at
// the time of the call, not at open.
func (h *Handle) PageCount(ctx context.Context) (uint32, error) {
	if h.closed.Load() {
		return 0, &pb.ClosedHandleError{}
	}
	var txid, err = h.effectiveTxID(ctx)
	if err != nil {
		return 0, err
	}
	hdr, err := h.fs.reader.Header(ctx, h.replica, txid)
	if err != nil {
		return 0, err
	}
	return hdr.PageCount, nil
}

// Size returns the database size in bytes at the Handle's effective index.
func (h *Handle) Size(ctx context.Context) (int64, error) {
	if h.closed.Load() {
		return 0, &pb.ClosedHandleError{}
	}
	var txid, err = h.effectiveTxID(ctx)
	if err != nil {
		return 0, err
	}
	hdr, err := h.fs.reader.Header(ctx, h.replica, txid)
	if err != nil {
		return 0, err
	}
	return int64(hdr.PageSize) * int64(hdr.PageCount), nil
}

// ReadAt reads len(p) bytes at byte offset |off|, assembling the result from
// whole pages. A read extending past the end of the database returns the
// bytes read and io.EOF, matching io.ReaderAt semantics.
func (h *Handle) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if h.closed.Load() {
		return 0, &pb.ClosedHandleError{}
	}
	if off < 0 {
		return 0, pb.NewValidationError("negative read offset: %d", off)
	}

	var txid, err = h.effectiveTxID(ctx)
	if err != nil {
		return 0, err
	}
	hdr, err := h.fs.reader.Header(ctx, h.replica, txid)
	if err != nil {
		return 0, err
	}
	var pageSize = int64(hdr.PageSize)
	var size = pageSize * int64(hdr.PageCount)

	var n int
	for n != len(p) && off+int64(n) < size {
		var cur = off + int64(n)
		var pageNo = uint32(cur/pageSize) + 1
		var within = cur % pageSize

		var data []byte
		if h.pin != 0 {
			data, err = h.fs.cache.GetPageAt(ctx, h.replica, pageNo, h.pin)
		} else {
			data, err = h.fs.cache.GetPage(ctx, h.replica, pageNo)
		}
		if err != nil {
			return n, err
		}
		n += copy(p[n:], data[within:])
	}
	if n != len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt fails with ReadOnlyError. Replica views are strictly read-only.
func (h *Handle) WriteAt(p []byte, off int64) (int, error) {
	if h.closed.Load() {
		return 0, &pb.ClosedHandleError{}
	}
	return 0, &pb.ReadOnlyError{Op: "WriteAt"}
}

// Truncate fails with ReadOnlyError.
func (h *Handle) Truncate(size int64) error {
	if h.closed.Load() {
		return &pb.ClosedHandleError{}
	}
	return &pb.ReadOnlyError{Op: "Truncate"}
}

// Sync is a no-op: there is never dirty state to flush.
func (h *Handle) Sync() error {
	if h.closed.Load() {
		return &pb.ClosedHandleError{}
	}
	return nil
}

// Lock and Unlock are no-ops. Reads are served from immutable segments, so
// shared-lock acquisition always succeeds and holds nothing.
func (h *Handle) Lock() error {
	if h.closed.Load() {
		return &pb.ClosedHandleError{}
	}
	return nil
}

// Unlock releases nothing. See Lock.
func (h *Handle) Unlock() error {
	if h.closed.Load() {
		return &pb.ClosedHandleError{}
	}
	return nil
}

// Close closes the Handle, releasing its pinned cache partition if any.
// Further operations, including a second Close, fail with ClosedHandleError.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return &pb.ClosedHandleError{}
	}
	if h.pin != 0 {
		h.fs.cache.Unpin(h.replica.Alias, h.pin)
	}
	return nil
}

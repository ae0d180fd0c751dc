package stores

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	pb "go.litevfs.dev/core/protocol"
)

// ActiveStore wraps a Store implementation with mark-and-sweep GC support and
// operation instrumentation. All store access of the module flows through
// ActiveStore, so per-replica operation metrics are uniform across backends.
type ActiveStore struct {
	Key   pb.ReplicaStore // ReplicaStore from which this ActiveStore was built
	Store Store
	Mark  atomic.Bool // Mark bit for GC

	initErr error // Initialization error (if any) - checked by all methods
}

// NewActiveStore creates a new ActiveStore with the given ReplicaStore and Store.
// If initErr is non-nil, it will be returned on use of any method.
// Don't use this in production code: use Get() for proper initialization and caching.
// Tests may use this to create ActiveStores with fixture errors.
func NewActiveStore(rs pb.ReplicaStore, store Store, initErr error) *ActiveStore {
	var s = &ActiveStore{
		Key:     rs,
		Store:   store,
		initErr: initErr,
	}
	s.Mark.Store(true) // Marked active on creation.
	return s
}

// Provider returns the name of the underlying storage backend.
func (s *ActiveStore) Provider() string {
	if s.initErr != nil {
		return "uninitialized"
	}
	return s.Store.Provider()
}

// Exists checks if content exists at the given path.
func (s *ActiveStore) Exists(ctx context.Context, path string) (bool, error) {
	if s.initErr != nil {
		return false, s.initErr
	}
	var started = time.Now()
	var exists, err = s.Store.Exists(ctx, path)
	s.observe("exists", started, err)
	return exists, err
}

// Get returns an io.ReadCloser for content at the given path.
func (s *ActiveStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	if s.initErr != nil {
		return nil, s.initErr
	}
	var started = time.Now()
	var rc, err = s.Store.Get(ctx, path)
	s.observe("get", started, err)
	return rc, err
}

// Put durably writes content to the store at the given path.
func (s *ActiveStore) Put(ctx context.Context, path string, content io.ReaderAt, contentLength int64, contentEncoding string) error {
	if s.initErr != nil {
		return s.initErr
	}
	var started = time.Now()
	var err = s.Store.Put(ctx, path, content, contentLength, contentEncoding)
	s.observe("put", started, err)
	return err
}

// List enumerates all objects under the given prefix.
func (s *ActiveStore) List(ctx context.Context, prefix string, callback func(path string, modTime time.Time) error) error {
	if s.initErr != nil {
		return s.initErr
	}
	var started = time.Now()
	var items int
	var err = s.Store.List(ctx, prefix, func(path string, modTime time.Time) error {
		items++
		return callback(path, modTime)
	})
	s.observe("list", started, err)
	storeListItems.WithLabelValues(string(s.Key)).Observe(float64(items))
	return err
}

// Remove deletes content at the given path.
func (s *ActiveStore) Remove(ctx context.Context, path string) error {
	if s.initErr != nil {
		return s.initErr
	}
	var started = time.Now()
	var err = s.Store.Remove(ctx, path)
	s.observe("remove", started, err)
	return err
}

// IsNotFound returns true if the error indicates an absent object.
func (s *ActiveStore) IsNotFound(err error) bool {
	if s.initErr != nil {
		return false
	}
	return s.Store.IsNotFound(err)
}

// IsAuthError returns true if the error represents an authorization failure.
func (s *ActiveStore) IsAuthError(err error) bool {
	if s.initErr != nil {
		return false
	}
	return s.Store.IsAuthError(err)
}

func (s *ActiveStore) observe(op string, started time.Time, err error) {
	var status = "success"
	if err != nil {
		status = "error"
	}
	storeOperationTotal.WithLabelValues(string(s.Key), op, status).Inc()
	storeOperationDuration.WithLabelValues(string(s.Key), op, status).Observe(time.Since(started).Seconds())
}

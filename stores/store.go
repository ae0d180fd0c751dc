// Package stores provides an abstraction over object-storage systems which
// hold replica transaction-log segments.
package stores

import (
	"context"
	"io"
	"net/url"
	"time"
)

// Store provides an abstraction over object-storage systems holding
// transaction-log segments of a replica.
type Store interface {
	// Provider returns the name of the storage backend (e.g., "s3", "gcs", "azure", "fs").
	Provider() string

	// Exists checks if content exists at the given path.
	Exists(ctx context.Context, path string) (bool, error)

	// Get returns an io.ReadCloser for content at the given path.
	// The returned reader provides the raw content without any decompression.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Put durably writes content to the store at the given path.
	// contentEncoding is used to set appropriate headers (e.g., "gzip" for compressed content).
	// Replica readers never Put; the method exists for the replication
	// producer, test fixtures, and store health verification.
	Put(ctx context.Context, path string, content io.ReaderAt, contentLength int64, contentEncoding string) error

	// List enumerates all objects under the given prefix.
	// The callback receives the path relative to the prefix and modification time for each object.
	// For example, if prefix is "foo/bar/" and an object "foo/bar/baz.txt" exists,
	// the callback will be invoked with "baz.txt" as the path.
	// If the callback returns an error, listing is terminated and that error is returned.
	List(ctx context.Context, prefix string, callback func(path string, modTime time.Time) error) error

	// Remove deletes content at the given path.
	Remove(ctx context.Context, path string) error

	// IsNotFound returns true if the error indicates the requested object
	// does not exist. Readers use this to distinguish a genuinely absent
	// segment from a transient storage failure.
	IsNotFound(error) bool

	// IsAuthError returns true if the error represents an authorization failure
	// (e.g., missing permissions, bucket not found, access denied).
	IsAuthError(error) bool
}

// Constructor is a function that creates a Store instance from a URL.
// Each storage backend provides its own constructor implementation.
type Constructor func(*url.URL) (Store, error)

// Package protocol defines the core types shared across the litevfs module:
// the ReplicaStore URL type which roots a replica's transaction log within an
// object store, replica status and health classification, and the error
// taxonomy surfaced by readers, caches, and handles.
//
// By convention, types in this package are plain values. Mutable runtime
// state (pollers, caches, open handles) lives in the packages which own it,
// and those packages exchange immutable protocol values at their boundaries.
package protocol

// Package ltx models transaction-log segments: the immutable, append-only
// units through which a replicated SQLite database is published to object
// storage.
//
// Each segment captures one committed batch of page post-images, identified
// by a monotonic transaction index (TxID). A replica's database at TxID T is
// the composition of all segments with index <= T, applied in increasing
// order: for any page, the most recent post-image at or before T is the
// page's content.
//
// Segments are named such that a lexicographic listing of a replica's store
// prefix orders them by TxID, and their commit timestamps are recoverable
// from names alone. This lets readers resolve "as of time T" queries and
// detect log gaps without fetching segment bodies.
package ltx

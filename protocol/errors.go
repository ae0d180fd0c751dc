package protocol

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoSegments is returned by latest-index queries of a replica whose store
// prefix holds no transaction-log segments (replication has not yet begun).
var ErrNoSegments = errors.New("replica has no transaction-log segments")

// SegmentNotFoundError indicates a requested transaction-log segment does not
// exist in the replica's store. It is never masked by synthesizing empty data.
type SegmentNotFoundError struct {
	Replica string
	TxID    TxID
}

func (e *SegmentNotFoundError) Error() string {
	return fmt.Sprintf("replica %s: segment %d not found", e.Replica, e.TxID)
}

// PageNotFoundError indicates a requested page number is not covered by any
// retained segment of the replica at the effective transaction index.
type PageNotFoundError struct {
	Replica string
	PageNo  uint32
	TxID    TxID
}

func (e *PageNotFoundError) Error() string {
	return fmt.Sprintf("replica %s: page %d not found at txid %d", e.Replica, e.PageNo, e.TxID)
}

// MissingSegmentError indicates a gap in the replica's transaction-log
// sequence: the segment at Expected was not found while a later segment
// exists. A gap signals a missing or partially-replicated segment and always
// fails the read rather than composing pages from a non-contiguous delta set.
type MissingSegmentError struct {
	Replica  string
	Expected TxID
	Found    TxID
}

func (e *MissingSegmentError) Error() string {
	return fmt.Sprintf("replica %s: transaction log gap (expected segment %d, found %d)",
		e.Replica, e.Expected, e.Found)
}

// UnavailableError indicates a transient storage or network failure which
// persisted through bounded retries. The wrapped cause is retained.
type UnavailableError struct {
	Replica string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("replica %s: unavailable: %s", e.Replica, e.Err)
}

// Unwrap returns the underlying cause.
func (e *UnavailableError) Unwrap() error { return e.Err }

// AmbiguousTimeError indicates a time specification which resolves to no
// segment, eg because it precedes the start of replication. Earliest and
// Latest carry the bounds of the retained log, when known.
type AmbiguousTimeError struct {
	Replica   string
	Requested time.Time
	Earliest  time.Time
	Latest    time.Time
}

func (e *AmbiguousTimeError) Error() string {
	return fmt.Sprintf("replica %s: no segment at or before %s (log spans %s through %s)",
		e.Replica, e.Requested.Format(time.RFC3339),
		e.Earliest.Format(time.RFC3339), e.Latest.Format(time.RFC3339))
}

// ExpiredIndexError indicates a read pinned to a transaction index older than
// the oldest retained segment. The oldest retained data is never silently
// substituted for the requested index.
type ExpiredIndexError struct {
	Replica   string
	Requested TxID
	Oldest    TxID
}

func (e *ExpiredIndexError) Error() string {
	return fmt.Sprintf("replica %s: txid %d precedes oldest retained segment %d",
		e.Replica, e.Requested, e.Oldest)
}

// ReadOnlyError is returned for any write attempted through a replica file
// handle. Replica views are strictly read-only; writes fail immediately and
// are never converted into no-ops.
type ReadOnlyError struct {
	Op string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("%s: replica file handles are read-only", e.Op)
}

// ClosedHandleError is returned for operations on a closed file handle.
// Use-after-close is a programming error and propagates immediately.
type ClosedHandleError struct{}

func (e *ClosedHandleError) Error() string { return "file handle is closed" }

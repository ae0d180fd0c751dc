// Package logreader fetches and interprets transaction-log segments from a
// replica's object store: listing the retained log, fetching segment bodies
// with bounded retries, and resolving wall-clock timestamps to transaction
// indexes for time-travel reads.
package logreader

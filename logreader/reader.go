package logreader

import (
	"context"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"
	"go.litevfs.dev/core/ltx"
	pb "go.litevfs.dev/core/protocol"
	"go.litevfs.dev/core/stores"
)

// DefaultFetchAttempts is the default bound on attempts of a store operation
// before it's surfaced as an UnavailableError.
const DefaultFetchAttempts = 3

// Reader lists, fetches, and interprets transaction-log segments of replicas.
// A single Reader serves all configured replicas; it is safe for concurrent use.
type Reader struct {
	attempts int
	headers  *lru.Cache // (alias, TxID) -> ltx.Header; segments are immutable.
	resolved *lru.Cache // (alias, unix-nanos) -> pb.TxID; resolutions are idempotent.
}

// NewReader returns a Reader bounding store operations to |attempts| tries.
// If attempts is zero, DefaultFetchAttempts is used.
func NewReader(attempts int) *Reader {
	if attempts == 0 {
		attempts = DefaultFetchAttempts
	}
	var headers, _ = lru.New(4096)
	var resolved, _ = lru.New(4096)
	return &Reader{
		attempts: attempts,
		headers:  headers,
		resolved: resolved,
	}
}

type headerKey struct {
	alias string
	txid  pb.TxID
}

type resolvedKey struct {
	alias string
	nanos int64
}

// ListSegments lists the retained transaction log of the replica, ordered by
// TxID. It verifies that retained TxIDs are contiguous: a gap indicates a
// missing or partially-replicated segment and fails the listing with
// MissingSegmentError rather than returning a log which would compose
// incorrect pages.
func (r *Reader) ListSegments(ctx context.Context, replica pb.Replica) ([]ltx.SegmentInfo, error) {
	var store, err = stores.Get(replica.Store)
	if err != nil {
		return nil, &pb.UnavailableError{Replica: replica.Alias, Err: err}
	}
	store.Mark.Store(true)

	var infos []ltx.SegmentInfo
	err = r.retry(ctx, replica, func() error {
		infos = infos[:0]
		return store.List(ctx, ltx.Prefix, func(path string, _ time.Time) error {
			var info, err = ltx.ParseContentName(path)
			if err != nil {
				// Foreign objects under the segment prefix are skipped,
				// not fatal: producers may co-locate snapshots or markers.
				log.WithFields(log.Fields{"replica": replica.Alias, "path": path, "err": err}).
					Warn("skipping unrecognized object in segment listing")
				return nil
			}
			infos = append(infos, info)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].TxID < infos[j].TxID })

	for i := 1; i < len(infos); i++ {
		if infos[i].TxID != infos[i-1].TxID+1 {
			return nil, &pb.MissingSegmentError{
				Replica:  replica.Alias,
				Expected: infos[i-1].TxID + 1,
				Found:    infos[i].TxID,
			}
		}
	}
	return infos, nil
}

// LatestTxID returns the TxID of the replica's most recent retained segment,
// or ErrNoSegments if replication has not yet produced any.
func (r *Reader) LatestTxID(ctx context.Context, replica pb.Replica) (pb.TxID, error) {
	var infos, err = r.ListSegments(ctx, replica)
	if err != nil {
		return 0, err
	} else if len(infos) == 0 {
		return 0, pb.ErrNoSegments
	}
	return infos[len(infos)-1].TxID, nil
}

// FetchSegment fetches and decodes the segment described by |info|.
// An absent segment is a SegmentNotFoundError; transient failures are retried
// with backoff and surface as UnavailableError once attempts are exhausted.
func (r *Reader) FetchSegment(ctx context.Context, replica pb.Replica, info ltx.SegmentInfo) (*ltx.Segment, error) {
	var store, err = stores.Get(replica.Store)
	if err != nil {
		return nil, &pb.UnavailableError{Replica: replica.Alias, Err: err}
	}
	store.Mark.Store(true)

	var segment *ltx.Segment
	err = r.retry(ctx, replica, func() error {
		var rc, err = store.Get(ctx, info.ContentPath())
		if err != nil {
			if store.IsNotFound(err) {
				return &pb.SegmentNotFoundError{Replica: replica.Alias, TxID: info.TxID}
			}
			return err
		}
		defer rc.Close()

		segment, err = ltx.ReadSegment(rc, info.Codec)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.headers.Add(headerKey{replica.Alias, segment.Header.TxID}, segment.Header)
	return segment, nil
}

// FetchAt fetches the segment of the replica committed at exactly |txid|.
// A txid preceding the oldest retained segment is an ExpiredIndexError.
func (r *Reader) FetchAt(ctx context.Context, replica pb.Replica, txid pb.TxID) (*ltx.Segment, error) {
	var infos, err = r.ListSegments(ctx, replica)
	if err != nil {
		return nil, err
	}
	var info, ok = findTxID(infos, txid)
	if !ok {
		if len(infos) != 0 && txid < infos[0].TxID {
			return nil, &pb.ExpiredIndexError{Replica: replica.Alias, Requested: txid, Oldest: infos[0].TxID}
		}
		return nil, &pb.SegmentNotFoundError{Replica: replica.Alias, TxID: txid}
	}
	return r.FetchSegment(ctx, replica, info)
}

// Header returns the header of the replica's segment at |txid|, fetching the
// segment if its header is not already cached. Segments are immutable, so a
// cached header is never stale.
func (r *Reader) Header(ctx context.Context, replica pb.Replica, txid pb.TxID) (ltx.Header, error) {
	if v, ok := r.headers.Get(headerKey{replica.Alias, txid}); ok {
		return v.(ltx.Header), nil
	}
	var segment, err = r.FetchAt(ctx, replica, txid)
	if err != nil {
		return ltx.Header{}, err
	}
	return segment.Header, nil
}

// ResolveTimestamp resolves a wall-clock time to the TxID of the latest
// segment whose commit timestamp is at or before |t|. Requests landing
// between commits round down, never forward: forward-rounding would expose
// data from the future of the requested time. A time preceding the earliest
// retained segment is an AmbiguousTimeError carrying the log's bounds.
//
// Resolution is idempotent and monotonic in |t|, and successful resolutions
// are memoized.
func (r *Reader) ResolveTimestamp(ctx context.Context, replica pb.Replica, t time.Time) (pb.TxID, error) {
	var key = resolvedKey{replica.Alias, t.UnixNano()}
	if v, ok := r.resolved.Get(key); ok {
		return v.(pb.TxID), nil
	}

	var infos, err = r.ListSegments(ctx, replica)
	if err != nil {
		return 0, err
	}
	if len(infos) == 0 {
		return 0, &pb.AmbiguousTimeError{Replica: replica.Alias, Requested: t}
	}

	// Index of the first segment committed strictly after |t|.
	var ind = sort.Search(len(infos), func(i int) bool {
		return infos[i].CommitTime.After(t)
	})
	if ind == 0 {
		return 0, &pb.AmbiguousTimeError{
			Replica:   replica.Alias,
			Requested: t,
			Earliest:  infos[0].CommitTime,
			Latest:    infos[len(infos)-1].CommitTime,
		}
	}

	var txid = infos[ind-1].TxID
	r.resolved.Add(key, txid)
	return txid, nil
}

// retry invokes |fn| with bounded attempts and stepped backoff. Typed
// protocol errors (not-found, gaps) are never retried. Cancellation of |ctx|
// is honored between attempts.
func (r *Reader) retry(ctx context.Context, replica pb.Replica, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt != r.attempts; attempt++ {
		if attempt != 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt - 1)):
			}
		}

		var err = fn()
		if err == nil {
			return nil
		}
		switch err.(type) {
		case *pb.SegmentNotFoundError, *pb.MissingSegmentError, *pb.ValidationError:
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err

		log.WithFields(log.Fields{"replica": replica.Alias, "attempt": attempt, "err": err}).
			Warn("transient store failure (will retry)")
	}
	return &pb.UnavailableError{Replica: replica.Alias, Err: lastErr}
}

func findTxID(infos []ltx.SegmentInfo, txid pb.TxID) (ltx.SegmentInfo, bool) {
	var ind = sort.Search(len(infos), func(i int) bool { return infos[i].TxID >= txid })
	if ind != len(infos) && infos[ind].TxID == txid {
		return infos[ind], true
	}
	return ltx.SegmentInfo{}, false
}

func backoff(attempt int) time.Duration {
	// The choices of backoff time reflect that we're usually waiting out a
	// brief store brown-out or API rate limit.
	switch attempt {
	case 0, 1:
		return time.Millisecond * 50
	case 2, 3:
		return time.Millisecond * 100
	case 4, 5:
		return time.Second
	default:
		return 5 * time.Second
	}
}

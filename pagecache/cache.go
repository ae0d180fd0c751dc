// Package pagecache implements a bounded, in-memory cache of database pages
// composed from replica transaction logs.
//
// The cache is partitioned. The live partition of a replica holds pages at
// the replica's latest known transaction index, and is advanced forward
// (never rolled back) as replication proceeds. Pinned partitions, keyed by
// (replica, TxID), serve time-travel sessions: they are isolated from live
// invalidation, exempt from LRU eviction while pinned, and dropped in full
// when their owning session ends.
//
// Segments carry full page post-images, so composing a page at index T
// reduces to the most recent post-image at or before T; walking candidate
// segments newest-first bounds fetches to a single matching segment in the
// common case.
package pagecache

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"go.litevfs.dev/core/logreader"
	pb "go.litevfs.dev/core/protocol"
	"golang.org/x/sync/singleflight"
)

// DefaultBudget is the default total byte budget of a Cache.
const DefaultBudget = 64 << 20 // 64 MiB

// IndexSource provides a replica's latest known transaction index. It is
// implemented by logreader.Reader (authoritative, one listing per call) and
// by registry.Registry (served from the last poll, no storage round-trip).
type IndexSource interface {
	LatestTxID(ctx context.Context, replica pb.Replica) (pb.TxID, error)
}

type key struct {
	alias  string
	pageNo uint32
	pin    pb.TxID // Zero selects the live partition.
}

type partition struct {
	alias string
	pin   pb.TxID
}

type entry struct {
	key     key
	txid    pb.TxID // Index at which data was composed.
	data    []byte
	element *list.Element // LRU element; nil for pinned entries.
}

// Cache is a bounded LRU cache of composed database pages.
type Cache struct {
	reader *logreader.Reader
	source IndexSource
	budget int64

	mu    sync.Mutex
	usage int64
	table map[key]*entry
	lru   *list.List        // Of *entry; front is most recently used.
	pins  map[partition]int // Pinned partition refcounts.

	flights singleflight.Group
}

// NewCache returns a Cache over the Reader, bounded to |budget| bytes of page
// content (DefaultBudget if zero). The IndexSource resolves live reads to the
// replica's latest index; if nil, the Reader itself is used.
func NewCache(reader *logreader.Reader, source IndexSource, budget int64) *Cache {
	if budget == 0 {
		budget = DefaultBudget
	}
	if source == nil {
		source = reader
	}
	log.WithField("budget", humanize.IBytes(uint64(budget))).Debug("initialized page cache")

	return &Cache{
		reader: reader,
		source: source,
		budget: budget,
		table:  make(map[key]*entry),
		lru:    list.New(),
		pins:   make(map[partition]int),
	}
}

// GetPage returns the content of |pageNo| at the replica's latest known
// transaction index.
func (c *Cache) GetPage(ctx context.Context, replica pb.Replica, pageNo uint32) ([]byte, error) {
	var latest, err = c.source.LatestTxID(ctx, replica)
	if err != nil {
		return nil, err
	}
	return c.getPage(ctx, replica, pageNo, key{replica.Alias, pageNo, 0}, latest)
}

// GetPageAt returns the content of |pageNo| at the pinned transaction index.
// If the (replica, txid) partition is pinned, the composed page is cached
// within it; otherwise the read passes through without caching.
func (c *Cache) GetPageAt(ctx context.Context, replica pb.Replica, pageNo uint32, txid pb.TxID) ([]byte, error) {
	return c.getPage(ctx, replica, pageNo, key{replica.Alias, pageNo, txid}, txid)
}

func (c *Cache) getPage(ctx context.Context, replica pb.Replica, pageNo uint32, k key, target pb.TxID) ([]byte, error) {
	c.mu.Lock()
	if e, ok := c.table[k]; ok && e.txid >= target {
		if e.element != nil {
			c.lru.MoveToFront(e.element)
		}
		var data = e.data
		c.mu.Unlock()
		cacheHits.Inc()
		return data, nil
	}
	c.mu.Unlock()
	cacheMisses.Inc()

	// Collapse concurrent misses of the same key into one composition.
	// DoChan (rather than Do) lets a cancelled waiter return promptly while
	// the shared flight completes for the remaining waiters.
	var flightKey = fmt.Sprintf("%s/%d@%d:%d", k.alias, k.pageNo, k.pin, target)
	var resultCh = c.flights.DoChan(flightKey, func() (interface{}, error) {
		var data, err = c.compose(ctx, replica, pageNo, target)
		if err != nil {
			return nil, err
		}
		c.insert(k, target, data)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultCh:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.([]byte), nil
	}
}

// compose determines the content of |pageNo| at index |target| by fetching
// the most recent segment at or before |target| which updates the page.
func (c *Cache) compose(ctx context.Context, replica pb.Replica, pageNo uint32, target pb.TxID) ([]byte, error) {
	var infos, err = c.reader.ListSegments(ctx, replica)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, pb.ErrNoSegments
	}
	if target < infos[0].TxID {
		return nil, &pb.ExpiredIndexError{Replica: replica.Alias, Requested: target, Oldest: infos[0].TxID}
	}
	if target > infos[len(infos)-1].TxID {
		// The index source is ahead of this listing. Surface as a not-found
		// of the advertised segment; the caller may retry.
		return nil, &pb.SegmentNotFoundError{Replica: replica.Alias, TxID: target}
	}

	for i := len(infos) - 1; i >= 0; i-- {
		if infos[i].TxID > target {
			continue
		}
		var segment, err = c.reader.FetchSegment(ctx, replica, infos[i])
		if err != nil {
			return nil, err
		}
		if pageNo > segment.Header.PageCount && segment.Header.TxID == target {
			return nil, &pb.PageNotFoundError{Replica: replica.Alias, PageNo: pageNo, TxID: target}
		}
		if data, ok := segment.Page(pageNo); ok {
			return data, nil
		}
	}

	if infos[0].TxID != 1 {
		// The page predates the oldest retained segment: its content was
		// truncated away and cannot be recovered from this store.
		return nil, &pb.ExpiredIndexError{Replica: replica.Alias, Requested: target, Oldest: infos[0].TxID}
	}
	return nil, &pb.PageNotFoundError{Replica: replica.Alias, PageNo: pageNo, TxID: target}
}

// insert stores a composed page, evicting least-recently-used live entries
// over budget. Within the live partition an entry's index never decreases.
func (c *Cache) insert(k key, txid pb.TxID, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if k.pin != 0 && c.pins[partition{k.alias, k.pin}] == 0 {
		return // Partition was unpinned while the fetch was in flight.
	}

	if prev, ok := c.table[k]; ok {
		if prev.txid > txid {
			return // A newer composition won the race; never roll back.
		}
		c.removeLocked(prev)
	}

	var e = &entry{key: k, txid: txid, data: data}
	if k.pin == 0 {
		e.element = c.lru.PushFront(e)
	}
	c.table[k] = e
	c.usage += int64(len(data))
	cacheBytes.Set(float64(c.usage))

	for c.usage > c.budget {
		var back = c.lru.Back()
		if back == nil {
			break // Only pinned entries remain; they are never evicted.
		}
		c.removeLocked(back.Value.(*entry))
		cacheEvictions.Inc()
	}
}

// Invalidate drops the live entry of (replica, pageNo), if any.
func (c *Cache) Invalidate(alias string, pageNo uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.table[key{alias, pageNo, 0}]; ok {
		c.removeLocked(e)
	}
}

// InvalidateReplica drops all live entries of the replica. Pinned partitions
// are untouched: time-travel reads are invariant under live replication.
func (c *Cache) InvalidateReplica(alias string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.table {
		if k.alias == alias && k.pin == 0 {
			c.removeLocked(e)
		}
	}
}

// Pin registers (or re-registers) a pinned partition for the replica at
// |txid|. Pins are reference-counted: concurrent sessions of one historical
// index share a partition.
func (c *Cache) Pin(alias string, txid pb.TxID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pins[partition{alias, txid}]++
}

// Unpin releases a pinned partition reference. When the last reference is
// released, the partition's entries are dropped immediately rather than
// waiting for LRU pressure.
func (c *Cache) Unpin(alias string, txid pb.TxID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var p = partition{alias, txid}
	if c.pins[p] == 0 {
		return
	}
	c.pins[p]--
	if c.pins[p] != 0 {
		return
	}
	delete(c.pins, p)

	for k, e := range c.table {
		if k.alias == alias && k.pin == txid {
			c.removeLocked(e)
		}
	}
}

// Usage returns the current byte usage of the Cache.
func (c *Cache) Usage() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// PartitionLen returns the number of entries of the (replica, txid)
// partition. A txid of zero inspects the live partition.
func (c *Cache) PartitionLen(alias string, txid pb.TxID) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	for k := range c.table {
		if k.alias == alias && k.pin == txid {
			n++
		}
	}
	return n
}

func (c *Cache) removeLocked(e *entry) {
	if e.element != nil {
		c.lru.Remove(e.element)
	}
	delete(c.table, e.key)
	c.usage -= int64(len(e.data))
	cacheBytes.Set(float64(c.usage))
}

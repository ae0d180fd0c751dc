// Package replicatest provides in-memory replica fixtures for tests: an
// object store served from process memory, and helpers to publish
// transaction-log segments to it the way a replication producer would.
package replicatest

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.litevfs.dev/core/ltx"
	pb "go.litevfs.dev/core/protocol"
	"go.litevfs.dev/core/stores"
)

var (
	sharedMemory = stores.NewMemoryStore()

	injectedMu sync.Mutex
	injected   = make(map[string]stores.Store) // URL host -> injected Store
)

func init() {
	stores.RegisterProviders(map[string]stores.Constructor{
		"memory": construct,
	})
}

func construct(ep *url.URL) (stores.Store, error) {
	injectedMu.Lock()
	if s, ok := injected[ep.Host]; ok {
		injectedMu.Unlock()
		return s, nil
	}
	injectedMu.Unlock()
	return sharedMemory.Constructor(ep)
}

// InjectStore routes memory:// URLs with the given host to |s| instead of the
// shared in-memory store, allowing failure injection via stores.CallbackStore.
// Inject before the first stores.Get of the URL: constructed stores are cached.
func InjectStore(host string, s stores.Store) {
	injectedMu.Lock()
	defer injectedMu.Unlock()
	injected[host] = s
}

// Fixture is an in-memory replica to which tests publish segments.
type Fixture struct {
	Replica  pb.Replica
	PageSize uint32
	Codec    pb.CompressionCodec

	baseTime time.Time
}

// NewFixture returns a Fixture with a unique in-memory store location.
func NewFixture(t *testing.T, alias string) *Fixture {
	return NewFixtureAt(t, alias, uuid.NewString())
}

// NewFixtureAt returns a Fixture rooted at a specific memory:// host, which
// composes with InjectStore to instrument or fail the fixture's store.
func NewFixtureAt(t *testing.T, alias, host string) *Fixture {
	var f = &Fixture{
		Replica: pb.Replica{
			Alias: alias,
			Store: pb.ReplicaStore(fmt.Sprintf("memory://%s/db/", host)),
		},
		PageSize: 512,
		Codec:    pb.CompressionSnappy,
		baseTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.Replica.Store.Validate())
	return f
}

// CommitTime returns the deterministic commit timestamp of |txid|:
// one minute per transaction from the fixture's base time.
func (f *Fixture) CommitTime(txid pb.TxID) time.Time {
	return f.baseTime.Add(time.Duration(txid) * time.Minute)
}

// Page builds a deterministic full-page payload from a page number and a
// version discriminator, so tests can assert exactly which segment's
// post-image a read returned.
func (f *Fixture) Page(pageNo uint32, version byte) []byte {
	return bytes.Repeat([]byte{byte(pageNo), version}, int(f.PageSize)/2)
}

// Commit publishes a segment at |txid| updating |pages|, with the fixture's
// deterministic commit timestamp and a page count of |pageCount|.
func (f *Fixture) Commit(t *testing.T, txid pb.TxID, pageCount uint32, pages map[uint32]byte) {
	var segment = &ltx.Segment{
		Header: ltx.Header{
			TxID:       txid,
			CommitTime: f.CommitTime(txid),
			PageSize:   f.PageSize,
			PageCount:  pageCount,
		},
	}
	for pageNo := uint32(1); pageNo <= pageCount; pageNo++ {
		if version, ok := pages[pageNo]; ok {
			segment.Pages = append(segment.Pages, ltx.PageUpdate{
				PageNo: pageNo,
				Data:   f.Page(pageNo, version),
			})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, segment.MarshalTo(&buf, f.Codec))

	var info = ltx.SegmentInfo{TxID: txid, CommitTime: segment.Header.CommitTime, Codec: f.Codec}
	var store, err = stores.Get(f.Replica.Store)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(),
		info.ContentPath(), bytes.NewReader(buf.Bytes()), int64(buf.Len()), ""))
}

// Remove deletes the segment at |txid|, simulating log truncation or a
// replication gap.
func (f *Fixture) Remove(t *testing.T, txid pb.TxID) {
	var info = ltx.SegmentInfo{TxID: txid, CommitTime: f.CommitTime(txid), Codec: f.Codec}
	var store, err = stores.Get(f.Replica.Store)
	require.NoError(t, err)
	require.NoError(t, store.Remove(context.Background(), info.ContentPath()))
}

// Package timetravel opens read sessions pinned to a historical point of a
// replica database. A time specification is resolved to the transaction
// index in effect at that moment, and all reads of the session observe the
// database exactly as of that index until the session is closed.
package timetravel

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.litevfs.dev/core/logreader"
	pb "go.litevfs.dev/core/protocol"
	"go.litevfs.dev/core/vfs"
)

// Session is a pinned historical view of a replica. Reads of a Session are
// invariant under concurrent replication. Sessions hold a pinned cache
// partition and must be closed; Close is idempotent.
type Session struct {
	// ID uniquely identifies the Session.
	ID string
	// Replica the Session reads from.
	Replica pb.Replica
	// Requested is the point in time the Session was asked for.
	Requested time.Time
	// TxID is the resolved transaction index: the latest commit at or
	// before Requested.
	TxID pb.TxID

	handle    *vfs.Handle
	closeOnce sync.Once
	closeErr  error
}

// Open resolves |at| against the replica's transaction log and returns a
// Session pinned to the resolved index. A time preceding the retained log
// fails with AmbiguousTimeError rather than silently reading the oldest data.
func Open(ctx context.Context, fs *vfs.FileSystem, reader *logreader.Reader, replica pb.Replica, at time.Time) (*Session, error) {
	var txid, err = reader.ResolveTimestamp(ctx, replica, at)
	if err != nil {
		return nil, err
	}
	handle, err := fs.OpenAt(replica, txid)
	if err != nil {
		return nil, err
	}

	var session = &Session{
		ID:        uuid.NewString(),
		Replica:   replica,
		Requested: at,
		TxID:      txid,
		handle:    handle,
	}
	log.WithFields(log.Fields{
		"session": session.ID,
		"replica": replica.Alias,
		"txid":    txid,
		"at":      at.Format(time.RFC3339),
	}).Debug("opened time-travel session")

	return session, nil
}

// OpenSpec parses |spec| (see ParseTimeSpec) relative to the current time
// and opens a Session at the result.
func OpenSpec(ctx context.Context, fs *vfs.FileSystem, reader *logreader.Reader, replica pb.Replica, spec string) (*Session, error) {
	var at, err = ParseTimeSpec(spec, time.Now())
	if err != nil {
		return nil, err
	}
	return Open(ctx, fs, reader, replica, at)
}

// Handle returns the pinned file handle of the Session.
func (s *Session) Handle() *vfs.Handle { return s.handle }

// ReadPage returns the content of |pageNo| as of the Session's index.
func (s *Session) ReadPage(ctx context.Context, pageNo uint32) ([]byte, error) {
	return s.handle.ReadPage(ctx, pageNo)
}

// Close closes the Session, releasing its pinned cache partition. Close is
// idempotent: repeated calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.handle.Close()
		log.WithField("session", s.ID).Debug("closed time-travel session")
	})
	return s.closeErr
}

// With opens a Session at |at| and invokes |fn| with it, closing the Session
// when |fn| returns regardless of outcome.
func With(ctx context.Context, fs *vfs.FileSystem, reader *logreader.Reader, replica pb.Replica, at time.Time, fn func(*Session) error) error {
	var session, err = Open(ctx, fs, reader, replica, at)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session)
}

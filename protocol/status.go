package protocol

import (
	"time"
)

// TxID is the monotonic index of a committed transaction-log segment within a
// replica. TxIDs of a fully-replicated replica form a contiguous, strictly
// increasing sequence. The zero TxID is reserved and means "none".
type TxID uint64

// HealthStatus classifies a replica's observed replication lag.
type HealthStatus int

const (
	// Unknown indicates the replica has never been successfully polled.
	Unknown HealthStatus = iota
	// Healthy indicates lag is below the MaxLag threshold.
	Healthy
	// Lagging indicates lag is at or above MaxLag but below StaleLag.
	Lagging
	// Stale indicates lag is at or above StaleLag. Stale replicas are
	// excluded from routing and must be explicitly addressed to be read.
	Stale
)

// String returns a human-readable representation of the HealthStatus.
func (hs HealthStatus) String() string {
	switch hs {
	case Unknown:
		return "unknown"
	case Healthy:
		return "healthy"
	case Lagging:
		return "lagging"
	case Stale:
		return "stale"
	default:
		return "invalid"
	}
}

// Thresholds parameterize health classification. The exact cutoffs carry no
// semantics beyond being tunable; they default to 60s / 300s.
type Thresholds struct {
	// MaxLag is the lag below which a replica is Healthy.
	MaxLag time.Duration
	// StaleLag is the lag at or above which a replica is Stale.
	StaleLag time.Duration
}

// DefaultThresholds returns the default health classification thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxLag:   60 * time.Second,
		StaleLag: 300 * time.Second,
	}
}

// Validate returns an error if the Thresholds are not well-formed.
func (t Thresholds) Validate() error {
	if t.MaxLag <= 0 {
		return NewValidationError("MaxLag must be positive (%s)", t.MaxLag)
	} else if t.StaleLag < t.MaxLag {
		return NewValidationError("StaleLag must be >= MaxLag (%s < %s)", t.StaleLag, t.MaxLag)
	}
	return nil
}

// ReplicaStatus is an immutable snapshot of a replica's last-observed
// replication state. The registry poller builds a new ReplicaStatus on each
// successful poll and swaps it atomically; readers never observe a partially
// updated status.
type ReplicaStatus struct {
	// Alias is the configured name of the replica.
	Alias string
	// Store is the object-storage location backing the replica.
	Store ReplicaStore
	// TxID is the latest transaction index observed for the replica,
	// or zero if the replica has never been successfully polled.
	TxID TxID
	// CommitTime is the commit timestamp of the segment at TxID. It is
	// supplementary status output and does not participate in lag.
	CommitTime time.Time
	// LastPoll is the wall-clock time of the last successful poll,
	// or the zero time if the replica has never been successfully polled.
	LastPoll time.Time
	// PollFailures is the count of consecutive failed polls since the
	// last success.
	PollFailures int
}

// Lag returns the replica's computed lag: the elapsed time since its last
// successful poll. Each successful poll resets lag, while consecutive
// failures let it grow until health reclassifies downward. The second
// return is false if the replica has never been successfully polled, in
// which case lag is undefined.
func (s ReplicaStatus) Lag(now time.Time) (time.Duration, bool) {
	if s.LastPoll.IsZero() {
		return 0, false
	}
	return now.Sub(s.LastPoll), true
}

// Health classifies the replica's lag against the given Thresholds.
func (s ReplicaStatus) Health(now time.Time, t Thresholds) HealthStatus {
	var lag, ok = s.Lag(now)
	if !ok {
		return Unknown
	}
	switch {
	case lag < t.MaxLag:
		return Healthy
	case lag < t.StaleLag:
		return Lagging
	default:
		return Stale
	}
}

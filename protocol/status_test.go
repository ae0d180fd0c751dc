package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHealthClassification(t *testing.T) {
	var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var thresholds = DefaultThresholds()

	var cases = []struct {
		lastPoll time.Time
		expect   HealthStatus
	}{
		{time.Time{}, Unknown},
		{now, Healthy},
		{now.Add(-59 * time.Second), Healthy},
		{now.Add(-60 * time.Second), Lagging},
		{now.Add(-299 * time.Second), Lagging},
		{now.Add(-300 * time.Second), Stale},
		{now.Add(-24 * time.Hour), Stale},
	}
	for _, tc := range cases {
		var status = ReplicaStatus{Alias: "r", LastPoll: tc.lastPoll}
		require.Equal(t, tc.expect, status.Health(now, thresholds),
			"lastPoll %s", tc.lastPoll)
	}
}

func TestLagOfNeverPolledReplica(t *testing.T) {
	var status = ReplicaStatus{Alias: "r"}
	var _, ok = status.Lag(time.Now())
	require.False(t, ok)

	status.LastPoll = time.Now().Add(-time.Minute)
	var lag, ok2 = status.Lag(time.Now())
	require.True(t, ok2)
	require.InDelta(t, time.Minute.Seconds(), lag.Seconds(), 1.0)
}

func TestCaughtUpReplicaOfIdleSourceStaysHealthy(t *testing.T) {
	var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// The source database last committed long ago, but the replica is polled
	// every second: lag derives from the poll, not the commit, so the replica
	// remains routable.
	var status = ReplicaStatus{
		Alias:      "r",
		TxID:       42,
		CommitTime: now.Add(-10 * time.Minute),
		LastPoll:   now.Add(-time.Second),
	}
	var lag, ok = status.Lag(now)
	require.True(t, ok)
	require.Equal(t, time.Second, lag)
	require.Equal(t, Healthy, status.Health(now, DefaultThresholds()))
}

func TestThresholdsValidationCases(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())

	var err = Thresholds{MaxLag: 0, StaleLag: time.Minute}.Validate()
	require.EqualError(t, err, "MaxLag must be positive (0s)")

	err = Thresholds{MaxLag: time.Minute, StaleLag: time.Second}.Validate()
	require.EqualError(t, err, "StaleLag must be >= MaxLag (1s < 1m0s)")
}

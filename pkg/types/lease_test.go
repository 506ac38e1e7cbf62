package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLeaseEncoding(t *testing.T) {
	timeout := (60 * time.Second).Microseconds()
	now := time.Now().UnixMicro()

	tests := []struct {
		name    string
		score   int64
		expired bool
		live    bool
		state   LeaseState
	}{
		{"unattended", ScoreUnattended, true, false, LeaseUnattended},
		{"released", ScoreReleased, true, false, LeaseReleased},
		{"deleted", ScoreDeleted, false, false, LeaseDeleted},
		{"fresh lease", now, false, true, LeaseHeld},
		{"lease on the boundary", now - timeout, false, true, LeaseHeld},
		{"lease just past timeout", now - timeout - 1, true, false, LeaseExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expired, IsExpired(tt.score, now, timeout))
			assert.Equal(t, tt.live, IsLive(tt.score, now, timeout))
			assert.Equal(t, tt.state, StateOf(tt.score, now, timeout))
		})
	}
}

// released must be re-acquirable even with a zero timeout
func TestReleasedAlwaysExpired(t *testing.T) {
	now := time.Now().UnixMicro()
	for _, timeout := range []int64{0, 1, (time.Hour).Microseconds(), (24 * time.Hour).Microseconds()} {
		assert.True(t, IsExpired(ScoreReleased, now, timeout), "timeout %d", timeout)
	}
}

func TestDeletedNeverExpires(t *testing.T) {
	for _, now := range []int64{0, 1, time.Now().UnixMicro(), 1 << 62} {
		assert.False(t, IsExpired(ScoreDeleted, now, 0))
		assert.False(t, IsLive(ScoreDeleted, now, 0))
	}
}

func TestCanTransition(t *testing.T) {
	held := int64(1_700_000_000_000_000)

	allowed := [][2]int64{
		{ScoreUnattended, held},
		{ScoreUnattended, ScoreDeleted},
		{held, held + 1},
		{held, ScoreReleased},
		{held, ScoreDeleted},
		{ScoreReleased, held},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%d -> %d", tr[0], tr[1])
	}

	refused := [][2]int64{
		{ScoreDeleted, held},
		{ScoreDeleted, ScoreReleased},
		{ScoreDeleted, ScoreDeleted},
		{ScoreUnattended, ScoreReleased},
		{ScoreReleased, ScoreReleased},
		{ScoreReleased, ScoreDeleted},
		{held, ScoreUnattended},
	}
	for _, tr := range refused {
		assert.False(t, CanTransition(tr[0], tr[1]), "%d -> %d", tr[0], tr[1])
	}
}

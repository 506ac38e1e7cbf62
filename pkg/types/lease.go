package types

// a lock row's score doubles as its lease state
// 0 : row exists but was never acquired
// >1 : held, value is the acquisition time in microseconds
// 1 : released, always older than any now - timeout so it is re-acquirable at once
// -1 : deleted, never matched by a scan again
const (
	ScoreDeleted    int64 = -1
	ScoreUnattended int64 = 0
	ScoreReleased   int64 = 1
)

// checks if a row with the given score can be taken over at time now (all in microseconds)
// true for unattended rows and for held/released rows whose lease has elapsed
func IsExpired(score, now, timeout int64) bool {
	return score >= 0 && score < now-timeout
}

// checks if a row may go from score from to score to
// unattended and released rows can be taken, held rows renewed, released or deleted,
// unattended rows deleted. nothing leaves deleted
func CanTransition(from, to int64) bool {
	switch {
	case from < 0:
		return false
	case to < 0:
		return from == ScoreUnattended || from > ScoreReleased
	case to == ScoreReleased:
		return from > ScoreReleased
	case to > ScoreReleased:
		return true
	default:
		return false
	}
}

// checks if the score denotes a lease that is still valid at time now
// a live row must never be picked as a candidate
func IsLive(score, now, timeout int64) bool {
	return score > 0 && score >= now-timeout
}

// human readable view of a score, used by logs and the cli
type LeaseState uint8

const (
	LeaseUnattended LeaseState = iota + 1
	LeaseHeld
	LeaseExpired
	LeaseReleased
	LeaseDeleted
)

func StateOf(score, now, timeout int64) LeaseState {
	switch {
	case score < 0:
		return LeaseDeleted
	case score == ScoreUnattended:
		return LeaseUnattended
	case score == ScoreReleased:
		return LeaseReleased
	case IsLive(score, now, timeout):
		return LeaseHeld
	default:
		return LeaseExpired
	}
}

func (s LeaseState) String() string {
	switch s {
	case LeaseUnattended:
		return "unattended"
	case LeaseHeld:
		return "held"
	case LeaseExpired:
		return "expired"
	case LeaseReleased:
		return "released"
	case LeaseDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

package validation

import "time"

// UnixDateTimeMs returns t as Unix milliseconds. The OPC-UA DateTime
// (100ns ticks since 1601-01-01) has already been decoded into a time.Time
// by the wire codec, so this is the counterpart of read.c's
// DateTime_toUnixTime helper ((date - UA_DATETIME_UNIX_EPOCH) / UA_DATETIME_MSEC).
func UnixDateTimeMs(t time.Time) int64 {
	return t.UnixMilli()
}

// CheckMaxAge reports whether timestamp satisfies the caller's maxAge
// constraint (spec §4.4.1), ported from read.c's checkMaxAge: reject if the
// timestamp is in the future, or if maxAge is non-zero and the value is
// older than maxAge milliseconds. The Read path calls this against the
// server timestamp with maxAge already doubled by the caller.
func CheckMaxAge(timestamp, now time.Time, maxAgeMs uint32) bool {
	if timestamp.After(now) {
		return false
	}
	if maxAgeMs == 0 {
		return true
	}
	age := now.Sub(timestamp).Milliseconds()
	return age <= int64(maxAgeMs)
}

// TimestampsToReturn mirrors the OPC-UA enumeration governing which
// timestamp(s) checkInvalidTime validates (spec §4.4.1).
type TimestampsToReturn uint8

const (
	TimestampsSource TimestampsToReturn = iota
	TimestampsServer
	TimestampsBoth
	TimestampsNeither
)

const defaultValidMillis = 86400000 // 24h, read.c's validMilliSec default.

// CheckInvalidTime reports whether serverTime/sourceTime are valid relative
// to now under the requested TimestampsToReturn mode, ported from read.c's
// checkInvalidTime: a zero timestamp, a timestamp more than validMilliSec in
// the past, or a timestamp in the future are all invalid.
func CheckInvalidTime(serverTime, sourceTime, now time.Time, stamp TimestampsToReturn) bool {
	checkOne := func(ts time.Time) bool {
		if ts.IsZero() {
			return false
		}
		if ts.After(now) {
			return false
		}
		if now.Sub(ts).Milliseconds() > defaultValidMillis {
			return false
		}
		return true
	}

	switch stamp {
	case TimestampsSource:
		return checkOne(sourceTime)
	case TimestampsServer:
		return checkOne(serverTime)
	case TimestampsBoth:
		return checkOne(serverTime) && checkOne(sourceTime)
	default:
		return true
	}
}

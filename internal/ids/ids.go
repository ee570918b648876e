// Package ids provides the clock and identifier primitives shared across the
// gateway: epoch-millisecond timestamps and uuid-backed session/trace ids.
package ids

import (
	"time"

	"github.com/google/uuid"
)

// NowUTC returns the current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// NowMs returns the current epoch time in milliseconds, the unit every
// persisted timestamp column in this gateway uses.
func NowMs() int64 {
	return NowUTC().UnixMilli()
}

// ToMs converts a time.Time to epoch milliseconds.
func ToMs(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMs converts epoch milliseconds back to a UTC time.Time.
func FromMs(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// NewSessionID returns a new unique session id.
func NewSessionID() string {
	return "sess_" + uuid.NewString()
}

// NewTraceID returns a new unique trace id for a processing context.
func NewTraceID() string {
	return uuid.NewString()
}

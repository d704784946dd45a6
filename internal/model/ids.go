package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID prefixes for synthesized identifiers.
const (
	NotebookIDPrefix = "nb"
	TaskIDPrefix     = "task"
	SubtaskIDPrefix  = "sub"
)

var timeNow = func() time.Time { return time.Now().UTC() }

// Now is the clock used for synthesized timestamps and IDs.
func Now() time.Time {
	return timeNow()
}

// SetClock replaces the clock and returns a func restoring the previous one. Tests only.
func SetClock(fn func() time.Time) (restore func()) {
	prev := timeNow
	timeNow = fn
	return func() { timeNow = prev }
}

// NewID returns prefix + "_" + ULID: a millisecond timestamp followed by a monotonic
// random suffix. IDs minted in the same millisecond still sort in creation order.
func NewID(prefix string) string {
	id, err := ulid.New(ulid.Timestamp(timeNow()), ulid.DefaultEntropy())
	if err != nil {
		// fallback
		return fmt.Sprintf("%s_%d", prefix, timeNow().UnixNano())
	}
	return prefix + "_" + strings.ToUpper(id.String())
}

// IDTime extracts the embedded timestamp from an ID minted by NewID.
func IDTime(id string) (time.Time, bool) {
	idx := strings.LastIndex(id, "_")
	if idx < 0 || idx == len(id)-1 {
		return time.Time{}, false
	}
	u, err := ulid.ParseStrict(id[idx+1:])
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()).UTC(), true
}

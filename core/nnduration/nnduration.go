// Package nnduration provides JSON-friendly non-negative duration types.
// A value may be written as an integer count of the unit, or as a Go duration string.
package nnduration

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

func parse(p []byte, unit time.Duration) (uint64, error) {
	input := strings.Trim(string(p), `"`)
	if d, e := time.ParseDuration(input); e == nil {
		if d < 0 {
			return 0, strconv.ErrRange
		}
		return uint64(d / unit), nil
	}
	return strconv.ParseUint(input, 10, 64)
}

// Milliseconds is a duration in milliseconds.
type Milliseconds uint64

// Duration converts to time.Duration.
func (d Milliseconds) Duration() time.Duration {
	return time.Duration(d) * time.Millisecond
}

// DurationOr returns d as time.Duration, or dflt milliseconds if d is zero.
func (d Milliseconds) DurationOr(dflt Milliseconds) time.Duration {
	if d == 0 {
		return dflt.Duration()
	}
	return d.Duration()
}

// MarshalJSON implements json.Marshaler.
func (d Milliseconds) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint64(d))
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Milliseconds) UnmarshalJSON(p []byte) error {
	v, e := parse(p, time.Millisecond)
	*d = Milliseconds(v)
	return e
}

// Microseconds is a duration in microseconds.
type Microseconds uint64

// Duration converts to time.Duration.
func (d Microseconds) Duration() time.Duration {
	return time.Duration(d) * time.Microsecond
}

// DurationOr returns d as time.Duration, or dflt microseconds if d is zero.
func (d Microseconds) DurationOr(dflt Microseconds) time.Duration {
	if d == 0 {
		return dflt.Duration()
	}
	return d.Duration()
}

// MarshalJSON implements json.Marshaler.
func (d Microseconds) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint64(d))
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Microseconds) UnmarshalJSON(p []byte) error {
	v, e := parse(p, time.Microsecond)
	*d = Microseconds(v)
	return e
}

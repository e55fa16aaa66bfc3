package model

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Timestamp is a point in time encoded as unix milliseconds on the wire.
//
// Decoding accepts JSON numbers (integer or fractional), numeric strings and
// null. Decoded values are always in UTC.
type Timestamp struct {
	time.Time
}

// NewTimestamp converts unix milliseconds into a Timestamp.
func NewTimestamp(ms int64) Timestamp {
	return Timestamp{Time: time.UnixMilli(ms).UTC()}
}

// MarshalJSON encodes the timestamp as unix milliseconds, or null when zero.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, t.UnixMilli(), 10), nil
}

// UnmarshalJSON decodes unix milliseconds.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	raw := string(bytes.Trim(data, `"`))
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}

	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*t = NewTimestamp(ms)
		return nil
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("invalid unix millisecond timestamp %s", data)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return fmt.Errorf("unix millisecond timestamp %s out of range", data)
	}
	*t = NewTimestamp(int64(f))
	return nil
}

package model

import "time"

// Interval is the sampling granularity of a history query.
type Interval string

const (
	IntervalM1  Interval = "m1"
	IntervalM5  Interval = "m5"
	IntervalM15 Interval = "m15"
	IntervalM30 Interval = "m30"
	IntervalH1  Interval = "h1"
	IntervalH2  Interval = "h2"
	IntervalH6  Interval = "h6"
	IntervalH12 Interval = "h12"
	IntervalD1  Interval = "d1"
)

var intervalDurations = map[Interval]time.Duration{
	IntervalM1:  time.Minute,
	IntervalM5:  5 * time.Minute,
	IntervalM15: 15 * time.Minute,
	IntervalM30: 30 * time.Minute,
	IntervalH1:  time.Hour,
	IntervalH2:  2 * time.Hour,
	IntervalH6:  6 * time.Hour,
	IntervalH12: 12 * time.Hour,
	IntervalD1:  24 * time.Hour,
}

// Intervals lists the recognised intervals from finest to coarsest.
func Intervals() []Interval {
	return []Interval{
		IntervalM1, IntervalM5, IntervalM15, IntervalM30,
		IntervalH1, IntervalH2, IntervalH6, IntervalH12, IntervalD1,
	}
}

// Valid reports whether i is one of the recognised intervals.
func (i Interval) Valid() bool {
	_, ok := intervalDurations[i]
	return ok
}

// Duration returns the length of one sample, or 0 for an unknown interval.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

func (i Interval) String() string {
	return string(i)
}

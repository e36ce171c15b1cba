package models

import "time"

// DateLayout is the storage format for calendar days, identical on both
// database engines.
const DateLayout = "2006-01-02"

// TimeLayout is the storage format for timestamps: RFC3339 UTC with a
// fixed-width nanosecond fraction, so text ordering matches time ordering
// even within one second.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// NowUTC returns the current instant in TimeLayout.
func NowUTC() string {
	return time.Now().UTC().Format(TimeLayout)
}

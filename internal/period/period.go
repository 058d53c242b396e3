// Package period implements the fixed 30-minute reward windows. Periods are
// aligned to the unix epoch, so every start is a multiple of 1800 seconds.
package period

import (
	"fmt"
	"time"
)

const (
	Length        = 30 * time.Minute
	LengthSeconds = int64(Length / time.Second)
)

// Period is the half-open interval [Start, Start+Length).
type Period struct {
	start int64
}

// Containing returns the period t falls into.
func Containing(t time.Time) Period {
	return FromUnix(t.Unix())
}

// Previous returns the last fully closed period before the one containing t.
func Previous(t time.Time) Period {
	return Containing(t).Prev()
}

// FromUnix floors sec to a period boundary.
func FromUnix(sec int64) Period {
	start := sec - mod(sec, LengthSeconds)
	return Period{start: start}
}

// Parse accepts an already aligned start and rejects anything else.
func Parse(sec int64) (Period, error) {
	if mod(sec, LengthSeconds) != 0 {
		return Period{}, fmt.Errorf("period start %d is not aligned to %d seconds", sec, LengthSeconds)
	}
	return Period{start: sec}, nil
}

func (p Period) Unix() int64      { return p.start }
func (p Period) Start() time.Time { return time.Unix(p.start, 0).UTC() }
func (p Period) End() time.Time   { return time.Unix(p.start+LengthSeconds, 0).UTC() }
func (p Period) Prev() Period     { return Period{start: p.start - LengthSeconds} }
func (p Period) Next() Period     { return Period{start: p.start + LengthSeconds} }

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start()) && t.Before(p.End())
}

// Remaining is the time left in p as seen from t, zero once p is over.
func (p Period) Remaining(t time.Time) time.Duration {
	d := p.End().Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

func (p Period) String() string {
	return p.Start().Format(time.RFC3339) + "/" + p.End().Format(time.RFC3339)
}

// mod is always non-negative so pre-epoch instants still floor downwards.
func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

package report

import "time"

// BoundaryPolicy controls whether the window's start instant itself counts.
// The source data has historically been filtered with a strict comparison on
// both bounds, so the exclusive policy is the default; the inclusive-start
// variant exists because the intended behavior at exactly Sep 1 00:00:00 is
// an open policy question.
type BoundaryPolicy int

const (
	BoundaryExclusive BoundaryPolicy = iota
	BoundaryInclusiveStart
)

// Window is a half-open-ish reporting interval. The end is always exclusive;
// the start depends on the policy.
type Window struct {
	Start  time.Time
	End    time.Time
	Policy BoundaryPolicy
}

// KitaYearWindow spans one Kita year: Sep 1 of the given year to Sep 1 of
// the next.
func KitaYearWindow(year int, policy BoundaryPolicy) Window {
	return Window{
		Start:  time.Date(year, time.September, 1, 0, 0, 0, 0, time.UTC),
		End:    time.Date(year+1, time.September, 1, 0, 0, 0, 0, time.UTC),
		Policy: policy,
	}
}

// Contains reports whether t falls inside the window under its policy.
func (w Window) Contains(t time.Time) bool {
	if !t.Before(w.End) {
		return false
	}
	if w.Policy == BoundaryInclusiveStart {
		return !t.Before(w.Start)
	}
	return t.After(w.Start)
}

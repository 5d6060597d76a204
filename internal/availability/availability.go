// Package availability computes the day-by-day attendance summary for an
// event range. It is pure: no clock, no storage, and deterministic output
// for equal inputs regardless of input ordering.
package availability

import (
	"sort"
	"time"
)

// Block is one attendee-day unavailability mark as fed into Compute.
type Block struct {
	PersonID  uint64
	Day       time.Time
	Anonymous bool
}

// Day aggregates one calendar day inside the event range. BlockedBy lists
// the non-anonymous blockers in ascending id order; Blocked counts all of
// them, anonymous included.
type Day struct {
	Day       time.Time
	Available int
	Blocked   int
	BlockedBy []uint64
}

// Result is the availability summary over an inclusive day range.
type Result struct {
	TotalIn      int
	Days         []Day
	EarliestAll  *time.Time
	EarliestMost *time.Time
	Top3         []Day
}

// DayKey truncates t to UTC midnight. Every day comparison in the engine
// and its callers goes through this normalization.
func DayKey(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Compute derives the summary for the given in-set over [start, end].
// Blocks from people outside the in-set and days outside the range are
// discarded. For each day, available = totalIn - distinct blockers,
// floored at zero. EarliestAll is the first fully free day and is absent
// when the in-set is empty. EarliestMost is the first day with the highest
// availability. Top3 holds up to three days ordered by availability
// descending, then date ascending.
func Compute(inSet []uint64, blocks []Block, start, end time.Time) Result {
	in := make(map[uint64]struct{}, len(inSet))
	for _, id := range inSet {
		in[id] = struct{}{}
	}
	totalIn := len(in)

	first := DayKey(start)
	last := DayKey(end)

	// day -> person -> blocked anonymously at least once
	blockers := make(map[time.Time]map[uint64]bool)
	for _, b := range blocks {
		if _, ok := in[b.PersonID]; !ok {
			continue
		}
		d := DayKey(b.Day)
		if d.Before(first) || d.After(last) {
			continue
		}
		m := blockers[d]
		if m == nil {
			m = make(map[uint64]bool)
			blockers[d] = m
		}
		m[b.PersonID] = m[b.PersonID] || b.Anonymous
	}

	var days []Day
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		m := blockers[d]
		available := totalIn - len(m)
		if available < 0 {
			available = 0
		}
		day := Day{Day: d, Available: available, Blocked: len(m)}
		for id, anonymous := range m {
			if !anonymous {
				day.BlockedBy = append(day.BlockedBy, id)
			}
		}
		sort.Slice(day.BlockedBy, func(i, j int) bool { return day.BlockedBy[i] < day.BlockedBy[j] })
		days = append(days, day)
	}

	result := Result{TotalIn: totalIn, Days: days}
	if len(days) == 0 {
		result.Top3 = []Day{}
		return result
	}

	if totalIn > 0 {
		for i := range days {
			if days[i].Available == totalIn {
				d := days[i].Day
				result.EarliestAll = &d
				break
			}
		}
	}

	best := 0
	for i := 1; i < len(days); i++ {
		if days[i].Available > days[best].Available {
			best = i
		}
	}
	mostDay := days[best].Day
	result.EarliestMost = &mostDay

	ranked := make([]Day, len(days))
	copy(ranked, days)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Available != ranked[j].Available {
			return ranked[i].Available > ranked[j].Available
		}
		return ranked[i].Day.Before(ranked[j].Day)
	})
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	result.Top3 = ranked

	return result
}

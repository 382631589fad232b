package analytics

import (
	"fmt"
	"sort"
	"time"

	"pushlytics/api/models"
	"pushlytics/api/store"
)

// CohortGroup is the set of users whose first entry event falls in one period.
type CohortGroup struct {
	Start time.Time
	Users []string
}

// CohortAssignment buckets users by the period of their first entry event.
// Every user belongs to exactly one group.
type CohortAssignment struct {
	Period models.Period
	Groups []CohortGroup
	index  map[string]int
}

// AssignCohorts truncates each user's first entry timestamp to its period start
// and groups users by it. Groups are ordered by start.
func AssignCohorts(entries []store.FirstSeen, period models.Period) CohortAssignment {
	first := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		if e.UserID == "" {
			continue
		}
		if cur, ok := first[e.UserID]; !ok || e.Timestamp.Before(cur) {
			first[e.UserID] = e.Timestamp
		}
	}

	byStart := make(map[time.Time][]string)
	for user, ts := range first {
		start := period.Truncate(ts)
		byStart[start] = append(byStart[start], user)
	}

	a := CohortAssignment{
		Period: period,
		Groups: make([]CohortGroup, 0, len(byStart)),
		index:  make(map[string]int, len(first)),
	}
	for start, users := range byStart {
		sort.Strings(users)
		a.Groups = append(a.Groups, CohortGroup{Start: start, Users: users})
	}
	sort.Slice(a.Groups, func(i, j int) bool { return a.Groups[i].Start.Before(a.Groups[j].Start) })
	for i, g := range a.Groups {
		for _, u := range g.Users {
			a.index[u] = i
		}
	}
	return a
}

// CohortOf returns the group index of a user.
func (a CohortAssignment) CohortOf(user string) (int, bool) {
	i, ok := a.index[user]
	return i, ok
}

// TotalUsers is the number of assigned users.
func (a CohortAssignment) TotalUsers() int64 {
	return int64(len(a.index))
}

// ActivityRange covers every period window the offsets can reach:
// [first cohort start, last cohort start + (max offset + 1) units).
// The end is made inclusive by stepping back one nanosecond.
func ActivityRange(a CohortAssignment, unit models.Period, offsets []int) (models.TimeRange, bool) {
	if len(a.Groups) == 0 || len(offsets) == 0 {
		return models.TimeRange{}, false
	}
	maxOffset := 0
	for _, o := range offsets {
		if o > maxOffset {
			maxOffset = o
		}
	}
	start := a.Groups[0].Start
	end := unit.Add(a.Groups[len(a.Groups)-1].Start, maxOffset+1)
	return models.TimeRange{Start: start, End: end.Add(-time.Nanosecond)}, true
}

// CohortLabel names a cohort: an ISO week label for weekly cohorts, the start
// date otherwise.
func CohortLabel(period models.Period, start time.Time) string {
	if period == models.PeriodWeek {
		year, week := start.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	}
	return start.Format("2006-01-02")
}

func newBucket(period models.Period, g CohortGroup) models.CohortBucket {
	b := models.CohortBucket{
		CohortStart: g.Start,
		CohortSize:  int64(len(g.Users)),
		Periods:     make(map[string]models.PeriodStats),
	}
	if period == models.PeriodWeek {
		b.CohortWeek = CohortLabel(period, g.Start)
	} else {
		b.CohortDate = CohortLabel(period, g.Start)
	}
	return b
}

package analytics

import (
	"sort"
	"time"

	"pushlytics/api/models"
	"pushlytics/api/store"
)

// FunnelMatch is the per-user outcome of ordered step matching.
type FunnelMatch struct {
	// Counts[k] is the number of users reaching step k.
	Counts []int64
	// Progress holds, per user, the chosen timestamp of every step reached, in step order.
	Progress map[string][]time.Time
}

// MatchFunnel runs ordered matching over scanned step rows.
//
// Every step-0 event is reachable. A step-k event at t is reachable when a
// reachable step-(k-1) event happened at or before t within the window; under
// WindowFromFirstStep the window is measured from the chain's first step
// instead. A window of zero is unbounded. The chosen timestamp of a step is its
// earliest reachable event, so chosen timestamps never decrease along the funnel.
func MatchFunnel(rows []store.StepRow, steps int, window time.Duration, policy models.WindowPolicy) FunnelMatch {
	match := FunnelMatch{
		Counts:   make([]int64, steps),
		Progress: make(map[string][]time.Time),
	}
	if steps == 0 {
		return match
	}

	byUser := make(map[string][]store.StepRow)
	for _, r := range rows {
		if r.Step < 0 || r.Step >= steps {
			continue
		}
		byUser[r.UserID] = append(byUser[r.UserID], r)
	}

	for user, events := range byUser {
		chosen := matchUser(events, steps, window, policy)
		if len(chosen) == 0 {
			continue
		}
		match.Progress[user] = chosen
		for k := range chosen {
			match.Counts[k]++
		}
	}
	return match
}

func matchUser(events []store.StepRow, steps int, window time.Duration, policy models.WindowPolicy) []time.Time {
	// Lower steps first at equal timestamps, so one event can satisfy consecutive steps.
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].Step < events[j].Step
	})

	// ref[k] is the most permissive reference among reachable step-k events seen
	// so far: the latest event time, or the latest chain anchor.
	ref := make([]time.Time, steps)
	reached := make([]bool, steps)
	chosen := make([]time.Time, 0, steps)

	for _, e := range events {
		k := e.Step
		var r time.Time
		if k == 0 {
			r = e.Timestamp
		} else {
			if !reached[k-1] {
				continue
			}
			prev := ref[k-1]
			if window > 0 && e.Timestamp.Sub(prev) > window {
				continue
			}
			r = e.Timestamp
			if policy == models.WindowFromFirstStep {
				r = prev
			}
		}

		if !reached[k] {
			reached[k] = true
			ref[k] = r
			// Steps become reachable in order, so k == len(chosen) here.
			chosen = append(chosen, e.Timestamp)
		} else if r.After(ref[k]) {
			ref[k] = r
		}
	}
	return chosen
}

// Package merge deduplicates and orders calendar events gathered from
// overlapping sub-range fetches.
package merge

import (
	"slices"
	"time"

	"github.com/rickgao/marketsync/internal/model"
)

// Dedup drops every event whose composite key was already seen.
// The first occurrence wins and input order is preserved.
func Dedup(events []model.CalendarEvent) []model.CalendarEvent {
	seen := make(map[string]struct{}, len(events))
	out := make([]model.CalendarEvent, 0, len(events))

	for _, e := range events {
		key := e.CompositeKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}

	return out
}

// Merge deduplicates events and orders them for display: events dated today or
// later come first, soonest first; past events follow, most recent first.
// Events on the same date keep their merge order.
func Merge(events []model.CalendarEvent, today time.Time) []model.CalendarEvent {
	out := Dedup(events)

	slices.SortStableFunc(out, func(a, b model.CalendarEvent) int {
		aUp, bUp := a.Upcoming(today), b.Upcoming(today)
		switch {
		case aUp && !bUp:
			return -1
		case !aUp && bUp:
			return 1
		case aUp:
			return a.Date.Compare(b.Date)
		default:
			return b.Date.Compare(a.Date)
		}
	})

	return out
}

// Split partitions an ordered result into its upcoming and past sections.
func Split(events []model.CalendarEvent, today time.Time) (upcoming, past []model.CalendarEvent) {
	i := slices.IndexFunc(events, func(e model.CalendarEvent) bool {
		return !e.Upcoming(today)
	})
	if i < 0 {
		return events, nil
	}
	return events[:i], events[i:]
}

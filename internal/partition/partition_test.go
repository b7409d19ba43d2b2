package partition

import (
	"strings"
	"testing"
	"time"

	"github.com/rickgao/marketsync/internal/model"
)

func TestPartition_DefaultIPOHorizon(t *testing.T) {
	anchor := time.Date(2026, 10, 17, 13, 45, 0, 0, time.UTC)
	h := Horizon{PastMonths: 12, FutureMonths: 18, PastChunkMonths: 4, FutureChunkMonths: 3}

	ranges, err := Partition(anchor, h)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}

	if len(ranges) != 9 {
		t.Fatalf("len(ranges) = %d, want 9", len(ranges))
	}

	var past, next int
	for _, r := range ranges {
		switch {
		case strings.HasPrefix(r.Label, "past-"):
			past++
		case strings.HasPrefix(r.Label, "next-"):
			next++
		}
	}
	if past != 3 || next != 6 {
		t.Errorf("past=%d next=%d, want 3 and 6", past, next)
	}

	wantStart := time.Date(2025, 10, 17, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2028, 4, 17, 0, 0, 0, 0, time.UTC)
	if !ranges[0].From.Equal(wantStart) {
		t.Errorf("first From = %v, want %v", ranges[0].From, wantStart)
	}
	if !ranges[len(ranges)-1].To.Equal(wantEnd) {
		t.Errorf("last To = %v, want %v", ranges[len(ranges)-1].To, wantEnd)
	}
	if ranges[0].Label != "past-1:2025-10-17..2026-02-17" {
		t.Errorf("first label = %q", ranges[0].Label)
	}
}

func TestPartition_CoverageAndWidth(t *testing.T) {
	anchors := []time.Time{
		time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 31, 22, 0, 0, 0, time.UTC),
		time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC),
	}
	horizons := []Horizon{
		{PastMonths: 12, FutureMonths: 18, PastChunkMonths: 4, FutureChunkMonths: 3},
		{PastMonths: 3, FutureMonths: 6, PastChunkMonths: 1, FutureChunkMonths: 1},
		{PastMonths: 7, FutureMonths: 5, PastChunkMonths: 3, FutureChunkMonths: 2},
		{PastMonths: 0, FutureMonths: 4, FutureChunkMonths: 4},
		{PastMonths: 2, FutureMonths: 0, PastChunkMonths: 6},
		{PastMonths: 13, FutureMonths: 11, PastChunkMonths: 3, FutureChunkMonths: 3},
	}

	for _, anchor := range anchors {
		for _, h := range horizons {
			ranges, err := Partition(anchor, h)
			if err != nil {
				t.Fatalf("Partition(%v, %+v) failed: %v", anchor, h, err)
			}

			day := model.Day(anchor)
			start := day.AddDate(0, -h.PastMonths, 0)
			end := day.AddDate(0, h.FutureMonths, 0)

			if !ranges[0].From.Equal(start) {
				t.Errorf("%v %+v: first From = %v, want %v", anchor, h, ranges[0].From, start)
			}
			if !ranges[len(ranges)-1].To.Equal(end) {
				t.Errorf("%v %+v: last To = %v, want %v", anchor, h, ranges[len(ranges)-1].To, end)
			}

			for i, r := range ranges {
				if r.From.After(r.To) {
					t.Errorf("%v %+v: range %d has From after To", anchor, h, i)
				}
				if i > 0 && !ranges[i-1].To.Equal(r.From) {
					t.Errorf("%v %+v: gap between range %d and %d", anchor, h, i-1, i)
				}

				chunk := h.FutureChunkMonths
				if strings.HasPrefix(r.Label, "past-") {
					chunk = h.PastChunkMonths
				}
				if r.To.After(r.From.AddDate(0, chunk, 0)) {
					t.Errorf("%v %+v: range %s wider than %d months", anchor, h, r.Label, chunk)
				}
			}
		}
	}
}

func TestPartition_OnlyForward(t *testing.T) {
	ranges, err := Partition(time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), Horizon{FutureMonths: 4, FutureChunkMonths: 3})
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if len(ranges) != 2 {
		t.Fatalf("len(ranges) = %d, want 2", len(ranges))
	}
	// Final chunk is clipped to the horizon end.
	if got := ranges[1].To.Format(model.DateLayout); got != "2027-02-17" {
		t.Errorf("last To = %s, want 2027-02-17", got)
	}
	if got := ranges[1].From.Format(model.DateLayout); got != "2027-01-17" {
		t.Errorf("last From = %s, want 2027-01-17", got)
	}
}

func TestPartition_Invalid(t *testing.T) {
	tests := []struct {
		name string
		h    Horizon
	}{
		{"zero past chunk", Horizon{PastMonths: 12, FutureMonths: 3, FutureChunkMonths: 1}},
		{"zero future chunk", Horizon{PastMonths: 1, PastChunkMonths: 1, FutureMonths: 3}},
		{"negative months", Horizon{PastMonths: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Partition(time.Now(), tt.h); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPartition_Empty(t *testing.T) {
	ranges, err := Partition(time.Now(), Horizon{})
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if len(ranges) != 0 {
		t.Errorf("len(ranges) = %d, want 0", len(ranges))
	}
}

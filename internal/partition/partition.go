// Package partition splits a calendar horizon into bounded sub-ranges.
//
// Upstream calendar endpoints cap how much they return per call, so a year of
// history and a year and a half of upcoming events are requested as a series of
// month-aligned chunks. Historical chunks may be coarser than forward ones.
package partition

import (
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/marketsync/internal/model"
)

// Horizon describes how far a calendar looks back and ahead, and the chunk
// widths used on each side. All values are in calendar months.
type Horizon struct {
	PastMonths        int
	FutureMonths      int
	PastChunkMonths   int
	FutureChunkMonths int
}

// Validate checks that every non-empty side has a positive chunk width.
func (h Horizon) Validate() error {
	if h.PastMonths < 0 || h.FutureMonths < 0 {
		return errors.New("horizon months must be >= 0")
	}
	if h.PastMonths > 0 && h.PastChunkMonths < 1 {
		return fmt.Errorf("past chunk must be >= 1 month, got %d", h.PastChunkMonths)
	}
	if h.FutureMonths > 0 && h.FutureChunkMonths < 1 {
		return fmt.Errorf("future chunk must be >= 1 month, got %d", h.FutureChunkMonths)
	}
	return nil
}

// Partition returns the ordered ranges covering [anchor-PastMonths, anchor+FutureMonths],
// oldest first. Adjacent ranges share their boundary day.
func Partition(anchor time.Time, h Horizon) ([]model.TimeRange, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}

	day := model.Day(anchor)
	ranges := make([]model.TimeRange, 0, chunkCount(h.PastMonths, h.PastChunkMonths)+chunkCount(h.FutureMonths, h.FutureChunkMonths))

	ranges = appendChunks(ranges, "past", day.AddDate(0, -h.PastMonths, 0), day, h.PastMonths, h.PastChunkMonths)
	ranges = appendChunks(ranges, "next", day, day.AddDate(0, h.FutureMonths, 0), h.FutureMonths, h.FutureChunkMonths)

	return ranges, nil
}

// appendChunks walks [start, end] in steps of chunk months. Boundaries are
// derived from start rather than from the previous boundary so month-end
// normalization (Jan 31 + 1 month) cannot accumulate drift; a boundary is
// pulled in when normalization would make a chunk wider than chunk months.
func appendChunks(dst []model.TimeRange, side string, start, end time.Time, months, chunk int) []model.TimeRange {
	if months == 0 {
		return dst
	}

	from := start
	for i := 1; from.Before(end); i++ {
		to := start.AddDate(0, i*chunk, 0)
		if limit := from.AddDate(0, chunk, 0); to.After(limit) {
			to = limit
		}
		if to.After(end) {
			to = end
		}

		dst = append(dst, model.TimeRange{
			From:  from,
			To:    to,
			Label: fmt.Sprintf("%s-%d:%s..%s", side, i, from.Format(model.DateLayout), to.Format(model.DateLayout)),
		})
		from = to
	}
	return dst
}

func chunkCount(months, chunk int) int {
	if months <= 0 || chunk <= 0 {
		return 0
	}
	return (months + chunk - 1) / chunk
}

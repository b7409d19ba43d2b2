package api

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rickgao/marketsync/internal/model"
)

// GetIPOCalendar fetches IPO records dated within [from, to].
func (c *Client) GetIPOCalendar(ctx context.Context, from, to time.Time) ([]APIIPO, error) {
	var resp IPOCalendarResponse
	if err := c.get(ctx, "/calendar/ipo", dateQuery(from, to), &resp); err != nil {
		return nil, fmt.Errorf("get ipo calendar: %w", err)
	}
	return resp.IPOCalendar, nil
}

// GetEarningsCalendar fetches earnings records dated within [from, to].
func (c *Client) GetEarningsCalendar(ctx context.Context, from, to time.Time) ([]APIEarnings, error) {
	var resp EarningsCalendarResponse
	if err := c.get(ctx, "/calendar/earnings", dateQuery(from, to), &resp); err != nil {
		return nil, fmt.Errorf("get earnings calendar: %w", err)
	}
	return resp.EarningsCalendar, nil
}

// GetCalendar fetches one sub-range of a calendar and converts it to model events.
// Records without a parseable date are dropped.
func (c *Client) GetCalendar(ctx context.Context, kind model.CalendarKind, r model.TimeRange) ([]model.CalendarEvent, error) {
	var events []model.CalendarEvent

	switch kind {
	case model.KindIPO:
		records, err := c.GetIPOCalendar(ctx, r.From, r.To)
		if err != nil {
			return nil, err
		}
		events = make([]model.CalendarEvent, 0, len(records))
		for i := range records {
			events = append(events, records[i].ToModel())
		}

	case model.KindEarnings:
		records, err := c.GetEarningsCalendar(ctx, r.From, r.To)
		if err != nil {
			return nil, err
		}
		events = make([]model.CalendarEvent, 0, len(records))
		for i := range records {
			events = append(events, records[i].ToModel())
		}

	default:
		return nil, fmt.Errorf("unsupported calendar kind %q", kind)
	}

	valid := events[:0]
	for _, e := range events {
		if e.Date.IsZero() {
			c.logger.Debug("dropping calendar record without date", "kind", kind, "symbol", e.Symbol)
			continue
		}
		valid = append(valid, e)
	}

	return valid, nil
}

func dateQuery(from, to time.Time) url.Values {
	query := url.Values{}
	query.Set("from", from.UTC().Format(model.DateLayout))
	query.Set("to", to.UTC().Format(model.DateLayout))
	return query
}

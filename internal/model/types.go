package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and label format for calendar dates.
const DateLayout = "2006-01-02"

// -----------------------------------------------------------------------------
// Calendar Types
// -----------------------------------------------------------------------------

// CalendarKind identifies a calendar feature. Each kind owns its own cache entry.
type CalendarKind string

const (
	KindIPO      CalendarKind = "ipo"
	KindEarnings CalendarKind = "earnings"
)

// Kinds lists every supported calendar kind.
var Kinds = []CalendarKind{KindIPO, KindEarnings}

// ParseKind validates a calendar kind string.
func ParseKind(s string) (CalendarKind, error) {
	switch k := CalendarKind(strings.ToLower(s)); k {
	case KindIPO, KindEarnings:
		return k, nil
	}
	return "", fmt.Errorf("unknown calendar kind %q", s)
}

// TimeRange is a bounded slice of a calendar horizon. From <= To.
type TimeRange struct {
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
	Label string    `json:"label"`
}

// Days returns the width of the range in whole days.
func (r TimeRange) Days() int {
	return int(r.To.Sub(r.From).Hours() / 24)
}

func (r TimeRange) String() string {
	return r.Label
}

// CalendarEvent is a single IPO or earnings record.
type CalendarEvent struct {
	Kind     CalendarKind `json:"kind"`
	Date     time.Time    `json:"date"`
	Symbol   string       `json:"symbol"`
	Name     string       `json:"name,omitempty"`
	Status   string       `json:"status,omitempty"`   // IPO: expected, priced, filed, withdrawn
	Exchange string       `json:"exchange,omitempty"` // IPO listing venue
	Hour     string       `json:"hour,omitempty"`     // earnings: bmo, amc, dmh
	Quarter  int          `json:"quarter,omitempty"`
	Year     int          `json:"year,omitempty"`

	// Price is kept as published, IPO prices are often ranges ("18.00-20.00").
	Price            string              `json:"price,omitempty"`
	Shares           decimal.NullDecimal `json:"shares"`
	TotalSharesValue decimal.NullDecimal `json:"total_shares_value"`
	EPSEstimate      decimal.NullDecimal `json:"eps_estimate"`
	EPSActual        decimal.NullDecimal `json:"eps_actual"`
	RevenueEstimate  decimal.NullDecimal `json:"revenue_estimate"`
	RevenueActual    decimal.NullDecimal `json:"revenue_actual"`

	// Surprise percentages, null until both actual and a non-zero estimate exist.
	EPSSurprisePct     decimal.NullDecimal `json:"eps_surprise_pct"`
	RevenueSurprisePct decimal.NullDecimal `json:"revenue_surprise_pct"`

	SourceURL string `json:"source_url,omitempty"`
}

// IPO lifecycle statuses.
const (
	IPOStatusFiled     = "filed"
	IPOStatusExpected  = "expected"
	IPOStatusPriced    = "priced"
	IPOStatusWithdrawn = "withdrawn"
)

// SurprisePct returns (actual - estimate) / |estimate| * 100 rounded to two
// places. The result is null when either input is null or the estimate is zero.
func SurprisePct(actual, estimate decimal.NullDecimal) decimal.NullDecimal {
	if !actual.Valid || !estimate.Valid || estimate.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	pct := actual.Decimal.Sub(estimate.Decimal).
		Div(estimate.Decimal.Abs()).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	return decimal.NewNullDecimal(pct)
}

// CompositeKey identifies an event across overlapping fetch windows.
func (e CalendarEvent) CompositeKey() string {
	return strings.TrimSpace(e.Name) + "|" +
		e.Date.UTC().Format(DateLayout) + "|" +
		strings.ToUpper(strings.TrimSpace(e.Symbol))
}

// Upcoming reports whether the event falls on or after today.
func (e CalendarEvent) Upcoming(today time.Time) bool {
	return !e.Date.Before(Day(today))
}

// Snapshot is a merged calendar result set as persisted by the snapshot cache.
type Snapshot struct {
	Events        []CalendarEvent `json:"events"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion int             `json:"schema_version"`
	Ranges        []string        `json:"ranges"`
}

// Age returns how old the snapshot is at now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// -----------------------------------------------------------------------------
// Live Feed Types
// -----------------------------------------------------------------------------

// TradeTick is one trade received from the live feed. Ticks are never persisted.
type TradeTick struct {
	ID         string    `json:"id"` // locally assigned, unique per tick
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Volume     float64   `json:"volume"`
	Timestamp  int64     `json:"timestamp"` // exchange time, ms since epoch
	Conditions []string  `json:"conditions,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// ConnectionState is the live feed connection state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText lets the state appear by name in JSON.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

package api

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/marketsync/internal/model"
)

// ParseDate parses an upstream YYYY-MM-DD date to UTC midnight.
// Zero time for empty or invalid input.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}

	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		// Some records carry a full timestamp.
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}
		}
	}

	return model.Day(t)
}

// nullDecimal converts an optional upstream number.
func nullDecimal(f *float64) decimal.NullDecimal {
	if f == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*f))
}

// ParsePrice parses a published IPO price, either a single figure ("19",
// "$19.00") or a range ("18.00-20.00"). ok is false for empty or malformed
// input.
func ParsePrice(s string) (low, high decimal.Decimal, ok bool) {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return decimal.Zero, decimal.Zero, false
	}

	lo, hi, isRange := strings.Cut(s, "-")
	if !isRange {
		hi = lo
	}
	low, err := decimal.NewFromString(lo)
	if err != nil || !low.IsPositive() {
		return decimal.Zero, decimal.Zero, false
	}
	high, err = decimal.NewFromString(hi)
	if err != nil || high.LessThan(low) {
		return decimal.Zero, decimal.Zero, false
	}
	return low, high, true
}

// NormalizeIPOStatus maps an upstream status or SEC filing type onto the
// IPO lifecycle. Amendments count as expected only once a price is published.
// Unknown values are passed through lowercased.
func NormalizeIPOStatus(raw, price string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "S-1", "F-1":
		return model.IPOStatusFiled
	case "S-1/A", "F-1/A":
		if _, _, ok := ParsePrice(price); ok {
			return model.IPOStatusExpected
		}
		return model.IPOStatusFiled
	case "424B4":
		return model.IPOStatusPriced
	case "RW":
		return model.IPOStatusWithdrawn
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// dealSize returns the published offering value, or shares times the price
// midpoint when upstream omits it.
func dealSize(published, shares decimal.NullDecimal, price string) decimal.NullDecimal {
	if published.Valid || !shares.Valid {
		return published
	}
	low, high, ok := ParsePrice(price)
	if !ok {
		return published
	}
	mid := low.Add(high).Div(decimal.NewFromInt(2))
	return decimal.NewNullDecimal(shares.Decimal.Mul(mid))
}

// ToModel converts an APIIPO to model.CalendarEvent.
func (r *APIIPO) ToModel() model.CalendarEvent {
	shares := nullDecimal(r.NumberOfShares)
	return model.CalendarEvent{
		Kind:             model.KindIPO,
		Date:             ParseDate(r.Date),
		Symbol:           strings.TrimSpace(r.Symbol),
		Name:             strings.TrimSpace(r.Name),
		Status:           NormalizeIPOStatus(r.Status, r.Price),
		Exchange:         r.Exchange,
		Price:            r.Price,
		Shares:           shares,
		TotalSharesValue: dealSize(nullDecimal(r.TotalSharesValue), shares, r.Price),
		SourceURL:        sourceURL(r.Symbol),
	}
}

// ToModel converts an APIEarnings to model.CalendarEvent.
// Earnings records carry no company name; the symbol stands in for it.
func (r *APIEarnings) ToModel() model.CalendarEvent {
	symbol := strings.TrimSpace(r.Symbol)
	e := model.CalendarEvent{
		Kind:            model.KindEarnings,
		Date:            ParseDate(r.Date),
		Symbol:          symbol,
		Name:            symbol,
		Hour:            r.Hour,
		Quarter:         r.Quarter,
		Year:            r.Year,
		EPSEstimate:     nullDecimal(r.EPSEstimate),
		EPSActual:       nullDecimal(r.EPSActual),
		RevenueEstimate: nullDecimal(r.RevenueEstimate),
		RevenueActual:   nullDecimal(r.RevenueActual),
		SourceURL:       sourceURL(symbol),
	}
	e.EPSSurprisePct = model.SurprisePct(e.EPSActual, e.EPSEstimate)
	e.RevenueSurprisePct = model.SurprisePct(e.RevenueActual, e.RevenueEstimate)
	return e
}

func sourceURL(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return ""
	}
	return fmt.Sprintf("https://finnhub.io/quote/%s", url.PathEscape(symbol))
}

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// APIIPO is an IPO calendar record.
type APIIPO struct {
	Date             string   `json:"date"`
	Exchange         string   `json:"exchange"`
	Name             string   `json:"name"`
	NumberOfShares   *float64 `json:"numberOfShares"`
	Price            string   `json:"price"`
	Status           string   `json:"status"`
	Symbol           string   `json:"symbol"`
	TotalSharesValue *float64 `json:"totalSharesValue"`
}

// APIEarnings is an earnings calendar record.
type APIEarnings struct {
	Date            string   `json:"date"`
	EPSActual       *float64 `json:"epsActual"`
	EPSEstimate     *float64 `json:"epsEstimate"`
	Hour            string   `json:"hour"`
	Quarter         int      `json:"quarter"`
	RevenueActual   *float64 `json:"revenueActual"`
	RevenueEstimate *float64 `json:"revenueEstimate"`
	Symbol          string   `json:"symbol"`
	Year            int      `json:"year"`
}

// IPOCalendarResponse from GET /calendar/ipo.
type IPOCalendarResponse struct {
	IPOCalendar []APIIPO `json:"ipoCalendar"`
}

// EarningsCalendarResponse from GET /calendar/earnings.
type EarningsCalendarResponse struct {
	EarningsCalendar []APIEarnings `json:"earningsCalendar"`
}

// UnmarshalJSON accepts the wrapped envelope or a bare array.
func (r *IPOCalendarResponse) UnmarshalJSON(data []byte) error {
	if isArray(data) {
		return json.Unmarshal(data, &r.IPOCalendar)
	}
	type envelope IPOCalendarResponse
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode ipo calendar: %w", err)
	}
	*r = IPOCalendarResponse(env)
	return nil
}

// UnmarshalJSON accepts the wrapped envelope or a bare array.
func (r *EarningsCalendarResponse) UnmarshalJSON(data []byte) error {
	if isArray(data) {
		return json.Unmarshal(data, &r.EarningsCalendar)
	}
	type envelope EarningsCalendarResponse
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode earnings calendar: %w", err)
	}
	*r = EarningsCalendarResponse(env)
	return nil
}

func isArray(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}

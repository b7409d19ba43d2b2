// Package api provides the upstream market-data REST client.
//
// Endpoints (Finnhub-shaped):
//   - GET /calendar/ipo?from=YYYY-MM-DD&to=YYYY-MM-DD
//   - GET /calendar/earnings?from=YYYY-MM-DD&to=YYYY-MM-DD
//
// HTTP 429 is reported as ErrRateLimited and never retried here; the batch
// scheduler owns the rate-limit policy. 5xx responses are retried with
// jittered exponential backoff.
package api

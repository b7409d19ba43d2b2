// Package scheduler implements the batch scheduler for calendar sub-range fetches.
//
// The scheduler:
//   - Issues sub-ranges in fixed-size concurrent groups
//   - Staggers request starts inside a group and pauses between groups
//   - Retries a rate-limited range exactly once after a cooldown
//   - Treats every other failure (timeouts included) as a degraded, empty range
//
// No error from a single range ever escapes Run: partial upstream failure
// reduces coverage, it never aborts the refresh.
package scheduler

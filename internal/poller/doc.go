// Package poller implements the calendar refresh scheduler.
//
// The poller:
//   - Warms every calendar on start (cache hit or synchronous refresh)
//   - Refreshes each calendar on its own cron schedule (default @every 4h)
//   - Skips a tick while the previous refresh of that calendar still runs
//   - Leaves fresh snapshots alone (non-forced refresh)
package poller

// Package calendar serves one market calendar (IPO or earnings) to readers.
//
// A Service ties the refresh pipeline together:
//
//	partition -> scheduler (network) -> merge -> cache write
//
// Reads consult the snapshot cache first. A fresh snapshot is returned as is,
// a stale one is returned while a single background refresh runs, and an
// absent one is refreshed synchronously. A refresh where no range succeeded
// falls back to the stale snapshot with a warning instead of failing.
package calendar

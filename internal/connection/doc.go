// Package connection implements the live trade feed.
//
// The feed:
//   - Owns exactly one WebSocket connection to the streaming source
//   - Re-subscribes every configured symbol on each successful connect
//   - Reconnects with exponential backoff up to a maximum attempt count,
//     then waits in the error state for a manual Retry
//   - Keeps the most recent trade ticks in a fixed-capacity buffer
//
// All connection state is owned by a single run loop that consumes one
// ordered event queue, so timers, dial results and inbound frames never race.
package connection

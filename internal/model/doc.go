// Package model defines the shared data types of the market-data sync layer.
//
// Conventions:
//   - Calendar dates: time.Time at UTC midnight, serialized as YYYY-MM-DD
//   - Money fields on calendar events: decimal.NullDecimal (null when upstream omits them)
//   - Tick timestamps: int64 milliseconds since Unix epoch (upstream resolution)
package model

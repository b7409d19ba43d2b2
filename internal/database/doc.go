// Package database opens PostgreSQL connection pools for the snapshot store.
package database

// Package flytime accounts per-drone flight time from OSD telemetry.
//
// Drones report a monotonically increasing lifetime flight-time counter.
// The service turns that counter into a per-calendar-day delta through a
// durable ledger with one row per drone per day: the row is opened with a
// provisional anchor carried over from the previous day, re-anchored once on
// the day's first live signal, and updated in place for the rest of the day.
// An event-driven ingestion path and a time-driven maintenance path write
// the ledger concurrently; every write is a single guarded, idempotent
// transition so the two paths need no coordination beyond the store itself.
package flytime

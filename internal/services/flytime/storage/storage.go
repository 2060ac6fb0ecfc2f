// Package storage defines persistence contracts for flight-time ledger state.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested ledger record is missing.
var ErrNotFound = errors.New("record not found")

// DayLayout is the calendar-day key format used throughout the ledger.
const DayLayout = "2006-01-02"

// DayKey returns the calendar-day ledger key for a wall-clock instant,
// evaluated in the instant's own location.
func DayKey(now time.Time) string {
	return now.Format(DayLayout)
}

// Drone stores one registered drone. Type and Version are optional; empty
// strings mean "unknown" and never overwrite a known value on re-registration.
type Drone struct {
	SN        string
	Type      string
	Version   string
	UpdatedAt time.Time
}

// FlightDay stores the per-drone per-day flight-time accounting row.
//
// DayStartTotal anchors the day: TodaySeconds is always derived as
// max(0, LifetimeTotal-DayStartTotal). AnchorRevised records the one-time
// correction of a carried-over anchor to the day's first observed counter.
type FlightDay struct {
	DroneSN       string
	Day           string
	AnchorRevised bool
	DayStartTotal int64
	LifetimeTotal int64
	TodaySeconds  int64
	ObservedAt    time.Time
}

// DayUsage stores one day's derived flight seconds for a drone.
type DayUsage struct {
	Day     string
	Seconds int64
}

// DroneUsage stores a drone's summed flight seconds over a day range,
// joined with its registration metadata.
type DroneUsage struct {
	SN           string
	Type         string
	Version      string
	TotalSeconds int64
}

// LedgerStore persists drones and their daily flight-time rows.
//
// Every write is a single independently-committed guarded transition; there
// is no cross-operation transaction. Guarded updates treat a missing row as
// a silent no-op, never an error.
type LedgerStore interface {
	// RegisterDrone upserts a drone, merging non-empty fields.
	RegisterDrone(ctx context.Context, sn, droneType, version string) error
	// ListDrones returns all registered drones ordered by serial number.
	ListDrones(ctx context.Context) ([]Drone, error)
	// LatestLifetimeTotal returns the most recent lifetime counter across all
	// days for a drone, by day descending. ok is false when no rows exist.
	LatestLifetimeTotal(ctx context.Context, sn string) (total int64, ok bool, err error)
	// OpenToday creates today's row when absent, anchored at initialTotal,
	// and returns the row. An existing row is returned unchanged.
	OpenToday(ctx context.Context, sn string, now time.Time, initialTotal int64) (FlightDay, error)
	// ReviseAnchorOnFirstSignal re-anchors today's row at freshTotal, at most
	// once per row. No-op when the row is absent or already revised.
	ReviseAnchorOnFirstSignal(ctx context.Context, sn string, now time.Time, freshTotal int64) error
	// UpdateTotal records a fresh lifetime counter on today's row and
	// recomputes the derived daily seconds. No-op when the row is absent.
	UpdateTotal(ctx context.Context, sn string, now time.Time, freshTotal int64) error
	// EnsureTodayForAll opens today's row for every registered drone that is
	// missing one, seeded from its latest known lifetime total. Returns the
	// number of rows created.
	EnsureTodayForAll(ctx context.Context, now time.Time) (int, error)
	// DayRow returns the row for one drone and day key.
	DayRow(ctx context.Context, sn, day string) (FlightDay, error)
	// DroneDailyUsage returns per-day flight seconds for a drone across an
	// inclusive day-key range, ordered by day ascending.
	DroneDailyUsage(ctx context.Context, sn, startDay, endDay string) ([]DayUsage, error)
	// UsageSummary returns summed flight seconds per drone across an
	// inclusive day-key range. Drones with no rows in range report 0.
	UsageSummary(ctx context.Context, startDay, endDay string) ([]DroneUsage, error)
}

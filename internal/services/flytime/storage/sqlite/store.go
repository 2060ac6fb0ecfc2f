// Package sqlite provides a SQLite-backed flight-time ledger implementation.
//
// Every exported write maps to a single guarded SQL statement so that the
// ingestion path and the maintenance path can interleave freely: SQLite's
// per-row write serialization is the only coordination point.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/skyfleet/flytime/internal/platform/storage/sqlitemigrate"
	"github.com/skyfleet/flytime/internal/services/flytime/storage"
	"github.com/skyfleet/flytime/internal/services/flytime/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists flight-time ledger state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite ledger store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RegisterDrone upserts a drone record, merging non-empty fields. Empty type
// or version values leave existing metadata untouched.
func (s *Store) RegisterDrone(ctx context.Context, sn, droneType, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sn = strings.TrimSpace(sn)
	if sn == "" {
		return fmt.Errorf("drone sn is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO drones (drone_sn, drone_type, drone_version, updated_at)
		 VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?)
		 ON CONFLICT(drone_sn) DO UPDATE SET
		   drone_type = COALESCE(excluded.drone_type, drones.drone_type),
		   drone_version = COALESCE(excluded.drone_version, drones.drone_version),
		   updated_at = excluded.updated_at`,
		sn,
		strings.TrimSpace(droneType),
		strings.TrimSpace(version),
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("register drone: %w", err)
	}
	return nil
}

// ListDrones returns all registered drones ordered by serial number.
func (s *Store) ListDrones(ctx context.Context) ([]storage.Drone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT drone_sn, drone_type, drone_version, updated_at
		 FROM drones
		 ORDER BY drone_sn`,
	)
	if err != nil {
		return nil, fmt.Errorf("list drones: %w", err)
	}
	defer rows.Close()

	var drones []storage.Drone
	for rows.Next() {
		var drone storage.Drone
		var droneType sql.NullString
		var version sql.NullString
		var updatedAt int64
		if err := rows.Scan(&drone.SN, &droneType, &version, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan drone: %w", err)
		}
		drone.Type = droneType.String
		drone.Version = version.String
		drone.UpdatedAt = fromMillis(updatedAt)
		drones = append(drones, drone)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drones: %w", err)
	}
	return drones, nil
}

// LatestLifetimeTotal returns the newest lifetime counter across all days for
// a drone. ok is false when the drone has no ledger rows.
func (s *Store) LatestLifetimeTotal(ctx context.Context, sn string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, false, fmt.Errorf("storage is not configured")
	}
	sn = strings.TrimSpace(sn)
	if sn == "" {
		return 0, false, fmt.Errorf("drone sn is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT lifetime_total
		 FROM flight_days
		 WHERE drone_sn = ?
		 ORDER BY fly_date DESC
		 LIMIT 1`,
		sn,
	)
	var total int64
	if err := row.Scan(&total); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("latest lifetime total: %w", err)
	}
	return total, true, nil
}

// OpenToday creates today's ledger row when absent and returns it. The new
// row is anchored at initialTotal with zero derived seconds; an existing row
// is returned unchanged.
func (s *Store) OpenToday(ctx context.Context, sn string, now time.Time, initialTotal int64) (storage.FlightDay, error) {
	if err := ctx.Err(); err != nil {
		return storage.FlightDay{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.FlightDay{}, fmt.Errorf("storage is not configured")
	}
	sn = strings.TrimSpace(sn)
	if sn == "" {
		return storage.FlightDay{}, fmt.Errorf("drone sn is required")
	}

	day := storage.DayKey(now)
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO flight_days (
		   drone_sn, fly_date, anchor_revised,
		   day_start_total, lifetime_total, today_seconds, observed_at
		 ) VALUES (?, ?, 0, ?, ?, 0, ?)
		 ON CONFLICT(drone_sn, fly_date) DO NOTHING`,
		sn,
		day,
		initialTotal,
		initialTotal,
		toMillis(now),
	)
	if err != nil {
		return storage.FlightDay{}, fmt.Errorf("open today row: %w", err)
	}
	return s.DayRow(ctx, sn, day)
}

// ReviseAnchorOnFirstSignal re-anchors today's row at freshTotal the first
// time a live counter arrives for the day. The guard on anchor_revised makes
// the transition happen at most once per row; a missing or already-revised
// row is a silent no-op.
func (s *Store) ReviseAnchorOnFirstSignal(ctx context.Context, sn string, now time.Time, freshTotal int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sn = strings.TrimSpace(sn)
	if sn == "" {
		return fmt.Errorf("drone sn is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE flight_days
		 SET anchor_revised = 1,
		     day_start_total = ?,
		     lifetime_total = ?,
		     today_seconds = 0,
		     observed_at = ?
		 WHERE drone_sn = ?
		   AND fly_date = ?
		   AND anchor_revised = 0`,
		freshTotal,
		freshTotal,
		toMillis(now),
		sn,
		storage.DayKey(now),
	)
	if err != nil {
		return fmt.Errorf("revise anchor: %w", err)
	}
	return nil
}

// UpdateTotal records a fresh lifetime counter on today's row. The derived
// seconds are recomputed inside the statement against the row's current
// anchor, never copied in from the caller. Missing row is a silent no-op.
func (s *Store) UpdateTotal(ctx context.Context, sn string, now time.Time, freshTotal int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sn = strings.TrimSpace(sn)
	if sn == "" {
		return fmt.Errorf("drone sn is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE flight_days
		 SET lifetime_total = ?,
		     today_seconds = MAX(0, ? - day_start_total),
		     observed_at = ?
		 WHERE drone_sn = ?
		   AND fly_date = ?`,
		freshTotal,
		freshTotal,
		toMillis(now),
		sn,
		storage.DayKey(now),
	)
	if err != nil {
		return fmt.Errorf("update total: %w", err)
	}
	return nil
}

// EnsureTodayForAll opens today's row for every registered drone that lacks
// one, seeded from the drone's latest known lifetime total (0 when it has
// never reported). Returns the number of rows actually inserted.
func (s *Store) EnsureTodayForAll(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	drones, err := s.ListDrones(ctx)
	if err != nil {
		return 0, err
	}

	day := storage.DayKey(now)
	created := 0
	for _, drone := range drones {
		latest, _, err := s.LatestLifetimeTotal(ctx, drone.SN)
		if err != nil {
			return created, err
		}
		result, err := s.sqlDB.ExecContext(
			ctx,
			`INSERT INTO flight_days (
			   drone_sn, fly_date, anchor_revised,
			   day_start_total, lifetime_total, today_seconds, observed_at
			 ) VALUES (?, ?, 0, ?, ?, 0, ?)
			 ON CONFLICT(drone_sn, fly_date) DO NOTHING`,
			drone.SN,
			day,
			latest,
			latest,
			toMillis(now),
		)
		if err != nil {
			return created, fmt.Errorf("ensure today row for %s: %w", drone.SN, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return created, fmt.Errorf("ensure today rows affected: %w", err)
		}
		created += int(affected)
	}
	return created, nil
}

// DayRow returns the ledger row for one drone and day key.
func (s *Store) DayRow(ctx context.Context, sn, day string) (storage.FlightDay, error) {
	if err := ctx.Err(); err != nil {
		return storage.FlightDay{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.FlightDay{}, fmt.Errorf("storage is not configured")
	}
	sn = strings.TrimSpace(sn)
	if sn == "" {
		return storage.FlightDay{}, fmt.Errorf("drone sn is required")
	}
	day = strings.TrimSpace(day)
	if day == "" {
		return storage.FlightDay{}, fmt.Errorf("day is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT drone_sn, fly_date, anchor_revised,
		        day_start_total, lifetime_total, today_seconds, observed_at
		 FROM flight_days
		 WHERE drone_sn = ? AND fly_date = ?`,
		sn,
		day,
	)
	var flightDay storage.FlightDay
	var anchorRevised int64
	var observedAt int64
	err := row.Scan(
		&flightDay.DroneSN,
		&flightDay.Day,
		&anchorRevised,
		&flightDay.DayStartTotal,
		&flightDay.LifetimeTotal,
		&flightDay.TodaySeconds,
		&observedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.FlightDay{}, storage.ErrNotFound
		}
		return storage.FlightDay{}, fmt.Errorf("get day row: %w", err)
	}
	flightDay.AnchorRevised = anchorRevised != 0
	flightDay.ObservedAt = fromMillis(observedAt)
	return flightDay, nil
}

// DroneDailyUsage returns per-day derived seconds for a drone across an
// inclusive day-key range, ordered by day ascending.
func (s *Store) DroneDailyUsage(ctx context.Context, sn, startDay, endDay string) ([]storage.DayUsage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	sn = strings.TrimSpace(sn)
	if sn == "" {
		return nil, fmt.Errorf("drone sn is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT fly_date, today_seconds
		 FROM flight_days
		 WHERE drone_sn = ? AND fly_date BETWEEN ? AND ?
		 ORDER BY fly_date`,
		sn,
		startDay,
		endDay,
	)
	if err != nil {
		return nil, fmt.Errorf("drone daily usage: %w", err)
	}
	defer rows.Close()

	var usage []storage.DayUsage
	for rows.Next() {
		var day storage.DayUsage
		if err := rows.Scan(&day.Day, &day.Seconds); err != nil {
			return nil, fmt.Errorf("scan daily usage: %w", err)
		}
		usage = append(usage, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily usage: %w", err)
	}
	return usage, nil
}

// UsageSummary returns summed derived seconds per registered drone across an
// inclusive day-key range. Drones without rows in the range report 0.
func (s *Store) UsageSummary(ctx context.Context, startDay, endDay string) ([]storage.DroneUsage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT d.drone_sn, d.drone_type, d.drone_version,
		        COALESCE(SUM(f.today_seconds), 0)
		 FROM drones d
		 LEFT JOIN flight_days f
		   ON f.drone_sn = d.drone_sn
		  AND f.fly_date BETWEEN ? AND ?
		 GROUP BY d.drone_sn, d.drone_type, d.drone_version
		 ORDER BY d.drone_sn`,
		startDay,
		endDay,
	)
	if err != nil {
		return nil, fmt.Errorf("usage summary: %w", err)
	}
	defer rows.Close()

	var summary []storage.DroneUsage
	for rows.Next() {
		var usage storage.DroneUsage
		var droneType sql.NullString
		var version sql.NullString
		if err := rows.Scan(&usage.SN, &droneType, &version, &usage.TotalSeconds); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		usage.Type = droneType.String
		usage.Version = version.String
		summary = append(summary, usage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage summary: %w", err)
	}
	return summary, nil
}

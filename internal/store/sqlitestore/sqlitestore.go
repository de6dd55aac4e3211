// Package sqlitestore is a reference adapter for internal/store.Store,
// backed by modernc.org/sqlite (pure Go, no cgo) and versioned with
// golang-migrate. It exists to exercise and test the ingest core end to
// end; the spec treats persistence as an external port, and production
// deployments may swap this out entirely.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/cinet-track/ingest/internal/model"
	"github.com/cinet-track/ingest/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a *sql.DB open against a SQLite database file and implements
// store.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and runs any
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	// modernc.org/sqlite serializes writes internally; a single connection
	// avoids SQLITE_BUSY under concurrent per-connection dispatch.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sqlitestore: iofs source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlitestore: sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("sqlitestore: migrate instance: %w", err)
	}
	// Note: m.Close() is not called here — WithInstance()'s sqlite driver
	// Close() would close the underlying *sql.DB, which this Store still
	// owns and must keep open for the rest of the process lifetime.
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("sqlitestore: migrate up: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// newMigrate builds a fresh migrate.Migrate instance against this Store's
// connection. Its Close() is never called by callers here, for the same
// reason migrate() above doesn't call it: the sqlite driver's Close() would
// close the shared *sql.DB.
func (s *Store) newMigrate() (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: iofs source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: sqlite driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
}

// MigrateVersion returns the current schema version and dirty state. Returns
// 0, false, nil if no migrations have been applied yet.
func (s *Store) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if err != nil && err == migrate.ErrNilVersion {
		return 0, false, nil
	}
	return version, dirty, err
}

// MigrateDown rolls back the single most recent migration.
func (s *Store) MigrateDown() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("sqlitestore: migrate down: %w", err)
	}
	return nil
}

// MigrateTo migrates up or down to the given version.
func (s *Store) MigrateTo(version uint) error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Migrate(version); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("sqlitestore: migrate to %d: %w", version, err)
	}
	return nil
}

// MigrateForce forces the recorded schema version without running any
// migration steps. Recovery-only, for a database left dirty by a failed
// migration.
func (s *Store) MigrateForce(version int) error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Force(version); err != nil {
		return fmt.Errorf("sqlitestore: migrate force %d: %w", version, err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)

func (s *Store) FindDeviceByKey(ctx context.Context, deviceKey uint32) (*model.Device, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, device_key, serial_number, passphrase, enabled, last_seen_at
		FROM devices WHERE device_key = ?`, deviceKey)

	var d model.Device
	var lastSeen sql.NullTime
	if err := row.Scan(&d.ID, &d.DeviceKey, &d.SerialNumber, &d.Passphrase, &d.Enabled, &lastSeen); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("sqlitestore: find device %#x: %w", deviceKey, err)
	}
	if lastSeen.Valid {
		d.LastSeenAt = lastSeen.Time
	}
	return &d, nil
}

func (s *Store) InsertPosition(ctx context.Context, p *model.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (
			device_id, timestamp, latitude, longitude, altitude, heading, speed_kmh,
			satellites, hdop, gps_valid, gps_accuracy, battery, temperature, rssi,
			bit_error_rate, motion, status_flags, cell_lac, cell_id, cell_access_tech,
			cell_operator, firmware_version, message_type, beacon_mode,
			motion_sensitivity, wake_trigger, input_triggered, output_state,
			geozone_id, input_state, alerts, sequence, source_type, serial_number,
			raw_data
		) VALUES (?,?,?,?,?,?,?, ?,?,?,?,?,?,?, ?,?,?,?,?,?, ?,?,?,?, ?,?,?,?, ?,?,?,?,?,?, ?)`,
		p.DeviceID, p.Timestamp, p.Latitude, p.Longitude, nullFloat(p.Altitude), headingPtr(p.Heading), p.SpeedKmh,
		p.Satellites, p.HDOP, p.GPSValid, p.GPSAccuracy, p.Battery, p.Temperature, p.RSSI,
		p.BitErrorRate, p.Motion, p.StatusFlags, p.CellLAC, p.CellID, p.CellAccessTech,
		p.CellOperator, p.FirmwareVersion, p.MessageType, p.BeaconMode,
		p.MotionSensitivity, p.WakeTrigger, p.InputTriggered, p.OutputState,
		p.GeozoneID, p.InputState, p.Alerts, p.Sequence, p.SourceType, p.SerialNumber,
		p.RawData,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: insert position: %w", err)
	}
	return nil
}

// TouchDeviceLastSeen advances last_seen_at to max(current, ts) — idempotent
// and safe under concurrent dispatch for the same device (spec §5).
func (s *Store) TouchDeviceLastSeen(ctx context.Context, deviceID int64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE devices SET last_seen_at = ?
		WHERE id = ? AND (last_seen_at IS NULL OR last_seen_at < ?)`,
		ts, deviceID, ts)
	if err != nil {
		return fmt.Errorf("sqlitestore: touch last_seen_at: %w", err)
	}
	return nil
}

func nullFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}

func headingPtr(h *float64) any {
	if h == nil {
		return nil
	}
	return *h
}

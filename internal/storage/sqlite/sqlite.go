package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/yegors/flighttrack/internal/tracker"
	"github.com/yegors/flighttrack/pkg/logger"
	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed implementation of the tracker's persistence
// surface
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

var _ tracker.Store = (*Store)(nil)

// New opens (or creates) the database at the given path and ensures the
// schema exists
func New(dbPath string, log *logger.Logger) (*Store, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initDatabase(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: storageLogger}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS flights (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			reporter_id INTEGER NOT NULL,
			callsign TEXT NOT NULL,
			departure TEXT NOT NULL,
			arrival TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			operator_status TEXT,
			controlled INTEGER NOT NULL DEFAULT 0,
			share_token TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			activated_at TIMESTAMP,
			landed_at TIMESTAMP,
			ended_at TIMESTAMP,
			duration_secs INTEGER,
			distance_nm REAL,
			max_altitude_ft REAL,
			max_speed_kts REAL,
			avg_speed_kts REAL,
			landing_rate_fpm REAL,
			smoothness_score REAL,
			landing_score REAL,
			landing_runway TEXT,
			landing_airport TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create flights table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_flights_status ON flights(status, created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create flights status index: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_flights_user ON flights(user_id)`)
	if err != nil {
		return fmt.Errorf("failed to create flights user index: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS tracking_entries (
			reporter_id INTEGER PRIMARY KEY,
			flight_id INTEGER NOT NULL,
			phase TEXT NOT NULL DEFAULT 'unknown',
			last_x REAL NOT NULL DEFAULT 0,
			last_y REAL NOT NULL DEFAULT 0,
			last_altitude_ft REAL NOT NULL DEFAULT 0,
			last_speed_kts REAL NOT NULL DEFAULT 0,
			last_heading REAL NOT NULL DEFAULT 0,
			last_update_at TIMESTAMP,
			first_seen_at TIMESTAMP NOT NULL,
			telemetry_seen INTEGER NOT NULL DEFAULT 0,
			takeoff_detected INTEGER NOT NULL DEFAULT 0,
			landing_detected INTEGER NOT NULL DEFAULT 0,
			initial_x REAL,
			initial_y REAL,
			initial_at TIMESTAMP,
			movement_started INTEGER NOT NULL DEFAULT 0,
			movement_at TIMESTAMP,
			stationary_x REAL,
			stationary_y REAL,
			stationary_since TIMESTAMP,
			descent_samples TEXT NOT NULL DEFAULT '[]',
			waypoints TEXT NOT NULL DEFAULT '[]'
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create tracking_entries table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_tracking_landed ON tracking_entries(landing_detected, last_update_at)`)
	if err != nil {
		return fmt.Errorf("failed to create tracking landed index: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS telemetry (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			flight_id INTEGER NOT NULL,
			at TIMESTAMP NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			altitude_ft REAL NOT NULL,
			speed_kts REAL NOT NULL,
			heading REAL NOT NULL,
			vertical_speed_fpm REAL NOT NULL,
			phase TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create telemetry table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_telemetry_flight ON telemetry(flight_id, at)`)
	if err != nil {
		return fmt.Errorf("failed to create telemetry index: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			message TEXT NOT NULL,
			read INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create notifications table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS user_stats (
			user_id INTEGER PRIMARY KEY,
			flights_completed INTEGER NOT NULL DEFAULT 0,
			total_distance_nm REAL NOT NULL DEFAULT 0,
			total_duration_secs INTEGER NOT NULL DEFAULT 0,
			avg_landing_score REAL NOT NULL DEFAULT 0,
			avg_smoothness_score REAL NOT NULL DEFAULT 0,
			best_landing_rate_fpm REAL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create user_stats table: %w", err)
	}

	return nil
}

// Timestamps are stored as RFC3339 strings in UTC

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

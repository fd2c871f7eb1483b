package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server   ServerConfig   `toml:"server"`   // Operational HTTP endpoint settings
	Feed     FeedConfig     `toml:"feed"`     // Simulation network feed settings
	Airports AirportsConfig `toml:"airports"` // Airport elevation database settings
	Tracking TrackingConfig `toml:"tracking"` // Flight tracking thresholds and timeouts
	Storage  StorageConfig  `toml:"storage"`  // Data persistence settings
	Logging  LoggingConfig  `toml:"logging"`  // Application logging settings
}

// ServerConfig contains the operational HTTP endpoint configuration.
// This endpoint only exposes engine status for monitoring; the user-facing
// API is served by a separate system.
type ServerConfig struct {
	Host             string `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1)
	Port             int    `toml:"port"`                  // HTTP port for the status endpoint
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response
}

// FeedConfig contains the simulation network feed configuration
type FeedConfig struct {
	// Primary traffic stream
	URL       string `toml:"url"`        // WebSocket URL of the network traffic stream
	NetworkID uint32 `toml:"network_id"` // Only aircraft records carrying this network id are processed

	// Secondary per-aircraft waypoint stream, opened after landing detection.
	// The reporter id is appended as a query parameter on connect.
	WaypointURL string `toml:"waypoint_url"` // WebSocket URL template for the landing waypoint stream

	// Reconnection policy for the primary stream
	ReconnectBaseDelaySecs int `toml:"reconnect_base_delay_seconds"` // Initial backoff delay, doubled per attempt (default: 2)
	ReconnectMaxAttempts   int `toml:"reconnect_max_attempts"`       // Attempt ceiling before the feed gives up (default: 10)

	// Optional rotating pool of upstream HTTP proxies. One entry is used
	// per (re)connect attempt, cycling through the list.
	Proxies []string `toml:"proxies"`

	HandshakeTimeoutSecs int `toml:"handshake_timeout_seconds"` // WebSocket handshake timeout (default: 15)
}

// AirportsConfig contains the airport elevation database configuration
type AirportsConfig struct {
	DBPath string `toml:"db_path"` // Path to the airports JSON file (code -> elevation)
}

// TrackingConfig contains flight tracking thresholds and timeout settings.
// All of these have defaults matching normal operations; they are exposed
// mainly so tests and staging setups can tighten the windows.
type TrackingConfig struct {
	// Activation: a pending flight goes active once the aircraft moves
	// faster than the speed threshold AND further than the displacement
	// threshold from its initial position, or is airborne.
	MovementSpeedKts  float64 `toml:"movement_speed_kts"`  // Ground speed threshold for movement detection (default: 25)
	MovementDistanceM float64 `toml:"movement_distance_m"` // Displacement threshold for movement detection (default: 50)

	// Completion: a landed flight completes after being continuously
	// stationary at ground level for this long.
	StationarySecs int `toml:"stationary_seconds"` // Continuous stationary window before completion (default: 120)

	// Sweeper timeouts
	PendingTimeoutMins     int `toml:"pending_timeout_minutes"`      // Cancel pending flights older than this (default: 30)
	PostLandingTimeoutMins int `toml:"post_landing_timeout_minutes"` // Abort landed flights silent for this long (default: 10)
	NotFoundGraceMins      int `toml:"not_found_grace_minutes"`      // Delete tracked flights that never produced telemetry (default: 30)
	SweepIntervalSecs      int `toml:"sweep_interval_seconds"`       // How often the sweeper runs (default: 60)

	// Telemetry sampling
	TelemetrySampleSecs int `toml:"telemetry_sample_seconds"` // Minimum spacing between stored telemetry points per aircraft (default: 5)

	// Waypoint collection window after landing detection
	WaypointWindowSecs int `toml:"waypoint_window_seconds"` // Lifetime of the per-aircraft waypoint channel (default: 60)

	// Per-update store operation timeout, bounding the ingestion hot path
	StoreTimeoutSecs int `toml:"store_timeout_seconds"` // Context timeout for store calls made per update (default: 5)
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"` // Path to the SQLite database file
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level      string `toml:"level"`        // Log level: "debug", "info", "warn", or "error"
	Format     string `toml:"format"`       // Log format: "json" (structured) or "console" (human-readable)
	FilePath   string `toml:"file_path"`    // Optional rotating log file (empty = stdout only)
	MaxSizeMB  int    `toml:"max_size_mb"`  // Rotation size threshold in MB
	MaxBackups int    `toml:"max_backups"`  // Number of rotated files to keep
	MaxAgeDays int    `toml:"max_age_days"` // Days to keep rotated files
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// LoadWithFallback loads configuration from the given path, or searches the
// default locations (configs/flighttrack.toml, flighttrack.toml) when the
// path is empty.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	candidates := []string{
		filepath.Join("configs", "flighttrack.toml"),
		"flighttrack.toml",
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return Load(candidate)
		}
	}
	return nil, fmt.Errorf("no config file found (searched: %v)", candidates)
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8571
	}
	if c.Server.ReadTimeoutSecs == 0 {
		c.Server.ReadTimeoutSecs = 15
	}
	if c.Server.WriteTimeoutSecs == 0 {
		c.Server.WriteTimeoutSecs = 15
	}

	if c.Feed.ReconnectBaseDelaySecs == 0 {
		c.Feed.ReconnectBaseDelaySecs = 2
	}
	if c.Feed.ReconnectMaxAttempts == 0 {
		c.Feed.ReconnectMaxAttempts = 10
	}
	if c.Feed.HandshakeTimeoutSecs == 0 {
		c.Feed.HandshakeTimeoutSecs = 15
	}

	if c.Tracking.MovementSpeedKts == 0 {
		c.Tracking.MovementSpeedKts = 25
	}
	if c.Tracking.MovementDistanceM == 0 {
		c.Tracking.MovementDistanceM = 50
	}
	if c.Tracking.StationarySecs == 0 {
		c.Tracking.StationarySecs = 120
	}
	if c.Tracking.PendingTimeoutMins == 0 {
		c.Tracking.PendingTimeoutMins = 30
	}
	if c.Tracking.PostLandingTimeoutMins == 0 {
		c.Tracking.PostLandingTimeoutMins = 10
	}
	if c.Tracking.NotFoundGraceMins == 0 {
		c.Tracking.NotFoundGraceMins = 30
	}
	if c.Tracking.SweepIntervalSecs == 0 {
		c.Tracking.SweepIntervalSecs = 60
	}
	if c.Tracking.TelemetrySampleSecs == 0 {
		c.Tracking.TelemetrySampleSecs = 5
	}
	if c.Tracking.WaypointWindowSecs == 0 {
		c.Tracking.WaypointWindowSecs = 60
	}
	if c.Tracking.StoreTimeoutSecs == 0 {
		c.Tracking.StoreTimeoutSecs = 5
	}

	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/flighttrack.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// Validate checks the configuration for fatal problems
func (c *Config) Validate() error {
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if c.Feed.NetworkID == 0 {
		return fmt.Errorf("feed.network_id is required")
	}
	if c.Feed.WaypointURL == "" {
		return fmt.Errorf("feed.waypoint_url is required")
	}
	if c.Airports.DBPath == "" {
		return fmt.Errorf("airports.db_path is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// Convenience duration accessors

func (c *TrackingConfig) StationaryWindow() time.Duration {
	return time.Duration(c.StationarySecs) * time.Second
}

func (c *TrackingConfig) PendingTimeout() time.Duration {
	return time.Duration(c.PendingTimeoutMins) * time.Minute
}

func (c *TrackingConfig) PostLandingTimeout() time.Duration {
	return time.Duration(c.PostLandingTimeoutMins) * time.Minute
}

func (c *TrackingConfig) NotFoundGrace() time.Duration {
	return time.Duration(c.NotFoundGraceMins) * time.Minute
}

func (c *TrackingConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

func (c *TrackingConfig) TelemetrySampleInterval() time.Duration {
	return time.Duration(c.TelemetrySampleSecs) * time.Second
}

func (c *TrackingConfig) WaypointWindow() time.Duration {
	return time.Duration(c.WaypointWindowSecs) * time.Second
}

func (c *TrackingConfig) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSecs) * time.Second
}

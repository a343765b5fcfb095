// Package config provides Viper-based configuration loading for the room server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP/websocket listener settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// ReadTimeout is how long a connection may stay silent before it is dropped.
	// Pongs count as traffic.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout bounds every single websocket write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PingInterval is the keepalive ping period. Must be shorter than ReadTimeout.
	PingInterval time.Duration `mapstructure:"ping_interval"`
	// MaxMessageBytes caps the size of a single inbound websocket message.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes"`
	// OutboxSize is the per-connection outbound queue length.
	OutboxSize int `mapstructure:"outbox_size"`
	// StaticDir, when non-empty, is served at the site root.
	StaticDir string `mapstructure:"static_dir"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AdminConfig holds the gRPC admin (health) listener settings.
type AdminConfig struct {
	GRPCHost string `mapstructure:"grpc_host"`
	GRPCPort int    `mapstructure:"grpc_port"`
}

// Addr returns the "host:port" gRPC address.
func (a AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.GRPCHost, a.GRPCPort)
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig holds account store connection settings.
type DatabaseConfig struct {
	// Driver selects the account store backend: "postgres" or "sqlite".
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// SQLitePath is the database file used when Driver is "sqlite".
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// BoundsConfig is the playable area of a room. Positions span [0, Width) x [0, Height).
type BoundsConfig struct {
	Width  float64 `mapstructure:"width"`
	Height float64 `mapstructure:"height"`
}

// Delivery policies for participantMoved events.
const (
	PolicyFull     = "full"
	PolicyInterest = "interest"

	MetricChebyshev = "chebyshev"
	MetricEuclidean = "euclidean"
)

// DeliveryConfig selects who hears about a participant's movement.
type DeliveryConfig struct {
	// Policy is "full" (everyone) or "interest" (spatially filtered).
	Policy string `mapstructure:"policy"`
	// Radius is the interest threshold in world units.
	Radius float64 `mapstructure:"radius"`
	// Metric is "chebyshev" (per-axis) or "euclidean".
	Metric string `mapstructure:"metric"`
}

// Offload steppers.
const (
	StepperDrift = "drift"
	StepperLua   = "lua"
)

// OffloadConfig controls the per-tick simulation step run off the connection path.
type OffloadConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Workers          int           `mapstructure:"workers"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Stepper          string        `mapstructure:"stepper"`
	DriftX           float64       `mapstructure:"drift_x"`
	DriftY           float64       `mapstructure:"drift_y"`
	Script           string        `mapstructure:"script"`
	InstructionLimit int           `mapstructure:"instruction_limit"`
}

// GameConfig holds room simulation settings.
type GameConfig struct {
	// TickRate is the snapshot scheduler frequency in Hz.
	TickRate int `mapstructure:"tick_rate"`
	// WorldObjects is the number of static objects generated per room.
	WorldObjects int            `mapstructure:"world_objects"`
	Bounds       BoundsConfig   `mapstructure:"bounds"`
	Delivery     DeliveryConfig `mapstructure:"delivery"`
	// PresetsDir holds YAML room presets; empty disables presets.
	PresetsDir string        `mapstructure:"presets_dir"`
	Offload    OffloadConfig `mapstructure:"offload"`
}

// TickInterval returns the scheduler period derived from TickRate.
//
// Precondition: TickRate > 0.
func (g GameConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(g.TickRate)
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Game     GameConfig     `mapstructure:"game"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateAdmin(c.Admin); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 0-65535, got %d", s.Port))
	}
	if s.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if s.PingInterval <= 0 || s.PingInterval >= s.ReadTimeout {
		errs = append(errs, "server.ping_interval must be positive and shorter than server.read_timeout")
	}
	if s.MaxMessageBytes < 64 {
		errs = append(errs, fmt.Sprintf("server.max_message_bytes must be >= 64, got %d", s.MaxMessageBytes))
	}
	if s.OutboxSize < 1 {
		errs = append(errs, fmt.Sprintf("server.outbox_size must be >= 1, got %d", s.OutboxSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateAdmin(a AdminConfig) error {
	if a.GRPCHost == "" {
		return errors.New("admin.grpc_host must not be empty")
	}
	if a.GRPCPort < 0 || a.GRPCPort > 65535 {
		return fmt.Errorf("admin.grpc_port must be 0-65535, got %d", a.GRPCPort)
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	switch d.Driver {
	case DriverSQLite:
		if d.SQLitePath == "" {
			return errors.New("database.sqlite_path must not be empty when database.driver is sqlite")
		}
		return nil
	case DriverPostgres:
	default:
		return fmt.Errorf("database.driver must be one of [postgres, sqlite], got %q", d.Driver)
	}

	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.TickRate < 1 || g.TickRate > 120 {
		errs = append(errs, fmt.Sprintf("game.tick_rate must be 1-120, got %d", g.TickRate))
	}
	if g.WorldObjects < 0 {
		errs = append(errs, fmt.Sprintf("game.world_objects must be >= 0, got %d", g.WorldObjects))
	}
	if g.Bounds.Width <= 0 || g.Bounds.Height <= 0 {
		errs = append(errs, "game.bounds.width and game.bounds.height must be positive")
	}
	switch g.Delivery.Policy {
	case PolicyFull, PolicyInterest:
	default:
		errs = append(errs, fmt.Sprintf("game.delivery.policy must be one of [full, interest], got %q", g.Delivery.Policy))
	}
	switch g.Delivery.Metric {
	case MetricChebyshev, MetricEuclidean:
	default:
		errs = append(errs, fmt.Sprintf("game.delivery.metric must be one of [chebyshev, euclidean], got %q", g.Delivery.Metric))
	}
	if g.Delivery.Radius < 0 {
		errs = append(errs, "game.delivery.radius must not be negative")
	}
	if g.Offload.Enabled {
		if g.Offload.Workers < 1 {
			errs = append(errs, fmt.Sprintf("game.offload.workers must be >= 1, got %d", g.Offload.Workers))
		}
		if g.Offload.Timeout <= 0 {
			errs = append(errs, "game.offload.timeout must be positive")
		}
		switch g.Offload.Stepper {
		case StepperDrift:
		case StepperLua:
			if g.Offload.Script == "" {
				errs = append(errs, "game.offload.script must be set when game.offload.stepper is lua")
			}
		default:
			errs = append(errs, fmt.Sprintf("game.offload.stepper must be one of [drift, lua], got %q", g.Offload.Stepper))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with ROOMSYNC_ prefix
	v.SetEnvPrefix("ROOMSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults installs the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.ping_interval", "25s")
	v.SetDefault("server.max_message_bytes", 4096)
	v.SetDefault("server.outbox_size", 64)
	v.SetDefault("server.static_dir", "")

	v.SetDefault("admin.grpc_host", "127.0.0.1")
	v.SetDefault("admin.grpc_port", 50051)

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "roomsync")
	v.SetDefault("database.password", "roomsync")
	v.SetDefault("database.name", "roomsync")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.sqlite_path", "roomsync.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("game.tick_rate", 20)
	v.SetDefault("game.world_objects", 10)
	v.SetDefault("game.bounds.width", 800.0)
	v.SetDefault("game.bounds.height", 600.0)
	v.SetDefault("game.delivery.policy", PolicyFull)
	v.SetDefault("game.delivery.radius", 500.0)
	v.SetDefault("game.delivery.metric", MetricChebyshev)
	v.SetDefault("game.presets_dir", "")
	v.SetDefault("game.offload.enabled", false)
	v.SetDefault("game.offload.workers", 2)
	v.SetDefault("game.offload.timeout", "25ms")
	v.SetDefault("game.offload.stepper", StepperDrift)
	v.SetDefault("game.offload.drift_x", 1.0)
	v.SetDefault("game.offload.drift_y", 1.0)
	v.SetDefault("game.offload.script", "")
	v.SetDefault("game.offload.instruction_limit", 10000)
}

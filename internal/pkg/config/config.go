package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: SHIFTFENCE_DATABASE_HOST → database.host.
const EnvPrefix = "SHIFTFENCE"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Geofence  GeofenceConfig  `mapstructure:"geofence"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	AllowOrigins string `mapstructure:"allow_origins"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// ValkeyConfig configures the perimeter cache and last-known-location store.
// An empty Addr runs without a cache.
type ValkeyConfig struct {
	Addr               string `mapstructure:"addr"`
	LocationTTLMinutes int    `mapstructure:"location_ttl_minutes"`
}

func (v ValkeyConfig) LocationTTL() time.Duration {
	return time.Duration(v.LocationTTLMinutes) * time.Minute
}

// TemporalConfig configures auto-clock-out reminder workflows. An empty
// HostPort disables scheduling.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type GeofenceConfig struct {
	PerimeterCacheTTL           int `mapstructure:"perimeter_cache_ttl"`
	ReminderGraceMinutes        int `mapstructure:"reminder_grace_minutes"`
	StaleSampleToleranceSeconds int `mapstructure:"stale_sample_tolerance_seconds"`
	TrackIdleMinutes            int `mapstructure:"track_idle_minutes"`
}

func (g GeofenceConfig) ReminderGrace() time.Duration {
	return time.Duration(g.ReminderGraceMinutes) * time.Minute
}

func (g GeofenceConfig) StaleTolerance() time.Duration {
	return time.Duration(g.StaleSampleToleranceSeconds) * time.Second
}

func (g GeofenceConfig) TrackIdle() time.Duration {
	return time.Duration(g.TrackIdleMinutes) * time.Minute
}

// AgentConfig configures the on-device location agent.
type AgentConfig struct {
	APIURL              string `mapstructure:"api_url"`
	BufferSize          int    `mapstructure:"buffer_size"`
	SyncIntervalSeconds int    `mapstructure:"sync_interval_seconds"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	UserID              string `mapstructure:"user_id"`
	OrganizationID      string `mapstructure:"organization_id"`
	Role                string `mapstructure:"role"`
}

func (a AgentConfig) SyncInterval() time.Duration {
	return time.Duration(a.SyncIntervalSeconds) * time.Second
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.allow_origins", "http://localhost:3000, http://localhost:5173")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "shiftfence")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "shiftfence")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.location_ttl_minutes", 720)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "auto-clock-out-reminders")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("geofence.perimeter_cache_ttl", 300)
	v.SetDefault("geofence.reminder_grace_minutes", 15)
	v.SetDefault("geofence.stale_sample_tolerance_seconds", 5)
	v.SetDefault("geofence.track_idle_minutes", 720)
	v.SetDefault("agent.api_url", "http://localhost:8080")
	v.SetDefault("agent.buffer_size", 100)
	v.SetDefault("agent.sync_interval_seconds", 10)
	v.SetDefault("agent.timeout_seconds", 10)
	v.SetDefault("agent.user_id", "")
	v.SetDefault("agent.organization_id", "")
	v.SetDefault("agent.role", "WORKER")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
// Optional backends (NATS, Valkey, Temporal) may be left empty.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "database.max_conns must be positive")
	}
	if c.Temporal.HostPort != "" && c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal.task_queue is required when temporal.host_port is set")
	}
	if c.Geofence.PerimeterCacheTTL <= 0 {
		errs = append(errs, "geofence.perimeter_cache_ttl must be positive")
	}
	if c.Geofence.ReminderGraceMinutes <= 0 {
		errs = append(errs, "geofence.reminder_grace_minutes must be positive")
	}
	if c.Geofence.StaleSampleToleranceSeconds < 0 {
		errs = append(errs, "geofence.stale_sample_tolerance_seconds must not be negative")
	}
	if c.Geofence.TrackIdleMinutes <= 0 {
		errs = append(errs, "geofence.track_idle_minutes must be positive")
	}
	if c.Agent.BufferSize <= 0 {
		errs = append(errs, "agent.buffer_size must be positive")
	}
	if c.Agent.SyncIntervalSeconds <= 0 {
		errs = append(errs, "agent.sync_interval_seconds must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or text, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sentinela-io/sentinela/internal/pkg/schedule"
)

// Environment variables recognized by the engine
const (
	EnvConfigsFile         = "CONFIGS_FILE"
	EnvApplicationDatabase = "DATABASE_APPLICATION"
	envDatabasePrefix      = "DATABASE_"
)

// Config is the immutable application configuration, constructed at startup
// and passed into each component
type Config struct {
	Plugins              []string `mapstructure:"plugins"`
	LoadSampleMonitors   bool     `mapstructure:"load_sample_monitors"`
	SampleMonitorsPath   string   `mapstructure:"sample_monitors_path"`
	InternalMonitorsPath string   `mapstructure:"internal_monitors_path"`

	InternalMonitorsNotification InternalMonitorsNotification `mapstructure:"internal_monitors_notification"`

	MonitorsLoadSchedule string `mapstructure:"monitors_load_schedule" validate:"required"`

	Logging LoggingConfig `mapstructure:"logging"`

	ApplicationDatabaseSettings DatabasePoolConfig `mapstructure:"application_database_settings"`

	ApplicationQueue QueueConfig `mapstructure:"application_queue"`

	HTTPServer HTTPServerConfig `mapstructure:"http_server"`

	TimeZone string `mapstructure:"time_zone" validate:"required"`

	ControllerProcessSchedule string                     `mapstructure:"controller_process_schedule" validate:"required"`
	ControllerConcurrency     int                        `mapstructure:"controller_concurrency" validate:"gt=0"`
	ControllerProcedures      map[string]ProcedureConfig `mapstructure:"controller_procedures"`

	ExecutorConcurrency          int `mapstructure:"executor_concurrency" validate:"gt=0"`
	ExecutorSleep                int `mapstructure:"executor_sleep" validate:"gte=0"`
	ExecutorMonitorTimeout       int `mapstructure:"executor_monitor_timeout" validate:"gt=0"`
	ExecutorReactionTimeout      int `mapstructure:"executor_reaction_timeout" validate:"gt=0"`
	ExecutorRequestTimeout       int `mapstructure:"executor_request_timeout" validate:"gt=0"`
	ExecutorMonitorHeartbeatTime int `mapstructure:"executor_monitor_heartbeat_time" validate:"gt=0"`

	MaxIssuesCreation int `mapstructure:"max_issues_creation" validate:"gt=0"`

	DatabaseDefaultAcquireTimeout int  `mapstructure:"database_default_acquire_timeout" validate:"gt=0"`
	DatabaseDefaultQueryTimeout   int  `mapstructure:"database_default_query_timeout" validate:"gt=0"`
	DatabaseCloseTimeout          int  `mapstructure:"database_close_timeout" validate:"gt=0"`
	DatabaseLogQueryMetrics       bool `mapstructure:"database_log_query_metrics"`

	DatabasesPoolsConfigs map[string]DatabasePoolConfig `mapstructure:"databases_pools_configs"`

	LogAllEvents bool `mapstructure:"log_all_events"`

	// DSNs loaded from the environment, not from the configuration file
	ApplicationDatabaseDSN string            `mapstructure:"-"`
	DatabaseDSNs           map[string]string `mapstructure:"-"`
}

// InternalMonitorsNotification configures the notification attached to the
// internal monitors
type InternalMonitorsNotification struct {
	Enabled           bool                   `mapstructure:"enabled"`
	NotificationClass string                 `mapstructure:"notification_class"`
	Params            map[string]interface{} `mapstructure:"params"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Mode   string                 `mapstructure:"mode" validate:"omitempty,oneof=friendly json"`
	Format string                 `mapstructure:"format"`
	Fields map[string]interface{} `mapstructure:"fields"`
}

// DatabasePoolConfig contains connection pool settings for one database
type DatabasePoolConfig struct {
	PoolSize        int `mapstructure:"pool_size"`
	MaxIdleConns    int `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime"`
}

// QueueConfig contains the work queue configuration. Type selects the
// implementation; the SQS fields only apply to the sqs type
type QueueConfig struct {
	Type                 string `mapstructure:"type" validate:"required,oneof=internal sqs"`
	QueueWaitMessageTime int    `mapstructure:"queue_wait_message_time" validate:"gt=0"`
	QueueVisibilityTime  int    `mapstructure:"queue_visibility_time" validate:"gt=0"`

	Name        string `mapstructure:"name"`
	URL         string `mapstructure:"url"`
	Region      string `mapstructure:"region"`
	CreateQueue bool   `mapstructure:"create_queue"`
}

// HTTPServerConfig contains the HTTP server configuration
type HTTPServerConfig struct {
	Port int `mapstructure:"port" validate:"gt=0,lt=65536"`
}

// ProcedureConfig contains one janitorial procedure's schedule and parameters
type ProcedureConfig struct {
	Schedule string                 `mapstructure:"schedule" validate:"required"`
	Params   map[string]interface{} `mapstructure:"params"`
}

// Load reads the YAML configuration file named by CONFIGS_FILE and the DSNs
// from the environment
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	path := os.Getenv(EnvConfigsFile)
	if path == "" {
		path = "configs.yaml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read configs file '%s': %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configs file '%s': %w", path, err)
	}

	cfg.ApplicationDatabaseDSN = os.Getenv(EnvApplicationDatabase)
	cfg.DatabaseDSNs = loadDatabaseDSNs()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("monitors_load_schedule", "*/5 * * * *")
	v.SetDefault("logging.mode", "json")
	v.SetDefault("application_queue.type", "internal")
	v.SetDefault("application_queue.queue_wait_message_time", 2)
	v.SetDefault("application_queue.queue_visibility_time", 15)
	v.SetDefault("http_server.port", 8000)
	v.SetDefault("time_zone", "UTC")
	v.SetDefault("controller_process_schedule", "* * * * *")
	v.SetDefault("controller_concurrency", 10)
	v.SetDefault("executor_concurrency", 2)
	v.SetDefault("executor_sleep", 5)
	v.SetDefault("executor_monitor_timeout", 60)
	v.SetDefault("executor_reaction_timeout", 15)
	v.SetDefault("executor_request_timeout", 15)
	v.SetDefault("executor_monitor_heartbeat_time", 5)
	v.SetDefault("max_issues_creation", 100)
	v.SetDefault("database_default_acquire_timeout", 30)
	v.SetDefault("database_default_query_timeout", 30)
	v.SetDefault("database_close_timeout", 10)
	v.SetDefault("application_database_settings.pool_size", 10)
}

// loadDatabaseDSNs collects the DATABASE_<NAME> environment variables into a
// pool name to DSN mapping, skipping the application's own store
func loadDatabaseDSNs() map[string]string {
	dsns := make(map[string]string)
	for _, entry := range os.Environ() {
		key, value, found := strings.Cut(entry, "=")
		if !found || !strings.HasPrefix(key, envDatabasePrefix) {
			continue
		}
		if key == EnvApplicationDatabase {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, envDatabasePrefix))
		if name != "" && value != "" {
			dsns[name] = value
		}
	}
	return dsns
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.ApplicationDatabaseDSN == "" {
		return fmt.Errorf("%s environment variable must be set", EnvApplicationDatabase)
	}

	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid time_zone '%s': %w", c.TimeZone, err)
	}

	crons := map[string]string{
		"controller_process_schedule": c.ControllerProcessSchedule,
		"monitors_load_schedule":      c.MonitorsLoadSchedule,
	}
	for name, procedure := range c.ControllerProcedures {
		crons["controller_procedures."+name+".schedule"] = procedure.Schedule
	}
	for name, spec := range crons {
		if !schedule.IsValid(spec) {
			return fmt.Errorf("invalid cron expression for %s: '%s'", name, spec)
		}
	}

	if c.ApplicationQueue.Type == "sqs" && c.ApplicationQueue.Name == "" && c.ApplicationQueue.URL == "" {
		return fmt.Errorf("application_queue of type sqs requires a name or url")
	}

	return nil
}

// Location returns the configured IANA time zone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Duration helpers; the configuration file uses plain seconds

func (c *Config) ExecutorSleepDuration() time.Duration {
	return time.Duration(c.ExecutorSleep) * time.Second
}

func (c *Config) ExecutorMonitorTimeoutDuration() time.Duration {
	return time.Duration(c.ExecutorMonitorTimeout) * time.Second
}

func (c *Config) ExecutorReactionTimeoutDuration() time.Duration {
	return time.Duration(c.ExecutorReactionTimeout) * time.Second
}

func (c *Config) ExecutorRequestTimeoutDuration() time.Duration {
	return time.Duration(c.ExecutorRequestTimeout) * time.Second
}

func (c *Config) ExecutorMonitorHeartbeatDuration() time.Duration {
	return time.Duration(c.ExecutorMonitorHeartbeatTime) * time.Second
}

func (c *Config) DatabaseCloseTimeoutDuration() time.Duration {
	return time.Duration(c.DatabaseCloseTimeout) * time.Second
}

func (c *Config) DatabaseQueryTimeoutDuration() time.Duration {
	return time.Duration(c.DatabaseDefaultQueryTimeout) * time.Second
}

func (c *Config) DatabaseAcquireTimeoutDuration() time.Duration {
	return time.Duration(c.DatabaseDefaultAcquireTimeout) * time.Second
}

func (q QueueConfig) WaitMessageDuration() time.Duration {
	return time.Duration(q.QueueWaitMessageTime) * time.Second
}

func (q QueueConfig) VisibilityDuration() time.Duration {
	return time.Duration(q.QueueVisibilityTime) * time.Second
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	// Path is the SQLite file, or ":memory:".
	Path string `mapstructure:"path"`
}

// DiscoveryConfig describes the service mailbox polled to find bot traffic.
type DiscoveryConfig struct {
	Provider     string `mapstructure:"provider"`
	Address      string `mapstructure:"address"`
	IMAPHost     string `mapstructure:"imap_host"`
	IMAPPort     int    `mapstructure:"imap_port"`
	IMAPPassword string `mapstructure:"imap_password"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
}

// ReconcileConfig tunes the threading engine.
type ReconcileConfig struct {
	BootstrapCount int  `mapstructure:"bootstrap_count"`
	MaxChainDepth  int  `mapstructure:"max_chain_depth"`
	MarkSeen       bool `mapstructure:"mark_seen"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	ProviderIMAP  = "imap"
	ProviderGmail = "gmail"
)

// LoadConfig loads configuration from .env, config.yaml and the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("database.driver", DriverMySQL)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "helpdesk.db")

	v.SetDefault("discovery.provider", ProviderIMAP)
	v.SetDefault("discovery.imap_host", "imap.gmail.com")
	v.SetDefault("discovery.imap_port", 993)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_minutes", 5)

	v.SetDefault("reconcile.bootstrap_count", 100)
	v.SetDefault("reconcile.max_chain_depth", 256)
	v.SetDefault("reconcile.mark_seen", true)

	v.SetDefault("log.level", "info")
}

func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.path", "DB_PATH")

	// Discovery mailbox
	v.BindEnv("discovery.provider", "DISCOVERY_PROVIDER")
	v.BindEnv("discovery.address", "DISCOVERY_ADDRESS")
	v.BindEnv("discovery.imap_host", "DISCOVERY_IMAP_HOST")
	v.BindEnv("discovery.imap_port", "DISCOVERY_IMAP_PORT")
	v.BindEnv("discovery.imap_password", "DISCOVERY_IMAP_PASSWORD")
	v.BindEnv("discovery.client_id", "GMAIL_CLIENT_ID")
	v.BindEnv("discovery.client_secret", "GMAIL_CLIENT_SECRET")
	v.BindEnv("discovery.refresh_token", "GMAIL_REFRESH_TOKEN")

	// Scheduler
	v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	v.BindEnv("scheduler.interval_minutes", "SCHEDULER_INTERVAL_MINUTES")

	// Reconcile
	v.BindEnv("reconcile.bootstrap_count", "RECONCILE_BOOTSTRAP_COUNT")
	v.BindEnv("reconcile.max_chain_depth", "RECONCILE_MAX_CHAIN_DEPTH")
	v.BindEnv("reconcile.mark_seen", "RECONCILE_MARK_SEEN")

	v.BindEnv("log.level", "LOG_LEVEL")
}

// GetDSN returns the connection string for the configured driver
func (c *DatabaseConfig) GetDSN() string {
	switch c.Driver {
	case DriverPostgres:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	case DriverSQLite:
		return c.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres:
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Discovery.Address == "" {
		return fmt.Errorf("discovery mailbox address is required")
	}
	switch c.Discovery.Provider {
	case ProviderIMAP:
		if c.Discovery.IMAPHost == "" || c.Discovery.IMAPPassword == "" {
			return fmt.Errorf("IMAP host and password are required for the discovery mailbox")
		}
	case ProviderGmail:
		if c.Discovery.ClientID == "" || c.Discovery.ClientSecret == "" || c.Discovery.RefreshToken == "" {
			return fmt.Errorf("Gmail OAuth2 credentials are required for the gmail provider")
		}
	default:
		return fmt.Errorf("unsupported discovery provider %q", c.Discovery.Provider)
	}

	if c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}
	if c.Reconcile.BootstrapCount < 1 || c.Reconcile.BootstrapCount > 1000 {
		return fmt.Errorf("bootstrap count must be between 1 and 1000")
	}
	if c.Reconcile.MaxChainDepth <= 0 {
		return fmt.Errorf("max chain depth must be greater than 0")
	}

	return nil
}

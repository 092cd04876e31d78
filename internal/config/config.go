package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nimbafinance/edge-gateway/internal/policy"
)

// Config represents the gateway configuration.
type Config struct {
	Server   ServerConfig         `mapstructure:"server"`
	Upstream UpstreamConfig       `mapstructure:"upstream"`
	Redis    RedisConfig          `mapstructure:"redis"`
	Database DatabaseConfig       `mapstructure:"database"`
	Security SecurityConfig       `mapstructure:"security"`
	Audit    AuditConfig          `mapstructure:"audit"`
	Fraud    FraudConfig          `mapstructure:"fraud"`
	Routes   []policy.RoutePolicy `mapstructure:"routes"`
	Debug    bool                 `mapstructure:"debug"`
}

// ServerConfig contains the inbound HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// UpstreamConfig points at the core banking API.
type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RedisConfig contains the session keystore backend settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
}

// DatabaseConfig contains the audit store settings. The store is optional;
// without it the console read side is disabled and events only go to the
// collector.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// SecurityConfig contains cipher and session settings.
type SecurityConfig struct {
	KeyIterations int           `mapstructure:"key_iterations"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
}

// AuditConfig contains audit dispatcher settings.
type AuditConfig struct {
	CollectorURL  string        `mapstructure:"collector_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// FraudConfig contains fraud analyzer settings. Blocking selects whether the
// pipeline awaits the verdict before dispatching.
type FraudConfig struct {
	ScorerURL string        `mapstructure:"scorer_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Blocking  bool          `mapstructure:"blocking"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetEnvPrefix("GATEWAY")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	viper.SetDefault("upstream.timeout", "15s")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.database", 0)

	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")

	viper.SetDefault("security.key_iterations", 100000)
	viper.SetDefault("security.session_ttl", "24h")

	viper.SetDefault("audit.timeout", "5s")
	viper.SetDefault("audit.buffer_size", 256)
	viper.SetDefault("audit.batch_size", 16)
	viper.SetDefault("audit.flush_interval", "2s")

	viper.SetDefault("fraud.timeout", "3s")
	viper.SetDefault("fraud.blocking", false)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base URL is required")
	}
	if c.Audit.CollectorURL == "" {
		return fmt.Errorf("audit collector URL is required")
	}
	if c.Fraud.ScorerURL == "" {
		return fmt.Errorf("fraud scorer URL is required")
	}
	if c.Database.Enabled && c.Database.Database == "" {
		return fmt.Errorf("database name is required when the audit store is enabled")
	}
	return nil
}

// GetDatabaseDSN returns the postgres connection string.
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.Username,
		c.Database.Password,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis connection address.
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// RouteTable returns the configured route policies, or the platform default
// table when none are configured.
func (c *Config) RouteTable() *policy.Table {
	if len(c.Routes) == 0 {
		return policy.Default()
	}
	return policy.NewTable(c.Routes)
}

// InitLogger initializes the logger based on configuration.
func (c *Config) InitLogger() (*zap.Logger, error) {
	var zapConfig zap.Config
	if c.Debug {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

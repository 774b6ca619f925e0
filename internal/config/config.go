package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Store      StoreConfig      `mapstructure:"store"`
	Extractor  ExtractorConfig  `mapstructure:"extractor"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

// StoreConfig holds settings for the remote model-file store.
type StoreConfig struct {
	Type       string        `mapstructure:"type"` // s3, local
	Endpoint   string        `mapstructure:"endpoint"`
	AccessKey  string        `mapstructure:"access_key"`
	SecretKey  string        `mapstructure:"secret_key"`
	UseSSL     bool          `mapstructure:"use_ssl"`
	Bucket     string        `mapstructure:"bucket"`
	Region     string        `mapstructure:"region"`
	RootPrefix string        `mapstructure:"root_prefix"`
	LocalPath  string        `mapstructure:"local_path"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ExtractorConfig holds settings for the external field-extraction service.
type ExtractorConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ExtractionConfig holds settings for the extraction orchestrator.
type ExtractionConfig struct {
	Workers int `mapstructure:"workers"`
}

// MonitorConfig holds settings for file monitoring and the background poller.
type MonitorConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	SchedulerEnabled bool          `mapstructure:"scheduler_enabled"`
	AutoExtract      bool          `mapstructure:"auto_extract"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/modelwatch.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("store.type", "s3")
	v.SetDefault("store.endpoint", "localhost:9000")
	v.SetDefault("store.use_ssl", false)
	v.SetDefault("store.bucket", "underwriting-models")
	v.SetDefault("store.root_prefix", "models/")
	v.SetDefault("store.timeout", "30s")
	v.SetDefault("extractor.base_url", "http://localhost:8090")
	v.SetDefault("extractor.timeout", "120s")
	v.SetDefault("extraction.workers", 4)
	v.SetDefault("monitor.poll_interval", "15m")
	v.SetDefault("monitor.scheduler_enabled", false)
	v.SetDefault("monitor.auto_extract", true)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("store.endpoint", "STORE_ENDPOINT")
	v.BindEnv("store.access_key", "STORE_ACCESS_KEY")
	v.BindEnv("store.secret_key", "STORE_SECRET_KEY")
	v.BindEnv("store.bucket", "STORE_BUCKET")
	v.BindEnv("extractor.base_url", "EXTRACTOR_BASE_URL")
	v.BindEnv("extractor.api_key", "EXTRACTOR_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

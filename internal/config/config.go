package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	InRiver  InRiverConfig  `mapstructure:"inriver"`
	Render   RenderConfig   `mapstructure:"render"`
	Sync     SyncConfig     `mapstructure:"sync"`
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
	Driver string `mapstructure:"driver"`
	// SQLite
	Path string `mapstructure:"path"`
	// Postgres
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`

	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

// StorageConfig holds configuration for the S3-compatible object store that
// keeps generated QR artifacts. Prefix is the key prefix (bucket folder)
// under which all artifacts live.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // s3, r2, minio; empty = auto-detect
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	Prefix    string `mapstructure:"prefix"`
}

// InRiverConfig holds connection settings for the inRiver PIM API.
type InRiverConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RenderConfig holds connection settings for the external QR render
// endpoint.
type RenderConfig struct {
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SyncConfig controls reconciliation and QR generation batches.
// FieldMap maps PIM field type ids to product fields (name, barcode,
// source_url, image_url); it is configuration, not code.
type SyncConfig struct {
	Workers          int               `mapstructure:"workers"`
	Group            string            `mapstructure:"group"`
	FieldMap         map[string]string `mapstructure:"field_map"`
	RedirectURL      string            `mapstructure:"redirect_url"`
	ImageURLTemplate string            `mapstructure:"image_url_template"`
	CollectionsFile  string            `mapstructure:"collections_file"`
	Domain           string            `mapstructure:"domain"`
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

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/qrsync.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "qrcodes")
	v.SetDefault("storage.prefix", "qrcodes/")
	v.SetDefault("inriver.request_timeout", "30s")
	v.SetDefault("render.request_timeout", "30s")
	v.SetDefault("sync.workers", 1)
	v.SetDefault("sync.group", "inriver")
	v.SetDefault("sync.field_map", map[string]string{
		"ItemCode": "name",
		"ItemGTIN": "barcode",
	})
	v.SetDefault("sync.collections_file", "./collections.txt")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.bucket", "BUCKET_NAME")
	v.BindEnv("storage.prefix", "S3_FOLDER")
	v.BindEnv("storage.region", "AWS_REGION")
	v.BindEnv("inriver.base_url", "IN_RIVER_URL")
	v.BindEnv("inriver.api_key", "IN_RIVER_API_KEY")
	v.BindEnv("render.url", "RENDER_URL")
	v.BindEnv("sync.redirect_url", "QR_REDIRECT_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

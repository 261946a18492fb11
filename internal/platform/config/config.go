package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Auth     AuthConfig     `json:"auth"`
	Cache    CacheConfig    `json:"cache"`
	Storage  StorageConfig  `json:"storage"`
	Services ServicesConfig `json:"services"`
	Images   ImagesConfig   `json:"images"`
	Counters CountersConfig `json:"counters"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Debug bool   `json:"debug"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Type     string           `json:"type"`
	Postgres PostgreSQLConfig `json:"postgres"`
}

// PostgreSQLConfig holds PostgreSQL-specific configuration
type PostgreSQLConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	Database        string        `json:"database"`
	DSN             string        `json:"dsn"`
	SSLMode         string        `json:"sslMode"`
	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
}

// AuthConfig holds bearer-token verification configuration
type AuthConfig struct {
	JWTSecret string `json:"jwtSecret"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Backend         string        `json:"backend"`
	TTL             time.Duration `json:"ttl"`
	MaxMemory       int64         `json:"maxMemory"`
	CleanupInterval time.Duration `json:"cleanupInterval"`
	Redis           RedisConfig   `json:"redis"`
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	Address      string        `json:"address"`
	Password     string        `json:"password"`
	Database     int           `json:"database"`
	PoolSize     int           `json:"poolSize"`
	MinIdleConns int           `json:"minIdleConns"`
	MaxConnAge   time.Duration `json:"maxConnAge"`
	Cluster      ClusterConfig `json:"cluster"`
}

// ClusterConfig holds Redis cluster configuration
type ClusterConfig struct {
	Enabled   bool     `json:"enabled"`
	Addresses []string `json:"addresses"`
}

// StorageConfig holds object-store configuration
type StorageConfig struct {
	Endpoint        string `json:"endpoint"`
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	MaxRetries      int    `json:"maxRetries"`
	UsePathStyle    bool   `json:"usePathStyle"`
}

// ServicesConfig holds collaborator service base URLs
type ServicesConfig struct {
	TagServiceURL  string        `json:"tagServiceUrl"`
	UserServiceURL string        `json:"userServiceUrl"`
	CDNURL         string        `json:"cdnUrl"`
	HTTPTimeout    time.Duration `json:"httpTimeout"`
}

// ImagesConfig holds image pipeline configuration
type ImagesConfig struct {
	ScratchDir     string `json:"scratchDir"`
	ThumbnailSizes []int  `json:"thumbnailSizes"`
	IconSize       int    `json:"iconSize"`
	BannerWidth    int    `json:"bannerWidth"`
	BannerHeight   int    `json:"bannerHeight"`
	Quality        int    `json:"quality"`
}

// CountersConfig holds counter worker pool configuration
type CountersConfig struct {
	Workers   int `json:"workers"`
	QueueSize int `json:"queueSize"`
}

// LoadFromEnv loads configuration from the environment.
// It follows a clear precedence:
// 1. Explicit Environment Variables (e.g., set in the shell or by CI)
// 2. Values from the .env file (if it exists)
// 3. Hardcoded defaults (if applicable)
func LoadFromEnv() (*Config, error) {
	// godotenv.Load() reads the .env file into the environment only for the
	// variables that are not already set, which gives the precedence above.
	envPaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	var loadErr error
	for _, envPath := range envPaths {
		loadErr = godotenv.Load(envPath)
		if loadErr == nil {
			break
		}
	}

	if loadErr != nil {
		// Not an error: most deployments configure through the environment.
		fmt.Println("INFO: .env file not found, using environment variables and defaults.")
	}

	config := &Config{
		Server: ServerConfig{
			Host:  getEnvOrDefault("HOST", "localhost"),
			Port:  getEnvAsInt("SERVER_PORT", 8080),
			Debug: getEnvAsBool("DEBUG", false),
		},
		Database: DatabaseConfig{
			Type: getEnvOrDefault("DB_TYPE", "postgresql"),
			Postgres: PostgreSQLConfig{
				Host:            getEnvOrDefault("POSTGRES_HOST", "localhost"),
				Port:            getEnvAsInt("POSTGRES_PORT", 5432),
				Username:        getEnvOrDefault("POSTGRES_USERNAME", ""),
				Password:        getEnvOrDefault("POSTGRES_PASSWORD", ""),
				Database:        getEnvOrDefault("POSTGRES_DATABASE", "plume"),
				DSN:             getEnvOrDefault("POSTGRES_DSN", ""),
				SSLMode:         getEnvOrDefault("POSTGRES_SSL_MODE", "disable"),
				MaxOpenConns:    getEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 25),
				MaxIdleConns:    getEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 25),
				ConnMaxLifetime: time.Duration(getEnvAsInt("POSTGRES_CONN_MAX_LIFETIME", 300)) * time.Second,
			},
		},
		Auth: AuthConfig{
			JWTSecret: getEnvOrDefault("JWT_SECRET", ""),
		},
		Cache: CacheConfig{
			Backend:         getEnvOrDefault("CACHE_BACKEND", "redis"),
			TTL:             getEnvAsDuration("CACHE_TTL", 0),
			MaxMemory:       getEnvAsInt64("CACHE_MAX_MEMORY", 100*1024*1024), // 100MB default
			CleanupInterval: getEnvAsDuration("CACHE_CLEANUP_INTERVAL", 5*time.Minute),
			Redis: RedisConfig{
				Address:      getEnvOrDefault("REDIS_ADDRESS", "localhost:6379"),
				Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
				Database:     getEnvAsInt("REDIS_DATABASE", 0),
				PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
				MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
				MaxConnAge:   time.Duration(getEnvAsInt("REDIS_MAX_CONN_AGE", 300)) * time.Second,
				Cluster: ClusterConfig{
					Enabled:   getEnvAsBool("REDIS_CLUSTER_ENABLED", false),
					Addresses: getEnvAsSlice("REDIS_CLUSTER_ADDRESSES", nil),
				},
			},
		},
		Storage: StorageConfig{
			Endpoint:        getEnvOrDefault("STORAGE_ENDPOINT", ""),
			Region:          getEnvOrDefault("STORAGE_REGION", "auto"),
			Bucket:          getEnvOrDefault("STORAGE_BUCKET", ""),
			AccessKeyID:     getEnvOrDefault("STORAGE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnvOrDefault("STORAGE_SECRET_ACCESS_KEY", ""),
			MaxRetries:      getEnvAsInt("STORAGE_MAX_RETRIES", 5),
			UsePathStyle:    getEnvAsBool("STORAGE_USE_PATH_STYLE", true),
		},
		Services: ServicesConfig{
			TagServiceURL:  getEnvOrDefault("TAG_SERVICE_URL", "http://localhost:8083"),
			UserServiceURL: getEnvOrDefault("USER_SERVICE_URL", "http://localhost:8082"),
			CDNURL:         getEnvOrDefault("CDN_URL", "http://localhost:9000"),
			HTTPTimeout:    getEnvAsDuration("SERVICE_HTTP_TIMEOUT", 30*time.Second),
		},
		Images: ImagesConfig{
			ScratchDir:     getEnvOrDefault("SCRATCH_DIR", "images"),
			ThumbnailSizes: getEnvAsInts("THUMBNAIL_SIZES", []int{100, 200, 400, 800, 1200}),
			IconSize:       getEnvAsInt("ICON_SIZE", 400),
			BannerWidth:    getEnvAsInt("BANNER_WIDTH", 1800),
			BannerHeight:   getEnvAsInt("BANNER_HEIGHT", 600),
			Quality:        getEnvAsInt("IMAGE_QUALITY", 85),
		},
		Counters: CountersConfig{
			Workers:   getEnvAsInt("COUNTER_WORKERS", 4),
			QueueSize: getEnvAsInt("COUNTER_QUEUE_SIZE", 256),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// LoadFromMap loads configuration from an in-memory map.
// This is the primary helper for testing configuration logic in isolation
// without manipulating global environment variables.
func LoadFromMap(envMap map[string]string) (*Config, error) {
	get := func(key, defaultValue string) string {
		if value, exists := envMap[key]; exists {
			return value
		}
		return defaultValue
	}

	getInt := func(key string, defaultValue int) int {
		if value, exists := envMap[key]; exists {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		return defaultValue
	}

	getInt64 := func(key string, defaultValue int64) int64 {
		if value, exists := envMap[key]; exists {
			if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
				return intValue
			}
		}
		return defaultValue
	}

	getBool := func(key string, defaultValue bool) bool {
		if value, exists := envMap[key]; exists {
			if boolValue, err := strconv.ParseBool(value); err == nil {
				return boolValue
			}
		}
		return defaultValue
	}

	getDuration := func(key string, defaultValue time.Duration) time.Duration {
		if value, exists := envMap[key]; exists {
			if duration, err := time.ParseDuration(value); err == nil {
				return duration
			}
		}
		return defaultValue
	}

	getInts := func(key string, defaultValue []int) []int {
		if value, exists := envMap[key]; exists {
			if parsed := parseIntList(value); len(parsed) > 0 {
				return parsed
			}
		}
		return defaultValue
	}

	config := &Config{
		Server: ServerConfig{
			Host:  get("HOST", "localhost"),
			Port:  getInt("SERVER_PORT", 8080),
			Debug: getBool("DEBUG", false),
		},
		Database: DatabaseConfig{
			Type: get("DB_TYPE", "postgresql"),
			Postgres: PostgreSQLConfig{
				Host:            get("POSTGRES_HOST", "localhost"),
				Port:            getInt("POSTGRES_PORT", 5432),
				Username:        get("POSTGRES_USERNAME", ""),
				Password:        get("POSTGRES_PASSWORD", ""),
				Database:        get("POSTGRES_DATABASE", "plume"),
				DSN:             get("POSTGRES_DSN", ""),
				SSLMode:         get("POSTGRES_SSL_MODE", "disable"),
				MaxOpenConns:    getInt("POSTGRES_MAX_OPEN_CONNS", 25),
				MaxIdleConns:    getInt("POSTGRES_MAX_IDLE_CONNS", 25),
				ConnMaxLifetime: time.Duration(getInt("POSTGRES_CONN_MAX_LIFETIME", 300)) * time.Second,
			},
		},
		Auth: AuthConfig{
			JWTSecret: get("JWT_SECRET", ""),
		},
		Cache: CacheConfig{
			Backend:         get("CACHE_BACKEND", "memory"),
			TTL:             getDuration("CACHE_TTL", 0),
			MaxMemory:       getInt64("CACHE_MAX_MEMORY", 100*1024*1024),
			CleanupInterval: getDuration("CACHE_CLEANUP_INTERVAL", 5*time.Minute),
			Redis: RedisConfig{
				Address:      get("REDIS_ADDRESS", "localhost:6379"),
				Password:     get("REDIS_PASSWORD", ""),
				Database:     getInt("REDIS_DATABASE", 0),
				PoolSize:     getInt("REDIS_POOL_SIZE", 10),
				MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 5),
				MaxConnAge:   time.Duration(getInt("REDIS_MAX_CONN_AGE", 300)) * time.Second,
				Cluster: ClusterConfig{
					Enabled:   getBool("REDIS_CLUSTER_ENABLED", false),
					Addresses: strings.Split(get("REDIS_CLUSTER_ADDRESSES", ""), ","),
				},
			},
		},
		Storage: StorageConfig{
			Endpoint:        get("STORAGE_ENDPOINT", ""),
			Region:          get("STORAGE_REGION", "auto"),
			Bucket:          get("STORAGE_BUCKET", ""),
			AccessKeyID:     get("STORAGE_ACCESS_KEY_ID", ""),
			SecretAccessKey: get("STORAGE_SECRET_ACCESS_KEY", ""),
			MaxRetries:      getInt("STORAGE_MAX_RETRIES", 5),
			UsePathStyle:    getBool("STORAGE_USE_PATH_STYLE", true),
		},
		Services: ServicesConfig{
			TagServiceURL:  get("TAG_SERVICE_URL", "http://localhost:8083"),
			UserServiceURL: get("USER_SERVICE_URL", "http://localhost:8082"),
			CDNURL:         get("CDN_URL", "http://localhost:9000"),
			HTTPTimeout:    getDuration("SERVICE_HTTP_TIMEOUT", 30*time.Second),
		},
		Images: ImagesConfig{
			ScratchDir:     get("SCRATCH_DIR", "images"),
			ThumbnailSizes: getInts("THUMBNAIL_SIZES", []int{100, 200, 400, 800, 1200}),
			IconSize:       getInt("ICON_SIZE", 400),
			BannerWidth:    getInt("BANNER_WIDTH", 1800),
			BannerHeight:   getInt("BANNER_HEIGHT", 600),
			Quality:        getInt("IMAGE_QUALITY", 85),
		},
		Counters: CountersConfig{
			Workers:   getInt("COUNTER_WORKERS", 4),
			QueueSize: getInt("COUNTER_QUEUE_SIZE", 256),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration for required fields
func (c *Config) Validate() error {
	var errors []string

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errors = append(errors, "JWT_SECRET is required")
	}

	if strings.TrimSpace(c.Storage.Bucket) == "" {
		errors = append(errors, "STORAGE_BUCKET is required")
	}

	validDbTypes := []string{"postgresql"}
	if !contains(validDbTypes, c.Database.Type) {
		errors = append(errors, fmt.Sprintf("DB_TYPE must be one of: %s", strings.Join(validDbTypes, ", ")))
	}

	if len(c.Images.ThumbnailSizes) == 0 {
		errors = append(errors, "THUMBNAIL_SIZES must list at least one size")
	}

	if c.Counters.Workers < 1 {
		errors = append(errors, "COUNTER_WORKERS must be at least 1")
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// MaxThumbnailSize returns the largest configured rendition preset, the one
// that also gets a JPEG variant.
func (c *Config) MaxThumbnailSize() int {
	max := 0
	for _, size := range c.Images.ThumbnailSizes {
		if size > max {
			max = size
		}
	}
	return max
}

// Helper functions
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getEnvAsInts(key string, defaultValue []int) []int {
	if value := os.Getenv(key); value != "" {
		if parsed := parseIntList(value); len(parsed) > 0 {
			return parsed
		}
	}
	return defaultValue
}

func parseIntList(value string) []int {
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

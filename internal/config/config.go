// Package config loads photovault's settings from environment variables.
//
// Every key has a default that runs a single-binary, single-file deployment:
// SQLite for both metadata and blobs, no lock, no broker. Pointing the
// backends at MongoDB, GridFS, MinIO, Redis or RabbitMQ is purely a matter of
// setting the corresponding variables.
//
// A malformed value (PORT=abc, TOKEN_TTL=forever) is an error, not a silent
// fallback to the default. Load collects every such problem and returns
// them together so one restart fixes them all.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
	BackendGridFS = "gridfs"
	BackendMinIO  = "minio"

	LockNone  = "none"
	LockLocal = "local"
	LockRedis = "redis"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	MongoDB   MongoDBConfig
	MinIO     MinIOConfig
	Auth      AuthConfig
	Lock      LockConfig
	RabbitMQ  RabbitMQConfig
	Reconcile ReconcileConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           int
	MaxUploadBytes int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

type StorageConfig struct {
	MetadataBackend string // sqlite | mongo
	BlobBackend     string // sqlite | gridfs | minio
	DBPath          string
}

type MongoDBConfig struct {
	URI          string
	Database     string
	GridFSBucket string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type AuthConfig struct {
	JWTSecret          string
	TokenTTL           time.Duration
	PasswordCost       int
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// GitHubEnabled reports whether GitHub sign-in routes should be mounted.
func (a AuthConfig) GitHubEnabled() bool {
	return a.GitHubClientID != "" && a.GitHubClientSecret != ""
}

type LockConfig struct {
	Backend       string // none | local | redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

type RabbitMQConfig struct {
	URI string // empty disables event publishing
}

type ReconcileConfig struct {
	Interval time.Duration // 0 disables the background sweeper
	Grace    time.Duration
}

type LogConfig struct {
	Level      string // debug | info | warn | error
	Format     string // text | json
	File       string // empty: stdout only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// loader accumulates parse errors so Load can report all of them at once.
type loader struct {
	errs []error
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	l := &loader{}

	cfg := &Config{
		Server: ServerConfig{
			Port:           l.int("PORT", 8080),
			MaxUploadBytes: l.int64("MAX_UPLOAD_BYTES", 32<<20),
			ReadTimeout:    l.duration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   l.duration("WRITE_TIMEOUT", 60*time.Second),
		},
		Storage: StorageConfig{
			MetadataBackend: strings.ToLower(getEnv("METADATA_BACKEND", BackendSQLite)),
			BlobBackend:     strings.ToLower(getEnv("BLOB_BACKEND", BackendSQLite)),
			DBPath:          getEnv("DB_PATH", "data/photovault.db"),
		},
		MongoDB: MongoDBConfig{
			URI:          getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:     getEnv("MONGODB_DATABASE", "photovault"),
			GridFSBucket: getEnv("GRIDFS_BUCKET", "photos"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    getEnv("MINIO_BUCKET", "photovault"),
			UseSSL:    l.bool("MINIO_USE_SSL", false),
			Region:    getEnv("MINIO_REGION", "us-east-1"),
		},
		Auth: AuthConfig{
			JWTSecret:          getEnv("JWT_SECRET", ""),
			TokenTTL:           l.duration("TOKEN_TTL", time.Hour),
			PasswordCost:       l.int("PASSWORD_COST", 10),
			GitHubClientID:     getEnv("GITHUB_CLIENT_ID", ""),
			GitHubClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
			GitHubCallbackURL:  getEnv("GITHUB_CALLBACK_URL", ""),
		},
		Lock: LockConfig{
			Backend:       strings.ToLower(getEnv("LOCK_BACKEND", LockNone)),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       l.int("REDIS_DB", 0),
			TTL:           l.duration("LOCK_TTL", 30*time.Second),
		},
		RabbitMQ: RabbitMQConfig{
			URI: getEnv("RABBITMQ_URI", ""),
		},
		Reconcile: ReconcileConfig{
			Interval: l.duration("RECONCILE_INTERVAL", 0),
			Grace:    l.duration("RECONCILE_GRACE", 15*time.Minute),
		},
		Log: LogConfig{
			Level:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format:     strings.ToLower(getEnv("LOG_FORMAT", "text")),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  l.int("LOG_MAX_SIZE_MB", 100),
			MaxBackups: l.int("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: l.int("LOG_MAX_AGE_DAYS", 30),
		},
	}

	if cfg.Auth.GitHubCallbackURL == "" {
		cfg.Auth.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Server.Port)
	}

	if err := errors.Join(l.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules that a single parse cannot.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.MetadataBackend {
	case BackendSQLite, BackendMongo:
	default:
		errs = append(errs, fmt.Errorf("config: METADATA_BACKEND must be sqlite or mongo, got %q", c.Storage.MetadataBackend))
	}
	switch c.Storage.BlobBackend {
	case BackendSQLite, BackendGridFS, BackendMinIO:
	default:
		errs = append(errs, fmt.Errorf("config: BLOB_BACKEND must be sqlite, gridfs or minio, got %q", c.Storage.BlobBackend))
	}
	if c.Storage.BlobBackend == BackendSQLite && c.Storage.MetadataBackend != BackendSQLite {
		errs = append(errs, errors.New("config: BLOB_BACKEND=sqlite requires METADATA_BACKEND=sqlite"))
	}
	switch c.Lock.Backend {
	case LockNone, LockLocal, LockRedis:
	default:
		errs = append(errs, fmt.Errorf("config: LOCK_BACKEND must be none, local or redis, got %q", c.Lock.Backend))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("config: JWT_SECRET must be set to at least 16 characters"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT out of range: %d", c.Server.Port))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("config: MAX_UPLOAD_BYTES must be positive"))
	}
	if c.Reconcile.Interval < 0 || c.Reconcile.Grace < 0 {
		errs = append(errs, errors.New("config: RECONCILE_INTERVAL and RECONCILE_GRACE must not be negative"))
	}

	return errors.Join(errs...)
}

// getEnv treats an empty variable the same as an unset one.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func (l *loader) int(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("config: %s: %q is not an integer", key, value))
		return defaultValue
	}
	return n
}

func (l *loader) int64(key string, defaultValue int64) int64 {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("config: %s: %q is not an integer", key, value))
		return defaultValue
	}
	return n
}

func (l *loader) bool(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("config: %s: %q is not a boolean", key, value))
		return defaultValue
	}
	return b
}

// duration accepts Go duration syntax ("90s", "15m") or a bare number of seconds.
func (l *loader) duration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	secs, err := strconv.Atoi(value)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("config: %s: %q is not a duration", key, value))
		return defaultValue
	}
	return time.Duration(secs) * time.Second
}

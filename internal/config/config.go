// Package config loads configuration from an optional YAML file and
// environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mistware/files/internal/storage/factory"
	"github.com/mistware/files/internal/storage/local"
	"github.com/mistware/files/internal/storage/remote"
	"github.com/mistware/files/internal/storage/smb"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogOutput string `yaml:"log_output"`

	// Storage backend: local, smb, s3, minio or memory
	StorageBackend   string `yaml:"storage_backend"`
	LocalStoragePath string `yaml:"local_storage_path"`

	// SMB (share must already be mounted at SMBMountPath)
	SMBServer    string `yaml:"smb_server"`
	SMBUsername  string `yaml:"smb_username"`
	SMBDomain    string `yaml:"smb_domain"`
	SMBMountPath string `yaml:"smb_mount_path"`

	// S3 storage
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3Region    string `yaml:"s3_region"`
	S3UseSSL    bool   `yaml:"s3_use_ssl"`

	// MinIO storage
	MinioEndpoint  string `yaml:"minio_endpoint"`
	MinioBucket    string `yaml:"minio_bucket"`
	MinioAccessKey string `yaml:"minio_access_key"`
	MinioSecretKey string `yaml:"minio_secret_key"`
	MinioUseSSL    bool   `yaml:"minio_use_ssl"`

	// In-process share
	MemoryShareName string `yaml:"memory_share_name"`

	// Remote copy polling
	CopyPollInterval time.Duration `yaml:"copy_poll_interval"`
	CopyTimeout      time.Duration `yaml:"copy_timeout"`

	// Uploads
	MaxUploadSize       int64    `yaml:"max_upload_size"`
	PermittedExtensions []string `yaml:"permitted_extensions"`
	UploadFolder        string   `yaml:"upload_folder"`

	// Log store
	LogStoreEnabled      bool   `yaml:"log_store_enabled"`
	LogStoreDir          string `yaml:"log_store_dir"`
	LogStoreFile         string `yaml:"log_store_file"`
	LogRetentionDays     int    `yaml:"log_retention_days"`
	LogRetentionSchedule string `yaml:"log_retention_schedule"`
	LogRetentionCalendar bool   `yaml:"log_retention_calendar"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:           ":8080",
		MetricsAddr:          ":9090",
		LogLevel:             "info",
		LogFormat:            "json",
		StorageBackend:       "local",
		LocalStoragePath:     "/data/storage",
		S3Endpoint:           "http://localhost:9000",
		S3Bucket:             "mistware",
		S3Region:             "us-east-1",
		MinioEndpoint:        "localhost:9000",
		MinioBucket:          "mistware",
		MemoryShareName:      "default",
		CopyPollInterval:     remote.DefaultPollInterval,
		CopyTimeout:          remote.DefaultCopyTimeout,
		MaxUploadSize:        50 * 1024 * 1024, // 50MB
		PermittedExtensions:  []string{".txt", ".csv", ".log", ".gif", ".png", ".jpeg", ".jpg", ".pdf", ".zip"},
		UploadFolder:         "uploads",
		LogStoreDir:          "logs",
		LogStoreFile:         "mistware.log",
		LogRetentionDays:     60,
		LogRetentionSchedule: "5 0 * * *",
	}
}

// Load reads the YAML file named by CONFIG_PATH (if set), then applies
// environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = envOr("LISTEN_ADDR", c.ListenAddr)
	c.MetricsAddr = envOr("METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOr("LOG_FORMAT", c.LogFormat)
	c.LogOutput = envOr("LOG_OUTPUT", c.LogOutput)

	c.StorageBackend = envOr("STORAGE_BACKEND", c.StorageBackend)
	c.LocalStoragePath = envOr("LOCAL_STORAGE_PATH", c.LocalStoragePath)
	c.SMBServer = envOr("SMB_SERVER", c.SMBServer)
	c.SMBUsername = envOr("SMB_USERNAME", c.SMBUsername)
	c.SMBDomain = envOr("SMB_DOMAIN", c.SMBDomain)
	c.SMBMountPath = envOr("SMB_MOUNT_PATH", c.SMBMountPath)

	c.S3Endpoint = envOr("S3_ENDPOINT", c.S3Endpoint)
	c.S3Bucket = envOr("S3_BUCKET", c.S3Bucket)
	c.S3AccessKey = envOr("S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = envOr("S3_SECRET_KEY", c.S3SecretKey)
	c.S3Region = envOr("S3_REGION", c.S3Region)
	c.S3UseSSL = envBool("S3_USE_SSL", c.S3UseSSL)

	c.MinioEndpoint = envOr("MINIO_ENDPOINT", c.MinioEndpoint)
	c.MinioBucket = envOr("MINIO_BUCKET", c.MinioBucket)
	c.MinioAccessKey = envOr("MINIO_ACCESS_KEY", c.MinioAccessKey)
	c.MinioSecretKey = envOr("MINIO_SECRET_KEY", c.MinioSecretKey)
	c.MinioUseSSL = envBool("MINIO_USE_SSL", c.MinioUseSSL)

	c.MemoryShareName = envOr("MEMORY_SHARE_NAME", c.MemoryShareName)
	c.CopyPollInterval = envDuration("COPY_POLL_INTERVAL", c.CopyPollInterval)
	c.CopyTimeout = envDuration("COPY_TIMEOUT", c.CopyTimeout)

	c.MaxUploadSize = envInt64("MAX_UPLOAD_SIZE", c.MaxUploadSize)
	c.PermittedExtensions = envList("PERMITTED_EXTENSIONS", c.PermittedExtensions)
	c.UploadFolder = envOr("UPLOAD_FOLDER", c.UploadFolder)

	c.LogStoreEnabled = envBool("LOG_STORE_ENABLED", c.LogStoreEnabled)
	c.LogStoreDir = envOr("LOG_STORE_DIR", c.LogStoreDir)
	c.LogStoreFile = envOr("LOG_STORE_FILE", c.LogStoreFile)
	c.LogRetentionDays = envInt("LOG_RETENTION_DAYS", c.LogRetentionDays)
	c.LogRetentionSchedule = envOr("LOG_RETENTION_SCHEDULE", c.LogRetentionSchedule)
	c.LogRetentionCalendar = envBool("LOG_RETENTION_CALENDAR", c.LogRetentionCalendar)
}

// Validate checks the settings that have no usable fallback.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "local":
		if c.LocalStoragePath == "" {
			return fmt.Errorf("LOCAL_STORAGE_PATH is required for the local backend")
		}
	case "smb":
		if c.SMBMountPath == "" {
			return fmt.Errorf("SMB_MOUNT_PATH is required for the smb backend")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 backend")
		}
	case "minio":
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			return fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET are required for the minio backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}
	if len(c.PermittedExtensions) == 0 {
		return fmt.Errorf("PERMITTED_EXTENSIONS must not be empty")
	}
	for i, ext := range c.PermittedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.PermittedExtensions[i] = ext
	}
	return nil
}

// BackendConfig returns the JSON config for factory.NewBackend.
func (c *Config) BackendConfig() (json.RawMessage, error) {
	opts := remote.Options{
		PollInterval: remote.Duration(c.CopyPollInterval),
		CopyTimeout:  remote.Duration(c.CopyTimeout),
	}
	var v any
	switch c.StorageBackend {
	case "local":
		v = local.Config{RootPath: c.LocalStoragePath, CreateDirs: true}
	case "smb":
		v = smb.Config{
			Server:    c.SMBServer,
			Username:  c.SMBUsername,
			Domain:    c.SMBDomain,
			MountPath: c.SMBMountPath,
		}
	case "s3":
		v = remote.S3Config{
			Endpoint:  c.S3Endpoint,
			Bucket:    c.S3Bucket,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			Region:    c.S3Region,
			UseSSL:    c.S3UseSSL,
			Options:   opts,
		}
	case "minio":
		v = remote.MinioConfig{
			Endpoint:  c.MinioEndpoint,
			Bucket:    c.MinioBucket,
			AccessKey: c.MinioAccessKey,
			SecretKey: c.MinioSecretKey,
			UseSSL:    c.MinioUseSSL,
			Options:   opts,
		}
	case "memory":
		v = factory.MemoryConfig{Name: c.MemoryShareName, Options: opts}
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	return json.Marshal(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

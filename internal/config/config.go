package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Upload  UploadConfig  `yaml:"upload"`
	Storage StorageConfig `yaml:"storage"`
	Device  DeviceConfig  `yaml:"device"`
	MinIO   MinIOConfig   `yaml:"minio"`
	NATS    NATSConfig    `yaml:"nats"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// PublicBaseURL prefixes image URLs. Empty means scheme://host of the request.
	PublicBaseURL string `yaml:"public_base_url"`
	// StaticDir holds the built dashboard. Empty disables SPA hosting.
	StaticDir string `yaml:"static_dir"`
}

type UploadConfig struct {
	MaxFileBytes int64 `yaml:"max_file_bytes"`
	// DiscardUnrecognized deletes origin/body uploads of unrecognized events.
	DiscardUnrecognized *bool `yaml:"discard_unrecognized"`
}

// Discard reports whether unrecognized uploads are deleted (default true).
func (u UploadConfig) Discard() bool {
	return u.DiscardUnrecognized == nil || *u.DiscardUnrecognized
}

type StorageConfig struct {
	Backend       string        `yaml:"backend"` // local, minio
	Dir           string        `yaml:"dir"`
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type DeviceConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from a YAML file and applies environment variable overrides.
// When optional is set, a missing file yields the defaults.
func Load(path string, optional bool) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	setDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Upload.MaxFileBytes == 0 {
		cfg.Upload.MaxFileBytes = 10 << 20
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "uploads"
	}
	if cfg.Storage.Retention == 0 {
		cfg.Storage.Retention = 24 * time.Hour
	}
	if cfg.Storage.SweepInterval == 0 {
		cfg.Storage.SweepInterval = time.Hour
	}
	if cfg.Device.FetchTimeout == 0 {
		cfg.Device.FetchTimeout = 5 * time.Second
	}
	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "recognitions.latest"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "local":
	case "minio":
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			return errors.New("minio backend requires minio.endpoint and minio.bucket")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Upload.MaxFileBytes < 0 {
		return errors.New("upload.max_file_bytes must not be negative")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"PORT", &cfg.Server.Port},
		{"FACEHOOK_SERVER_PORT", &cfg.Server.Port},
	}
	for _, e := range ints {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("env %s: %w", e.key, err)
			}
			*e.dst = n
		}
	}

	if v := os.Getenv("FACEHOOK_MAX_FILE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("env FACEHOOK_MAX_FILE_BYTES: %w", err)
		}
		cfg.Upload.MaxFileBytes = n
	}
	if v := os.Getenv("FACEHOOK_DISCARD_UNRECOGNIZED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("env FACEHOOK_DISCARD_UNRECOGNIZED: %w", err)
		}
		cfg.Upload.DiscardUnrecognized = &b
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"FACEHOOK_RETENTION", &cfg.Storage.Retention},
		{"FACEHOOK_SWEEP_INTERVAL", &cfg.Storage.SweepInterval},
		{"FACEHOOK_DEVICE_FETCH_TIMEOUT", &cfg.Device.FetchTimeout},
	}
	for _, e := range durations {
		if v := os.Getenv(e.key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("env %s: %w", e.key, err)
			}
			*e.dst = d
		}
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"FACEHOOK_PUBLIC_BASE_URL", &cfg.Server.PublicBaseURL},
		{"FACEHOOK_STATIC_DIR", &cfg.Server.StaticDir},
		{"FACEHOOK_STORAGE_BACKEND", &cfg.Storage.Backend},
		{"FACEHOOK_UPLOADS_DIR", &cfg.Storage.Dir},
		{"FACEHOOK_MINIO_ENDPOINT", &cfg.MinIO.Endpoint},
		{"FACEHOOK_MINIO_ACCESS_KEY", &cfg.MinIO.AccessKey},
		{"FACEHOOK_MINIO_SECRET_KEY", &cfg.MinIO.SecretKey},
		{"FACEHOOK_MINIO_BUCKET", &cfg.MinIO.Bucket},
		{"FACEHOOK_NATS_URL", &cfg.NATS.URL},
		{"FACEHOOK_NATS_SUBJECT", &cfg.NATS.Subject},
		{"FACEHOOK_LOG_LEVEL", &cfg.Logging.Level},
		{"FACEHOOK_LOG_FORMAT", &cfg.Logging.Format},
	}
	for _, e := range strs {
		if v := os.Getenv(e.key); v != "" {
			*e.dst = v
		}
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

var bucketNameRE = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Config is the top-level bucketd configuration.
type Config struct {
	Server  ServerConfig            `toml:"server"`
	Storage StorageConfig           `toml:"storage"`
	S3      S3Config                `toml:"s3"`
	Notify  NotifyConfig            `toml:"notify"`
	Logging LoggingConfig           `toml:"logging"`
	Buckets map[string]BucketConfig `toml:"buckets"`
}

type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	ShutdownTimeout    int      `toml:"shutdown_timeout"`
}

// StorageConfig holds the global upload settings. Per-bucket sections
// override the overridable ones.
type StorageConfig struct {
	LocalDest        string      `toml:"local_dest"`
	SignKey          string      `toml:"sign_key"`
	SignedURLExpiry  int         `toml:"signed_url_expiry"` // seconds
	MaxFileSize      string      `toml:"max_file_size"`
	ResolveConflicts bool        `toml:"resolve_conflicts"`
	Retry            RetryConfig `toml:"retry"`
}

// RetryConfig bounds upload retries against the object store.
type RetryConfig struct {
	Attempts   int     `toml:"attempts"`
	WaitMinMS  int     `toml:"wait_min_ms"`
	WaitMaxMS  int     `toml:"wait_max_ms"`
	Multiplier float64 `toml:"multiplier"`
}

// S3Config holds the shared object store connection. Individual buckets
// opt in by setting s3_bucket; without credentials here every bucket runs
// local-only.
type S3Config struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
}

// NotifyConfig controls where upload/delete events are published.
// When Backend is "" or "log", events are only written to the server log.
type NotifyConfig struct {
	Backend string              `toml:"backend"` // "log" (default), "webhook", "nats", "redis"
	Webhook NotifyWebhookConfig `toml:"webhook"`
	NATS    NotifyNATSConfig    `toml:"nats"`
	Redis   NotifyRedisConfig   `toml:"redis"`
}

type NotifyWebhookConfig struct {
	URL     string `toml:"url"`
	Secret  string `toml:"secret"`
	Timeout int    `toml:"timeout"` // seconds, default 10
}

type NotifyNATSConfig struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

type NotifyRedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Channel  string `toml:"channel"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// BucketConfig is a single [buckets.<name>] section. Pointer fields
// distinguish "unset, inherit the global" from an explicit false.
type BucketConfig struct {
	Extensions       []string     `toml:"extensions"`
	Allow            []string     `toml:"allow"`
	Deny             []string     `toml:"deny"`
	ResolveConflicts *bool        `toml:"resolve_conflicts"`
	S3Bucket         string       `toml:"s3_bucket"`
	DeleteLocal      *bool        `toml:"delete_local"`
	Private          bool         `toml:"private"`
	BaseURL          string       `toml:"base_url"`
	SignedURLExpiry  int          `toml:"signed_url_expiry"` // seconds, 0 inherits the global
	Retry            *RetryConfig `toml:"retry"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8090,
			CORSAllowedOrigins: []string{"*"},
			ShutdownTimeout:    10,
		},
		Storage: StorageConfig{
			LocalDest:       "./bucketd_data",
			SignedURLExpiry: 300,
			MaxFileSize:     "10MB",
			Retry: RetryConfig{
				Attempts:   1,
				WaitMinMS:  1000,
				Multiplier: 2,
			},
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Notify: NotifyConfig{
			Backend: "log",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Buckets: map[string]BucketConfig{
			"files": {},
		},
	}
}

// Load reads configuration with priority: defaults → bucketd.toml → env
// vars → CLI flags. The flags parameter allows CLI flag overrides to be
// passed in.
func Load(configPath string, flags map[string]string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = "bucketd.toml"
	}
	if data, err := os.ReadFile(configPath); err == nil {
		// A config file replaces the default bucket set instead of
		// merging into it.
		cfg.Buckets = nil
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	applyFlags(cfg, flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Storage.LocalDest == "" {
		return fmt.Errorf("storage.local_dest is required")
	}
	if c.Storage.SignedURLExpiry < 0 {
		return fmt.Errorf("storage.signed_url_expiry must be non-negative, got %d", c.Storage.SignedURLExpiry)
	}
	if err := c.Storage.Retry.validate("storage.retry"); err != nil {
		return err
	}
	for name, b := range c.Buckets {
		if !bucketNameRE.MatchString(name) {
			return fmt.Errorf("bucket name %q must be alphanumeric", name)
		}
		if b.S3Bucket != "" && c.S3.Endpoint == "" {
			return fmt.Errorf("s3.endpoint is required when buckets.%s.s3_bucket is set", name)
		}
		if b.Retry != nil {
			if err := b.Retry.validate("buckets." + name + ".retry"); err != nil {
				return err
			}
		}
	}
	switch c.Notify.Backend {
	case "", "log":
	case "webhook":
		if c.Notify.Webhook.URL == "" {
			return fmt.Errorf("notify.webhook.url is required when notify backend is \"webhook\"")
		}
	case "nats":
		if c.Notify.NATS.URL == "" {
			return fmt.Errorf("notify.nats.url is required when notify backend is \"nats\"")
		}
	case "redis":
		if c.Notify.Redis.Addr == "" {
			return fmt.Errorf("notify.redis.addr is required when notify backend is \"redis\"")
		}
	default:
		return fmt.Errorf("notify.backend must be \"log\", \"webhook\", \"nats\", or \"redis\", got %q", c.Notify.Backend)
	}
	if c.Logging.Level != "" {
		switch c.Logging.Level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.level must be one of: debug, info, warn, error; got %q", c.Logging.Level)
		}
	}
	if c.Logging.Format != "" {
		switch c.Logging.Format {
		case "json", "text":
		default:
			return fmt.Errorf("logging.format must be \"json\" or \"text\", got %q", c.Logging.Format)
		}
	}
	return nil
}

func (r RetryConfig) validate(key string) error {
	if r.Attempts < 0 {
		return fmt.Errorf("%s.attempts must be non-negative, got %d", key, r.Attempts)
	}
	if r.Multiplier != 0 && r.Multiplier < 1 {
		return fmt.Errorf("%s.multiplier must be at least 1, got %g", key, r.Multiplier)
	}
	return nil
}

// Address returns the host:port string for the server to listen on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GenerateDefault writes a commented default bucketd.toml to the given path.
func GenerateDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultTOML), 0o644)
}

// ToTOML returns the config serialized as TOML.
func (c *Config) ToTOML() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// envInt reads an integer from the named environment variable.
// Returns an error if the value is set but not a valid integer.
func envInt(name string, dest *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q is not an integer", name, v)
	}
	*dest = n
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("BUCKETD_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if err := envInt("BUCKETD_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if v := os.Getenv("BUCKETD_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSAllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("BUCKETD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BUCKETD_STORAGE_LOCAL_DEST"); v != "" {
		cfg.Storage.LocalDest = v
	}
	if v := os.Getenv("BUCKETD_STORAGE_SIGN_KEY"); v != "" {
		cfg.Storage.SignKey = v
	}
	if err := envInt("BUCKETD_STORAGE_SIGNED_URL_EXPIRY", &cfg.Storage.SignedURLExpiry); err != nil {
		return err
	}
	if v := os.Getenv("BUCKETD_STORAGE_MAX_FILE_SIZE"); v != "" {
		cfg.Storage.MaxFileSize = v
	}
	if v := os.Getenv("BUCKETD_S3_ENDPOINT"); v != "" {
		cfg.S3.Endpoint = v
	}
	if v := os.Getenv("BUCKETD_S3_REGION"); v != "" {
		cfg.S3.Region = v
	}
	if v := os.Getenv("BUCKETD_S3_ACCESS_KEY"); v != "" {
		cfg.S3.AccessKey = v
	}
	if v := os.Getenv("BUCKETD_S3_SECRET_KEY"); v != "" {
		cfg.S3.SecretKey = v
	}
	if v := os.Getenv("BUCKETD_S3_USE_SSL"); v != "" {
		cfg.S3.UseSSL = v == "true" || v == "1"
	}
	if v := os.Getenv("BUCKETD_NOTIFY_BACKEND"); v != "" {
		cfg.Notify.Backend = v
	}
	if v := os.Getenv("BUCKETD_NOTIFY_WEBHOOK_URL"); v != "" {
		cfg.Notify.Webhook.URL = v
	}
	if v := os.Getenv("BUCKETD_NOTIFY_WEBHOOK_SECRET"); v != "" {
		cfg.Notify.Webhook.Secret = v
	}
	if err := envInt("BUCKETD_NOTIFY_WEBHOOK_TIMEOUT", &cfg.Notify.Webhook.Timeout); err != nil {
		return err
	}
	if v := os.Getenv("BUCKETD_NOTIFY_NATS_URL"); v != "" {
		cfg.Notify.NATS.URL = v
	}
	if v := os.Getenv("BUCKETD_NOTIFY_NATS_SUBJECT"); v != "" {
		cfg.Notify.NATS.Subject = v
	}
	if v := os.Getenv("BUCKETD_NOTIFY_REDIS_ADDR"); v != "" {
		cfg.Notify.Redis.Addr = v
	}
	if v := os.Getenv("BUCKETD_NOTIFY_REDIS_PASSWORD"); v != "" {
		cfg.Notify.Redis.Password = v
	}
	if err := envInt("BUCKETD_NOTIFY_REDIS_DB", &cfg.Notify.Redis.DB); err != nil {
		return err
	}
	if v := os.Getenv("BUCKETD_NOTIFY_REDIS_CHANNEL"); v != "" {
		cfg.Notify.Redis.Channel = v
	}
	return nil
}

func applyFlags(cfg *Config, flags map[string]string) {
	if flags == nil {
		return
	}
	if v, ok := flags["port"]; ok && v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v, ok := flags["host"]; ok && v != "" {
		cfg.Server.Host = v
	}
	if v, ok := flags["local-dest"]; ok && v != "" {
		cfg.Storage.LocalDest = v
	}
}

// MaxFileSizeBytes returns the max upload size in bytes, parsed from the
// config string. Supports "10MB", "5MB", etc. Defaults to 10MB if
// unparseable.
func (c *StorageConfig) MaxFileSizeBytes() int64 {
	s := strings.TrimSpace(strings.ToUpper(c.MaxFileSize))
	s = strings.TrimSuffix(s, "B")
	s = strings.TrimSuffix(s, "M")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 10 << 20 // 10MB default
	}
	return n << 20
}

// DeleteLocalOrDefault resolves the delete_local pointer; staged copies
// are removed after upload unless explicitly kept.
func (b BucketConfig) DeleteLocalOrDefault() bool {
	if b.DeleteLocal == nil {
		return true
	}
	return *b.DeleteLocal
}

const defaultTOML = `# bucketd Configuration

[server]
# Address to listen on.
host = "0.0.0.0"
port = 8090

# CORS allowed origins. Use ["*"] to allow all.
cors_allowed_origins = ["*"]

# Seconds to wait for in-flight requests during shutdown.
shutdown_timeout = 10

[storage]
# Directory for local file storage. Each bucket gets a subdirectory.
local_dest = "./bucketd_data"

# HMAC key for signing local download URLs. A random key is generated at
# startup when unset, invalidating signed URLs across restarts.
# sign_key = ""

# Seconds a signed URL stays valid.
signed_url_expiry = 300

# Maximum upload file size.
max_file_size = "10MB"

# Append _1, _2, ... to the filename instead of overwriting on conflict.
resolve_conflicts = false

# Upload retry policy against the object store.
[storage.retry]
attempts = 1
wait_min_ms = 1000
# wait_max_ms = 30000
multiplier = 2.0

[s3]
# S3-compatible object store shared by all cloud buckets.
# Works with AWS S3, Cloudflare R2, MinIO, DigitalOcean Spaces.
# endpoint = "s3.amazonaws.com"
region = "us-east-1"
# access_key = ""
# secret_key = ""
use_ssl = true

[notify]
# Where upload/delete events are published:
# "log" (default), "webhook", "nats", or "redis".
backend = "log"

# Webhook settings (backend = "webhook").
# bucketd POSTs JSON events to your URL, signed with HMAC-SHA256 in the
# X-Bucketd-Signature header if secret is set.
# [notify.webhook]
# url = ""
# secret = ""
# timeout = 10

# NATS settings (backend = "nats").
# [notify.nats]
# url = "nats://127.0.0.1:4222"
# subject = "bucketd.events"

# Redis settings (backend = "redis").
# [notify.redis]
# addr = "127.0.0.1:6379"
# password = ""
# db = 0
# channel = "bucketd:events"

[logging]
# Log level: debug, info, warn, error.
level = "info"

# Log format: json or text.
format = "json"

# Buckets. Names must be alphanumeric; each becomes an upload namespace
# under local_dest and in the HTTP API.
[buckets.files]
# Extra extensions on top of the default text/document/image set.
# allow = ["mp3"]
# Extensions rejected even if allowed above. Deny wins.
# deny = ["exe"]
# Replace the default extension set entirely.
# extensions = ["pdf", "txt"]
# Mirror uploads into this object store bucket.
# s3_bucket = ""
# Keep the staged local copy after a cloud upload.
# delete_local = true
# Require a signed token to download through /_uploads.
# private = false
# Override the generated URL prefix, e.g. a CDN in front of the store.
# base_url = ""
`

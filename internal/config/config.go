package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AWS SDK environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY,
// AWS_ENDPOINT_URL) are read directly by the SDK's default credential
// chain and do not appear in this struct.

// Host describes an HTTP endpoint used for IPFS gateway rewrites.
type Host struct {
	Protocol string `yaml:"protocol"`
	Host     string `yaml:"host"`
	Port     uint16 `yaml:"port"`
	Path     string `yaml:"path"`
}

// IPFSConfig is the primary gateway plus an optional fallback, tried
// once if the primary fails transport-wise (see internal/fetcher).
type IPFSConfig struct {
	Host     `yaml:",inline"`
	Fallback *Host `yaml:"fallback,omitempty"`
}

// CORSConfig names the single static allow-origin value attached to
// every response.
type CORSConfig struct {
	Origin string `yaml:"origin"`
}

// APIKey is one named credential accepted by the `apikey` header.
type APIKey struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

// SecurityConfig is the static, process-lifetime set of accepted API
// keys. There is deliberately no background-reload path here.
type SecurityConfig struct {
	APIKeys []APIKey `yaml:"api_keys"`
}

// DatabaseConfig configures the pooled verdict-store connection.
type DatabaseConfig struct {
	Host                  string `yaml:"host"`
	Port                  uint16 `yaml:"port"`
	Username              string `yaml:"username"`
	Password              string `yaml:"password"`
	DB                    string `yaml:"db"`
	PoolMaxConnections    int32  `yaml:"pool_max_connections"`
	PoolIdleConnections   int32  `yaml:"pool_idle_connections"`
	PoolConnectionTimeout int64  `yaml:"pool_connection_timeout"`
}

// ModerationProviderKind names the supported moderation vendors.
type ModerationProviderKind string

const (
	ModerationProviderAws     ModerationProviderKind = "Aws"
	ModerationProviderUnknown ModerationProviderKind = "Unknown"
)

// AwsConfig is the moderation-specific AWS configuration; credentials
// themselves come from the environment, never the config file.
type AwsConfig struct {
	Region string `yaml:"region"`
}

// ModerationConfig selects and configures the moderation provider.
type ModerationConfig struct {
	Provider ModerationProviderKind `yaml:"provider"`
	Aws      *AwsConfig             `yaml:"aws,omitempty"`
}

// CacheType selects the C6 cache backend.
type CacheType string

const (
	CacheTypeInMemory CacheType = "InMemoryCache"
	CacheTypeNone     CacheType = "None"
)

// InMemoryCacheConfig configures the byte budget of the memory LRU.
type InMemoryCacheConfig struct {
	MaxCacheSizeMB int64 `yaml:"max_cache_size_mb"`
}

// CacheConfig selects and configures C6.
type CacheConfig struct {
	CacheType           CacheType            `yaml:"cache_type"`
	InMemoryCacheConfig *InMemoryCacheConfig `yaml:"in_memory_cache_config,omitempty"`
}

// IPFilterAction is the default/per-rule disposition of the optional
// CIDR allow/deny filter stage, supplemented from the unwired
// http/filters/ip.rs scaffold in the original source.
type IPFilterAction string

const (
	IPFilterAllow IPFilterAction = "Allow"
	IPFilterDeny  IPFilterAction = "Deny"
)

// IPFilterRule pairs a CIDR destination with a disposition.
type IPFilterRule struct {
	Destination string         `yaml:"destination"`
	Action      IPFilterAction `yaml:"action"`
}

// IPFilterConfig is the optional second C1 filter stage.
type IPFilterConfig struct {
	Enabled       bool           `yaml:"enabled"`
	DefaultAction IPFilterAction `yaml:"default_action"`
	Rules         []IPFilterRule `yaml:"rules"`
}

// VideoQueueConfig configures the optional C9 subsystem, including
// where task.Complete uploads the video ahead of starting an async
// moderation job (internal/blobstore), mirroring the teacher's own
// storage-backend switch (StorageBackend/FSRoot/S3Bucket).
type VideoQueueConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Concurrency      int64  `yaml:"concurrency"`
	BlobBackend      string `yaml:"blob_backend"` // "s3" or "fs"
	FSRoot           string `yaml:"fs_root"`
	S3Bucket         string `yaml:"s3_bucket"`
	S3Prefix         string `yaml:"s3_prefix"`
	S3ForcePathStyle bool   `yaml:"s3_force_path_style"`
}

// Configuration is the full process-wide, immutable configuration
// surface. Load it once at startup and share it by pointer; nothing in
// this module mutates a *Configuration after Load returns.
type Configuration struct {
	IPFS            IPFSConfig       `yaml:"ipfs"`
	CORS            CORSConfig       `yaml:"cors"`
	Workers         int              `yaml:"workers"`
	BindAddress     string           `yaml:"bind_address"`
	Port            uint16           `yaml:"port"`
	Timeout         int64            `yaml:"timeout"`
	MaxDocumentSize *int64           `yaml:"max_document_size,omitempty"`
	ClientUserAgent string           `yaml:"client_useragent"`
	MetricsEnabled  bool             `yaml:"metrics_enabled"`
	Security        SecurityConfig   `yaml:"security"`
	Database        DatabaseConfig   `yaml:"database"`
	Moderation      ModerationConfig `yaml:"moderation"`
	CacheConfig     CacheConfig      `yaml:"cache_config"`
	IPFilter        IPFilterConfig   `yaml:"ip_filter"`
	VideoQueue      VideoQueueConfig `yaml:"video_queue"`
	LogLevel        string           `yaml:"log_level"`
}

// Addr returns the host:port the listener binds to.
func (c *Configuration) Addr() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(int(c.Port)))
}

// ParseLogLevel maps the configured string to a slog.Level, defaulting
// to Info on an unrecognized value.
func (c *Configuration) ParseLogLevel() slog.Level {
	return parseLogLevel(c.LogLevel)
}

func defaults() *Configuration {
	return &Configuration{
		IPFS: IPFSConfig{
			Host: Host{Protocol: "https", Host: "ipfs.io", Port: 443, Path: "/ipfs"},
		},
		CORS:            CORSConfig{Origin: "*"},
		Workers:         0,
		BindAddress:     "0.0.0.0",
		Port:            8080,
		Timeout:         10,
		ClientUserAgent: "imgproxy/1.0",
		MetricsEnabled:  true,
		Database: DatabaseConfig{
			Host: "localhost", Port: 5432, DB: "imgproxy",
			PoolMaxConnections: 10, PoolIdleConnections: 2, PoolConnectionTimeout: 5,
		},
		Moderation: ModerationConfig{Provider: ModerationProviderAws, Aws: &AwsConfig{Region: "us-east-1"}},
		CacheConfig: CacheConfig{
			CacheType:           CacheTypeInMemory,
			InMemoryCacheConfig: &InMemoryCacheConfig{MaxCacheSizeMB: 256},
		},
		VideoQueue: VideoQueueConfig{
			Enabled: false, Concurrency: 2,
			BlobBackend: "fs", FSRoot: "/data/imgproxy-video",
		},
		LogLevel: "info",
	}
}

// Load builds a Configuration starting from built-in defaults,
// overlaying an optional YAML file named by path (skipped silently if
// it does not exist), and finally applying environment-variable
// overrides for the values operators typically pass at deploy time
// rather than bake into a file.
func Load(path string) (*Configuration, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if len(cfg.Security.APIKeys) == 0 {
		return nil, fmt.Errorf("config: at least one security.api_keys entry is required")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Configuration) {
	if v := os.Getenv("BIND_ADDRESS"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.Port = uint16(p)
		}
	}
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.CORS.Origin = envOr("CORS_ORIGIN", cfg.CORS.Origin)

	if v := os.Getenv("AWS_REGION"); v != "" {
		if cfg.Moderation.Aws == nil {
			cfg.Moderation.Aws = &AwsConfig{}
		}
		cfg.Moderation.Aws.Region = v
	}
	cfg.Database.Host = envOr("DATABASE_HOST", cfg.Database.Host)
	cfg.Database.Password = envOr("DATABASE_PASSWORD", cfg.Database.Password)

	if v := os.Getenv("API_KEYS"); v != "" {
		// "name1:key1,name2:key2" - a convenience override for container
		// deployments that inject a single secret env var.
		cfg.Security.APIKeys = nil
		for _, pair := range strings.Split(v, ",") {
			parts := strings.SplitN(pair, ":", 2)
			if len(parts) != 2 {
				continue
			}
			cfg.Security.APIKeys = append(cfg.Security.APIKeys, APIKey{Name: parts[0], Key: parts[1]})
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

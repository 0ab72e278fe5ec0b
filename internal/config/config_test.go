package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithEnvAPIKeys(t *testing.T) {
	t.Setenv("API_KEYS", "ops:s3cr3t")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Security.APIKeys) != 1 || cfg.Security.APIKeys[0].Key != "s3cr3t" {
		t.Errorf("Security.APIKeys = %+v, want one key 's3cr3t'", cfg.Security.APIKeys)
	}
	if cfg.CacheConfig.CacheType != CacheTypeInMemory {
		t.Errorf("CacheConfig.CacheType = %v, want InMemoryCache default", cfg.CacheConfig.CacheType)
	}
}

func TestLoadRequiresAtLeastOneAPIKey(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("Load() with no api keys configured, want error")
	}
}

func TestLoadYamlFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.yaml")
	body := `
bind_address: "127.0.0.1"
port: 9090
security:
  api_keys:
    - name: "ops"
      key: "file-key"
cache_config:
  cache_type: InMemoryCache
  in_memory_cache_config:
    max_cache_size_mb: 64
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddress != "127.0.0.1" || cfg.Port != 9090 {
		t.Errorf("BindAddress/Port = %s/%d, want 127.0.0.1/9090", cfg.BindAddress, cfg.Port)
	}
	if cfg.CacheConfig.InMemoryCacheConfig.MaxCacheSizeMB != 64 {
		t.Errorf("MaxCacheSizeMB = %d, want 64", cfg.CacheConfig.InMemoryCacheConfig.MaxCacheSizeMB)
	}
	if cfg.Security.APIKeys[0].Key != "file-key" {
		t.Errorf("APIKeys[0].Key = %s, want file-key", cfg.Security.APIKeys[0].Key)
	}
}

func TestAddrJoinsBindAddressAndPort(t *testing.T) {
	cfg := defaults()
	cfg.BindAddress = "0.0.0.0"
	cfg.Port = 8080
	if got, want := cfg.Addr(), "0.0.0.0:8080"; got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}

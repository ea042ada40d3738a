package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/fy0/odatakit"
)

// EnvPrefix namespaces environment overrides, e.g. ODATACTL_INSTANCE_BASE_URL.
const EnvPrefix = "ODATACTL"

type Config struct {
	Instance InstanceConfig `toml:"instance" mapstructure:"instance"`
	HTTP     HTTPConfig     `toml:"http" mapstructure:"http"`
	Log      LogConfig      `toml:"log" mapstructure:"log"`
}

type InstanceConfig struct {
	BaseURL string `toml:"base_url" mapstructure:"base_url"`
	APIPath string `toml:"api_path" mapstructure:"api_path"`
	// Token is a pre-fetched bearer token. TokenEnv names an environment
	// variable to read it from instead.
	Token    string `toml:"token,omitempty" mapstructure:"token"`
	TokenEnv string `toml:"token_env,omitempty" mapstructure:"token_env"`
}

type HTTPConfig struct {
	Timeout      string `toml:"timeout" mapstructure:"timeout"`
	MaxBatchSize int    `toml:"max_batch_size" mapstructure:"max_batch_size"`
	PageSize     int    `toml:"page_size,omitempty" mapstructure:"page_size"`
}

type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"`
}

func Default() Config {
	return Config{
		Instance: InstanceConfig{APIPath: odatakit.DefaultAPIPath},
		HTTP: HTTPConfig{
			Timeout:      "30s",
			MaxBatchSize: odatakit.DefaultMaxBatchSize,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads the TOML file at path, when present, over Default and then
// applies ODATACTL_* environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadToml(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadToml(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config not found (%s): %w", path, err)
		}
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables for every known key. Keys are
// registered as viper defaults first so Unmarshal sees them.
func applyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := map[string]any{
		"instance.base_url":   cfg.Instance.BaseURL,
		"instance.api_path":   cfg.Instance.APIPath,
		"instance.token":      cfg.Instance.Token,
		"instance.token_env":  cfg.Instance.TokenEnv,
		"http.timeout":        cfg.HTTP.Timeout,
		"http.max_batch_size": cfg.HTTP.MaxBatchSize,
		"http.page_size":      cfg.HTTP.PageSize,
		"log.level":           cfg.Log.Level,
		"log.format":          cfg.Log.Format,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("config env overlay failed: %w", err)
	}
	return nil
}

func Validate(cfg Config) error {
	base := strings.TrimSpace(cfg.Instance.BaseURL)
	if base == "" {
		return fmt.Errorf("instance.base_url is required")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("instance.base_url %q is not an absolute URL", base)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("instance.base_url scheme must be http or https, got %q", u.Scheme)
	}
	if _, err := cfg.HTTP.TimeoutDuration(); err != nil {
		return err
	}
	if cfg.HTTP.MaxBatchSize < 1 {
		return fmt.Errorf("http.max_batch_size must be positive, got %d", cfg.HTTP.MaxBatchSize)
	}
	if cfg.HTTP.PageSize < 0 {
		return fmt.Errorf("http.page_size must not be negative, got %d", cfg.HTTP.PageSize)
	}
	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", cfg.Log.Format)
	}
	return nil
}

// TimeoutDuration parses Timeout; an empty value means no timeout.
func (c HTTPConfig) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(c.Timeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("http.timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("http.timeout must not be negative, got %s", d)
	}
	return d, nil
}

// BearerToken resolves the token, preferring TokenEnv when it is set.
func (c InstanceConfig) BearerToken() string {
	if c.TokenEnv != "" {
		if v := os.Getenv(c.TokenEnv); v != "" {
			return v
		}
	}
	return c.Token
}

// Write stores cfg as TOML at path, creating or truncating it.
func Write(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config encode failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config write failed (%s): %w", path, err)
	}
	return nil
}

// Package config loads the toolbridge configuration from a YAML/JSON/TOML file,
// a .env file and environment variables into an immutable Config value.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultPort           = 8001
	DefaultHost           = "127.0.0.1"
	DefaultYAMLFilename   = "config.yaml"
	DefaultConfigFilename = "config.json"

	// EnvPrefix prefixes environment overrides, e.g. TOOLBRIDGE_PORT.
	EnvPrefix = "TOOLBRIDGE"

	// ProvidersEnvVar holds a JSON provider registry merged over the file.
	ProvidersEnvVar = "LLM_PROVIDERS_CONFIG"

	FormatOpenAI     = "openai"
	FormatCompletion = "completion"
	FormatAnthropic  = "anthropic"

	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"

	legacyProviderName = "default"
)

// ProviderConfig describes one upstream LLM endpoint.
type ProviderConfig struct {
	// Name is taken from the providers map key.
	Name    string            `mapstructure:"-"`
	BaseURL string            `mapstructure:"base_url"`
	APIKey  string            `mapstructure:"api_key"`
	Models  []string          `mapstructure:"models"`
	Headers map[string]string `mapstructure:"headers"`
	// Format selects the wire format: openai, completion or anthropic.
	Format string `mapstructure:"format"`
	// Path overrides the format's default endpoint path.
	Path string `mapstructure:"path"`
	// ResponsePath is a gjson path used by the completion format.
	ResponsePath string `mapstructure:"response_path"`
}

// SamplingDefaults apply when the inbound request leaves a parameter unset.
type SamplingDefaults struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// StreamConfig controls adaptive re-chunking of streamed answers.
type StreamConfig struct {
	Delay          time.Duration `mapstructure:"delay"`
	ShortThreshold int           `mapstructure:"short_threshold"`
	LongThreshold  int           `mapstructure:"long_threshold"`
	MaxChars       int           `mapstructure:"max_chars"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	APIKey   string `mapstructure:"api_key"`
	LogLevel string `mapstructure:"log_level"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// MaxRetries is the total number of upstream attempts per request.
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	RetryBackoff string        `mapstructure:"retry_backoff"`

	MaxPromptChars int    `mapstructure:"max_prompt_chars"`
	TokenEncoding  string `mapstructure:"token_encoding"`

	Defaults SamplingDefaults `mapstructure:"defaults"`
	Stream   StreamConfig     `mapstructure:"stream"`

	DefaultProvider string                    `mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `mapstructure:"providers"`
}

var defaultConfig = Config{
	Host:           DefaultHost,
	Port:           DefaultPort,
	LogLevel:       "info",
	RequestTimeout: 30 * time.Second,
	MaxRetries:     3,
	RetryDelay:     time.Second,
	RetryBackoff:   BackoffFixed,
	MaxPromptChars: 32000,
	TokenEncoding:  "cl100k_base",
	Defaults: SamplingDefaults{
		Temperature: 0.7,
		MaxTokens:   1000,
	},
	Stream: StreamConfig{
		Delay:          10 * time.Millisecond,
		ShortThreshold: 80,
		LongThreshold:  600,
		MaxChars:       0,
		Timeout:        5 * time.Minute,
	},
}

// Default returns a copy of the built-in defaults with no providers.
func Default() *Config {
	cfg := defaultConfig
	cfg.Providers = map[string]ProviderConfig{}
	return &cfg
}

type Manager struct {
	baseDir      string
	explicitPath string
	configValue  atomic.Pointer[Config]
}

// NewManager looks for config.yaml (preferred) or config.json inside baseDir.
func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir}
}

// NewManagerWithPath uses a single explicit config file.
func NewManagerWithPath(path string) *Manager {
	return &Manager{baseDir: filepath.Dir(path), explicitPath: path}
}

func (m *Manager) yamlPath() string { return filepath.Join(m.baseDir, DefaultYAMLFilename) }
func (m *Manager) jsonPath() string { return filepath.Join(m.baseDir, DefaultConfigFilename) }

func (m *Manager) HasYAML() bool { return fileExists(m.yamlPath()) }
func (m *Manager) HasJSON() bool { return fileExists(m.jsonPath()) }

// GetPath returns the file Load reads from. YAML takes precedence over JSON.
func (m *Manager) GetPath() string {
	switch {
	case m.explicitPath != "":
		return m.explicitPath
	case m.HasYAML():
		return m.yamlPath()
	case m.HasJSON():
		return m.jsonPath()
	default:
		return m.yamlPath()
	}
}

func (m *Manager) Exists() bool {
	return fileExists(m.GetPath())
}

// Load merges defaults, the config file, LLM_PROVIDERS_CONFIG and
// TOOLBRIDGE_* environment overrides, in that order. A missing file is not an
// error: the legacy LLM_API_BASE_URL provider is used instead.
func (m *Manager) Load() (*Config, error) {
	// A missing .env is the common case.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if m.Exists() {
		v.SetConfigFile(m.GetPath())
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else if m.explicitPath != "" {
		return nil, fmt.Errorf("read config file: %w", os.ErrNotExist)
	}

	if raw := strings.TrimSpace(os.Getenv(ProvidersEnvVar)); raw != "" {
		v.SetConfigType("json")
		if err := v.MergeConfig(strings.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", ProvidersEnvVar, err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		expandEnvStringHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = decodeHook
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()

	m.configValue.Store(&cfg)
	return &cfg, nil
}

// Get returns the last loaded config, loading it on first use. A config with
// defaults is returned if loading fails.
func (m *Manager) Get() *Config {
	if cfg := m.configValue.Load(); cfg != nil {
		return cfg
	}

	cfg, err := m.Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// CreateExampleYAML writes ExampleYAML to the manager's YAML path.
func (m *Manager) CreateExampleYAML() error {
	path := m.yamlPath()
	if m.explicitPath != "" {
		path = m.explicitPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(ExampleYAML), 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", defaultConfig.Host)
	v.SetDefault("port", defaultConfig.Port)
	v.SetDefault("api_key", "")
	v.SetDefault("log_level", defaultConfig.LogLevel)

	v.SetDefault("request_timeout", defaultConfig.RequestTimeout)
	v.SetDefault("max_retries", defaultConfig.MaxRetries)
	v.SetDefault("retry_delay", defaultConfig.RetryDelay)
	v.SetDefault("retry_backoff", defaultConfig.RetryBackoff)

	v.SetDefault("max_prompt_chars", defaultConfig.MaxPromptChars)
	v.SetDefault("token_encoding", defaultConfig.TokenEncoding)

	v.SetDefault("defaults.temperature", defaultConfig.Defaults.Temperature)
	v.SetDefault("defaults.max_tokens", defaultConfig.Defaults.MaxTokens)

	v.SetDefault("stream.delay", defaultConfig.Stream.Delay)
	v.SetDefault("stream.short_threshold", defaultConfig.Stream.ShortThreshold)
	v.SetDefault("stream.long_threshold", defaultConfig.Stream.LongThreshold)
	v.SetDefault("stream.max_chars", defaultConfig.Stream.MaxChars)
	v.SetDefault("stream.timeout", defaultConfig.Stream.Timeout)

	v.SetDefault("default_provider", "")
}

// normalize fills provider names, default formats, the legacy provider and
// the default provider name.
func (c *Config) normalize() {
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}

	if len(c.Providers) == 0 {
		c.Providers[legacyProviderName] = legacyProvider()
		if c.DefaultProvider == "" {
			c.DefaultProvider = legacyProviderName
		}
	}

	for name, p := range c.Providers {
		p.Name = name
		p.BaseURL = strings.TrimRight(p.BaseURL, "/")
		if p.Format == "" {
			p.Format = FormatOpenAI
		}
		p.Format = strings.ToLower(p.Format)
		c.Providers[name] = p
	}

	if c.DefaultProvider == "" {
		names := c.ProviderNames()
		c.DefaultProvider = names[0]
	}
}

func legacyProvider() ProviderConfig {
	baseURL := os.Getenv("LLM_API_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	model := os.Getenv("DEFAULT_MODEL_NAME")
	if model == "" {
		model = "default"
	}
	return ProviderConfig{
		BaseURL: baseURL,
		APIKey:  os.Getenv("LLM_API_KEY"),
		Models:  []string{model},
		Format:  FormatOpenAI,
	}
}

// ProviderNames returns the configured provider names in sorted order.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Address returns host:port for the HTTP listener.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate reports every configuration problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("at least one provider is required"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be > 0"))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, errors.New("max_retries must be >= 1"))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, errors.New("retry_delay must be >= 0"))
	}
	switch c.RetryBackoff {
	case BackoffFixed, BackoffExponential:
	default:
		errs = append(errs, fmt.Errorf("invalid retry_backoff %q (allowed: %q, %q)", c.RetryBackoff, BackoffFixed, BackoffExponential))
	}
	if c.MaxPromptChars <= 0 {
		errs = append(errs, errors.New("max_prompt_chars must be > 0"))
	}
	if c.Stream.LongThreshold < c.Stream.ShortThreshold {
		errs = append(errs, errors.New("stream.long_threshold must be >= stream.short_threshold"))
	}
	if _, ok := c.Providers[c.DefaultProvider]; !ok {
		errs = append(errs, fmt.Errorf("default_provider %q is not configured", c.DefaultProvider))
	}

	for _, name := range c.ProviderNames() {
		if err := c.Providers[name].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("providers.%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// Validate checks required provider fields.
func (p ProviderConfig) Validate() error {
	if strings.TrimSpace(p.BaseURL) == "" {
		return errors.New("base_url is required")
	}
	switch p.Format {
	case FormatOpenAI, FormatCompletion, FormatAnthropic:
		return nil
	default:
		return fmt.Errorf("unsupported format %q", p.Format)
	}
}

// Info returns a printable view of the config with secrets masked.
func (c *Config) Info() map[string]any {
	providers := make(map[string]any, len(c.Providers))
	var totalModels int
	for _, name := range c.ProviderNames() {
		p := c.Providers[name]
		headers := make(map[string]string, len(p.Headers))
		for k, v := range p.Headers {
			lower := strings.ToLower(k)
			if strings.Contains(lower, "key") || strings.Contains(lower, "token") || strings.Contains(lower, "auth") {
				v = Mask(v)
			}
			headers[k] = v
		}
		providers[name] = map[string]any{
			"base_url": p.BaseURL,
			"api_key":  Mask(p.APIKey),
			"format":   p.Format,
			"models":   p.Models,
			"headers":  headers,
		}
		totalModels += len(p.Models)
	}

	return map[string]any{
		"service_api_key":  Mask(c.APIKey),
		"request_timeout":  c.RequestTimeout.String(),
		"max_retries":      c.MaxRetries,
		"log_level":        c.LogLevel,
		"default_provider": c.DefaultProvider,
		"providers":        providers,
		"total_models":     totalModels,
	}
}

// Mask hides all but the first and last four characters of a secret.
func Mask(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

func expandEnvStringHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.String {
			return data, nil
		}
		value, ok := data.(string)
		if !ok {
			return data, nil
		}
		return os.ExpandEnv(value), nil
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ExampleYAML is written by `toolbridge config init`.
const ExampleYAML = `# toolbridge configuration
host: 127.0.0.1
port: 8001
# api_key: ${SERVICE_API_KEY}
log_level: info

request_timeout: 30s
max_retries: 3
retry_delay: 1s
retry_backoff: fixed
max_prompt_chars: 32000
token_encoding: cl100k_base

defaults:
  temperature: 0.7
  max_tokens: 1000

stream:
  delay: 10ms
  short_threshold: 80
  long_threshold: 600
  max_chars: 0
  timeout: 5m

default_provider: openai

providers:
  openai:
    base_url: https://api.openai.com/v1
    api_key: ${OPENAI_API_KEY}
    format: openai
    models:
      - gpt-4o-mini
      - gpt-3.5-turbo
  local:
    base_url: http://localhost:8000/v1
    format: completion
    # Text-generation servers often use path: /generate
    response_path: choices.0.text
    models:
      - llama-3-8b
  anthropic:
    base_url: https://api.anthropic.com
    api_key: ${ANTHROPIC_API_KEY}
    format: anthropic
    models:
      - claude-3-5-haiku-latest
`

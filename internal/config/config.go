// Package config handles folio configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by FindConfig when no file exists in any
// search location and no explicit path was given.
var ErrNotFound = errors.New("no config file found")

// DefaultSearchPaths returns the config file search order:
// ./config.yaml, ~/.config/folio/config.yaml, /etc/folio/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "folio", "config.yaml"))
	}
	return append(paths, "/etc/folio/config.yaml")
}

// FindConfig locates a config file. If explicit is non-empty it must
// exist. Otherwise the first existing path from DefaultSearchPaths is
// returned, or an error wrapping ErrNotFound.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w (searched: %v)", ErrNotFound, DefaultSearchPaths())
}

// Config holds all folio configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Server    ServerConfig    `yaml:"server"`
	Models    ModelsConfig    `yaml:"models"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Agent     AgentConfig     `yaml:"agent"`
	Guard     GuardConfig     `yaml:"guard"`
	Redis     RedisConfig     `yaml:"redis"`
	GitHub    GitHubConfig    `yaml:"github"`
	Bio       BioConfig       `yaml:"bio"`
	Website   WebsiteConfig   `yaml:"website"`
	Usage     UsageConfig     `yaml:"usage"`
	Tracing   TracingConfig   `yaml:"tracing"`

	// DemoMode answers every request with an echo and never calls a
	// model provider.
	DemoMode bool `yaml:"demo_mode"`

	DataDir   string `yaml:"data_dir"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text or json
}

// ListenConfig is the HTTP bind address.
type ListenConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// ServerConfig controls the inbound HTTP surface.
type ServerConfig struct {
	// APIKey, when set, must be presented as a bearer token or
	// X-API-Key header on /chat.
	APIKey         string   `yaml:"api_key"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`

	// PerClientRPM enables a token-bucket limiter keyed by client IP.
	PerClientRPM   int `yaml:"per_client_rpm"`
	PerClientBurst int `yaml:"per_client_burst"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ModelsConfig selects the model and its sampling parameters.
type ModelsConfig struct {
	Default         string        `yaml:"default"`
	Provider        string        `yaml:"provider"` // openai, anthropic, ollama
	Temperature     float64       `yaml:"temperature"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Available       []ModelConfig `yaml:"available"`
}

// ModelConfig maps an additional model name to its provider.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"`
}

// OpenAIConfig holds OpenAI-compatible API settings.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// OllamaConfig holds the Ollama server location.
type OllamaConfig struct {
	URL string `yaml:"url"`
}

// AgentConfig bounds the tool-calling loop.
type AgentConfig struct {
	MaxHops              int           `yaml:"max_hops"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	MaxToolCalls         int           `yaml:"max_tool_calls"`
	MaxToolArgumentBytes int           `yaml:"max_tool_argument_bytes"`
	SubjectName          string        `yaml:"subject_name"`
	SystemPromptFile     string        `yaml:"system_prompt_file"`
}

// GuardConfig holds the pre-loop input limits.
type GuardConfig struct {
	MaxMessageChars        int    `yaml:"max_message_chars"`
	MaxHistoryMessages     int    `yaml:"max_history_messages"`
	MaxHistoryMessageChars int    `yaml:"max_history_message_chars"`
	MaxEstimatedTokens     int    `yaml:"max_estimated_tokens"`
	CharsPerToken          int    `yaml:"chars_per_token"`
	TokenEstimator         string `yaml:"token_estimator"` // chars or tiktoken
	HourlyRequestLimit     int    `yaml:"hourly_request_limit"`
	Counter                string `yaml:"counter"`          // memory or redis
	InjectionAction        string `yaml:"injection_action"` // off, log, warn, block
}

// RedisConfig is used when guard.counter is "redis".
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// GitHubConfig configures the GitHub tools.
type GitHubConfig struct {
	Token string `yaml:"token"`
	// User is the default login for github_list_repos and the subject
	// of analyze_my_contributions when the bio does not name one.
	User string `yaml:"user"`
	// URL is an Enterprise base URL. Empty means github.com.
	URL                string        `yaml:"url"`
	CacheTTL           time.Duration `yaml:"cache_ttl"`
	CacheSize          int           `yaml:"cache_size"`
	LoginCaseSensitive bool          `yaml:"login_case_sensitive"`
}

// BioConfig locates the bio document and optional profile sections.
type BioConfig struct {
	Path             string `yaml:"path"`
	ProfessionalFile string `yaml:"professional_file"`
	PersonalFile     string `yaml:"personal_file"`
}

// WebsiteConfig configures fetch_website_content.
type WebsiteConfig struct {
	DefaultURL string `yaml:"default_url"`
	MaxChars   int    `yaml:"max_chars"`
}

// UsageConfig enables persistent token accounting.
type UsageConfig struct {
	Enabled bool                    `yaml:"enabled"`
	Pricing map[string]PricingEntry `yaml:"pricing"`
}

// PricingEntry is the per-million-token price of a model in USD.
type PricingEntry struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// TracingConfig enables OTLP trace export.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Load reads configuration from a YAML file, expanding ${VAR}
// references, then applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyEnv(os.Getenv)
	cfg.ApplyDefaults()
	return cfg, nil
}

// Default returns a configuration built only from defaults and the
// environment, for deployments without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyEnv(os.Getenv)
	cfg.ApplyDefaults()
	return cfg
}

// ApplyEnv overlays the well-known environment variables onto cfg.
// Unset or unparsable variables leave the current value alone.
func (c *Config) ApplyEnv(getenv func(string) string) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setString(&c.GitHub.Token, "GITHUB_TOKEN")
	setString(&c.GitHub.User, "GITHUB_USER")
	setString(&c.Server.APIKey, "FOLIO_API_KEY")
	setString(&c.Models.Default, "FOLIO_MODEL")

	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.AllowedOrigins = origins
	}
	if n, err := strconv.Atoi(getenv("REQUEST_TIMEOUT_SECONDS")); err == nil && n > 0 {
		c.Agent.RequestTimeout = time.Duration(n) * time.Second
	}
	if n, err := strconv.Atoi(getenv("MAX_OUTPUT_TOKENS")); err == nil && n > 0 {
		c.Models.MaxOutputTokens = n
	}
	if n, err := strconv.Atoi(getenv("PORT")); err == nil && n > 0 {
		c.Listen.Port = n
	}
	if b, err := strconv.ParseBool(getenv("DEMO_MODE")); err == nil {
		c.DemoMode = b
	}
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 256 << 10
	}
	if c.Server.PerClientRPM > 0 && c.Server.PerClientBurst == 0 {
		c.Server.PerClientBurst = c.Server.PerClientRPM
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// Must outlast the loop timeout so the error reaches the client.
		c.Server.WriteTimeout = 2 * time.Minute
	}
	if c.Models.Default == "" {
		c.Models.Default = "gpt-4o"
	}
	if c.Models.Provider == "" {
		c.Models.Provider = "openai"
	}
	if c.Models.Temperature == 0 {
		c.Models.Temperature = 0.3
	}
	if c.Models.MaxOutputTokens == 0 {
		c.Models.MaxOutputTokens = 600
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = "http://localhost:11434"
	}
	if c.Agent.MaxHops == 0 {
		c.Agent.MaxHops = 4
	}
	if c.Agent.RequestTimeout == 0 {
		c.Agent.RequestTimeout = 20 * time.Second
	}
	if c.Agent.MaxToolCalls == 0 {
		c.Agent.MaxToolCalls = 10
	}
	if c.Agent.MaxToolArgumentBytes == 0 {
		c.Agent.MaxToolArgumentBytes = 16 << 10
	}
	if c.Guard.MaxMessageChars == 0 {
		c.Guard.MaxMessageChars = 4000
	}
	if c.Guard.MaxHistoryMessages == 0 {
		c.Guard.MaxHistoryMessages = 20
	}
	if c.Guard.MaxHistoryMessageChars == 0 {
		c.Guard.MaxHistoryMessageChars = 4000
	}
	if c.Guard.MaxEstimatedTokens == 0 {
		c.Guard.MaxEstimatedTokens = 8000
	}
	if c.Guard.CharsPerToken == 0 {
		c.Guard.CharsPerToken = 4
	}
	if c.Guard.TokenEstimator == "" {
		c.Guard.TokenEstimator = "chars"
	}
	if c.Guard.Counter == "" {
		c.Guard.Counter = "memory"
	}
	if c.Guard.InjectionAction == "" {
		c.Guard.InjectionAction = "warn"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "folio:"
	}
	if c.GitHub.CacheTTL == 0 {
		c.GitHub.CacheTTL = 5 * time.Minute
	}
	if c.GitHub.CacheSize == 0 {
		c.GitHub.CacheSize = 256
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Bio.Path == "" {
		c.Bio.Path = filepath.Join(c.DataDir, "bio.json")
	}
	if c.Website.MaxChars == 0 {
		c.Website.MaxChars = 20000
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "folio"
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
}

// Validate reports configuration that cannot run.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port %d out of range", c.Listen.Port))
	}
	switch c.Models.Provider {
	case "openai", "anthropic", "ollama":
	default:
		errs = append(errs, fmt.Errorf("models.provider %q: want openai, anthropic or ollama", c.Models.Provider))
	}
	for _, m := range c.Models.Available {
		if m.Name == "" {
			errs = append(errs, errors.New("models.available: entry with empty name"))
		}
	}
	if c.Agent.MaxHops < 1 {
		errs = append(errs, fmt.Errorf("agent.max_hops must be at least 1, got %d", c.Agent.MaxHops))
	}
	if c.Agent.MaxToolCalls < 1 {
		errs = append(errs, fmt.Errorf("agent.max_tool_calls must be at least 1, got %d", c.Agent.MaxToolCalls))
	}
	if c.Agent.RequestTimeout < 0 {
		errs = append(errs, errors.New("agent.request_timeout must not be negative"))
	}
	switch c.Guard.TokenEstimator {
	case "chars", "tiktoken":
	default:
		errs = append(errs, fmt.Errorf("guard.token_estimator %q: want chars or tiktoken", c.Guard.TokenEstimator))
	}
	switch c.Guard.Counter {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("guard.counter is redis but redis.addr is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("guard.counter %q: want memory or redis", c.Guard.Counter))
	}
	switch c.Guard.InjectionAction {
	case "off", "log", "warn", "block":
	default:
		errs = append(errs, fmt.Errorf("guard.injection_action %q: want off, log, warn or block", c.Guard.InjectionAction))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio %v out of range [0,1]", c.Tracing.SampleRatio))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q: want text or json", c.LogFormat))
	}
	return errors.Join(errs...)
}

// ListenAddr returns host:port for http.Server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Listen.Address, c.Listen.Port)
}

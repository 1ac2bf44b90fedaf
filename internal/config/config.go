// Package config loads and validates the Haya gateway configuration.
package config

import (
	"fmt"
	"strings"
)

// Default network settings.
const (
	DefaultPort = 18789

	BindLoopback = "loopback"
	BindLAN      = "lan"
	BindCustom   = "custom"
)

// Auth modes.
const (
	AuthModeToken    = "token"
	AuthModePassword = "password"

	MinTokenLength    = 32
	MinPasswordLength = 16
)

// Config is the root configuration document.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway" json:"gateway"`
	Agent    AgentConfig    `yaml:"agent" json:"agent"`
	Memory   MemoryConfig   `yaml:"memory" json:"memory"`
	Cron     []CronJob      `yaml:"cron" json:"cron"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Tracing  TracingConfig  `yaml:"tracing" json:"tracing"`
	Plugins  []string       `yaml:"plugins" json:"plugins"`
	Channels ChannelsConfig `yaml:"channels" json:"channels"`
}

// GatewayConfig controls the listener, bind policy, and client auth.
type GatewayConfig struct {
	Port           int        `yaml:"port" json:"port"`
	Bind           string     `yaml:"bind" json:"bind"`
	BindInterface  string     `yaml:"bindInterface" json:"bindInterface"`
	Auth           AuthConfig `yaml:"auth" json:"auth"`
	TLS            TLSConfig  `yaml:"tls" json:"tls"`
	TrustedProxies []string   `yaml:"trustedProxies" json:"trustedProxies"`
	DataDir        string     `yaml:"dataDir" json:"dataDir"`
}

// AuthConfig selects the client authentication mode. Secrets may be given
// inline or resolved from the environment via the *EnvVar fields.
type AuthConfig struct {
	Mode           string `yaml:"mode" json:"mode"`
	Token          string `yaml:"token" json:"token"`
	TokenEnvVar    string `yaml:"tokenEnvVar" json:"tokenEnvVar"`
	Password       string `yaml:"password" json:"password"`
	PasswordEnvVar string `yaml:"passwordEnvVar" json:"passwordEnvVar"`
}

// TLSConfig enables TLS on the gateway listener.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	CertPath string `yaml:"certPath" json:"certPath"`
	KeyPath  string `yaml:"keyPath" json:"keyPath"`
}

// AgentConfig controls the model runtime defaults.
type AgentConfig struct {
	DefaultModel                string            `yaml:"defaultModel" json:"defaultModel"`
	DefaultProviderAPIKeyEnvVar string            `yaml:"defaultProviderApiKeyEnvVar" json:"defaultProviderApiKeyEnvVar"`
	SystemPrompt                string            `yaml:"systemPrompt" json:"systemPrompt"`
	MaxHistoryMessages          int               `yaml:"maxHistoryMessages" json:"maxHistoryMessages"`
	ContextWindowTokens         int               `yaml:"contextWindowTokens" json:"contextWindowTokens"`
	MemoryFlush                 MemoryFlushConfig `yaml:"memoryFlush" json:"memoryFlush"`
}

// MemoryFlushConfig tunes the pre-compaction memory flush turn.
type MemoryFlushConfig struct {
	SystemPrompt        string `yaml:"systemPrompt" json:"systemPrompt"`
	UserMessage         string `yaml:"userMessage" json:"userMessage"`
	ReserveTokens       int    `yaml:"reserveTokens" json:"reserveTokens"`
	SoftThresholdTokens int    `yaml:"softThresholdTokens" json:"softThresholdTokens"`
}

// MemoryConfig controls the hybrid memory store.
type MemoryConfig struct {
	Enabled                       bool   `yaml:"enabled" json:"enabled"`
	DBPath                        string `yaml:"dbPath" json:"dbPath"`
	EmbeddingProviderAPIKeyEnvVar string `yaml:"embeddingProviderApiKeyEnvVar" json:"embeddingProviderApiKeyEnvVar"`
	EmbeddingModel                string `yaml:"embeddingModel" json:"embeddingModel"`
	Dimension                     int    `yaml:"dimension" json:"dimension"`
}

// CronJob is one scheduled action.
type CronJob struct {
	Name     string `yaml:"name" json:"name"`
	Schedule string `yaml:"schedule" json:"schedule"`
	Action   string `yaml:"action" json:"action"`
	Enabled  bool   `yaml:"enabled" json:"enabled"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level         string `yaml:"level" json:"level"`
	Format        string `yaml:"format" json:"format"`
	RedactSecrets bool   `yaml:"redactSecrets" json:"redactSecrets"`
}

// TracingConfig enables OTLP trace export when Endpoint is set.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Insecure bool   `yaml:"insecure" json:"insecure"`
}

// ChannelsConfig holds raw per-channel settings; each plugin resolves its own
// section with defaults (see ResolveKakaoConfig, ResolveLineConfig).
type ChannelsConfig struct {
	Discord map[string]any `yaml:"discord" json:"discord"`
	Slack   map[string]any `yaml:"slack" json:"slack"`
	Webhook map[string]any `yaml:"webhook" json:"webhook"`
	Kakao   map[string]any `yaml:"kakao" json:"kakao"`
	Line    map[string]any `yaml:"line" json:"line"`
}

var validLogLevels = map[string]bool{
	"silly": true, "trace": true, "debug": true, "info": true,
	"warn": true, "error": true, "fatal": true,
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultPort
	}
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = BindLoopback
	}
	if c.Agent.MaxHistoryMessages == 0 {
		c.Agent.MaxHistoryMessages = 100
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Memory.Dimension == 0 {
		c.Memory.Dimension = 1536
	}
}

// Validate checks invariants that make the process unable to start. Config
// errors are fatal by design.
func (c *Config) Validate() error {
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port %d out of range 1..65535", c.Gateway.Port)
	}
	switch c.Gateway.Bind {
	case BindLoopback, BindLAN:
	case BindCustom:
		if strings.TrimSpace(c.Gateway.BindInterface) == "" {
			return fmt.Errorf("gateway.bind=custom requires gateway.bindInterface")
		}
	default:
		return fmt.Errorf("gateway.bind %q must be one of loopback, lan, custom", c.Gateway.Bind)
	}

	if err := c.validateAuth(); err != nil {
		return err
	}

	if c.Gateway.TLS.Enabled {
		if c.Gateway.TLS.CertPath == "" || c.Gateway.TLS.KeyPath == "" {
			return fmt.Errorf("gateway.tls requires certPath and keyPath")
		}
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level %q is not a known level", c.Logging.Level)
	}

	for i, job := range c.Cron {
		if strings.TrimSpace(job.Name) == "" {
			return fmt.Errorf("cron[%d].name is required", i)
		}
		if strings.TrimSpace(job.Schedule) == "" {
			return fmt.Errorf("cron[%d].schedule is required", i)
		}
	}
	return nil
}

func (c *Config) validateAuth() error {
	auth := &c.Gateway.Auth
	switch auth.Mode {
	case "":
		return nil
	case AuthModeToken:
		token, err := resolveSecret(auth.Token, auth.TokenEnvVar)
		if err != nil {
			return fmt.Errorf("gateway.auth.token: %w", err)
		}
		if len(token) < MinTokenLength {
			return fmt.Errorf("gateway.auth.token must be at least %d characters", MinTokenLength)
		}
	case AuthModePassword:
		password, err := resolveSecret(auth.Password, auth.PasswordEnvVar)
		if err != nil {
			return fmt.Errorf("gateway.auth.password: %w", err)
		}
		if len(password) < MinPasswordLength {
			return fmt.Errorf("gateway.auth.password must be at least %d characters", MinPasswordLength)
		}
	default:
		return fmt.Errorf("gateway.auth.mode %q must be token or password", auth.Mode)
	}
	return nil
}

// ResolvedToken returns the effective auth token, preferring the env var.
func (a *AuthConfig) ResolvedToken() string {
	secret, _ := resolveSecret(a.Token, a.TokenEnvVar)
	return secret
}

// ResolvedPassword returns the effective auth password, preferring the env var.
func (a *AuthConfig) ResolvedPassword() string {
	secret, _ := resolveSecret(a.Password, a.PasswordEnvVar)
	return secret
}

func resolveSecret(inline, envVar string) (string, error) {
	if strings.TrimSpace(envVar) != "" {
		return RequireEnv(envVar)
	}
	if inline == "" {
		return "", fmt.Errorf("no value configured")
	}
	return inline, nil
}

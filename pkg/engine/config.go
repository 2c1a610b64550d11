package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/germanamz/relay/pkg/fault"
	"github.com/germanamz/relay/pkg/tools/preset"
	"gopkg.in/yaml.v3"
)

// SessionConfig is the declarative description of one agent session.
type SessionConfig struct {
	Description    string            `yaml:"description"`
	Model          string            `yaml:"model"`
	SystemPrompt   string            `yaml:"system_prompt"`
	Context        string            `yaml:"context"`
	PromptText     string            `yaml:"prompt_text"`
	MaxRounds      int               `yaml:"max_rounds"`      // 0 = unlimited.
	ToolTimeout    time.Duration     `yaml:"tool_timeout"`    // 0 = none.
	SessionTimeout time.Duration     `yaml:"session_timeout"` // 0 = none.
	Provider       ProviderConfig    `yaml:"provider"`
	Presets        []PresetConfig    `yaml:"presets"`
	MCPServers     []MCPServerConfig `yaml:"mcp_servers"`
}

// ProviderConfig selects and configures the model backend. Unset fields fall
// back to the engine defaults.
type ProviderConfig struct {
	Kind              string  `yaml:"kind"`
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	Model             string  `yaml:"-"`       // Taken from SessionConfig.Model.
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	RequestsPerMinute int     `yaml:"requests_per_minute"` // 0 = no pacing.
	MaxRetries        int     `yaml:"max_retries"`         // Retries on HTTP 429.
}

// PresetConfig declares a user preset. It replaces a built-in of the same
// name.
type PresetConfig struct {
	Name           string `yaml:"name"`
	Pattern        string `yaml:"pattern"`
	MainCmdOptions string `yaml:"main_cmd_options"`
	MCPParams      string `yaml:"mcp_params"`
}

// MCPServerConfig describes one tool provider.
type MCPServerConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"type"` // "local" or "remote".

	PresetRef             string  `yaml:"preset_ref"`
	PresetMCPParamsAppend *string `yaml:"preset_mcp_params_append"`

	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	Dir     string            `yaml:"dir"`

	URL      string `yaml:"url"`
	Token    string `yaml:"token"` //nolint:gosec // configuration field, not a hardcoded secret
	TokenEnv string `yaml:"token_env"`
	Stream   string `yaml:"stream"` // "streamable" (default) or "sse".
}

// LoadConfig reads and parses a session file. ${VAR} references are
// expanded in the provider section only, so prompts may contain '$' freely.
func LoadConfig(path string) (SessionConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration
	if err != nil {
		return SessionConfig{}, fault.New(fault.ErrConfig, "engine: load config", err)
	}

	return ParseConfig(data, os.Getenv)
}

// ParseConfig parses a session document, resolving ${VAR} references in the
// provider section with getenv.
func ParseConfig(data []byte, getenv func(string) string) (SessionConfig, error) {
	var cfg SessionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return SessionConfig{}, fault.New(fault.ErrConfig, "engine: parse config", err)
	}

	expand := func(s string) string { return os.Expand(s, getenv) }
	cfg.Provider.Kind = expand(cfg.Provider.Kind)
	cfg.Provider.BaseURL = expand(cfg.Provider.BaseURL)
	cfg.Provider.APIKey = expand(cfg.Provider.APIKey)

	return cfg, nil
}

// Validate checks the fields that must hold before any connection is made.
// Individual server descriptors are checked later and only skipped when bad.
func (c SessionConfig) Validate() error {
	return c.validate(true)
}

func (c SessionConfig) validate(requirePrompt bool) error {
	const op = "engine: config"

	if requirePrompt && c.PromptText == "" {
		return fault.Newf(fault.ErrConfig, op, "prompt_text is required")
	}
	if c.MaxRounds < 0 {
		return fault.Newf(fault.ErrConfig, op, "max_rounds must not be negative")
	}
	if c.ToolTimeout < 0 || c.SessionTimeout < 0 {
		return fault.Newf(fault.ErrConfig, op, "timeouts must not be negative")
	}
	if c.Provider.RequestsPerMinute < 0 || c.Provider.MaxRetries < 0 {
		return fault.Newf(fault.ErrConfig, op, "provider rate limits must not be negative")
	}
	if _, err := c.PresetCatalog(preset.Builtins()); err != nil {
		return fault.New(fault.ErrConfig, op, err)
	}

	return nil
}

// PresetCatalog overlays the session's presets on base.
func (c SessionConfig) PresetCatalog(base preset.Catalog) (preset.Catalog, error) {
	presets := make([]preset.Preset, len(c.Presets))
	for i, p := range c.Presets {
		presets[i] = preset.Preset{
			Name:        p.Name,
			Pattern:     p.Pattern,
			MainOptions: p.MainCmdOptions,
			Params:      p.MCPParams,
		}
	}

	catalog, err := base.Merge(presets...)
	if err != nil {
		return nil, fmt.Errorf("presets: %w", err)
	}

	return catalog, nil
}

package engine

import (
	"fmt"
	"sync"

	"github.com/germanamz/relay/pkg/fault"
	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/providers/anthropic"
	"github.com/germanamz/relay/pkg/providers/gemini"
	"github.com/germanamz/relay/pkg/providers/grok"
	"github.com/germanamz/relay/pkg/providers/openai"
)

// ProviderFactory creates a Completer from a resolved ProviderConfig.
type ProviderFactory func(cfg ProviderConfig) (modeladapter.Completer, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[string]ProviderFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories["openai"] = newOpenAI
		factories["anthropic"] = newAnthropic
		factories["gemini"] = newGemini
		factories["grok"] = newGrok
	})
}

// RegisterProvider registers a provider factory under kind, replacing any
// previous one.
func RegisterProvider(kind string, factory ProviderFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[kind] = factory
}

func getFactory(kind string) (ProviderFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[kind]
	return f, ok
}

func newOpenAI(cfg ProviderConfig) (modeladapter.Completer, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openai.DefaultBaseURL
	}

	a := openai.New(baseURL, cfg.APIKey, cfg.Model)
	a.Temperature = cfg.Temperature
	a.MaxTokens = cfg.MaxTokens

	return a, nil
}

func newAnthropic(cfg ProviderConfig) (modeladapter.Completer, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropic.DefaultBaseURL
	}

	a := anthropic.New(baseURL, cfg.APIKey, cfg.Model)
	a.Temperature = cfg.Temperature
	if cfg.MaxTokens > 0 {
		a.MaxTokens = cfg.MaxTokens
	}

	return a, nil
}

func newGemini(cfg ProviderConfig) (modeladapter.Completer, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = gemini.DefaultBaseURL
	}

	a := gemini.New(baseURL, cfg.APIKey, cfg.Model)
	a.Temperature = cfg.Temperature
	a.MaxTokens = cfg.MaxTokens

	return a, nil
}

func newGrok(cfg ProviderConfig) (modeladapter.Completer, error) {
	a := grok.New(cfg.BaseURL, cfg.APIKey, cfg.Model)
	a.Temperature = cfg.Temperature
	a.MaxTokens = cfg.MaxTokens

	return a, nil
}

// mergeProvider fills the unset fields of cfg from defaults.
func mergeProvider(cfg, defaults ProviderConfig) ProviderConfig {
	if cfg.Kind == "" {
		cfg.Kind = defaults.Kind
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = defaults.APIKey
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaults.Temperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	return cfg
}

// buildCompleter creates a Completer with the factory registered for
// cfg.Kind, wrapped in a rate limiter when pacing or retries are configured.
func buildCompleter(cfg ProviderConfig) (modeladapter.Completer, error) {
	const op = "engine: provider"

	if cfg.Model == "" {
		return nil, fault.Newf(fault.ErrConfig, op, "model is required")
	}

	factory, ok := getFactory(cfg.Kind)
	if !ok {
		return nil, fault.Newf(fault.ErrConfig, op, "unknown provider kind %q", cfg.Kind)
	}

	c, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("engine: provider %q: %w", cfg.Kind, err)
	}

	if cfg.RequestsPerMinute > 0 || cfg.MaxRetries > 0 {
		c = modeladapter.NewLimited(c, modeladapter.LimitOpts{
			RequestsPerMinute: cfg.RequestsPerMinute,
			MaxRetries:        cfg.MaxRetries,
		})
	}

	return c, nil
}

// Package config loads shellstory settings from a YAML file, then applies
// environment overrides. A missing file yields the defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/shellstory/internal/analysis"
	"github.com/HendryAvila/shellstory/internal/design"
	"github.com/HendryAvila/shellstory/internal/document"
	"github.com/HendryAvila/shellstory/internal/llm"
	"github.com/HendryAvila/shellstory/internal/scope"
)

// Cache backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Environment overrides.
const (
	EnvDataDir      = "SHELLSTORY_DATA_DIR"
	EnvWorkspace    = "SHELLSTORY_WORKSPACE"
	EnvCacheBackend = "SHELLSTORY_CACHE_BACKEND"
	EnvLogLevel     = "SHELLSTORY_LOG_LEVEL"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
)

// Config is the full configuration.
type Config struct {
	DataDir      string `yaml:"data_dir"`
	WorkspaceDir string `yaml:"workspace_dir"`

	Log         LogConfig         `yaml:"log"`
	Cache       CacheConfig       `yaml:"cache"`
	Association AssociationConfig `yaml:"association"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Scope       ScopeConfig       `yaml:"scope"`
	Document    DocumentConfig    `yaml:"document"`
	LLM         LLMConfig         `yaml:"llm"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CacheConfig struct {
	Backend string `yaml:"backend"`
	// Dir defaults to <data_dir>/cache.
	Dir string `yaml:"dir"`
}

type AssociationConfig struct {
	MaxDistance  float64 `yaml:"max_distance"`
	RowTolerance float64 `yaml:"row_tolerance"`
}

type AnalysisConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
}

type ScopeConfig struct {
	QuestionThreshold int `yaml:"question_threshold"`
}

type DocumentConfig struct {
	Limit        int `yaml:"limit"`
	SafetyMargin int `yaml:"safety_margin"`
}

type LLMConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	MaxTokens int    `yaml:"max_tokens"`
}

// userHomeDir is swapped in tests.
var userHomeDir = os.UserHomeDir

// Default returns the configuration used when no file is present.
func Default() *Config {
	dataDir := ".shellstory"
	if home, err := userHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".shellstory")
	}
	return &Config{
		DataDir: dataDir,
		Log:     LogConfig{Level: "info", Format: "json"},
		Cache:   CacheConfig{Backend: BackendFile},
		Association: AssociationConfig{
			MaxDistance:  design.DefaultMaxDistance,
			RowTolerance: design.DefaultRowTolerance,
		},
		Analysis: AnalysisConfig{MaxConcurrency: analysis.DefaultMaxConcurrency},
		Scope:    ScopeConfig{QuestionThreshold: scope.QuestionThreshold},
		Document: DocumentConfig{
			Limit:        document.DefaultLimit,
			SafetyMargin: document.DefaultSafetyMargin,
		},
		LLM: LLMConfig{Provider: llm.ProviderSampling, MaxTokens: llm.DefaultMaxTokens},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path or a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		case len(strings.TrimSpace(string(data))) > 0:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvWorkspace); v != "" {
		c.WorkspaceDir = v
	}
	if v := os.Getenv(EnvCacheBackend); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if key := os.Getenv(EnvGeminiAPIKey); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" || c.LLM.Provider == llm.ProviderSampling {
			c.LLM.Provider = llm.ProviderGemini
		}
	}
}

func (c *Config) normalize() {
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.WorkspaceDir = strings.TrimSpace(c.WorkspaceDir)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)

	if c.WorkspaceDir == "" && c.DataDir != "" {
		c.WorkspaceDir = filepath.Join(c.DataDir, "workspace")
	}
	if c.Cache.Dir == "" && c.DataDir != "" {
		c.Cache.Dir = filepath.Join(c.DataDir, "cache")
	}
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want json or console", c.Log.Format))
	}
	switch c.Cache.Backend {
	case BackendFile, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q: want file or sqlite", c.Cache.Backend))
	}
	if c.Association.MaxDistance < 0 || c.Association.RowTolerance < 0 {
		errs = append(errs, errors.New("association distances must not be negative"))
	}
	if c.Analysis.MaxConcurrency < 0 {
		errs = append(errs, errors.New("analysis.max_concurrency must not be negative"))
	}
	if c.Scope.QuestionThreshold < 0 {
		errs = append(errs, errors.New("scope.question_threshold must not be negative"))
	}
	if c.Document.Limit < 0 || c.Document.SafetyMargin < 0 {
		errs = append(errs, errors.New("document limits must not be negative"))
	} else if c.Document.Limit > 0 && c.Document.SafetyMargin >= c.Document.Limit {
		errs = append(errs, fmt.Errorf("document.safety_margin %d must be below document.limit %d", c.Document.SafetyMargin, c.Document.Limit))
	}
	switch c.LLM.Provider {
	case llm.ProviderSampling:
	case llm.ProviderGemini:
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm.provider gemini needs llm.api_key or %s", EnvGeminiAPIKey))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q: want sampling or gemini", c.LLM.Provider))
	}
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, errors.New("llm.max_tokens must not be negative"))
	}
	return errors.Join(errs...)
}

// Generator returns the generator configuration.
func (c *Config) Generator() llm.Config {
	return llm.Config{
		Provider:  c.LLM.Provider,
		Model:     c.LLM.Model,
		APIKey:    c.LLM.APIKey,
		MaxTokens: c.LLM.MaxTokens,
	}
}

// AssociateOptions returns the association tuning.
func (c *Config) AssociateOptions() design.AssociateOptions {
	return design.AssociateOptions{
		MaxDistance:  c.Association.MaxDistance,
		RowTolerance: c.Association.RowTolerance,
	}
}

// Composer returns the document composer.
func (c *Config) Composer() document.Composer {
	return document.Composer{
		Limit:           c.Document.Limit,
		SafetyMargin:    c.Document.SafetyMargin,
		OverflowHeading: document.ScopeAnalysisHeading,
	}
}

// Package config handles configuration loading and library home resolution.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// HomeEnv is the environment variable that overrides the library home.
const HomeEnv = "SHELF_HOME"

// ---------------------------------------------------------------------------
// Config types
// ---------------------------------------------------------------------------

// VisionConfig holds settings for the multimodal page-analysis provider.
type VisionConfig struct {
	Provider       string `yaml:"provider"` // "gemini" | "openai" | "openrouter" | "none"
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`       // #nosec G117 -- APIKey is the inference provider's authentication token
	ResponsePath   string `yaml:"response_path"` // JSONPath to the answer text for OpenAI-compatible servers
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// EmbeddingConfig holds settings for the embedding provider used on page analyses.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "ollama" | "openai" | "openrouter" | "gemini" | "none"
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"` // #nosec G117 -- APIKey is the embedding provider's authentication token
}

// SearchConfig controls cover search fan-out and page search.
type SearchConfig struct {
	Concurrency   int    `yaml:"concurrency"`
	MaxCandidates int    `yaml:"max_candidates"`
	Semantic      string `yaml:"semantic"` // "auto" | "always" | "never"
}

// ImportConfig bounds what the importer accepts.
type ImportConfig struct {
	MaxPageBytes int64 `yaml:"max_page_bytes"`
}

// LibraryConfig is the root per-library configuration.
type LibraryConfig struct {
	Vision             VisionConfig    `yaml:"vision"`
	Embedding          EmbeddingConfig `yaml:"embedding"`
	Search             SearchConfig    `yaml:"search"`
	Import             ImportConfig    `yaml:"import"`
	LockTimeoutSeconds int             `yaml:"lock_timeout_seconds"`
}

// Default returns a LibraryConfig populated with sensible defaults.
// AI features are off until a provider is configured. Models and base URLs
// are left empty so each provider can apply its own.
func Default() *LibraryConfig {
	return &LibraryConfig{
		Vision: VisionConfig{
			Provider:       "none",
			TimeoutSeconds: 60,
		},
		Embedding: EmbeddingConfig{
			Provider: "none",
		},
		Search: SearchConfig{
			Concurrency:   4,
			MaxCandidates: 50,
			Semantic:      "auto",
		},
		Import: ImportConfig{
			MaxPageBytes: 32 << 20,
		},
		LockTimeoutSeconds: 10,
	}
}

// Load reads a per-library config.yaml from path.
// If the file does not exist it returns Default() with no error.
// Missing keys retain their default values.
func Load(path string) (*LibraryConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	if v, ok := raw["vision"].(map[string]any); ok {
		setString(v, "provider", &cfg.Vision.Provider, false)
		setString(v, "model", &cfg.Vision.Model, false)
		setString(v, "base_url", &cfg.Vision.BaseURL, true)
		setString(v, "api_key", &cfg.Vision.APIKey, true)
		setString(v, "response_path", &cfg.Vision.ResponsePath, true)
		setPositiveInt(v, "timeout_seconds", &cfg.Vision.TimeoutSeconds)
	}
	if emb, ok := raw["embedding"].(map[string]any); ok {
		setString(emb, "provider", &cfg.Embedding.Provider, false)
		setString(emb, "model", &cfg.Embedding.Model, false)
		setString(emb, "base_url", &cfg.Embedding.BaseURL, true)
		setString(emb, "api_key", &cfg.Embedding.APIKey, true)
	}
	if s, ok := raw["search"].(map[string]any); ok {
		setPositiveInt(s, "concurrency", &cfg.Search.Concurrency)
		setPositiveInt(s, "max_candidates", &cfg.Search.MaxCandidates)
		setString(s, "semantic", &cfg.Search.Semantic, false)
	}
	if imp, ok := raw["import"].(map[string]any); ok {
		var n int
		setPositiveInt(imp, "max_page_bytes", &n)
		if n > 0 {
			cfg.Import.MaxPageBytes = int64(n)
		}
	}
	setPositiveInt(raw, "lock_timeout_seconds", &cfg.LockTimeoutSeconds)

	return cfg, nil
}

// setString copies m[key] into dst when it is a string. Empty strings are
// applied only when allowEmpty is set.
//
//revive:disable:flag-parameter
func setString(m map[string]any, key string, dst *string, allowEmpty bool) {
	v, ok := m[key].(string)
	if !ok {
		return
	}
	if v == "" && !allowEmpty {
		return
	}
	*dst = v
}

//revive:enable:flag-parameter

// setPositiveInt copies m[key] into dst when it is a positive integer.
func setPositiveInt(m map[string]any, key string, dst *int) {
	switch n := m[key].(type) {
	case int:
		if n > 0 {
			*dst = n
		}
	case float64:
		if n > 0 {
			*dst = int(n)
		}
	}
}

// ---------------------------------------------------------------------------
// Library home resolution
// ---------------------------------------------------------------------------

// globalConfigPath returns the path to the global comicshelf config file.
// This file stores only library_home.
func globalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "comicshelf", "config.yaml"), nil
}

// normalizePath expands ~ and makes the path absolute.
func normalizePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(os.ExpandEnv(path))
}

// ResolveLibraryHome returns the library home path and the source of the resolution.
// Priority: SHELF_HOME env → persisted global config → ~/.comicshelf
// source is one of "env", "config", or "default".
func ResolveLibraryHome() (path, source string) {
	if env := os.Getenv(HomeEnv); env != "" {
		p, err := normalizePath(env)
		if err == nil {
			return p, "env"
		}
	}
	if persisted, ok, _ := GetPersistedLibraryHome(); ok {
		return persisted, "config"
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".comicshelf"), "default"
}

// GetLibraryHome returns the resolved library home path.
func GetLibraryHome() string {
	path, _ := ResolveLibraryHome()
	return path
}

// readGlobal parses the global config into a map. A missing file yields (nil, nil).
func readGlobal(cfgPath string) (map[string]any, error) {
	data, err := os.ReadFile(cfgPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil //nolint:nilerr // a corrupt global config is treated as unset
	}
	return raw, nil
}

// GetPersistedLibraryHome reads library_home from the global config.
// Returns ("", false, nil) if not set.
func GetPersistedLibraryHome() (string, bool, error) {
	cfgPath, err := globalConfigPath()
	if err != nil {
		return "", false, err
	}
	raw, err := readGlobal(cfgPath)
	if err != nil || raw == nil {
		return "", false, err
	}
	val, _ := raw["library_home"].(string)
	val = strings.TrimSpace(val)
	if val == "" {
		return "", false, nil
	}
	p, err := normalizePath(val)
	if err != nil {
		return "", false, err
	}
	return p, true, nil
}

// SetPersistedLibraryHome normalizes path and persists it in the global config.
// Returns the normalized path.
func SetPersistedLibraryHome(path string) (string, error) {
	normalized, err := normalizePath(path)
	if err != nil {
		return "", err
	}
	cfgPath, err := globalConfigPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return "", err
	}

	// Preserve any other keys already in the global config.
	raw, _ := readGlobal(cfgPath)
	if raw == nil {
		raw = make(map[string]any)
	}
	raw["library_home"] = normalized
	out, err := yaml.Marshal(raw)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(cfgPath, out, 0o600); err != nil {
		return "", err
	}
	return normalized, nil
}

// ClearPersistedLibraryHome removes library_home from the global config.
// Returns true if the key was present and removed.
// If the file becomes empty after removal it is deleted.
func ClearPersistedLibraryHome() (bool, error) {
	cfgPath, err := globalConfigPath()
	if err != nil {
		return false, err
	}
	raw, err := readGlobal(cfgPath)
	if err != nil || raw == nil {
		return false, err
	}
	if _, ok := raw["library_home"]; !ok {
		return false, nil
	}
	delete(raw, "library_home")
	if len(raw) == 0 {
		_ = os.Remove(cfgPath)
		return true, nil
	}
	out, err := yaml.Marshal(raw)
	if err != nil {
		return false, err
	}
	return true, os.WriteFile(cfgPath, out, 0o600)
}

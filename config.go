package finalyst

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the finalyst engine.
type Config struct {
	// ArchiveDBPath is the full path to the SQLite archive database.
	// If empty, defaults to ~/.finalyst/archive.db.
	ArchiveDBPath string `json:"archive_db_path" yaml:"archive_db_path"`

	// LLM providers
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`
	Vision    LLMConfig `json:"vision" yaml:"vision"`

	// Upload limits
	MaxUploadBytes    int64    `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	AllowedExtensions []string `json:"allowed_extensions" yaml:"allowed_extensions"`

	// Vision behaviour
	VisionFallbackEnabled bool `json:"vision_fallback_enabled" yaml:"vision_fallback_enabled"`
	ChartConcurrency      int  `json:"chart_concurrency" yaml:"chart_concurrency"`

	// Archive search
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`
	TopKSimilar  int `json:"top_k_similar" yaml:"top_k_similar"`

	// Agent loop
	MaxToolRounds int     `json:"max_tool_rounds" yaml:"max_tool_rounds"`
	Temperature   float64 `json:"temperature" yaml:"temperature"`

	// Rate limiting (applied at the HTTP boundary)
	RateLimitPerMinute int `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, openai, openrouter, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with sensible defaults for local inference.
func DefaultConfig() Config {
	return Config{
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		Vision: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.2-vision",
			BaseURL:  "http://localhost:11434",
		},
		MaxUploadBytes:        10 << 20, // 10 MiB
		AllowedExtensions:     []string{".pdf", ".xlsx", ".xls"},
		VisionFallbackEnabled: true,
		ChartConcurrency:      4,
		EmbeddingDim:          768,
		TopKSimilar:           3,
		MaxToolRounds:         8,
		Temperature:           0.1,
		RateLimitPerMinute:    10,
	}
}

// LoadConfig reads a YAML config file and merges it over DefaultConfig.
// An empty path returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration bounds.
func (c *Config) Validate() error {
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: max_upload_bytes must be positive", ErrInvalidConfig)
	}
	if len(c.AllowedExtensions) == 0 {
		return fmt.Errorf("%w: allowed_extensions must not be empty", ErrInvalidConfig)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("%w: embedding_dim must be positive", ErrInvalidConfig)
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("%w: rate_limit_per_minute must be positive", ErrInvalidConfig)
	}
	if c.MaxToolRounds <= 0 {
		return fmt.Errorf("%w: max_tool_rounds must be positive", ErrInvalidConfig)
	}
	if c.TopKSimilar < 0 {
		return fmt.Errorf("%w: top_k_similar must not be negative", ErrInvalidConfig)
	}
	return nil
}

// resolveArchivePath computes the final archive database path.
func (c *Config) resolveArchivePath() string {
	if c.ArchiveDBPath != "" {
		return c.ArchiveDBPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "archive.db" // fallback to cwd
	}
	return filepath.Join(home, ".finalyst", "archive.db")
}

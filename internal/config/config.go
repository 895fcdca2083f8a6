// Package config handles all configuration management for memgraph.
//
// Configuration is loaded from multiple sources in order of precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables (MEMGRAPH_*)
// 3. Configuration file (.memgraph.yaml)
// 4. Default values (lowest priority)
package config

import (
	"path/filepath"
	"time"
)

// Config is the main configuration structure for memgraph.
type Config struct {
	// DataDir holds the snapshot store and, by default, the journal.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
	Traversal TraversalConfig `mapstructure:"traversal" yaml:"traversal"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup" yaml:"cleanup"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Ingest    IngestConfig    `mapstructure:"ingest" yaml:"ingest"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Journal   JournalConfig   `mapstructure:"journal" yaml:"journal"`
	Export    ExportConfig    `mapstructure:"export" yaml:"export"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error, off.
	Level string `mapstructure:"level" yaml:"level"`
}

// SearchConfig holds similarity search defaults.
type SearchConfig struct {
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
	Limit     int     `mapstructure:"limit" yaml:"limit"`
}

// TraversalConfig holds neighbor traversal defaults.
type TraversalConfig struct {
	MaxDistance         int     `mapstructure:"max_distance" yaml:"max_distance"`
	MinRelationStrength float64 `mapstructure:"min_relation_strength" yaml:"min_relation_strength"`
}

// CleanupConfig configures eviction thresholds and the maintenance loop.
type CleanupConfig struct {
	MinImportance       float64 `mapstructure:"min_importance" yaml:"min_importance"`
	MinRelationStrength float64 `mapstructure:"min_relation_strength" yaml:"min_relation_strength"`

	// Enabled turns on periodic cleanup while serving.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval is the time between periodic cleanup passes.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// EmbeddingConfig configures the built-in text embedder.
type EmbeddingConfig struct {
	Dimension int `mapstructure:"dimension" yaml:"dimension"`

	// CacheSize is the number of recent texts whose vectors are kept; 0
	// disables the cache.
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`
}

// IngestConfig configures the bulk ingest worker pool.
type IngestConfig struct {
	Workers   int `mapstructure:"workers" yaml:"workers"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Bind string `mapstructure:"bind" yaml:"bind"`
	Port int    `mapstructure:"port" yaml:"port"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// JournalConfig configures the SQLite cleanup journal.
type JournalConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the database file; empty means <data_dir>/journal.db.
	Path string `mapstructure:"path" yaml:"path"`
}

// ExportConfig configures exports to external tools.
type ExportConfig struct {
	Obsidian ObsidianExportConfig `mapstructure:"obsidian" yaml:"obsidian"`
}

// ObsidianExportConfig configures the Obsidian vault export.
type ObsidianExportConfig struct {
	// VaultPath is the vault root; ~ is expanded.
	VaultPath string `mapstructure:"vault_path" yaml:"vault_path"`

	// FolderName is the folder inside the vault that receives the notes.
	FolderName string `mapstructure:"folder_name" yaml:"folder_name"`

	// TemplateFile replaces the built-in note template.
	TemplateFile string `mapstructure:"template_file" yaml:"template_file"`

	// CustomTags are added to every note.
	CustomTags []string `mapstructure:"custom_tags" yaml:"custom_tags"`
}

// StorePath returns the directory of the snapshot store.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "graph")
}

// JournalPath returns the journal database file.
func (c *Config) JournalPath() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(c.DataDir, "journal.db")
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return &ValidationError{Field: "data_dir", Message: "data directory is required"}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "off": true}
	if !validLevels[c.Log.Level] {
		return &ValidationError{Field: "log.level", Message: "invalid level, must be one of: debug, info, warn, error, off"}
	}

	if c.Search.Threshold < -1 || c.Search.Threshold > 1 {
		return &ValidationError{Field: "search.threshold", Message: "must be between -1 and 1"}
	}
	if c.Search.Limit <= 0 {
		return &ValidationError{Field: "search.limit", Message: "must be positive"}
	}

	if c.Traversal.MaxDistance < 0 {
		return &ValidationError{Field: "traversal.max_distance", Message: "must not be negative"}
	}
	if c.Traversal.MinRelationStrength < 0 {
		return &ValidationError{Field: "traversal.min_relation_strength", Message: "must not be negative"}
	}

	if c.Cleanup.MinImportance < 0 {
		return &ValidationError{Field: "cleanup.min_importance", Message: "must not be negative"}
	}
	if c.Cleanup.MinRelationStrength < 0 {
		return &ValidationError{Field: "cleanup.min_relation_strength", Message: "must not be negative"}
	}
	if c.Cleanup.Enabled && c.Cleanup.Interval <= 0 {
		return &ValidationError{Field: "cleanup.interval", Message: "interval is required when cleanup is enabled"}
	}

	if c.Embedding.Dimension <= 0 {
		return &ValidationError{Field: "embedding.dimension", Message: "must be positive"}
	}
	if c.Embedding.CacheSize < 0 {
		return &ValidationError{Field: "embedding.cache_size", Message: "must not be negative"}
	}

	if c.Ingest.Workers < 0 {
		return &ValidationError{Field: "ingest.workers", Message: "must not be negative"}
	}
	if c.Ingest.QueueSize < 0 {
		return &ValidationError{Field: "ingest.queue_size", Message: "must not be negative"}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &ValidationError{Field: "server.port", Message: "must be between 1 and 65535"}
	}

	return nil
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "config validation error: " + e.Field + ": " + e.Message
}

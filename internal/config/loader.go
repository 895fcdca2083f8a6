package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const configFileName = ".memgraph.yaml"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()

	v.SetConfigName(".memgraph")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")
	v.AddConfigPath("/etc/memgraph")

	v.SetEnvPrefix("MEMGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// SetConfigFile sets a specific config file to use.
func (l *Loader) SetConfigFile(path string) {
	l.v.SetConfigFile(path)
}

// Load loads the configuration from all sources.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.setDefaults(cfg)

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every key with viper so AutomaticEnv can override
// keys that never appear in a config file.
func (l *Loader) setDefaults(cfg *Config) {
	l.v.SetDefault("data_dir", cfg.DataDir)

	l.v.SetDefault("log.level", cfg.Log.Level)

	l.v.SetDefault("search.threshold", cfg.Search.Threshold)
	l.v.SetDefault("search.limit", cfg.Search.Limit)

	l.v.SetDefault("traversal.max_distance", cfg.Traversal.MaxDistance)
	l.v.SetDefault("traversal.min_relation_strength", cfg.Traversal.MinRelationStrength)

	l.v.SetDefault("cleanup.min_importance", cfg.Cleanup.MinImportance)
	l.v.SetDefault("cleanup.min_relation_strength", cfg.Cleanup.MinRelationStrength)
	l.v.SetDefault("cleanup.enabled", cfg.Cleanup.Enabled)
	l.v.SetDefault("cleanup.interval", cfg.Cleanup.Interval)

	l.v.SetDefault("embedding.dimension", cfg.Embedding.Dimension)
	l.v.SetDefault("embedding.cache_size", cfg.Embedding.CacheSize)

	l.v.SetDefault("ingest.workers", cfg.Ingest.Workers)
	l.v.SetDefault("ingest.queue_size", cfg.Ingest.QueueSize)

	l.v.SetDefault("server.bind", cfg.Server.Bind)
	l.v.SetDefault("server.port", cfg.Server.Port)
	l.v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	l.v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	l.v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	l.v.SetDefault("journal.enabled", cfg.Journal.Enabled)
	l.v.SetDefault("journal.path", cfg.Journal.Path)

	l.v.SetDefault("export.obsidian.vault_path", cfg.Export.Obsidian.VaultPath)
	l.v.SetDefault("export.obsidian.folder_name", cfg.Export.Obsidian.FolderName)
	l.v.SetDefault("export.obsidian.template_file", cfg.Export.Obsidian.TemplateFile)
	l.v.SetDefault("export.obsidian.custom_tags", cfg.Export.Obsidian.CustomTags)
}

// ConfigFileUsed returns the path of the config file used, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance, used to bind CLI flags.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// LoadDefault loads configuration with default search paths.
func LoadDefault() (*Config, error) {
	return NewLoader().Load()
}

// FindConfigFile searches the default locations for a config file and
// returns its path, or "" if there is none.
func FindConfigFile() string {
	if _, err := os.Stat(configFileName); err == nil {
		if abs, err := filepath.Abs(configFileName); err == nil {
			return abs
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, configFileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	etcPath := filepath.Join("/etc/memgraph", configFileName)
	if _, err := os.Stat(etcPath); err == nil {
		return etcPath
	}

	return ""
}

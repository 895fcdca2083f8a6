package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Log:     LogConfig{Level: "info"},
		Search: SearchConfig{
			Threshold: 0.3,
			Limit:     10,
		},
		Traversal: TraversalConfig{
			MaxDistance:         2,
			MinRelationStrength: 0.3,
		},
		Cleanup: CleanupConfig{
			MinImportance:       0.1,
			MinRelationStrength: 0.1,
			Enabled:             true,
			Interval:            time.Hour,
		},
		Embedding: EmbeddingConfig{Dimension: 256, CacheSize: 1024},
		Ingest: IngestConfig{
			Workers:   0, // auto: runtime.NumCPU()
			QueueSize: 100,
		},
		Server: ServerConfig{
			Bind:            "127.0.0.1",
			Port:            7420,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Journal: JournalConfig{Enabled: true},
		Export: ExportConfig{
			Obsidian: ObsidianExportConfig{FolderName: "memgraph"},
		},
	}
}

// defaultDataDir returns ~/.local/share/memgraph, or ./.memgraph-data when
// the home directory is unknown.
func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".memgraph-data"
	}
	return filepath.Join(homeDir, ".local", "share", "memgraph")
}

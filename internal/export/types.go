// Package export writes memory graph snapshots to external tools.
package export

import (
	"time"

	"github.com/JNZader/memgraph/internal/graph"
)

// Exporter writes a snapshot to some destination.
type Exporter interface {
	// Export writes snap and reports what was written.
	Export(snap *graph.Snapshot, meta *Metadata) (*Result, error)

	// Name returns the exporter name.
	Name() string
}

// Metadata describes an export run.
type Metadata struct {
	// ExportedAt is the reference time for decayed importance and strength.
	ExportedAt time.Time

	// Version is the memgraph version doing the export.
	Version string
}

// Result summarizes an export.
type Result struct {
	// Dir is the directory the notes were written to.
	Dir string `json:"dir"`

	// Notes is the number of memory notes written, excluding the index.
	Notes int `json:"notes"`

	// Links is the number of relation links rendered.
	Links int `json:"links"`

	// Removed is the number of stale notes deleted from Dir.
	Removed int `json:"removed"`
}

// NoteFrontmatter is the YAML frontmatter of a memory note.
type NoteFrontmatter struct {
	ID                string            `yaml:"id"`
	ContentType       string            `yaml:"content_type"`
	Importance        float64           `yaml:"importance"`
	DecayedImportance float64           `yaml:"decayed_importance"`
	AccessCount       int64             `yaml:"access_count"`
	Created           string            `yaml:"created"`
	LastAccessed      string            `yaml:"last_accessed"`
	Tags              []string          `yaml:"tags"`
	Metadata          map[string]string `yaml:"metadata,omitempty"`
}

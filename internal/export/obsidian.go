package export

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JNZader/memgraph/internal/config"
	"github.com/JNZader/memgraph/internal/graph"
)

// generatedMarker identifies notes written by the exporter, so stale ones
// can be removed without touching the user's own notes.
const generatedMarker = "memgraph: generated"

const indexName = "index"

var _ Exporter = (*ObsidianExporter)(nil)

// ObsidianExporter writes one note per memory into an Obsidian vault, with
// relations rendered as wiki links.
type ObsidianExporter struct {
	cfg      config.ObsidianExportConfig
	template *template.Template
}

// noteLink is a relation as seen from one of its endpoints.
type noteLink struct {
	Type     graph.RelationType
	Target   string
	Strength float64
}

type noteTemplateData struct {
	Frontmatter     *NoteFrontmatter
	FrontmatterYAML string
	Node        *graph.MemoryNode
	Outgoing    []noteLink
	Incoming    []noteLink
	Meta        *Metadata
}

type indexEntry struct {
	ID         string
	Name       string
	Type       graph.ContentType
	Importance float64
	Title      string
}

// NewObsidianExporter creates an exporter for cfg. The vault directory must
// exist.
func NewObsidianExporter(cfg config.ObsidianExportConfig) (*ObsidianExporter, error) {
	e := &ObsidianExporter{cfg: cfg}

	if err := e.validate(); err != nil {
		return nil, err
	}
	if err := e.loadTemplate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Name returns the exporter name.
func (e *ObsidianExporter) Name() string {
	return "obsidian"
}

// Dir returns the folder the notes are written to.
func (e *ObsidianExporter) Dir() string {
	return filepath.Join(e.cfg.VaultPath, e.cfg.FolderName)
}

func (e *ObsidianExporter) validate() error {
	if e.cfg.VaultPath == "" {
		return fmt.Errorf("obsidian vault path is required")
	}
	e.cfg.VaultPath = expandPath(e.cfg.VaultPath)

	info, err := os.Stat(e.cfg.VaultPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("obsidian vault not found: %s", e.cfg.VaultPath)
	}
	if err != nil {
		return fmt.Errorf("checking obsidian vault: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("obsidian vault is not a directory: %s", e.cfg.VaultPath)
	}
	return nil
}

func (e *ObsidianExporter) loadTemplate() error {
	text := defaultNoteTemplate
	if e.cfg.TemplateFile != "" {
		content, err := os.ReadFile(expandPath(e.cfg.TemplateFile)) // #nosec G304 - user-provided template path
		if err != nil {
			return fmt.Errorf("loading custom template: %w", err)
		}
		text = string(content)
	}

	tmpl, err := template.New("note").Funcs(templateFuncs()).Parse(text)
	if err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}
	e.template = tmpl
	return nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"wikiLink":   wikiLink,
		"formatTags": formatTags,
		"formatTime": formatTime,
		"marker":     func() string { return generatedMarker },
	}
}

// Export writes every node of snap as a note plus an index note ranking the
// memories by decayed importance. Notes left over from earlier exports
// whose memory no longer exists are removed.
func (e *ObsidianExporter) Export(snap *graph.Snapshot, meta *Metadata) (*Result, error) {
	if snap == nil {
		return nil, fmt.Errorf("nil snapshot")
	}
	if meta == nil {
		meta = &Metadata{}
	}
	now := meta.ExportedAt
	if now.IsZero() {
		now = snap.TakenAt
	}

	dir := e.Dir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	ids := make([]string, len(snap.Nodes))
	for i, n := range snap.Nodes {
		ids[i] = n.ID
	}
	names := noteNames(ids)
	nameOf := func(id string) string {
		if name, ok := names[id]; ok {
			return name
		}
		return noteName(id)
	}

	outgoing := make(map[string][]noteLink)
	incoming := make(map[string][]noteLink)
	for _, r := range snap.Relations {
		strength := graph.DecayedStrength(r, now)
		outgoing[r.FromNodeID] = append(outgoing[r.FromNodeID], noteLink{Type: r.RelationType, Target: nameOf(r.ToNodeID), Strength: strength})
		incoming[r.ToNodeID] = append(incoming[r.ToNodeID], noteLink{Type: r.RelationType, Target: nameOf(r.FromNodeID), Strength: strength})
	}

	res := &Result{Dir: dir}
	written := map[string]bool{indexName + ".md": true}
	index := make([]indexEntry, 0, len(snap.Nodes))

	for _, n := range snap.Nodes {
		decayed := graph.DecayedImportance(n, now)
		fm := e.buildFrontmatter(n, decayed)
		fmYAML, err := yaml.Marshal(fm)
		if err != nil {
			return nil, fmt.Errorf("marshaling frontmatter for %s: %w", n.ID, err)
		}

		data := &noteTemplateData{
			Frontmatter:     fm,
			FrontmatterYAML: string(fmYAML),
			Node:            n,
			Outgoing:        sortLinks(outgoing[n.ID]),
			Incoming:        sortLinks(incoming[n.ID]),
			Meta:            meta,
		}
		var sb strings.Builder
		if err := e.template.Execute(&sb, data); err != nil {
			return nil, fmt.Errorf("executing template for %s: %w", n.ID, err)
		}

		filename := nameOf(n.ID) + ".md"
		if err := os.WriteFile(filepath.Join(dir, filename), []byte(sb.String()), 0o600); err != nil {
			return nil, fmt.Errorf("writing note %s: %w", filename, err)
		}
		written[filename] = true
		res.Notes++
		res.Links += len(data.Outgoing)

		index = append(index, indexEntry{ID: n.ID, Name: nameOf(n.ID), Type: n.ContentType, Importance: decayed, Title: title(n.Content)})
	}

	if err := e.writeIndex(dir, index, meta, now); err != nil {
		return nil, err
	}

	removed, err := removeStale(dir, written)
	if err != nil {
		return nil, err
	}
	res.Removed = removed
	return res, nil
}

func (e *ObsidianExporter) buildFrontmatter(n *graph.MemoryNode, decayed float64) *NoteFrontmatter {
	tags := []string{"memgraph", strings.ToLower(string(n.ContentType))}
	tags = append(tags, n.Tags...)
	tags = append(tags, e.cfg.CustomTags...)
	sort.Strings(tags)

	return &NoteFrontmatter{
		ID:                n.ID,
		ContentType:       string(n.ContentType),
		Importance:        n.Importance,
		DecayedImportance: decayed,
		AccessCount:       n.AccessCount,
		Created:           n.CreatedAt.UTC().Format(time.RFC3339),
		LastAccessed:      n.LastAccessedAt.UTC().Format(time.RFC3339),
		Tags:              unique(tags),
		Metadata:          n.Metadata,
	}
}

func (e *ObsidianExporter) writeIndex(dir string, entries []indexEntry, meta *Metadata, now time.Time) error {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Importance != entries[j].Importance {
			return entries[i].Importance > entries[j].Importance
		}
		return entries[i].ID < entries[j].ID
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "---\ntags: [memgraph]\n---\n<!-- %s -->\n# Memory index\n\n", generatedMarker)
	fmt.Fprintf(&sb, "Exported %s", formatTime(now))
	if meta.Version != "" {
		fmt.Fprintf(&sb, " by memgraph %s", meta.Version)
	}
	fmt.Fprintf(&sb, ", %d memories.\n\n", len(entries))
	sb.WriteString("| Importance | Type | Memory |\n|---|---|---|\n")
	for _, en := range entries {
		fmt.Fprintf(&sb, "| %.3f | %s | [[%s\\|%s]] |\n", en.Importance, en.Type, en.Name, en.Title)
	}

	path := filepath.Join(dir, indexName+".md")
	if err := os.WriteFile(path, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	return nil
}

// removeStale deletes generated notes in dir that were not written by this
// export.
func removeStale(dir string, written map[string]bool) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading export directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") || written[name] {
			continue
		}
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path) // #nosec G304 - path inside the export directory
		if err != nil {
			return removed, fmt.Errorf("reading %s: %w", name, err)
		}
		if !strings.Contains(string(content), generatedMarker) {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("removing stale note %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}

func sortLinks(links []noteLink) []noteLink {
	sort.Slice(links, func(i, j int) bool {
		if links[i].Strength != links[j].Strength {
			return links[i].Strength > links[j].Strength
		}
		if links[i].Target != links[j].Target {
			return links[i].Target < links[j].Target
		}
		return links[i].Type < links[j].Type
	})
	return links
}

// Template helpers

// formatTags formats tags as Obsidian hashtags.
func formatTags(tags []string) string {
	result := make([]string, 0, len(tags))
	for _, t := range tags {
		result = append(result, "#"+strings.ReplaceAll(t, " ", "-"))
	}
	return strings.Join(result, " ")
}

// wikiLink creates an Obsidian wiki link.
func wikiLink(name string) string {
	return "[[" + name + "]]"
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

// Utility functions

// noteName turns a node id into a file name without extension.
func noteName(id string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", "#", "^", "[", "]"}
	result := id
	for _, c := range invalid {
		result = strings.ReplaceAll(result, c, "-")
	}
	return result
}

// noteNames maps every id to a distinct note name. Names are compared
// case-insensitively and never clash with the index note. Ids that are
// already valid file names keep them; a sanitized name that clashes gets a
// hash of the raw id appended.
func noteNames(ids []string) map[string]string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	names := make(map[string]string, len(ids))
	taken := map[string]bool{strings.ToLower(indexName): true}
	claim := func(id, name string) {
		if taken[strings.ToLower(name)] {
			base := name + "-" + idHash(id)
			name = base
			for i := 2; taken[strings.ToLower(name)]; i++ {
				name = fmt.Sprintf("%s-%d", base, i)
			}
		}
		taken[strings.ToLower(name)] = true
		names[id] = name
	}

	for _, id := range sorted {
		if noteName(id) == id {
			claim(id, id)
		}
	}
	for _, id := range sorted {
		if name := noteName(id); name != id {
			claim(id, name)
		}
	}
	return names
}

func idHash(id string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return fmt.Sprintf("%08x", h.Sum32())
}

// title returns the first line of content, shortened for tables.
func title(content string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	line = strings.ReplaceAll(line, "|", "/")
	r := []rune(line)
	if len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return line
}

func unique(s []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, v := range s {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}
	return result
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

const defaultNoteTemplate = `---
{{ .FrontmatterYAML }}---
<!-- {{ marker }} -->
# {{ .Node.ID }}

{{ .Node.Content }}
{{ if .Outgoing }}
## Relations
{{ range .Outgoing }}- {{ .Type }} {{ wikiLink .Target }} ({{ printf "%.2f" .Strength }})
{{ end }}{{ end }}{{ if .Incoming }}
## Referenced by
{{ range .Incoming }}- {{ wikiLink .Target }} {{ .Type }} ({{ printf "%.2f" .Strength }})
{{ end }}{{ end }}
{{ formatTags .Frontmatter.Tags }}
`

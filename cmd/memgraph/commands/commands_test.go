package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JNZader/memgraph/internal/graph"
	"github.com/JNZader/memgraph/internal/journal"
)

// resetFlags restores every flag of cmd and its children to its default so
// executions do not leak into each other.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the CLI against dataDir and returns stdout.
func execute(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--data-dir", dataDir, "--quiet"}, args...))

	err := rootCmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, dataDir string, args ...string) string {
	t.Helper()
	out, err := execute(t, dataDir, args...)
	require.NoError(t, err, "memgraph %s", strings.Join(args, " "))
	return out
}

func TestVersionCommand(t *testing.T) {
	origVersion, origCommit := Version, Commit
	Version, Commit = "1.2.3", "abc123def"
	defer func() { Version, Commit = origVersion, origCommit }()

	dir := t.TempDir()

	tests := []struct {
		name     string
		args     []string
		contains []string
	}{
		{"default output", nil, []string{"memgraph version 1.2.3", "Commit:     abc123def", runtime.Version()}},
		{"short flag", []string{"--short"}, []string{"1.2.3"}},
		{"json flag", []string{"--json"}, []string{`"version": "1.2.3"`, `"commit": "abc123def"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := mustExecute(t, dir, append([]string{"version"}, tt.args...)...)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestConfigShow(t *testing.T) {
	dir := t.TempDir()

	out := mustExecute(t, dir, "config", "show")
	assert.Contains(t, out, "data_dir: "+dir)
	assert.Contains(t, out, "max_distance: 2")

	out = mustExecute(t, dir, "config", "show", "--json")
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, dir, decoded["DataDir"])
}

func TestAddGetRelateNeighbors(t *testing.T) {
	dir := t.TempDir()

	id := strings.TrimSpace(mustExecute(t, dir, "add", "Retries use exponential backoff",
		"--type", "fact", "--importance", "0.8", "--tag", "http", "--meta", "source=runbook"))
	assert.NotEmpty(t, id)

	mustExecute(t, dir, "add", "The HTTP client wraps net/http", "--id", "client")
	mustExecute(t, dir, "add", "Timeouts are per request", "--id", "timeouts")

	_, err := execute(t, dir, "add", "duplicate", "--id", "client")
	assert.Error(t, err)

	out := mustExecute(t, dir, "relate", id, "client", "--type", "part_of", "--strength", "0.6")
	assert.Contains(t, out, "PART_OF")
	out = mustExecute(t, dir, "relate", id, "client", "--type", "PART_OF", "--strength", "0.6")
	assert.Contains(t, out, "reinforced 1 times")
	mustExecute(t, dir, "relate", "client", "timeouts", "--strength", "0.5")

	_, err = execute(t, dir, "relate", id, "nowhere")
	assert.Error(t, err)

	out = mustExecute(t, dir, "get", id)
	var node graph.MemoryNode
	require.NoError(t, json.Unmarshal([]byte(out), &node))
	assert.Equal(t, graph.ContentFact, node.ContentType)
	assert.Equal(t, []string{"http"}, node.Tags)
	assert.Equal(t, "runbook", node.Metadata["source"])
	assert.Equal(t, int64(1), node.AccessCount)

	// The access survived the round trip through the store.
	out = mustExecute(t, dir, "get", id)
	require.NoError(t, json.Unmarshal([]byte(out), &node))
	assert.Equal(t, int64(2), node.AccessCount)

	out = mustExecute(t, dir, "neighbors", id, "--json")
	var nodes []graph.MemoryNode
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	require.Len(t, nodes, 2)
	assert.Equal(t, "client", nodes[0].ID)
	assert.Equal(t, "timeouts", nodes[1].ID)

	out = mustExecute(t, dir, "neighbors", id, "--max-distance", "1", "--json")
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	assert.Len(t, nodes, 1)

	_, err = execute(t, dir, "get", "missing")
	assert.Error(t, err)
}

func TestSearchActiveStats(t *testing.T) {
	dir := t.TempDir()
	mustExecute(t, dir, "add", "goroutines and channels make concurrency simple", "--id", "conc", "--importance", "0.9")
	mustExecute(t, dir, "add", "the cafeteria serves lunch at noon", "--id", "lunch", "--importance", "0.2")

	out := mustExecute(t, dir, "search", "goroutines", "channels", "--threshold", "0.1", "--json")
	var hits []graph.SimilarNode
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	require.NotEmpty(t, hits)
	assert.Equal(t, "conc", hits[0].Node.ID)

	out = mustExecute(t, dir, "search", "goroutines", "--limit", "0")
	assert.Contains(t, out, "No matching memories.")

	out = mustExecute(t, dir, "active", "--limit", "1")
	assert.Contains(t, out, "conc")
	assert.NotContains(t, out, "lunch")

	out = mustExecute(t, dir, "stats")
	assert.Contains(t, out, "Nodes:                2")
	assert.Contains(t, out, "TEXT")

	out = mustExecute(t, dir, "stats", "--json")
	var stats graph.Statistics
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.NodeCount)
}

func TestSearchFilters(t *testing.T) {
	dir := t.TempDir()
	mustExecute(t, dir, "add", "retries use exponential backoff", "--id", "fact", "--type", "fact", "--tag", "http")
	mustExecute(t, dir, "add", "retries use exponential backoff", "--id", "code", "--type", "code", "--tag", "http", "--tag", "client")

	tests := []struct {
		name  string
		flags []string
		want  []string
	}{
		{"tag", []string{"--tag", "client"}, []string{"code"}},
		{"type", []string{"--type", "FACT"}, []string{"fact"}},
		{"tag and type", []string{"--tag", "http", "--type", "code"}, []string{"code"}},
		{"no filter", nil, []string{"code", "fact"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"search", "exponential", "backoff", "--threshold", "0.1", "--json"}, tt.flags...)
			var hits []graph.SimilarNode
			require.NoError(t, json.Unmarshal([]byte(mustExecute(t, dir, args...)), &hits))
			got := make([]string, 0, len(hits))
			for _, h := range hits {
				got = append(got, h.Node.ID)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}

	_, err := execute(t, dir, "search", "backoff", "--type", "poem")
	assert.Error(t, err)
}

func TestCleanupAndHistory(t *testing.T) {
	dir := t.TempDir()
	mustExecute(t, dir, "add", "keep me", "--id", "keep", "--importance", "0.9")
	mustExecute(t, dir, "add", "forget me", "--id", "forget", "--importance", "0.05")
	mustExecute(t, dir, "relate", "keep", "forget", "--strength", "0.9")

	out := mustExecute(t, dir, "cleanup", "--json")
	var run journal.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Equal(t, 1, run.NodesEvicted)
	assert.Equal(t, 1, run.RelationsCascaded)
	assert.Equal(t, 1, run.NodeCountAfter)

	_, err := execute(t, dir, "get", "forget")
	assert.Error(t, err, "evicted node must stay gone after reload")

	out = mustExecute(t, dir, "cleanup", "--min-importance", "0.95")
	assert.Contains(t, out, "Evicted 1 nodes")

	out = mustExecute(t, dir, "history")
	assert.Contains(t, out, "2 runs, 2 nodes and 1 relations evicted in total.")

	out = mustExecute(t, dir, "history", "--json")
	var history struct {
		Runs   []journal.Run  `json:"runs"`
		Totals journal.Totals `json:"totals"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	assert.Len(t, history.Runs, 2)
	assert.Equal(t, int64(2), history.Totals.Runs)
}

func TestIngest(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(t.TempDir(), "memories.yaml")
	require.NoError(t, os.WriteFile(doc, []byte(`
nodes:
  - id: backoff
    content: "Retries use exponential backoff"
    content_type: FACT
  - id: client
    content: "The HTTP client"
relations:
  - from: backoff
    to: client
    type: PART_OF
    strength: 0.6
  - from: backoff
    to: ghost
`), 0o600))

	out := mustExecute(t, dir, "ingest", doc, "--workers", "2")
	assert.Contains(t, out, "Added 2 nodes (0 skipped), applied 1 relations (1 rejected).")

	out = mustExecute(t, dir, "ingest", doc)
	assert.Contains(t, out, "Added 0 nodes (2 skipped)")

	out = mustExecute(t, dir, "neighbors", "backoff")
	assert.Contains(t, out, "client")

	_, err := execute(t, dir, "ingest", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	vault := t.TempDir()
	mustExecute(t, dir, "add", "Retries use exponential backoff", "--id", "backoff")
	mustExecute(t, dir, "add", "The HTTP client", "--id", "client")
	mustExecute(t, dir, "relate", "backoff", "client", "--type", "PART_OF")

	out := mustExecute(t, dir, "export", "--vault", vault, "--folder", "mem")
	assert.Contains(t, out, "Exported 2 memories with 1 links")

	note, err := os.ReadFile(filepath.Join(vault, "mem", "backoff.md"))
	require.NoError(t, err)
	assert.Contains(t, string(note), "[[client]]")

	_, err = execute(t, dir, "export", "--vault", filepath.Join(vault, "missing"))
	assert.Error(t, err)
}

func TestProfilingFlags(t *testing.T) {
	dir := t.TempDir()
	profDir := t.TempDir()
	cpu := filepath.Join(profDir, "cpu.prof")
	mem := filepath.Join(profDir, "mem.prof")

	mustExecute(t, dir, "stats", "--cpu-profile", cpu, "--mem-profile", mem)
	require.NoError(t, stopProfiler())

	for _, path := range []string{cpu, mem} {
		_, err := os.Stat(path)
		assert.NoError(t, err, "%s not written", path)
	}
}

func TestParseMeta(t *testing.T) {
	meta, err := parseMeta([]string{"a=1", "b=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y"}, meta)

	_, err = parseMeta([]string{"novalue"})
	assert.Error(t, err)

	meta, err = parseMeta(nil)
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b c", truncate("a\n b\t c", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

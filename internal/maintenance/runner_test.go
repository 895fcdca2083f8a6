package maintenance

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JNZader/memgraph/internal/graph"
	"github.com/JNZader/memgraph/internal/journal"
	"github.com/JNZader/memgraph/internal/metrics"
	"github.com/JNZader/memgraph/internal/store"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSaver struct {
	mu    sync.Mutex
	saves []*graph.Snapshot
	gcs   int
	err   error
}

func (f *fakeSaver) Save(_ context.Context, snap *graph.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saves = append(f.saves, snap)
	return nil
}

func (f *fakeSaver) GC() error {
	f.mu.Lock()
	f.gcs++
	f.mu.Unlock()
	return nil
}

func (f *fakeSaver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

// newTestGraph returns a graph with one node worth keeping and one that has
// decayed below 0.1 after 200 days.
func newTestGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New(
		graph.WithClock(func() time.Time { return baseTime }),
		graph.WithMetrics(metrics.NewCollector()),
	)
	old := baseTime.Add(-200 * 24 * time.Hour)
	require.True(t, g.AddNode(graph.NewMemoryNode("fresh", graph.ContentFact, 0.9,
		graph.WithID("fresh"), graph.WithCreatedAt(baseTime))))
	require.True(t, g.AddNode(graph.NewMemoryNode("stale", graph.ContentFact, 0.5,
		graph.WithID("stale"), graph.WithCreatedAt(old))))

	rel := graph.NewMemoryRelation("fresh", "stale", graph.RelReference, 0.8)
	rel.CreatedAt, rel.LastReinforcedAt = baseTime, baseTime
	require.True(t, g.AddRelation(rel))
	return g
}

func TestRunOnce(t *testing.T) {
	g := newTestGraph(t)
	j, err := journal.NewJournal(journal.Config{Path: filepath.Join(t.TempDir(), "journal.db")})
	require.NoError(t, err)
	defer j.Close()

	saver := &fakeSaver{}
	m := metrics.NewCollector()
	r := NewRunner(g, Options{
		MinImportance:       0.1,
		MinRelationStrength: 0.1,
		Journal:             j,
		Store:               saver,
		Metrics:             m,
	})

	run, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, run.NodesEvicted)
	assert.Equal(t, 1, run.RelationsCascaded)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, 1, run.NodeCountAfter)
	assert.Equal(t, 0, run.RelationCountAfter)
	assert.True(t, baseTime.Equal(run.RanAt))

	require.Equal(t, 1, saver.count())
	assert.Len(t, saver.saves[0].Nodes, 1)
	assert.Equal(t, 1, saver.gcs)
	assert.Equal(t, int64(1), m.Counter(metrics.MetricCleanupRuns).Value())

	runs, err := j.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Total)

	// Nothing left to evict: no GC, but the snapshot is still saved.
	run, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, run.Total)
	assert.Equal(t, 2, saver.count())
	assert.Equal(t, 1, saver.gcs)
}

func TestRunOnceWithBadgerStore(t *testing.T) {
	g := newTestGraph(t)
	s, err := store.Open(store.Options{InMemory: true, Metrics: metrics.NewCollector()})
	require.NoError(t, err)
	defer s.Close()

	r := NewRunner(g, Options{MinImportance: 0.1, MinRelationStrength: 0.1, Store: s})
	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)

	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, "fresh", snap.Nodes[0].ID)
}

func TestRunOnceSaveError(t *testing.T) {
	g := newTestGraph(t)
	saver := &fakeSaver{err: errors.New("disk full")}
	r := NewRunner(g, Options{MinImportance: 0.1, Store: saver, Metrics: metrics.NewCollector()})

	_, err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	// Cleanup still happened.
	assert.Equal(t, 1, g.NodeCount())
}

func TestRunTicks(t *testing.T) {
	g := newTestGraph(t)
	saver := &fakeSaver{}
	r := NewRunner(g, Options{
		MinImportance: 0.1,
		Interval:      10 * time.Millisecond,
		Store:         saver,
		Metrics:       metrics.NewCollector(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return saver.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestRunRequiresInterval(t *testing.T) {
	r := NewRunner(newTestGraph(t), Options{})
	assert.Error(t, r.Run(context.Background()))
}

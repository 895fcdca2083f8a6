package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/JNZader/memgraph/internal/embedding"
	"github.com/JNZader/memgraph/internal/graph"
	"github.com/JNZader/memgraph/internal/journal"
	"github.com/JNZader/memgraph/internal/metrics"
	"github.com/JNZader/memgraph/internal/store"
)

// app is the graph restored from the snapshot store, plus what the commands
// need around it.
type app struct {
	store    *store.Store
	graph    *graph.Graph
	embedder *embedding.Embedder
	metrics  *metrics.Collector
}

// openApp opens the snapshot store under the data directory and restores
// the graph from it. The caller must call close.
func openApp(ctx context.Context) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	m := metrics.Global()
	s, err := store.Open(store.Options{Dir: cfg.StorePath(), Logger: log, Metrics: m})
	if err != nil {
		return nil, err
	}

	snap, err := s.Load(ctx)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	g := graph.New(graph.WithLogger(log), graph.WithMetrics(m))
	nodes, relations := g.Restore(snap)
	log.Debug("loaded %d nodes and %d relations from %s", nodes, relations, cfg.StorePath())

	return &app{
		store:    s,
		graph:    g,
		embedder: embedding.New(cfg.Embedding.Dimension, embedding.WithCache(cfg.Embedding.CacheSize)),
		metrics:  m,
	}, nil
}

// save writes the graph back to the store.
func (a *app) save(ctx context.Context) error {
	if err := a.store.Save(ctx, a.graph.Snapshot()); err != nil {
		return fmt.Errorf("saving graph: %w", err)
	}
	return nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		log.Warn("closing store: %v", err)
	}
}

// openJournal opens the cleanup journal, or returns nil when it is disabled.
func openJournal() (*journal.Journal, error) {
	if !cfg.Journal.Enabled {
		return nil, nil
	}
	return journal.NewJournal(journal.Config{Path: cfg.JournalPath()})
}

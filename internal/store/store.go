// Package store persists graph snapshots in BadgerDB.
//
// Every node is stored under "node:<id>" and every relation under
// "rel:<len(from)>:<from><len(to)>:<to>:<type>", both as JSON. Ids are
// opaque and may contain ':', so the endpoints are length-prefixed. A meta
// key records when the snapshot was taken. Values are self-describing;
// keys are never parsed back.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/JNZader/memgraph/internal/graph"
	"github.com/JNZader/memgraph/internal/logger"
	"github.com/JNZader/memgraph/internal/metrics"
)

var (
	nodePrefix = []byte("node:")
	relPrefix  = []byte("rel:")
	takenAtKey = []byte("meta:taken_at")
)

// Options configures the store.
type Options struct {
	// Dir is the badger directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in memory. Used by tests.
	InMemory bool

	// Logger receives badger's own log output. Nil silences badger.
	Logger *logger.Logger

	// Metrics defaults to the global collector.
	Metrics *metrics.Collector
}

// Stats describes the stored snapshot.
type Stats struct {
	Nodes     int       `json:"nodes"`
	Relations int       `json:"relations"`
	TakenAt   time.Time `json:"taken_at"`
	SizeBytes int64     `json:"size_bytes"`
}

// Store is a badger-backed snapshot store. It is safe for concurrent use.
type Store struct {
	db      *badger.DB
	log     *logger.Logger
	metrics *metrics.Collector
}

// Open opens or creates the store.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	badgerOpts.Logger = nil
	if opts.Logger != nil {
		badgerOpts.Logger = badgerLogger{opts.Logger.WithPrefix("badger")}
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Global()
	}

	return &Store{db: db, log: log.WithPrefix("store"), metrics: m}, nil
}

// Save replaces the stored snapshot with s. Keys of entries no longer in s
// are deleted.
func (s *Store) Save(ctx context.Context, snap *graph.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	defer s.metrics.Timer(metrics.MetricSnapshotDuration).Start().Stop()

	entries := make(map[string][]byte, len(snap.Nodes)+len(snap.Relations)+1)
	for _, n := range snap.Nodes {
		data, err := json.Marshal(n)
		if err != nil {
			return s.fail(fmt.Errorf("marshaling node %s: %w", n.ID, err))
		}
		entries[string(nodeKey(n.ID))] = data
	}
	for _, r := range snap.Relations {
		data, err := json.Marshal(r)
		if err != nil {
			return s.fail(fmt.Errorf("marshaling relation %s->%s: %w", r.FromNodeID, r.ToNodeID, err))
		}
		entries[string(relationKey(r.Key()))] = data
	}
	takenAt, err := snap.TakenAt.MarshalText()
	if err != nil {
		return s.fail(fmt.Errorf("marshaling snapshot time: %w", err))
	}
	entries[string(takenAtKey)] = takenAt

	stale, err := s.staleKeys(ctx, entries)
	if err != nil {
		return s.fail(err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return s.fail(fmt.Errorf("deleting %s: %w", key, err))
		}
	}
	for key, data := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := wb.Set([]byte(key), data); err != nil {
			return s.fail(fmt.Errorf("writing %s: %w", key, err))
		}
	}
	if err := wb.Flush(); err != nil {
		return s.fail(fmt.Errorf("flushing snapshot: %w", err))
	}

	s.metrics.Counter(metrics.MetricSnapshotsSaved).Inc()
	s.log.Debug("saved %d nodes, %d relations, %d stale keys removed",
		len(snap.Nodes), len(snap.Relations), len(stale))
	return nil
}

// staleKeys returns the stored node and relation keys absent from keep.
func (s *Store) staleKeys(ctx context.Context, keep map[string][]byte) ([][]byte, error) {
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		for _, prefix := range [][]byte{nodePrefix, relPrefix} {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = prefix

			it := txn.NewIterator(opts)
			for it.Rewind(); it.Valid(); it.Next() {
				if err := ctx.Err(); err != nil {
					it.Close()
					return err
				}
				key := it.Item().KeyCopy(nil)
				if _, ok := keep[string(key)]; !ok {
					stale = append(stale, key)
				}
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning stored keys: %w", err)
	}
	return stale, nil
}

// Load reads the stored snapshot. An empty store yields an empty snapshot
// with a zero TakenAt. Nodes and relations come back in key order.
func (s *Store) Load(ctx context.Context) (*graph.Snapshot, error) {
	snap := &graph.Snapshot{
		Nodes:     make([]*graph.MemoryNode, 0),
		Relations: make([]*graph.MemoryRelation, 0),
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(takenAtKey)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				return snap.TakenAt.UnmarshalText(val)
			}); err != nil {
				return fmt.Errorf("decoding snapshot time: %w", err)
			}
		}

		if err := scan(ctx, txn, nodePrefix, func(val []byte) error {
			var n graph.MemoryNode
			if err := json.Unmarshal(val, &n); err != nil {
				return err
			}
			snap.Nodes = append(snap.Nodes, &n)
			return nil
		}); err != nil {
			return fmt.Errorf("reading nodes: %w", err)
		}

		if err := scan(ctx, txn, relPrefix, func(val []byte) error {
			var r graph.MemoryRelation
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			snap.Relations = append(snap.Relations, &r)
			return nil
		}); err != nil {
			return fmt.Errorf("reading relations: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(fmt.Errorf("loading snapshot: %w", err))
	}

	return snap, nil
}

func scan(ctx context.Context, txn *badger.Txn, prefix []byte, fn func([]byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 100
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close() //nolint:errcheck

	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := it.Item().Value(fn); err != nil {
			return fmt.Errorf("key %s: %w", it.Item().Key(), err)
		}
	}
	return nil
}

// Stats counts the stored entries.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.View(func(txn *badger.Txn) error {
		if item, err := txn.Get(takenAtKey); err == nil {
			_ = item.Value(func(val []byte) error {
				return stats.TakenAt.UnmarshalText(val)
			})
		}

		for prefix, count := range map[string]*int{
			string(nodePrefix): &stats.Nodes,
			string(relPrefix):  &stats.Relations,
		} {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = []byte(prefix)

			it := txn.NewIterator(opts)
			for it.Rewind(); it.Valid(); it.Next() {
				if err := ctx.Err(); err != nil {
					it.Close()
					return err
				}
				*count++
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("getting stats: %w", err)
	}

	lsmSize, vlogSize := s.db.Size()
	stats.SizeBytes = lsmSize + vlogSize
	return stats, nil
}

// GC reclaims value log space. Having nothing to rewrite is not an error.
func (s *Store) GC() error {
	err := s.db.RunValueLogGC(0.5)
	if err == nil || errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return fmt.Errorf("value log gc: %w", err)
}

// Close releases resources.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) fail(err error) error {
	s.metrics.Counter(metrics.MetricStoreErrors).Inc()
	s.log.Error("%v", err)
	return err
}

func nodeKey(id string) []byte {
	return append(append([]byte(nil), nodePrefix...), id...)
}

func relationKey(k graph.RelationKey) []byte {
	return []byte(fmt.Sprintf("%s%d:%s%d:%s:%s", relPrefix, len(k.From), k.From, len(k.To), k.To, k.Type))
}

// badgerLogger routes badger's log output through the application logger.
// Badger is chatty at info level, so info is demoted to debug.
type badgerLogger struct {
	l *logger.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{})   { b.l.Error(format, args...) }
func (b badgerLogger) Warningf(format string, args ...interface{}) { b.l.Warn(format, args...) }
func (b badgerLogger) Infof(format string, args ...interface{})    { b.l.Debug(format, args...) }
func (b badgerLogger) Debugf(format string, args ...interface{})   { b.l.Debug(format, args...) }

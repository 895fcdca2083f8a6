package metrics

import "sync"

var (
	globalCollector *Collector
	once            sync.Once
)

// Global returns the process-wide collector.
func Global() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}

// IncCounter increments a global counter by 1.
func IncCounter(name string) {
	Global().Counter(name).Inc()
}

// AddCounter adds n to a global counter.
func AddCounter(name string, n int64) {
	Global().Counter(name).Add(n)
}

// SetGauge sets a global gauge value.
func SetGauge(name string, v float64) {
	Global().Gauge(name).Set(v)
}

// StartTimer starts a global timer.
func StartTimer(name string) *TimerContext {
	return Global().Timer(name).Start()
}

// Metric names for memgraph
const (
	// Node metrics
	MetricNodesAdded    = "memgraph_nodes_added_total"
	MetricNodesRejected = "memgraph_nodes_rejected_total"
	MetricNodeHits      = "memgraph_node_hits_total"
	MetricNodeMisses    = "memgraph_node_misses_total"
	MetricNodeCount     = "memgraph_nodes"

	// Relation metrics
	MetricRelationsAdded      = "memgraph_relations_added_total"
	MetricRelationsReinforced = "memgraph_relations_reinforced_total"
	MetricRelationsRejected   = "memgraph_relations_rejected_total"
	MetricRelationCount       = "memgraph_relations"

	// Query latencies
	MetricSearchDuration    = "memgraph_search_duration"
	MetricTraversalDuration = "memgraph_traversal_duration"

	// Eviction
	MetricCleanupDuration  = "memgraph_cleanup_duration"
	MetricCleanupRuns      = "memgraph_cleanup_runs_total"
	MetricEvictedNodes     = "memgraph_evicted_nodes_total"
	MetricEvictedRelations = "memgraph_evicted_relations_total"

	// Persistence
	MetricSnapshotsSaved   = "memgraph_snapshots_saved_total"
	MetricSnapshotDuration = "memgraph_snapshot_duration"
	MetricStoreErrors      = "memgraph_store_errors_total"

	// Ingestion
	MetricIngestBatches = "memgraph_ingest_batches_total"
	MetricIngestErrors  = "memgraph_ingest_errors_total"

	// Embedding cache
	MetricEmbeddingCacheHits    = "memgraph_embedding_cache_hits"
	MetricEmbeddingCacheMisses  = "memgraph_embedding_cache_misses"
	MetricEmbeddingCacheEntries = "memgraph_embedding_cache_entries"

	// MCP
	MetricMCPToolCalls  = "memgraph_mcp_tool_calls_total"
	MetricMCPToolErrors = "memgraph_mcp_tool_errors_total"

	// HTTP
	MetricHTTPRequests = "memgraph_http_requests_total"
	MetricHTTPErrors   = "memgraph_http_errors_total"
	MetricHTTPDuration = "memgraph_http_request_duration"
)

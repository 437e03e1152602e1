package config

// Config represents the core chainletter configuration
type Config struct {
	Account   AccountConfig   `mapstructure:"account" toml:"account"`
	Database  DatabaseConfig  `mapstructure:"database" toml:"database"`
	Ledger    LedgerConfig    `mapstructure:"ledger" toml:"ledger"`
	Decrypt   DecryptConfig   `mapstructure:"decrypt" toml:"decrypt"`
	Groups    GroupsConfig    `mapstructure:"groups" toml:"groups"`
	Reconcile ReconcileConfig `mapstructure:"reconcile" toml:"reconcile"`
}

// AccountConfig identifies the ledger account this node syncs for
type AccountConfig struct {
	Name string `mapstructure:"name" toml:"name"` // ledger username, e.g. "alice"
}

// DatabaseConfig configures local SQLite storage.
// Each account identity gets its own database file under Dir.
type DatabaseConfig struct {
	Dir string `mapstructure:"dir" toml:"dir"`
}

// LedgerConfig configures history reads against the ledger RPC endpoints
type LedgerConfig struct {
	// Ordered list of interchangeable read endpoints. The scanner rotates to
	// the next endpoint whenever one fails.
	Endpoints []string `mapstructure:"endpoints" toml:"endpoints"`

	PageSize       int `mapstructure:"page_size" toml:"page_size"`               // operations per history page (default: 100)
	MaxBackfillOps int `mapstructure:"max_backfill_ops" toml:"max_backfill_ops"` // total-operations ceiling per backfill (default: 2000)
	TimeoutSeconds int `mapstructure:"timeout_seconds" toml:"timeout_seconds"`   // per-request HTTP timeout (default: 15)

	Retry RetryConfig `mapstructure:"retry" toml:"retry"`
}

// RetryConfig configures the shared retry policy for ledger reads
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts" toml:"max_attempts"`   // attempts across all endpoints (default: 4)
	BaseDelayMS int `mapstructure:"base_delay_ms" toml:"base_delay_ms"` // first backoff delay (default: 250)
	MaxDelayMS  int `mapstructure:"max_delay_ms" toml:"max_delay_ms"`   // backoff cap (default: 5000)
	JitterMS    int `mapstructure:"jitter_ms" toml:"jitter_ms"`         // uniform jitter added per attempt (default: 100)
}

// DecryptConfig configures the rate-limited decryption scheduler
type DecryptConfig struct {
	RatePerMinute int `mapstructure:"rate_per_minute" toml:"rate_per_minute"` // signer prompts per minute (default: 30)
	BatchSize     int `mapstructure:"batch_size" toml:"batch_size"`           // concurrent decrypts per batch (default: 5)

	MemoryCacheEntries    int `mapstructure:"memory_cache_entries" toml:"memory_cache_entries"`         // LRU capacity (default: 512)
	MemoryCacheTTLMinutes int `mapstructure:"memory_cache_ttl_minutes" toml:"memory_cache_ttl_minutes"` // in-memory TTL (default: 30)
	PersistentTTLHours    int `mapstructure:"persistent_ttl_hours" toml:"persistent_ttl_hours"`         // persistent cache TTL (default: 168)
}

// GroupsConfig bounds the membership discovery scans
type GroupsConfig struct {
	ScanBatchSize int `mapstructure:"scan_batch_size" toml:"scan_batch_size"` // concurrent member scans per batch (default: 5)
	MaxIterations int `mapstructure:"max_iterations" toml:"max_iterations"`   // BFS safety bound (default: 20)
	MaxOpsScanned int `mapstructure:"max_ops_scanned" toml:"max_ops_scanned"` // total-operations ceiling per discovery (default: 10000)
}

// ReconcileConfig configures the repair passes
type ReconcileConfig struct {
	OrphanAgeMinutes int `mapstructure:"orphan_age_minutes" toml:"orphan_age_minutes"` // sending-state age threshold (default: 5)
}

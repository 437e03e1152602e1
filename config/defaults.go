package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Storage defaults
	v.SetDefault("database.dir", "chainletter-data")

	// Ledger read defaults
	v.SetDefault("ledger.endpoints", []string{
		"https://api.chainledger.io",
		"https://rpc.chainledger.net",
		"https://ledger.openhub.dev",
	})
	v.SetDefault("ledger.page_size", 100)
	v.SetDefault("ledger.max_backfill_ops", 2000)
	v.SetDefault("ledger.timeout_seconds", 15)
	v.SetDefault("ledger.retry.max_attempts", 4)
	v.SetDefault("ledger.retry.base_delay_ms", 250)
	v.SetDefault("ledger.retry.max_delay_ms", 5000)
	v.SetDefault("ledger.retry.jitter_ms", 100)

	// Decryption scheduler defaults. The rate is deliberately conservative:
	// every miss is a prompt against the user's signer.
	v.SetDefault("decrypt.rate_per_minute", 30)
	v.SetDefault("decrypt.batch_size", 5)
	v.SetDefault("decrypt.memory_cache_entries", 512)
	v.SetDefault("decrypt.memory_cache_ttl_minutes", 30)
	v.SetDefault("decrypt.persistent_ttl_hours", 168) // one week

	// Group discovery bounds
	v.SetDefault("groups.scan_batch_size", 5)
	v.SetDefault("groups.max_iterations", 20)
	v.SetDefault("groups.max_ops_scanned", 10000)

	// Reconciler defaults
	v.SetDefault("reconcile.orphan_age_minutes", 5)
}

// newDefaultViper returns a fresh Viper instance carrying only the defaults,
// with no file or environment sources attached.
func newDefaultViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("account.name", "CHAINLETTER_ACCOUNT")
	v.BindEnv("database.dir", "CHAINLETTER_DATA_DIR")
}
